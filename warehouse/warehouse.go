package warehouse

import "embed"

// MigrationsFS embeds the warehouse SQL migrations.
//
//go:embed migrations/*.sql
var MigrationsFS embed.FS
