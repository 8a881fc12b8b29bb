package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	flag "github.com/spf13/pflag"

	"github.com/adlabs/taxonomy-wizard/utils/pkg/logger"
	"github.com/adlabs/taxonomy-wizard/validator/pkg/metrics"
	"github.com/adlabs/taxonomy-wizard/validator/pkg/products"
	"github.com/adlabs/taxonomy-wizard/validator/pkg/server"
	"github.com/adlabs/taxonomy-wizard/warehouse/pkg/clickhouse"
	"github.com/adlabs/taxonomy-wizard/warehouse/pkg/store"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultListenAddr = "0.0.0.0:8081"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	listenAddrFlag := flag.String("listen-addr", defaultListenAddr, "Address to listen on (or set LISTEN_ADDR env var)")
	shutdownTimeoutFlag := flag.Duration("shutdown-timeout", 10*time.Second, "Maximum time to wait for graceful shutdown")
	rateLimitFlag := flag.Int("rate-limit", 120, "Requests per minute allowed per client IP (0 disables)")
	cmBaseURLFlag := flag.String("cm-base-url", "", "Campaign Manager 360 API base URL override")

	clickhouseAddrFlag := flag.String("clickhouse-addr", "", "ClickHouse address (host:port) (or set CLICKHOUSE_ADDR_TCP env var)")
	clickhouseDatabaseFlag := flag.String("clickhouse-database", "taxonomy", "ClickHouse database name (or set CLICKHOUSE_DATABASE env var)")
	clickhouseUsernameFlag := flag.String("clickhouse-username", "default", "ClickHouse username (or set CLICKHOUSE_USERNAME env var)")
	clickhousePasswordFlag := flag.String("clickhouse-password", "", "ClickHouse password (or set CLICKHOUSE_PASSWORD env var)")
	clickhouseSecureFlag := flag.Bool("clickhouse-secure", false, "Enable TLS for ClickHouse Cloud (or set CLICKHOUSE_SECURE=true env var)")

	flag.Parse()

	// Optional .env for local development.
	_ = godotenv.Load()

	log := logger.New(*verboseFlag)

	if env := os.Getenv("LISTEN_ADDR"); env != "" {
		*listenAddrFlag = env
	}
	if env := os.Getenv("CLICKHOUSE_ADDR_TCP"); env != "" {
		*clickhouseAddrFlag = env
	}
	if env := os.Getenv("CLICKHOUSE_DATABASE"); env != "" {
		*clickhouseDatabaseFlag = env
	}
	if env := os.Getenv("CLICKHOUSE_USERNAME"); env != "" {
		*clickhouseUsernameFlag = env
	}
	if env := os.Getenv("CLICKHOUSE_PASSWORD"); env != "" {
		*clickhousePasswordFlag = env
	}
	if os.Getenv("CLICKHOUSE_SECURE") == "true" {
		*clickhouseSecureFlag = true
	}

	if *clickhouseAddrFlag == "" {
		return fmt.Errorf("--clickhouse-addr is required (or set CLICKHOUSE_ADDR_TCP)")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// One warehouse client per database, created on first use and shared for
	// the life of the process.
	cache := clickhouse.NewClientCache([]string{*clickhouseDatabaseFlag}, func(ctx context.Context, scopes []string) (clickhouse.Client, error) {
		return clickhouse.NewClient(ctx, log, clickhouse.ClientConfig{
			Addr:     *clickhouseAddrFlag,
			Database: scopes[0],
			Username: *clickhouseUsernameFlag,
			Password: *clickhousePasswordFlag,
			Secure:   *clickhouseSecureFlag,
		})
	})
	defer func() {
		if err := cache.Close(log); err != nil {
			log.Error("failed to close warehouse clients", "error", err)
		}
	}()

	warehouseClient, err := cache.Get(ctx)
	if err != nil {
		return err
	}

	storeCfg := store.Config{
		Logger:    log,
		Warehouse: warehouseClient,
		Database:  *clickhouseDatabaseFlag,
	}

	specStore, err := store.NewSpecificationStore(storeCfg)
	if err != nil {
		return err
	}

	resultStore, err := store.NewResultStore(storeCfg)
	if err != nil {
		return err
	}

	clock := clockwork.NewRealClock()
	registry := products.NewRegistry(log, clock)
	if *cmBaseURLFlag != "" {
		registry.CampaignManagerBaseURL = *cmBaseURLFlag
	}

	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	srv, err := server.New(server.Config{
		Logger:          log,
		ListenAddr:      *listenAddrFlag,
		ShutdownTimeout: *shutdownTimeoutFlag,
		VersionInfo: server.VersionInfo{
			Version: version,
			Commit:  commit,
			Date:    date,
		},
		Specs:     specStore,
		Results:   resultStore,
		Registry:  registry,
		RateLimit: *rateLimitFlag,
		Clock:     clock,
	})
	if err != nil {
		return err
	}

	return srv.Run(ctx)
}
