package store

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	wizardtesting "github.com/adlabs/taxonomy-wizard/utils/pkg/testing"
	"github.com/adlabs/taxonomy-wizard/warehouse/pkg/clickhouse"
)

type fakeClient struct {
	conn *fakeConnection
}

func (c *fakeClient) Conn(ctx context.Context) (clickhouse.Connection, error) {
	return c.conn, nil
}

func (c *fakeClient) Close() error { return nil }

type fakeConnection struct {
	execs   []string
	queries []string
	batches []*fakeBatch

	// batchTypes, when set, is enforced on every Append so tests catch
	// drift between struct fields and the migration column types.
	batchTypes []string

	queryRows [][]any
	queryErr  error
}

func (c *fakeConnection) Exec(ctx context.Context, query string, args ...any) error {
	c.execs = append(c.execs, query)
	return nil
}

func (c *fakeConnection) Query(ctx context.Context, query string, args ...any) (clickhouse.Rows, error) {
	c.queries = append(c.queries, query)
	if c.queryErr != nil {
		return nil, c.queryErr
	}
	return &fakeRows{rows: c.queryRows}, nil
}

func (c *fakeConnection) PrepareBatch(ctx context.Context, query string) (clickhouse.Batch, error) {
	b := &fakeBatch{query: query, columnTypes: c.batchTypes}
	c.batches = append(c.batches, b)
	return b, nil
}

func (c *fakeConnection) Close() error { return nil }

type fakeBatch struct {
	query       string
	columnTypes []string
	appended    [][]any
	sent        bool
}

func (b *fakeBatch) Append(v ...any) error {
	if b.columnTypes != nil {
		if len(v) != len(b.columnTypes) {
			return fmt.Errorf("append of %d values into %d columns", len(v), len(b.columnTypes))
		}
		for i, value := range v {
			if got := columnTypeOf(value); got != b.columnTypes[i] {
				return fmt.Errorf("column %d: cannot convert %s to %s", i, got, b.columnTypes[i])
			}
		}
	}
	b.appended = append(b.appended, v)
	return nil
}

// columnTypeOf maps a Go value to the ClickHouse column type the driver
// would accept it into, for the types our stores append.
func columnTypeOf(v any) string {
	switch v.(type) {
	case string:
		return "String"
	case int64:
		return "Int64"
	case []int64:
		return "Array(Int64)"
	case time.Time:
		return "DateTime"
	case *time.Time:
		return "Nullable(Date)"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func (b *fakeBatch) Send() error {
	b.sent = true
	return nil
}

func (b *fakeBatch) Abort() error { return nil }

type fakeRows struct {
	rows [][]any
	idx  int
	cur  []any
}

func (r *fakeRows) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}
	r.cur = r.rows[r.idx]
	r.idx++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.cur[i].(string)
		case *int64:
			*p = r.cur[i].(int64)
		}
	}
	return nil
}

func (r *fakeRows) Err() error   { return nil }
func (r *fakeRows) Close() error { return nil }

func newTestStoreConfig(t *testing.T, conn *fakeConnection) Config {
	t.Helper()
	return Config{
		Logger:    wizardtesting.NewLogger(),
		Warehouse: &fakeClient{conn: conn},
		Database:  "taxonomy",
	}
}

func TestWarehouse_SpecificationStore_ReplaceAll(t *testing.T) {
	t.Parallel()

	conn := &fakeConnection{batchTypes: []string{
		"String", "String", "String", "String", "String", "String",
		"Array(Int64)", "Array(Int64)",
		"Nullable(Date)", "Nullable(Date)", "Nullable(Date)", "Nullable(Date)",
	}}
	s, err := NewSpecificationStore(newTestStoreConfig(t, conn))
	require.NoError(t, err)

	now := time.Now().UTC()
	rows := []SpecificationRow{
		{Name: "camp_v1", FieldStructureType: "DELIMITED", ValidationQueryTemplate: "SELECT 1", Product: "Campaign Manager", MinStartDate: &now},
		{Name: "plc_v2", FieldStructureType: "DELIMITED", ValidationQueryTemplate: "SELECT 2", Product: "DV360"},
	}
	require.NoError(t, s.ReplaceAll(context.Background(), rows))

	require.Len(t, conn.execs, 1)
	require.Contains(t, conn.execs[0], "TRUNCATE TABLE taxonomy.specifications")

	require.Len(t, conn.batches, 1)
	require.True(t, conn.batches[0].sent)
	require.Len(t, conn.batches[0].appended, 2)
	require.Equal(t, "camp_v1", conn.batches[0].appended[0][0])
}

func TestWarehouse_SpecificationStore_FetchValidationQueryTemplate(t *testing.T) {
	t.Parallel()

	t.Run("found", func(t *testing.T) {
		t.Parallel()

		conn := &fakeConnection{queryRows: [][]any{{"SELECT name, msg FROM x"}}}
		s, err := NewSpecificationStore(newTestStoreConfig(t, conn))
		require.NoError(t, err)

		tmpl, err := s.FetchValidationQueryTemplate(context.Background(), "camp_v1")
		require.NoError(t, err)
		require.Equal(t, "SELECT name, msg FROM x", tmpl)
		require.Contains(t, conn.queries[0], "{spec_name:String}")
	})

	t.Run("missing spec", func(t *testing.T) {
		t.Parallel()

		conn := &fakeConnection{}
		s, err := NewSpecificationStore(newTestStoreConfig(t, conn))
		require.NoError(t, err)

		_, err = s.FetchValidationQueryTemplate(context.Background(), "nope")
		require.Error(t, err)
		require.Contains(t, err.Error(), `"nope"`)
	})
}

func TestWarehouse_SpecificationStore_RunValidationQuery(t *testing.T) {
	t.Parallel()

	conn := &fakeConnection{queryRows: [][]any{
		{"US_123", "Valid."},
		{"XX_9", "Does not match pattern."},
	}}
	s, err := NewSpecificationStore(newTestStoreConfig(t, conn))
	require.NoError(t, err)

	results, err := s.RunValidationQuery(context.Background(), "SELECT name, msg", []string{"US_123", "XX_9"})
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"US_123": "Valid.",
		"XX_9":   "Does not match pattern.",
	}, results)
}

func TestWarehouse_FieldTableStore(t *testing.T) {
	t.Parallel()

	t.Run("ensure drops then creates", func(t *testing.T) {
		t.Parallel()

		conn := &fakeConnection{}
		s, err := NewFieldTableStore(newTestStoreConfig(t, conn))
		require.NoError(t, err)

		require.NoError(t, s.EnsureLookupTable(context.Background(), "dim_region"))
		require.Len(t, conn.execs, 2)
		require.Contains(t, conn.execs[0], "DROP TABLE IF EXISTS taxonomy.dim_region")
		require.Contains(t, conn.execs[1], "CREATE TABLE taxonomy.dim_region")
	})

	t.Run("rejects unsafe identifiers", func(t *testing.T) {
		t.Parallel()

		conn := &fakeConnection{}
		s, err := NewFieldTableStore(newTestStoreConfig(t, conn))
		require.NoError(t, err)

		err = s.EnsureLookupTable(context.Background(), "dim_region; DROP TABLE users")
		require.Error(t, err)
		require.Empty(t, conn.execs)
	})

	t.Run("load values", func(t *testing.T) {
		t.Parallel()

		conn := &fakeConnection{}
		s, err := NewFieldTableStore(newTestStoreConfig(t, conn))
		require.NoError(t, err)

		require.NoError(t, s.LoadValues(context.Background(), "dim_region", []string{"US", "DE", "JP"}))
		require.Len(t, conn.batches, 1)
		require.True(t, strings.HasPrefix(conn.batches[0].query, "INSERT INTO taxonomy.dim_region"))
		require.Len(t, conn.batches[0].appended, 3)
	})
}

func TestWarehouse_ResultStore_ReplaceAll(t *testing.T) {
	t.Parallel()

	// Column types from the validation_results migration; Append must
	// only ever see values the real driver would accept for them.
	conn := &fakeConnection{batchTypes: []string{
		"String", "String", "String", "String", "String", "String", "String", "DateTime",
	}}
	s, err := NewResultStore(newTestStoreConfig(t, conn))
	require.NoError(t, err)

	results := []ValidationResult{
		{SpecName: "camp_v1", Product: "Campaign Manager", EntityID: "42", EntityValue: "US_42", ValidationMessage: "Valid.", ValidatedAt: time.Now().UTC()},
	}
	require.NoError(t, s.ReplaceAll(context.Background(), results))

	require.Len(t, conn.execs, 1)
	require.Contains(t, conn.execs[0], "TRUNCATE TABLE taxonomy.validation_results")
	require.Len(t, conn.batches, 1)
	require.True(t, conn.batches[0].sent)
	require.Len(t, conn.batches[0].appended, 1)
	require.Equal(t, "42", conn.batches[0].appended[0][4])
}
