package analytics

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clinichub/clinichub/internal/authz"
)

type fakeRows struct {
	fields []pgconn.FieldDescription
	rows   [][]any
	idx    int
}

func newFakeRows(columns []string, rows [][]any) *fakeRows {
	fields := make([]pgconn.FieldDescription, len(columns))
	for i, name := range columns {
		fields[i] = pgconn.FieldDescription{Name: name}
	}

	return &fakeRows{fields: fields, rows: rows, idx: -1}
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return r.fields }
func (r *fakeRows) Next() bool                                   { r.idx++; return r.idx < len(r.rows) }
func (r *fakeRows) Scan(dest ...any) error                       { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return r.rows[r.idx], nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

// fakeDB replays one canned result set and records every executed query.
type fakeDB struct {
	mu      sync.Mutex
	columns []string
	rows    [][]any
	err     error
	queries []string
	args    [][]any
}

func (db *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.queries = append(db.queries, sql)
	db.args = append(db.args, args)

	if db.err != nil {
		return nil, db.err
	}

	return newFakeRows(db.columns, db.rows), nil
}

func (db *fakeDB) queryCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()

	return len(db.queries)
}

func (db *fakeDB) lastQuery() string {
	db.mu.Lock()
	defer db.mu.Unlock()

	if len(db.queries) == 0 {
		return ""
	}

	return db.queries[len(db.queries)-1]
}

// fakeConfigStore serves a fixed set of configs from memory.
type fakeConfigStore struct {
	mu      sync.Mutex
	configs map[int64]*DataSourceConfig
	calls   int
}

func newFakeConfigStore(configs ...*DataSourceConfig) *fakeConfigStore {
	byID := make(map[int64]*DataSourceConfig, len(configs))
	for _, cfg := range configs {
		byID[cfg.ID] = cfg
	}

	return &fakeConfigStore{configs: byID}
}

func (s *fakeConfigStore) GetDataSourceConfigByID(ctx context.Context, id int64) (*DataSourceConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++

	return s.configs[id], nil
}

func (s *fakeConfigStore) GetDataSourceConfig(ctx context.Context, table, schema string) (*DataSourceConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++

	for _, cfg := range s.configs {
		if cfg.Table == table && (schema == "" || cfg.Schema == schema) {
			return cfg, nil
		}
	}

	return nil, nil
}

func (s *fakeConfigStore) ListActiveDataSourceConfigs(ctx context.Context) ([]*DataSourceConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var active []*DataSourceConfig
	for _, cfg := range s.configs {
		if cfg.Active {
			active = append(active, cfg)
		}
	}

	return active, nil
}

func boolPtr(v bool) *bool    { return &v }
func int64Ptr(v int64) *int64 { return &v }

// measureConfig is a typical measure-based data source declaration.
func measureConfig() *DataSourceConfig {
	return &DataSourceConfig{
		ID:     42,
		Schema: "analytics",
		Table:  "practice_measures",
		Type:   SourceMeasureBased,
		Active: true,
		Columns: []Column{
			{Name: "time_period", DataType: "date", IsDateField: true},
			{Name: "measure", DataType: "text"},
			{Name: "measure_type", DataType: "text", IsMeasureType: true},
			{Name: "measure_value", DataType: "numeric", IsMeasure: true},
			{Name: "frequency", DataType: "text"},
			{Name: "practice_uid", DataType: "bigint"},
			{Name: "provider_uid", DataType: "bigint"},
			{Name: "payer", DataType: "text", IsExpansionDimension: true},
			{Name: "internal_notes", DataType: "text", IsFilterable: boolPtr(false)},
		},
	}
}

func orgScope(practices ...int64) authz.Scope {
	return authz.Scope{
		Kind:                authz.ScopeKindUser,
		UserID:              int64Ptr(7),
		Permission:          authz.PermissionOrganization,
		AccessiblePractices: practices,
	}
}
