package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cast"

	"github.com/clinichub/clinichub/internal/log"
	"github.com/clinichub/clinichub/internal/pkg/xcache"
)

// PgConfigStore loads data source configurations from the
// analytics.data_source_configs table, read through a short-TTL cache so
// config lookups do not hit the database on every query.
type PgConfigStore struct {
	DB    DBQuerier
	Cache xcache.Cache[*DataSourceConfig]

	ttl time.Duration
}

var _ ConfigStore = (*PgConfigStore)(nil)

// NewPgConfigStore creates a PgConfigStore.
func NewPgConfigStore(cfg Config, db DBQuerier, cache xcache.Cache[*DataSourceConfig]) *PgConfigStore {
	cfg = cfg.withDefaults()

	return &PgConfigStore{
		DB:    db,
		Cache: cache,
		ttl:   cfg.ConfigTTL,
	}
}

const configSelect = `SELECT id, schema_name, table_name, source_type, is_active, columns FROM analytics.data_source_configs`

// GetDataSourceConfigByID returns the config for one data source, or nil
// when none exists.
func (s *PgConfigStore) GetDataSourceConfigByID(ctx context.Context, id int64) (*DataSourceConfig, error) {
	return s.cached(ctx, "dscfg:id:"+strconv.FormatInt(id, 10), func(ctx context.Context) (*DataSourceConfig, error) {
		return s.queryOne(ctx, configSelect+" WHERE id = $1", id)
	})
}

// GetDataSourceConfig returns the config matching table and schema. An empty
// schema matches any schema.
func (s *PgConfigStore) GetDataSourceConfig(ctx context.Context, table, schema string) (*DataSourceConfig, error) {
	return s.cached(ctx, "dscfg:tbl:"+schema+"."+table, func(ctx context.Context) (*DataSourceConfig, error) {
		if schema == "" {
			return s.queryOne(ctx, configSelect+" WHERE table_name = $1", table)
		}

		return s.queryOne(ctx, configSelect+" WHERE table_name = $1 AND schema_name = $2", table, schema)
	})
}

// ListActiveDataSourceConfigs returns every active config. Not cached: it is
// only called by background warming.
func (s *PgConfigStore) ListActiveDataSourceConfigs(ctx context.Context) ([]*DataSourceConfig, error) {
	rows, err := s.DB.Query(ctx, configSelect+" WHERE is_active ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list data source configs: %w", err)
	}
	defer rows.Close()

	collected, err := collectRows(rows)
	if err != nil {
		return nil, err
	}

	configs := make([]*DataSourceConfig, 0, len(collected))

	for _, row := range collected {
		cfg, err := configFromRow(row)
		if err != nil {
			return nil, err
		}

		configs = append(configs, cfg)
	}

	return configs, nil
}

// cached wraps a loader with the read-through config cache. Cache trouble is
// logged and degraded to a direct load. A nil result ("no such data source")
// is never cached so newly created sources appear without waiting for TTL.
func (s *PgConfigStore) cached(ctx context.Context, key string, load func(context.Context) (*DataSourceConfig, error)) (*DataSourceConfig, error) {
	if s.Cache != nil {
		cfg, err := s.Cache.Get(ctx, key)
		if err == nil && cfg != nil {
			return cfg, nil
		}

		if err != nil && !isCacheMiss(err) {
			log.Warn(ctx, "data source config cache read failed",
				log.String("key", key),
				log.Cause(err),
			)
		}
	}

	cfg, err := load(ctx)
	if err != nil || cfg == nil {
		return cfg, err
	}

	if s.Cache != nil {
		if err := s.Cache.Set(ctx, key, cfg, xcache.WithExpiration(s.ttl)); err != nil {
			log.Warn(ctx, "data source config cache write failed",
				log.String("key", key),
				log.Cause(err),
			)
		}
	}

	return cfg, nil
}

func (s *PgConfigStore) queryOne(ctx context.Context, query string, args ...any) (*DataSourceConfig, error) {
	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load data source config: %w", err)
	}
	defer rows.Close()

	collected, err := collectRows(rows)
	if err != nil {
		return nil, err
	}

	if len(collected) == 0 {
		return nil, nil
	}

	return configFromRow(collected[0])
}

func configFromRow(row Row) (*DataSourceConfig, error) {
	cfg := &DataSourceConfig{
		ID:     cast.ToInt64(row["id"]),
		Schema: cast.ToString(row["schema_name"]),
		Table:  cast.ToString(row["table_name"]),
		Type:   SourceType(cast.ToString(row["source_type"])),
		Active: cast.ToBool(row["is_active"]),
	}

	if err := decodeColumns(row["columns"], &cfg.Columns); err != nil {
		return nil, fmt.Errorf("decode columns for data source %d: %w", cfg.ID, err)
	}

	return cfg, nil
}

// decodeColumns handles the jsonb column however the driver surfaces it:
// raw bytes, a string, or an already-decoded []any.
func decodeColumns(raw any, out *[]Column) error {
	switch v := raw.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, out)
	case string:
		return json.Unmarshal([]byte(v), out)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return err
		}

		return json.Unmarshal(encoded, out)
	}
}
