package analytics

import (
	"time"

	"github.com/clinichub/clinichub/internal/pkg/xcache"
)

// Config configures the analytics query/cache core.
type Config struct {
	// UseCache routes queries through the cache path. When false, every
	// query takes the legacy direct-SQL path with access control in SQL.
	UseCache bool `conf:"use_cache" yaml:"use_cache" json:"use_cache"`

	// Rows configures the raw analytics row cache backend.
	Rows xcache.Config `conf:"rows" yaml:"rows" json:"rows"`

	// RowTTL bounds staleness of cached raw row sets.
	RowTTL time.Duration `conf:"row_ttl" yaml:"row_ttl" json:"row_ttl"`

	// Configs configures the data source configuration cache backend.
	Configs xcache.Config `conf:"configs" yaml:"configs" json:"configs"`

	// ConfigTTL bounds staleness of cached data source configs.
	ConfigTTL time.Duration `conf:"config_ttl" yaml:"config_ttl" json:"config_ttl"`

	// DimensionTTL bounds staleness of dimension value summaries.
	DimensionTTL time.Duration `conf:"dimension_ttl" yaml:"dimension_ttl" json:"dimension_ttl"`

	// DimensionTopN is the configured summary size; the effective top-N is
	// never less than the caller's requested limit.
	DimensionTopN int `conf:"dimension_top_n" yaml:"dimension_top_n" json:"dimension_top_n"`

	// RequestTimeout is the per-request deadline applied to every
	// orchestrated query, including all fan-out sub-queries.
	RequestTimeout time.Duration `conf:"request_timeout" yaml:"request_timeout" json:"request_timeout"`

	// WarmCron schedules background dimension cache warming. Empty disables.
	WarmCron string `conf:"warm_cron" yaml:"warm_cron" json:"warm_cron"`
}

func (c Config) withDefaults() Config {
	if c.RowTTL <= 0 {
		c.RowTTL = 15 * time.Minute
	}

	if c.ConfigTTL <= 0 {
		c.ConfigTTL = 5 * time.Minute
	}

	if c.DimensionTTL <= 0 {
		c.DimensionTTL = time.Hour
	}

	if c.DimensionTopN <= 0 {
		c.DimensionTopN = 50
	}

	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}

	return c
}
