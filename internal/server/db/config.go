package db

import "time"

type Config struct {
	DSN string `conf:"dsn" yaml:"dsn" json:"dsn"`

	MaxConns        int32         `conf:"max_conns" yaml:"max_conns" json:"max_conns"`
	MinConns        int32         `conf:"min_conns" yaml:"min_conns" json:"min_conns"`
	MaxConnLifetime time.Duration `conf:"max_conn_lifetime" yaml:"max_conn_lifetime" json:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `conf:"max_conn_idle_time" yaml:"max_conn_idle_time" json:"max_conn_idle_time"`

	Debug bool `conf:"debug" yaml:"debug" json:"debug"`
}
