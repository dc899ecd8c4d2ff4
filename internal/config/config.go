// Package config loads and validates marketd configuration from YAML.
package config

import "time"

// Config is the root configuration for a marketd instance.
type Config struct {
	Instance    InstanceConfig    `yaml:"instance"`
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Band        BandConfig        `yaml:"band"`
	Marketplace MarketplaceConfig `yaml:"marketplace"`
	Writers     WritersConfig     `yaml:"writers"`
	Snapshots   SnapshotsConfig   `yaml:"snapshots"`
	Feed        FeedConfig        `yaml:"feed"`
	Auth        AuthConfig        `yaml:"auth"`
}

// InstanceConfig identifies this engine instance.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// ServerConfig holds the HTTP API listener settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig holds the PostgreSQL connection for event persistence.
type DatabaseConfig struct {
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// BandConfig bounds listing prices as a percent of the public share price.
type BandConfig struct {
	MinPercent  int `yaml:"min_percent"`
	MaxPercent  int `yaml:"max_percent"`
	StepPercent int `yaml:"step_percent"`
}

// MarketplaceConfig holds order-book behavior switches.
type MarketplaceConfig struct {
	Address              string `yaml:"address"`
	SingleOrderPerSeller bool   `yaml:"single_order_per_seller"`
}

// WritersConfig holds batch writer settings.
type WritersConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// SnapshotsConfig holds the order-book snapshot poller settings.
type SnapshotsConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// FeedConfig holds the websocket event feed settings.
type FeedConfig struct {
	PingInterval time.Duration `yaml:"ping_interval"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	BufferSize   int           `yaml:"buffer_size"`
}

// AuthConfig holds request signing settings.
type AuthConfig struct {
	AdminPublicKeyPath string        `yaml:"admin_public_key_path"`
	MaxSkew            time.Duration `yaml:"max_skew"`
}
