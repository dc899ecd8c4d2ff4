package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultServerAddr         = ":8080"
	DefaultServerReadTimeout  = 10 * time.Second
	DefaultServerWriteTimeout = 10 * time.Second
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 10
	DefaultMinConns           = 2
	DefaultMinPercent         = 30
	DefaultMaxPercent         = 100
	DefaultStepPercent        = 5
	DefaultMarketplaceAddr    = "marketplace"
	DefaultBatchSize          = 1000
	DefaultFlushInterval      = 1 * time.Second
	DefaultBufferSize         = 10000
	DefaultSnapshotInterval   = 1 * time.Minute
	DefaultFeedPingInterval   = 15 * time.Second
	DefaultFeedWriteTimeout   = 5 * time.Second
	DefaultFeedBufferSize     = 1000
	DefaultAuthMaxSkew        = 30 * time.Second
)

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultServerReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultServerWriteTimeout
	}

	applyDBDefaults(&c.Database.Postgres)

	if c.Band.MinPercent == 0 {
		c.Band.MinPercent = DefaultMinPercent
	}
	if c.Band.MaxPercent == 0 {
		c.Band.MaxPercent = DefaultMaxPercent
	}
	if c.Band.StepPercent == 0 {
		c.Band.StepPercent = DefaultStepPercent
	}

	if c.Marketplace.Address == "" {
		c.Marketplace.Address = DefaultMarketplaceAddr
	}

	if c.Writers.BatchSize == 0 {
		c.Writers.BatchSize = DefaultBatchSize
	}
	if c.Writers.FlushInterval == 0 {
		c.Writers.FlushInterval = DefaultFlushInterval
	}
	if c.Writers.BufferSize == 0 {
		c.Writers.BufferSize = DefaultBufferSize
	}

	if c.Snapshots.Interval == 0 {
		c.Snapshots.Interval = DefaultSnapshotInterval
	}

	if c.Feed.PingInterval == 0 {
		c.Feed.PingInterval = DefaultFeedPingInterval
	}
	if c.Feed.WriteTimeout == 0 {
		c.Feed.WriteTimeout = DefaultFeedWriteTimeout
	}
	if c.Feed.BufferSize == 0 {
		c.Feed.BufferSize = DefaultFeedBufferSize
	}

	if c.Auth.MaxSkew == 0 {
		c.Auth.MaxSkew = DefaultAuthMaxSkew
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
