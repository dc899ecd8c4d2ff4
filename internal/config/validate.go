package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if err := c.Database.Postgres.validate("database.postgres"); err != nil {
		return err
	}

	if c.Band.MinPercent < 1 {
		return errors.New("band.min_percent must be >= 1")
	}
	if c.Band.MaxPercent < c.Band.MinPercent {
		return fmt.Errorf("band.max_percent (%d) cannot be below band.min_percent (%d)",
			c.Band.MaxPercent, c.Band.MinPercent)
	}
	if c.Band.StepPercent < 1 {
		return errors.New("band.step_percent must be >= 1")
	}

	if c.Marketplace.Address == "" {
		return errors.New("marketplace.address is required")
	}

	if c.Writers.BatchSize < 1 {
		return errors.New("writers.batch_size must be >= 1")
	}
	if c.Writers.BufferSize < 1 {
		return errors.New("writers.buffer_size must be >= 1")
	}

	if c.Snapshots.Interval <= 0 {
		return errors.New("snapshots.interval must be positive")
	}

	if c.Auth.AdminPublicKeyPath == "" {
		return errors.New("auth.admin_public_key_path is required")
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
