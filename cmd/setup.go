package main

import (
	"context"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/desertthunder/tunedl/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes the example configuration to the config path, or prints the effective one.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool("print") {
		r.outputMu.Lock()
		defer r.outputMu.Unlock()
		if err := toml.NewEncoder(r.output).Encode(r.config); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		return nil
	}

	path := r.configPath
	if path == "" {
		path = shared.DefaultConfigPath()
	}
	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}
	r.logger.Info("config file created", "path", path)
	r.writePlain("✓ Config written to %s\n", path)
	r.writePlain("Add Spotify and Qobuz credentials to enable those catalogs.\n")
	return nil
}

// SetupDatabase initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	if err := r.config.Validate(); err != nil {
		return err
	}
	r.logger.Info("initializing database", "path", r.config.Database.Path)

	if _, err := os.Stat(r.config.Database.Path); err == nil {
		r.logger.Debug("database exists, applying pending migrations")
	}

	store, err := r.openStore(ctx)
	if err != nil {
		return err
	}
	if err := store.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	return nil
}
