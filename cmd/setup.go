package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/progdb/internal/repositories"
	"github.com/desertthunder/progdb/internal/shared"
)

// SetupDatabase initializes the database and runs migrations, creating the config file first when missing.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	if r.configPath != "" {
		if _, err := os.Stat(r.configPath); os.IsNotExist(err) {
			r.logger.Info("config file not found, creating from template", "path", r.configPath)
			if err := shared.CreateConfigFile(r.configPath); err != nil {
				r.logger.Warn("failed to create config file, using defaults", "error", err)
			} else {
				r.logger.Info("config file created", "path", r.configPath)
			}
		}
	}

	r.logger.Info("initializing database", "path", r.config.Database.Path)

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	if cmd.Bool("rollback") {
		r.logger.Info("rolling back latest migration")
		if err := shared.RollbackMigration(db); err != nil {
			return fmt.Errorf("failed to roll back migration: %w", err)
		}
		return r.writePlain("✓ Rolled back latest migration on %s\n", r.config.Database.Path)
	}

	r.logger.Info("running database migrations")
	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	return r.writePlain("✓ Database ready at %s\n", r.config.Database.Path)
}

// SetupConfig writes the example configuration to the --config path.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := r.configPath
	if path == "" {
		path = "config.toml"
	}

	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}
	r.logger.Info("config file created", "path", path)

	r.writePlain("✓ Configuration written to %s\n", path)
	r.writePlainln("Next steps:")
	r.writePlain("1. Set source.export_url (or source.spreadsheet_id with kind = \"sheets\")\n")
	r.writePlain("2. Add Spotify client credentials for cover art and metadata\n")
	r.writePlain("3. Run 'progdb setup database' then 'progdb sync run'\n")
	return nil
}

// SetupStatus reports configuration problems, migration state and catalog size.
func (r *Runner) SetupStatus(ctx context.Context, cmd *cli.Command) error {
	r.writePlainHeader("progdb status")

	r.writePlain("Config:    %s\n", r.configPath)
	if err := r.config.Validate(); err != nil {
		r.writePlain("           ✗ %v\n", err)
	} else {
		r.writePlain("           ✓ valid\n")
	}

	spotify := "not configured (cover art disabled)"
	if configured(r.config.Credentials.Spotify.ClientID) && configured(r.config.Credentials.Spotify.ClientSecret) {
		spotify = "configured"
	}
	r.writePlain("Spotify:   %s\n", spotify)
	r.writePlain("Source:    %s\n", r.config.Source.Kind)
	r.writePlain("Metadata:  %s\n", r.config.Sync.MetadataMode)

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	states, err := shared.MigrationStatus(db)
	if err != nil {
		return err
	}
	pending := 0
	for _, s := range states {
		if !s.Applied {
			pending++
		}
	}
	r.writePlain("Database:  %s (%d migrations, %d pending)\n", r.config.Database.Path, len(states), pending)
	if pending > 0 {
		return r.writePlain("           run 'progdb setup database' to apply pending migrations\n")
	}

	albums, err := repositories.NewAlbumRepository(db).Count()
	if err != nil {
		return err
	}
	r.writePlain("Albums:    %d\n", albums)

	if rec, err := repositories.NewSyncRecordRepository(db).LastSuccessful(); err == nil {
		r.writePlain("Last sync: %s\n", rec.SyncedAt.Local().Format("2006-01-02 15:04"))
	} else {
		r.writePlain("Last sync: never\n")
	}
	return nil
}
