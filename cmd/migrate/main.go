package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/logger"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var migrationDir string

	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Apply or roll back the assessment schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&migrationDir, "path", "migrations", "Path to migration files")

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(migrationDir, func(m *migrate.Migrate, log zerolog.Logger) error {
					if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
						return fmt.Errorf("up: %w", err)
					}
					log.Info().Msg("Migrated up successfully")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back all migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(migrationDir, func(m *migrate.Migrate, log zerolog.Logger) error {
					if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
						return fmt.Errorf("down: %w", err)
					}
					log.Info().Msg("Migrated down successfully")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(migrationDir, func(m *migrate.Migrate, log zerolog.Logger) error {
					version, dirty, err := m.Version()
					if errors.Is(err, migrate.ErrNilVersion) {
						log.Info().Msg("No migrations applied")
						return nil
					}
					if err != nil {
						return fmt.Errorf("version: %w", err)
					}
					log.Info().Uint("version", version).Bool("dirty", dirty).Msg("Schema version")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Set the schema version without running migrations",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version %q: %w", args[0], err)
				}
				return withMigrator(migrationDir, func(m *migrate.Migrate, log zerolog.Logger) error {
					if err := m.Force(v); err != nil {
						return fmt.Errorf("force: %w", err)
					}
					log.Info().Int("version", v).Msg("Forced schema version")
					return nil
				})
			},
		},
	)

	return root
}

func withMigrator(dir string, fn func(*migrate.Migrate, zerolog.Logger) error) error {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat).With().Str("component", "migrate").Logger()

	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is not set")
	}

	m, err := migrate.New("file://"+dir, cfg.DatabaseURL)
	if err != nil {
		log.Error().Err(err).Str("path", dir).Msg("Migration failed to initialize")
		return err
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			log.Warn().AnErr("source", srcErr).AnErr("database", dbErr).Msg("Failed to close migrator")
		}
	}()

	if err := fn(m, log); err != nil {
		log.Error().Err(err).Msg("Migration failed")
		return err
	}
	return nil
}
