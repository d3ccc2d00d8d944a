package app

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/meridiandata/viewsync/database"
	"github.com/meridiandata/viewsync/internal/config"
)

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending metadata database migrations",
	Long: `Apply pending migrations to bring the metadata schema up to date.
Connection parameters are read from the metadataDb section of the config file.`,
	RunE: runMigrateUp,
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	cfg, err := loadMigrationConfig(cmd)
	if err != nil {
		return err
	}

	yes, err := cmd.Flags().GetBool("yes")
	if err != nil {
		return fmt.Errorf("failed to get yes flag: %w", err)
	}
	if !yes {
		prompt := fmt.Sprintf("About to apply migrations to %s@%s:%d/%s. Continue?",
			cfg.MetadataDB.User, cfg.MetadataDB.Host, cfg.MetadataDB.Port, cfg.MetadataDB.Database)
		if !confirm(prompt) {
			slog.Info("Migration cancelled by user")
			return nil
		}
	}

	numSteps, err := cmd.Flags().GetUint("num-steps")
	if err != nil {
		return fmt.Errorf("failed to get num-steps flag: %w", err)
	}

	m, err := newMigrator(cfg)
	if err != nil {
		return err
	}

	slog.Info("Applying metadata database migrations...")
	if numSteps == 0 {
		err = m.Up()
	} else {
		if numSteps > math.MaxInt {
			return fmt.Errorf("number of steps exceeds maximum allowed value")
		}
		err = m.Steps(int(numSteps)) // #nosec G115 -- overflow checked above
	}
	if err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Info("No pending migrations, schema is up to date")
			return nil
		}
		return fmt.Errorf("migration failed: %w", err)
	}

	displayMigrationVersion(m, numSteps)
	return nil
}

// loadMigrationConfig loads and validates the config for a migrate command.
func loadMigrationConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}

	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.MetadataDB == nil {
		return nil, fmt.Errorf("metadataDb configuration is required")
	}
	return cfg, nil
}

// newMigrator builds a migrator over the metadata database.
func newMigrator(cfg *config.Config) (database.Migrator, error) {
	connString, err := cfg.MetadataDB.ConnectionString("pgx5")
	if err != nil {
		return nil, fmt.Errorf("failed to build connection string: %w", err)
	}

	m, err := database.NewFromConnectionString(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return m, nil
}

// confirm asks the user a yes/no question on stdin.
func confirm(prompt string) bool {
	fmt.Printf("%s (yes/no): ", prompt)
	var response string
	if _, err := fmt.Scanln(&response); err != nil {
		return false
	}
	return response == "yes" || response == "y"
}

func displayMigrationVersion(m database.Migrator, numSteps uint) {
	version, dirty, err := m.Version()
	if err != nil {
		if numSteps == 0 {
			slog.Info("Database schema has been completely removed")
		} else {
			slog.Warn("Failed to get migration version", "error", err)
		}
		return
	}

	if dirty {
		slog.Warn("Current migration version is dirty, manual intervention may be required", "version", version)
	} else {
		slog.Info("Migration completed", "version", version)
	}
}
