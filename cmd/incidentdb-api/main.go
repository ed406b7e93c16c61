package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	_ "incidentdb/cmd/incidentdb-api/docs"
	"incidentdb/internal/catalog"
	"incidentdb/internal/config"
	"incidentdb/internal/logger"
	"incidentdb/pkg/bootstrap"
	"incidentdb/pkg/logging"
	"incidentdb/pkg/migrations"
)

var (
	configFile string
)

// @title           Incident Database API
// @version         1.0
// @description     Search, statistics and export over security incident events and the tickets they were notified with

// @license.name  AGPL-3.0
// @license.url   https://www.gnu.org/licenses/agpl-3.0.html

// @host      localhost:8080
// @BasePath  /api

// @schemes   http https

func main() {
	rootCmd := &cobra.Command{
		Use:          "incidentdb-api",
		Short:        "Security incident database API",
		Long:         "Serves event search, statistics and export over an incident database",
		RunE:         serveCmd().RunE,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (defaults to CONFIG_FILE)")

	rootCmd.AddCommand(serveCmd(), migrateCmd(), keysCmd(), exampleConfigCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
	}
	return config.Load(configFile)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			earlyLog := logging.NewEarlyLog()

			cfg, err := loadConfig()
			if err != nil {
				earlyLog.Error("Failed to load config: %v", err)
				return err
			}

			log, err := logger.New(cfg.Logging)
			if err != nil {
				earlyLog.Error("Failed to init logger: %v", err)
				return err
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			log.InfowCtx(ctx, "Starting incidentdb API")

			app := NewApp(cfg, log)
			if err := app.Initialize(ctx); err != nil {
				log.ErrorwCtx(ctx, "Failed to initialize application", "error", err)
				_ = app.Shutdown(context.Background())
				return err
			}

			if err := app.Run(ctx); err != nil {
				log.ErrorwCtx(ctx, "Application error", "error", err)
				return err
			}
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the audit table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.Logging)
			if err != nil {
				return err
			}
			defer log.Sync()

			db, err := bootstrap.NewDatabaseConnector(cfg, log).InitPostgreSQL(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			if err := migrations.Up(db); err != nil {
				return err
			}
			version, dirty, err := migrations.Version(db)
			if err != nil {
				return err
			}
			log.Infow("Migrations applied", "version", version, "dirty", dirty)
			return nil
		},
	}
}

// keysCmd prints the filter keys a configuration offers, assuming every
// optional table not disabled is present.
func keysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "Validate the catalog and list its filter keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			modes := bootstrap.TableModes(cfg.Catalog)
			available := make(map[string]bool, len(modes))
			for table, mode := range modes {
				available[table] = mode != config.TableDisabled
			}
			cat, err := catalog.New(cfg.Catalog, available)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cat.Describe())
		},
	}
}

func exampleConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "example-config",
		Short: "Print an example configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprint(cmd.OutOrStdout(), config.Example())
			return err
		},
	}
}
