package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	apiv0 "github.com/meridiandata/viewsync/internal/api/v0"
	"github.com/meridiandata/viewsync/internal/config"
	"github.com/meridiandata/viewsync/internal/db"
	"github.com/meridiandata/viewsync/internal/meta"
	"github.com/meridiandata/viewsync/internal/source"
	pkgsync "github.com/meridiandata/viewsync/internal/sync"
	"github.com/meridiandata/viewsync/internal/sync/driver"
	"github.com/meridiandata/viewsync/internal/telemetry"
	"github.com/meridiandata/viewsync/internal/versions"
	"github.com/meridiandata/viewsync/internal/warehouse"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the view sync API server",
	Long: `Start the view sync API server.

The server requires a configuration file (--config) that specifies:
- Source database bindings and the view allow-list
- Destination warehouse (DuckDB or Postgres)
- Metadata database connection and sync policy

See examples/ directory for sample configurations.`,
	RunE: runServe,
}

const (
	defaultGracefulTimeout = 30 * time.Second
	serverReadTimeout      = 10 * time.Second
	// Sync requests block for the duration of the data load.
	serverWriteTimeout = 10 * time.Minute
	serverIdleTimeout  = 60 * time.Second
)

func init() {
	serveCmd.Flags().String("address", ":8080", "Address to listen on")
	serveCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")

	err := viper.BindPFlag("address", serveCmd.Flags().Lookup("address"))
	if err != nil {
		slog.Error("Failed to bind address flag", "error", err)
	}
	err = viper.BindPFlag("config", serveCmd.Flags().Lookup("config"))
	if err != nil {
		slog.Error("Failed to bind config flag", "error", err)
	}

	if err := serveCmd.MarkFlagRequired("config"); err != nil {
		panic(err)
	}
}

// openWarehouse opens the destination warehouse selected by configuration.
func openWarehouse(cfg *config.Config) (*warehouse.Conn, error) {
	dialect, err := warehouse.ParseDialect(cfg.Warehouse.Driver)
	if err != nil {
		return nil, err
	}
	if dialect == warehouse.DialectPostgres {
		connStr, err := cfg.Warehouse.Database.ConnectionString("postgres")
		if err != nil {
			return nil, err
		}
		return warehouse.OpenPostgres(connStr)
	}
	return warehouse.OpenDuckDB(cfg.Warehouse.Path)
}

// metaReadiness reports readiness by pinging the metadata database.
type metaReadiness struct {
	pool *pgxpool.Pool
}

func (m metaReadiness) CheckReadiness(ctx context.Context) error {
	return m.pool.Ping(ctx)
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	address := viper.GetString("address")
	configPath := viper.GetString("config")

	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	slog.Info("Loaded configuration",
		"path", configPath,
		"bindings", len(cfg.Bindings),
		"views", len(cfg.Views),
		"warehouse", cfg.Warehouse.Driver)

	pool, err := db.Connect(ctx, cfg.MetadataDB)
	if err != nil {
		return err
	}
	defer pool.Close()
	store := meta.NewStore(pool)

	wh, err := openWarehouse(cfg)
	if err != nil {
		return fmt.Errorf("failed to open warehouse: %w", err)
	}
	defer wh.Close()

	sources := source.NewProvider(cfg)
	defer sources.Close()

	info := versions.GetVersionInfo()
	meterProvider, err := telemetry.NewMeterProvider(ctx,
		telemetry.WithMeterServiceName("viewsync"),
		telemetry.WithMeterServiceVersion(info.Version),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shut down meter provider", "error", err)
		}
	}()

	syncMetrics, err := telemetry.NewSyncMetrics(meterProvider)
	if err != nil {
		return fmt.Errorf("failed to create sync metrics: %w", err)
	}

	engine := pkgsync.NewEngine(cfg, store, pkgsync.NewPoolSourceProvider(sources), wh,
		pkgsync.WithMetrics(syncMetrics))
	drv := driver.New(cfg, engine)
	scheduler := driver.NewScheduler(drv, cfg.SyncInterval())

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
	)
	r.Mount("/api/v0", apiv0.Router(engine, drv))
	r.Mount("/", apiv0.HealthRouter(metaReadiness{pool: pool}))
	r.Handle("/metrics", meterProvider.Handler())

	server := &http.Server{
		Addr:         address,
		Handler:      r,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		slog.Info("Server listening", "address", address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		return scheduler.Start(groupCtx)
	})

	group.Go(func() error {
		<-groupCtx.Done()
		slog.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	slog.Info("Server shutdown complete")
	return nil
}
