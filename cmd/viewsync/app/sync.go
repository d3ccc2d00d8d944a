package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/meridiandata/viewsync/internal/config"
	"github.com/meridiandata/viewsync/internal/db"
	"github.com/meridiandata/viewsync/internal/meta"
	"github.com/meridiandata/viewsync/internal/source"
	pkgsync "github.com/meridiandata/viewsync/internal/sync"
	"github.com/meridiandata/viewsync/internal/sync/driver"
)

var syncCmd = &cobra.Command{
	Use:   "sync [binding [schema view]]",
	Short: "Run a sync cycle from the command line",
	Long: `Run a sync cycle without starting the server.

With no arguments, syncs every configured view in order. With a
binding argument, syncs every view of that binding. With binding,
schema and view arguments, syncs just that view.`,
	Args: func(_ *cobra.Command, args []string) error {
		switch len(args) {
		case 0, 1, 3:
			return nil
		}
		return fmt.Errorf("expected no arguments, a binding, or binding, schema and view")
	},
	RunE: runSync,
}

func init() {
	syncCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")
	if err := syncCmd.MarkFlagRequired("config"); err != nil {
		panic(err)
	}
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}

	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	pool, err := db.Connect(ctx, cfg.MetadataDB)
	if err != nil {
		return err
	}
	defer pool.Close()

	wh, err := openWarehouse(cfg)
	if err != nil {
		return fmt.Errorf("failed to open warehouse: %w", err)
	}
	defer wh.Close()

	sources := source.NewProvider(cfg)
	defer sources.Close()

	engine := pkgsync.NewEngine(cfg, meta.NewStore(pool), pkgsync.NewPoolSourceProvider(sources), wh)

	if len(args) == 3 {
		result, err := engine.TriggerSync(ctx, args[0], args[1], args[2])
		if err != nil {
			return err
		}
		fmt.Printf("Synced %s.%s: %d rows in %s (%d schema changes)\n",
			args[1], args[2], result.RowsSynced, result.Duration, len(result.SchemaChanges))
		return nil
	}

	binding := ""
	if len(args) == 1 {
		binding = args[0]
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	summary, err := driver.New(cfg, engine).SyncAll(ctx, binding, func(e driver.Event) {
		switch e.Kind {
		case driver.EventViewSynced:
			fmt.Fprintf(w, "%s/%s.%s\tok\t%d rows\n", e.Binding, e.Schema, e.View, e.Rows)
		case driver.EventViewFailed:
			fmt.Fprintf(w, "%s/%s.%s\tfailed\t%s\n", e.Binding, e.Schema, e.View, e.Error)
		}
	})
	if err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		slog.Error("Failed to flush output", "error", err)
	}

	fmt.Printf("\n%d succeeded, %d failed in %s\n", summary.Succeeded, summary.Failed, summary.Duration)
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d views failed to sync", summary.Failed, summary.Succeeded+summary.Failed)
	}
	return nil
}
