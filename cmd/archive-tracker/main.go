package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/garimto81/archive-analyzer/internal/app"
	"github.com/garimto81/archive-analyzer/internal/config"
	"github.com/garimto81/archive-analyzer/internal/tracker"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a TrackerApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Run", "RunSweep").
func newApp(ctx context.Context, operation string) (*app.TrackerApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewTrackerApp(ctx, cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

func printSummary(sum tracker.Summary) {
	if sum.Total() == 0 {
		fmt.Println("No changes detected.")
		return
	}
	fmt.Printf("created:%d modified:%d moved:%d renamed:%d deleted:%d restored:%d\n",
		sum.Created, sum.Modified, sum.Moved, sum.Renamed, sum.Deleted, sum.Restored)
}

var rootCmd = &cobra.Command{
	Use:   "archive-tracker",
	Short: "NAS media archive lifecycle tracker",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init ROOT",
	Short: "Initialize configuration for a watched tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(args[0], defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Watch Root: %s\n", cfg.Watch.Root)
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Watch Root: %s\n", cfg.Watch.Root)
		fmt.Printf("Source:     %s\n", cfg.Source.Type)
		fmt.Printf("Database:   %s\n", cfg.Database.Type)
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		return nil
	},
}

// run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the tracking daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, "Run")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Run(ctx); err != nil {
			return fmt.Errorf("tracker stopped: %w", err)
		}
		return nil
	},
}

// once command
var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single poll cycle and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx, "RunOnce")
		if err != nil {
			return err
		}
		defer a.Close()

		sum, err := a.RunOnce(ctx)
		if err != nil {
			return fmt.Errorf("poll cycle failed: %w", err)
		}
		printSummary(sum)
		return nil
	},
}

// sweep command
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a full reconciliation sweep and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx, "RunSweep")
		if err != nil {
			return err
		}
		defer a.Close()

		sum, err := a.RunSweep(ctx)
		if err != nil {
			return fmt.Errorf("sweep failed: %w", err)
		}
		printSummary(sum)
		return nil
	},
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "View catalog status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx, "Status")
		if err != nil {
			return err
		}
		defer a.Close()

		active, deleted, err := a.Status()
		if err != nil {
			return err
		}

		fmt.Printf("Active files:  %d\n", active)
		fmt.Printf("Deleted files: %d\n", deleted)
		return nil
	},
}

// log command
var logCmd = &cobra.Command{
	Use:   "log PATH",
	Short: "View the event history of one file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx, "FileHistory")
		if err != nil {
			return err
		}
		defer a.Close()

		rec, entries, err := a.FileHistory(args[0])
		if err != nil {
			return err
		}
		if rec == nil {
			fmt.Println("No record for that path.")
			return nil
		}

		fmt.Printf("%s  %s  size:%d  hash:%s\n", rec.ID, rec.NASPath, rec.Size, rec.ContentHash)
		for _, e := range entries {
			detail := ""
			switch {
			case e.OldPath != "" && e.NewPath != "" && e.OldPath != e.NewPath:
				detail = fmt.Sprintf("  %s -> %s", e.OldPath, e.NewPath)
			case e.OldHash != "" && e.NewHash != "" && e.OldHash != e.NewHash:
				detail = fmt.Sprintf("  %s -> %s", e.OldHash[:12], e.NewHash[:12])
			}
			fmt.Printf("%-9s  %s%s\n", e.EventType, e.DetectedAt.Format("2006-01-02 15:04:05"), detail)
		}
		return nil
	},
}

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup DEST",
	Short: "Write a consistent copy of the catalog database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx, "Backup")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.BackupCatalog(args[0]); err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}
		fmt.Printf("Catalog backed up to %s\n", args[0])
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View recent file events across the archive",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		ctx := context.Background()
		a, err := newApp(ctx, "RecentHistory")
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.RecentHistory(limit)
		if err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("No events recorded.")
			return nil
		}

		for _, e := range entries {
			synced := " "
			if e.SyncedAt != nil {
				synced = "S"
			}
			path := e.NewPath
			if path == "" {
				path = e.OldPath
			}
			fmt.Printf("#%d  %s  %-9s  %s  %s\n",
				e.ID,
				e.DetectedAt.Format(time.DateTime),
				e.EventType,
				synced,
				path,
			)
		}
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(onceCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(backupCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of events to show")
}
