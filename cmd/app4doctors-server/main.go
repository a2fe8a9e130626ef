package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roudayn-kouka/App4Doctors/internal/config"
	"github.com/roudayn-kouka/App4Doctors/internal/platform/db"
	"github.com/roudayn-kouka/App4Doctors/internal/platform/jobqueue"
	"github.com/roudayn-kouka/App4Doctors/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "app4doctors-server",
		Short: "Medical practice API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(jobsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server, job worker and reconciliation sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// migrationFiles returns the embedded migrations unless dir is set.
func migrationFiles(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func openMigrator(ctx context.Context, dir string) (*db.Migrator, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if cfg.StoreDriver != "postgres" {
		return nil, nil, fmt.Errorf("migrations only apply to STORE_DRIVER=postgres (mongo indexes are created at start-up)")
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return db.NewMigrator(pool, migrationFiles(dir)), pool.Close, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			ctx := context.Background()
			migrator, closePool, err := openMigrator(ctx, dir)
			if err != nil {
				return err
			}
			defer closePool()

			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			ctx := context.Background()
			migrator, closePool, err := openMigrator(ctx, dir)
			if err != nil {
				return err
			}
			defer closePool()

			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(statusCmd)

	return cmd
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Re-enqueue analyses stuck in pending once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, closeLog := newLogger(cfg)
			defer closeLog.Close()

			ctx := context.Background()
			rt, err := openBackend(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer rt.close()

			n, err := rt.reconciler.Sweep(ctx)
			if err != nil {
				return fmt.Errorf("reconcile: %w", err)
			}
			fmt.Printf("Re-enqueued %d pending analysis job(s).\n", n)
			return nil
		},
	}
}

func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect the analysis job queue",
	}

	openQueue := func() (*jobqueue.SQLiteQueue, error) {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		return jobqueue.NewSQLiteQueue(cfg.JobQueuePath)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show job counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := openQueue()
			if err != nil {
				return err
			}
			defer q.Close()

			counts, err := q.Counts(context.Background())
			if err != nil {
				return err
			}
			for _, status := range []string{jobqueue.StatusQueued, jobqueue.StatusRunning, jobqueue.StatusDone, jobqueue.StatusDead} {
				fmt.Printf("%-8s %d\n", status, counts[status])
			}
			return nil
		},
	})

	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete finished jobs older than --older-than",
		RunE: func(cmd *cobra.Command, args []string) error {
			olderThan, _ := cmd.Flags().GetDuration("older-than")
			q, err := openQueue()
			if err != nil {
				return err
			}
			defer q.Close()

			n, err := q.Purge(context.Background(), time.Now().UTC().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Printf("Purged %d job(s).\n", n)
			return nil
		},
	}
	purgeCmd.Flags().Duration("older-than", 7*24*time.Hour, "Minimum age of purged jobs")
	cmd.AddCommand(purgeCmd)

	return cmd
}
