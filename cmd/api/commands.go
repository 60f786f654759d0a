package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"dealdesk/api/internal/app"
	"dealdesk/api/internal/config"
	"dealdesk/api/internal/spool"
	"dealdesk/api/internal/store"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(_ config.Config, s *store.PostgresStore) error {
				if err := store.ApplyMigrations(s.DB()); err != nil {
					return err
				}
				return printVersion(s)
			})
		},
	}

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			if steps <= 0 {
				return errors.New("--steps must be positive")
			}
			return withStore(cmd.Context(), func(_ config.Config, s *store.PostgresStore) error {
				if err := store.RollbackMigrations(s.DB(), steps); err != nil {
					return err
				}
				return printVersion(s)
			})
		},
	}
	down.Flags().Int("steps", 1, "Number of migrations to roll back")

	cmd.AddCommand(up, down)
	return cmd
}

func printVersion(s *store.PostgresStore) error {
	version, dirty, err := store.MigrationVersion(s.DB())
	if err != nil {
		return err
	}
	fmt.Printf("schema version %d (dirty=%t)\n", version, dirty)
	return nil
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert the demo property version if it is missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(cfg config.Config, s *store.PostgresStore) error {
				if err := store.ApplyMigrations(s.DB()); err != nil {
					return err
				}
				return app.New(cfg, s).Bootstrap(cmd.Context())
			})
		},
	}
}

func replayAuditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay-audit",
		Short: "Write spooled audit entries back to the database once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(cfg config.Config, s *store.PostgresStore) error {
				if strings.TrimSpace(cfg.RedisURL) == "" {
					return errors.New("DEALDESK_REDIS_URL is not set")
				}
				auditSpool, err := spool.NewRedisSpool(cfg.RedisURL)
				if err != nil {
					return err
				}
				defer auditSpool.Close()

				service := app.New(cfg, s)
				n := spool.NewReplayer(auditSpool, service.ReplayAudit, cfg.ReplayEvery).Once(cmd.Context())
				remaining, err := auditSpool.Len(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Printf("replayed %d entries, %d remaining\n", n, remaining)
				return nil
			})
		},
	}
}

func withStore(ctx context.Context, fn func(config.Config, *store.PostgresStore) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()
	return fn(cfg, store.NewPostgresStore(db))
}
