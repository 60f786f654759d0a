package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"dealdesk/api/internal/app"
	"dealdesk/api/internal/archive"
	"dealdesk/api/internal/config"
	"dealdesk/api/internal/metrics"
	"dealdesk/api/internal/mirror"
	"dealdesk/api/internal/search"
	"dealdesk/api/internal/spool"
	"dealdesk/api/internal/store"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.Addr = addr
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().String("addr", "", "Listen address, overrides DEALDESK_HTTP_ADDR")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(db); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}

	dataStore := store.NewPostgresStore(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliAPIKey)
		defer meiliClient.Close()
	}
	opts := []app.Option{
		app.WithSearch(search.NewService(meiliClient, search.NewPgFTS(dataStore))),
	}

	var auditSpool *spool.RedisSpool
	if strings.TrimSpace(cfg.RedisURL) != "" {
		auditSpool, err = spool.NewRedisSpool(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer auditSpool.Close()
		opts = append(opts, app.WithSpool(auditSpool))
		slog.Info("audit spool enabled")
	}

	if strings.TrimSpace(cfg.MirrorDir) != "" {
		if err := os.MkdirAll(cfg.MirrorDir, 0o755); err != nil {
			return fmt.Errorf("create mirror dir: %w", err)
		}
		opts = append(opts, app.WithMirror(mirror.New(cfg.MirrorDir)))
		slog.Info("lineage mirror enabled", "dir", cfg.MirrorDir)
	}

	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		snapshots, err := archive.NewMinio(ctx, archive.Options{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return fmt.Errorf("snapshot archive: %w", err)
		}
		opts = append(opts, app.WithArchive(snapshots))
		slog.Info("snapshot archive enabled", "endpoint", cfg.MinioEndpoint, "bucket", cfg.MinioBucket)
	}

	service := app.New(cfg, dataStore, opts...)
	if cfg.SeedOnBoot {
		if err := service.Bootstrap(ctx); err != nil {
			slog.Warn("bootstrap failed, will retry on next restart", "error", err)
		}
	}

	if auditSpool != nil {
		replayer := spool.NewReplayer(auditSpool, service.ReplayAudit, cfg.ReplayEvery)
		replayer.OnReplay(metrics.AuditReplayed)
		go replayer.Run(ctx)
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.NewHTTPServer(service, cfg).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("dealdesk api listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	return nil
}
