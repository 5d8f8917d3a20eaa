package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"taskboard/internal/config"
	"taskboard/internal/logging"
	"taskboard/internal/methodology"
	"taskboard/internal/server"
	"taskboard/internal/service"
	"taskboard/internal/storage/sqlite"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and serve the frontend",
		Long: `Run the HTTP API.

Settings come from the environment (TASKBOARD_*), an optional .env file
and these flags, flags winning.

Examples:
  taskboard serve --addr :9090
  taskboard serve --db /var/lib/taskboard.db --catalog ./catalog.yaml`,
		RunE: runServe,
	}

	cmd.Flags().String("addr", "", "HTTP listen address")
	cmd.Flags().String("db", "", "path to sqlite database file")
	cmd.Flags().String("static", "", "directory with built frontend")
	cmd.Flags().String("catalog", "", "methodology catalog YAML (built-in when empty)")
	cmd.Flags().String("log-level", "", "debug, info, warn or error")

	return cmd
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.Load(envFile)
	if err != nil {
		return config.Config{}, err
	}

	overrides := map[string]*string{
		"addr":      &cfg.Addr,
		"db":        &cfg.DBPath,
		"static":    &cfg.StaticDir,
		"catalog":   &cfg.CatalogPath,
		"log-level": &cfg.LogLevel,
	}
	for name, dst := range overrides {
		if cmd.Flags().Lookup(name) == nil || !cmd.Flags().Changed(name) {
			continue
		}
		*dst, _ = cmd.Flags().GetString(name)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.ValidateServe(); err != nil {
		return err
	}

	logs, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return err
	}
	defer logs.Close()
	logger := logs.App

	logger.Info("taskboard", slog.String("version", Version))

	catalog, err := methodology.Load(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("load methodology catalog: %w", err)
	}
	logger.Info("methodologies loaded", slog.Int("count", len(catalog.List())), slog.String("default", catalog.Default().ID))

	store, err := sqlite.Open(cfg.DBPath, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	svc := service.New(store, catalog, logger, service.WithActivityRetention(cfg.ActivityRetention))
	srv := server.New(svc, logger, server.Options{
		StaticDir: cfg.StaticDir,
		JWTSecret: cfg.JWTSecret,
		AccessLog: logs.Access,
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server stopped unexpectedly: %w", err)
		}
	case <-quit:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("failed to shutdown server", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
	return nil
}
