package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"httpd/internal/config"
	"httpd/internal/filestore"
	"httpd/internal/router"
	"httpd/internal/server"
	"httpd/internal/slogutil"
	"httpd/internal/version"
)

// serveFlags holds the serve command's flag values
type serveFlags struct {
	configPath string
	directory  string
	host       string
	port       int
	logLevel   string
}

var serveOpts serveFlags

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start accepting connections. Settings come from httpd.toml (current
directory or ~/.httpd), then HTTPD_* environment variables, then flags.

Examples:
  httpd serve
  httpd serve --directory /tmp/files --port 4221
  httpd serve --config ./httpd.toml --log-level debug`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveOpts.configPath, "config", "", "Path to a TOML config file")
	serveCmd.Flags().StringVar(&serveOpts.directory, "directory", "", "Base directory for /files routes")
	serveCmd.Flags().StringVar(&serveOpts.host, "host", "", "Host to bind to (default from config: 127.0.0.1)")
	serveCmd.Flags().IntVar(&serveOpts.port, "port", 0, "Port to listen on (default from config: 4221)")
	serveCmd.Flags().StringVar(&serveOpts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
}

// apply overlays flags the user actually set onto cfg
func (f serveFlags) apply(cfg *config.Config, changed func(name string) bool) {
	if changed("directory") {
		cfg.Directory = f.directory
	}
	if changed("host") {
		cfg.Server.Host = f.host
	}
	if changed("port") {
		cfg.Server.Port = f.port
	}
	if changed("log-level") {
		cfg.Logging.Level = f.logLevel
	}
}

func newSpawner(sc config.ServerConfig) server.Spawner {
	if sc.MaxConnections <= 0 {
		return server.Unbounded{}
	}
	return server.NewBounded(sc.MaxConnections, time.Duration(sc.QueueTimeoutMs)*time.Millisecond)
}

func serverOptions(sc config.ServerConfig) server.Options {
	return server.Options{
		IdleTimeout:       time.Duration(sc.IdleTimeoutMs) * time.Millisecond,
		ReadBufferSize:    sc.ReadBufferSize,
		MaxRequestBytes:   sc.MaxRequestBytes,
		RetryAfterSeconds: sc.RetryAfterSeconds,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, configPath, err := config.LoadConfig(serveOpts.configPath)
	if err != nil {
		return err
	}
	serveOpts.apply(cfg, cmd.Flags().Changed)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closer, err := slogutil.New(cfg.Logging, os.Stderr, "")
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer func() { _ = closer.Close() }()

	logger.Info("Starting httpd",
		"version", version.Info(),
		"config", configPath,
	)

	store := filestore.New(cfg.Directory, cfg.Files.Confine)
	logFileRoutes(logger, store)

	spawner := newSpawner(cfg.Server)
	if b, ok := spawner.(*server.Bounded); ok {
		logger.Info("Connection limit enabled", "max", b.Capacity(), "queueTimeoutMs", cfg.Server.QueueTimeoutMs)
	}

	srv := server.New(router.New(store, logger), spawner, serverOptions(cfg.Server), logger)
	addr := cfg.Server.Addr()

	// Setup graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.ListenAndServe(addr)
	}()

	select {
	case err := <-serverErr:
		logger.Error("Server error", "error", err)
		return err
	case sig := <-shutdown:
		logger.Info("Received shutdown signal", "signal", sig.String())

		timeout := time.Duration(cfg.Server.ShutdownTimeoutMs) * time.Millisecond
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Error during shutdown", "error", err, "timeout", timeout)
			return err
		}
		if err := <-serverErr; err != nil && !errors.Is(err, server.ErrServerClosed) {
			return err
		}

		stats := srv.Stats()
		logger.Info("Server stopped gracefully",
			"accepted", stats.Accepted,
			"requests", stats.Requests,
			"rejected", stats.Rejected,
		)
	}

	return nil
}

func logFileRoutes(logger *slog.Logger, store *filestore.Store) {
	if !store.Configured() {
		logger.Info("File routes disabled", "reason", "no directory configured")
		return
	}
	info, err := os.Stat(store.Dir())
	switch {
	case err != nil:
		logger.Warn("File directory not accessible", "directory", store.Dir(), "error", err)
	case !info.IsDir():
		logger.Warn("File directory is not a directory", "directory", store.Dir())
	default:
		logger.Info("Serving files", "directory", store.Dir())
	}
}
