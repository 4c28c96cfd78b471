package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"kryodeploy/internal/config"
	"kryodeploy/internal/deployment"
	"kryodeploy/internal/history"
	"kryodeploy/internal/metrics"
	"kryodeploy/internal/notify"
	"kryodeploy/internal/security"
	"kryodeploy/internal/server"
	"kryodeploy/pkg/fileutil"

	"github.com/spf13/cobra"
)

var (
	logFile  string
	dbPath   string
	host     string
	port     int
	testMode bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server",
	Long: `Start the HTTP server that receives GitHub push webhooks and manual
deploy requests, and runs deploys in the background.

SIGINT and SIGTERM stop accepting requests and wait for a running deploy.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&logFile, "log", "", "Path to log file (overrides log_file)")
	serveCmd.Flags().StringVar(&dbPath, "db", "", "Path to SQLite database (overrides storage.db_path)")
	serveCmd.Flags().StringVar(&host, "host", "", "Host to bind to (overrides host)")
	serveCmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (overrides port)")
	serveCmd.Flags().BoolVar(&testMode, "test-mode", os.Getenv("KRYODEPLOY_TEST_MODE") == "1", "Keep history in memory and disable rate limits")
}

func runServe(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	cfg, err := loadConfig(func(c *config.Config) {
		if flags.Changed("log") {
			c.LogFile = logFile
		}
		if flags.Changed("db") {
			c.Storage.DBPath = dbPath
			c.Storage.LockFile = ""
		}
		if flags.Changed("host") {
			c.Host = host
		}
		if flags.Changed("port") {
			c.Port = port
		}
		if testMode {
			c.TestMode = true
		}
	})
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, logFileHandle, err := setupLogging(cfg.LogFile)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	if logFileHandle != nil {
		defer logFileHandle.Close()
	}

	logger.Info("Starting kryodeploy",
		"version", version,
		"service", cfg.Service,
		"workdir", cfg.Workdir,
		"method", cfg.Deploy.Method,
		"features", cfg.Features())

	if cfg.AllowUnsigned {
		logger.Warn("allow_unsigned is set, webhooks without a signature will be accepted")
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}

	rec := metrics.New()

	reporter, err := notify.New(cfg.GitHub.Token, cfg.GitHub.Repository, cfg.PublicURL)
	if err != nil {
		store.Close()
		return fmt.Errorf("failed to configure GitHub reporter: %w", err)
	}

	plan, err := cfg.DeployPlan()
	if err != nil {
		store.Close()
		return fmt.Errorf("invalid deploy plan: %w", err)
	}

	invoker := deployment.NewInvoker(cfg.Service, cfg.Workdir, plan, store, logger)
	invoker.Metrics = rec
	invoker.Reporter = reporter
	invoker.Secrets = cfg.Secrets()
	if !cfg.TestMode && cfg.Storage.LockFile != "" {
		invoker.HostLock = deployment.NewHostLock(cfg.Storage.LockFile)
	}

	srv := server.NewServer(cfg, invoker, store, rec, logger, version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Error("Server failed", "error", err)
		return err
	}

	logger.Info("Stopped")
	return nil
}

// openStore opens the SQLite history, or an in-memory one in test mode.
func openStore(cfg *config.Config, logger *slog.Logger) (history.Store, error) {
	if cfg.TestMode {
		logger.Info("Test mode: keeping deploy history in memory")
		return history.NewMemory(), nil
	}

	logger.Info("Initializing history database", "db", cfg.Storage.DBPath)
	if err := fileutil.EnsureParentDir(cfg.Storage.DBPath, security.PermDirectory); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	store, err := history.NewSQLite(cfg.Storage.DBPath)
	if err != nil {
		logger.Error("Failed to initialize history database", "error", err)
		return nil, fmt.Errorf("failed to initialize history database: %w", err)
	}
	if err := os.Chmod(cfg.Storage.DBPath, security.PermDBFile); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to restrict database permissions: %w", err)
	}

	// Nothing can be running yet, so any unfinished row was cut off by a restart.
	n, err := store.FailStale(context.Background(), cfg.Service, history.ReasonInterrupted)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to reconcile deploy history: %w", err)
	}
	if n > 0 {
		logger.Warn("Marked interrupted deploys as failed", "count", n)
	}
	return store, nil
}

// setupLogging configures slog for JSON logging to stdout and, when
// logPath is set, to the log file. The caller closes the returned file.
func setupLogging(logPath string) (*slog.Logger, *os.File, error) {
	var out io.Writer = os.Stdout
	var file *os.File

	if logPath != "" {
		if err := fileutil.EnsureParentDir(logPath, security.PermDirectory); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		var err error
		file, err = security.OpenAppendFile(logPath, security.PermLogFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = io.MultiWriter(os.Stdout, file)
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})

	return slog.New(handler), file, nil
}
