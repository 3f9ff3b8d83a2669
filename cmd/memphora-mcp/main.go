package main

import (
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	memphoramcp "github.com/memphora/memphora-mcp"
	"github.com/memphora/memphora-mcp/internal/config"
	"github.com/memphora/memphora-mcp/internal/errortypes"
	"github.com/memphora/memphora-mcp/internal/logger"
	"github.com/memphora/memphora-mcp/internal/memphora"
)

var (
	configPath string
	logLevel   string

	devAddr   string
	devDBPath string
	devAPIKey string

	rootCmd = &cobra.Command{
		Use:           "memphora-mcp",
		Short:         "MCP server exposing Memphora long-term memory to AI assistants",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runStdio,
	}

	devServerCmd = &cobra.Command{
		Use:   "devserver",
		Short: "Run a local stand-in for the Memphora API backed by SQLite",
		RunE:  runDevServer,
	}

	initCmd = &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		RunE:  runInit,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default is ./"+config.DefaultConfigFilename+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	devServerCmd.Flags().StringVar(&devAddr, "addr", "", "listen address (default "+config.DefaultDevServerAddr+")")
	devServerCmd.Flags().StringVar(&devDBPath, "db", "", "SQLite database path (default "+config.DefaultSQLitePath+")")
	devServerCmd.Flags().StringVar(&devAPIKey, "api-key", "", "bearer token clients must present")

	rootCmd.AddCommand(devServerCmd, initCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Default().Error("memphora-mcp failed", "error", err)
		os.Exit(1)
	}
}

// setupLogging builds the stderr logger. The --log-level flag wins over
// LOG_LEVEL, which wins over the config file.
func setupLogging(cfg *config.Config) *slog.Logger {
	lc := logger.DefaultConfig()
	level := cfg.Logging.Level
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		level = env
	}
	if logLevel != "" {
		level = logLevel
	}
	lc.Level = logger.ParseLevel(level)
	lc.Format = logger.ParseFormat(cfg.Logging.Format)

	l := logger.New(lc)
	logger.SetDefaultLogger(l)
	return l
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	bootstrap := logger.New(logger.DefaultConfig())
	cfg, err := config.LoadConfigWithPath(configPath, bootstrap)
	if err != nil {
		errortypes.LogError(bootstrap, err)
		return nil, nil, err
	}
	return cfg, setupLogging(cfg), nil
}

func runStdio(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := memphoramcp.NewServer(ctx, memphoramcp.ServerOptions{Config: cfg, Logger: log})
	if err != nil {
		if errors.Is(err, memphora.ErrMissingAPIKey) {
			log.Error("Memphora API key not configured")
			log.Info("Set it with: export " + memphora.EnvAPIKey + "='your_api_key_here'")
			log.Info("Get your API key from: https://memphora.ai/dashboard")
		}
		return err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			log.Info("Received shutdown signal, terminating gracefully...")
			_ = srv.Stop()
			os.Exit(0)
		case <-done:
		}
	}()

	if err := srv.Start(); err != nil {
		return errortypes.TransportError(err, "MCP server failed")
	}
	return srv.Stop()
}

func runDevServer(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if devAddr != "" {
		cfg.DevServer.Addr = devAddr
	}
	if devDBPath != "" {
		cfg.DevServer.SQLitePath = devDBPath
	}
	if devAPIKey != "" {
		cfg.DevServer.APIKey = devAPIKey
	}
	if cfg.DevServer.APIKey == "" {
		log.Warn("Dev server running without authentication; any bearer token is accepted")
	}

	srv, store, err := memphoramcp.NewDevServer(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			errortypes.LogError(log, errortypes.InternalError(err, "Error closing store during shutdown"))
			return
		}
		log.Info("Database closed successfully")
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.ListenAndServe(ctx, cfg.DevServer.Addr)
}

func runInit(_ *cobra.Command, _ []string) error {
	path := configPath
	if path == "" {
		path = config.DefaultConfigFilename
	}
	if _, err := os.Stat(path); err == nil {
		return errortypes.ConfigError(os.ErrExist, "config file already exists").WithField("path", path)
	}

	cfg := config.NewConfig()
	if err := cfg.SaveToFile(path); err != nil {
		return err
	}
	slog.Default().Info("Wrote default configuration", "path", path)
	return nil
}
