// Package memphoramcp wires the Memphora MCP adapter together: it builds the
// API client from configuration, registers the tools, resources and prompts
// on an MCP server and runs it over stdio.
package memphoramcp

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/memphora/memphora-mcp/internal/config"
	"github.com/memphora/memphora-mcp/internal/contextstore"
	"github.com/memphora/memphora-mcp/internal/devserver"
	"github.com/memphora/memphora-mcp/internal/errortypes"
	"github.com/memphora/memphora-mcp/internal/memphora"
	"github.com/memphora/memphora-mcp/internal/prompts"
	"github.com/memphora/memphora-mcp/internal/resources"
	"github.com/memphora/memphora-mcp/internal/server"
	"github.com/memphora/memphora-mcp/internal/summarizer"
	"github.com/memphora/memphora-mcp/internal/telemetry"
	"github.com/memphora/memphora-mcp/internal/tools"
	"github.com/memphora/memphora-mcp/internal/vector"
)

// Config represents the configuration for the adapter.
type Config = config.Config

// Server is a configured Memphora MCP server.
type Server struct {
	config     *Config
	client     *memphora.Client
	dispatcher *tools.Dispatcher
	resources  *resources.Registry
	prompts    *prompts.Registry
	metrics    *telemetry.MetricsCollector
	toolServer *server.MemphoraServer
	logger     *slog.Logger
}

// ServerOptions defines the options for creating a new Server.
type ServerOptions struct {
	Config     *Config      // Pre-filled config. If nil, ConfigPath is used.
	ConfigPath string       // Path to config file. Used if Config is nil; empty means the default file name.
	Logger     *slog.Logger // If nil, slog.Default() is used.
	HTTPClient *http.Client // If nil, a default client is used.

	// SkipHealthCheck disables the start-up reachability check.
	SkipHealthCheck bool
}

// NewServer builds the API client, the registries and the MCP front-end.
// It fails with a configuration error when no API key is available.
func NewServer(ctx context.Context, opts ServerOptions) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg := opts.Config
	if cfg == nil {
		var err error
		cfg, err = config.LoadConfigWithPath(opts.ConfigPath, logger)
		if err != nil {
			return nil, err
		}
	}

	metrics := telemetry.NewMetricsCollector()
	client, err := memphora.New(memphora.Options{
		APIKey:     cfg.API.Key,
		APIURL:     cfg.API.URL,
		UserID:     cfg.API.UserID,
		Timeout:    cfg.Timeout(),
		HTTPClient: opts.HTTPClient,
		Metrics:    metrics,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:     cfg,
		client:     client,
		dispatcher: tools.NewDispatcher(client, metrics, logger),
		resources:  resources.NewRegistry(client, client.UserID(), metrics, logger),
		prompts:    prompts.NewRegistry(metrics, logger),
		metrics:    metrics,
		logger:     logger,
	}

	s.toolServer = server.NewMemphoraServer(server.DefaultName, s.dispatcher, s.resources, s.prompts, logger)
	if err := s.toolServer.Initialize(); err != nil {
		return nil, err
	}

	logger.Info("Memphora MCP server configured", "api_url", client.BaseURL(), "user_id", client.UserID())

	if !opts.SkipHealthCheck {
		go s.checkHealth(ctx)
	}
	return s, nil
}

// checkHealth logs a warning when the API is unreachable. Start-up continues
// either way.
func (s *Server) checkHealth(ctx context.Context) {
	if s.client.HealthCheck(ctx) {
		s.logger.Info("Connected to Memphora API")
		return
	}
	s.logger.Warn("Could not reach Memphora API; tool calls may fail until it is reachable",
		"api_url", s.client.BaseURL())
}

// Start serves MCP over stdio until the host disconnects.
func (s *Server) Start() error {
	s.logger.Info("Starting Memphora MCP server")
	return s.toolServer.Start()
}

// Stop stops the server and cancels in-flight calls.
func (s *Server) Stop() error {
	if err := s.toolServer.Stop(); err != nil {
		s.logger.Error("Error stopping tool server", "error", err)
		return err
	}
	s.logger.Debug("Memphora MCP server stopped", "metrics", s.metrics.GetReport())
	return nil
}

// CallTool runs a tool by name and returns the text shown to the host.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]interface{}) string {
	return s.dispatcher.Call(ctx, name, args).Text()
}

// ReadResource returns the JSON body of a resource.
func (s *Server) ReadResource(ctx context.Context, uri string) string {
	return s.resources.Read(ctx, uri)
}

// GetPrompt renders a prompt.
func (s *Server) GetPrompt(name string, args map[string]string) (*prompts.Rendered, error) {
	return s.prompts.Get(name, args)
}

// Config returns the configuration the server was built with.
func (s *Server) Config() *Config { return s.config }

// Client returns the Memphora API client.
func (s *Server) Client() *memphora.Client { return s.client }

// Dispatcher returns the tool dispatcher.
func (s *Server) Dispatcher() *tools.Dispatcher { return s.dispatcher }

// ToolServer returns the MCP front-end, e.g. to register the tools on
// another gomcp server.
func (s *Server) ToolServer() *server.MemphoraServer { return s.toolServer }

// Metrics returns the metrics collector shared by every component.
func (s *Server) Metrics() *telemetry.MetricsCollector { return s.metrics }

// NewDevServer opens the SQLite store named in cfg and builds the local
// stand-in API on it. The caller must close the returned store.
func NewDevServer(cfg *Config, logger *slog.Logger) (*devserver.Server, contextstore.MemoryStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("Initializing SQLite memory store", "path", cfg.DevServer.SQLitePath)
	store := contextstore.NewSQLiteMemoryStore()
	if err := store.Initialize(cfg.DevServer.SQLitePath); err != nil {
		return nil, nil, errortypes.InternalError(err, "failed to initialize SQLite memory store").
			WithField("path", cfg.DevServer.SQLitePath)
	}

	srv, err := devserver.New(devserver.Options{
		APIKey:     cfg.DevServer.APIKey,
		Store:      store,
		Embedder:   vector.NewHashingEmbedder(vector.DefaultEmbeddingDimensions),
		Summarizer: summarizer.NewBasicSummarizer(summarizer.DefaultMaxSummaryLength),
		Logger:     logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return srv, store, nil
}
