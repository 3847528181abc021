// Package mem0mcp exposes the hosted Mem0 memory API as MCP tools.
//
// The Server type wires configuration, the remote memory client and the tool
// server together. It can be run as a standalone MCP server (see cmd/mem0mcp)
// or embedded in another Go program, which can also call the tools directly.
package mem0mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	gomcpserver "github.com/localrivet/gomcp/server"

	"github.com/localrivet/mem0mcp/internal/config"
	"github.com/localrivet/mem0mcp/internal/errortypes"
	"github.com/localrivet/mem0mcp/internal/mem0"
	"github.com/localrivet/mem0mcp/internal/server"
	"github.com/localrivet/mem0mcp/internal/telemetry"
	"github.com/localrivet/mem0mcp/internal/tools"
)

// Version is reported by the version command and in the User-Agent header.
var Version = "0.1.0"

// Config represents the configuration for the mem0mcp service.
type Config = config.Config

// Tool argument and result types.
type (
	SaveMemoryRequest     = tools.SaveMemoryRequest
	GetAllMemoriesRequest = tools.GetAllMemoriesRequest
	SearchMemoriesRequest = tools.SearchMemoriesRequest
	Result                = tools.Result
)

// String and Int return pointers for the optional request fields.
var (
	String = tools.String
	Int    = tools.Int
)

// Server represents the mem0mcp service.
type Server struct {
	config     *config.Config
	client     *mem0.Client
	toolServer *server.MCPMemoryToolServer
	metrics    *telemetry.MetricsCollector
	logger     *slog.Logger
}

// ServerOptions defines the options for creating a new Server.
type ServerOptions struct {
	Config     *Config      // Pre-filled config. If nil, ConfigPath is used.
	ConfigPath string       // Path to a config file. If both are empty, the default locations and environment are used.
	Logger     *slog.Logger // External logger. If nil, slog.Default() is used.

	// HTTPClient is used for calls to the memory API. Defaults to a client
	// without a timeout.
	HTTPClient *http.Client
}

// NewServer creates a new Server with the given options. A provided Config
// is validated; otherwise configuration is loaded from ConfigPath (which
// must exist) or from the default locations. All failures are ConfigErrors.
func NewServer(opts ServerOptions) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var cfg *Config
	var err error

	switch {
	case opts.Config != nil:
		cfg = opts.Config
		logger.Info("Using provided Config object for server initialization")
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	case opts.ConfigPath != "":
		logger.Info("Loading configuration for server initialization", "path", opts.ConfigPath)
		cfg, err = config.Load(config.LoadOptions{Path: opts.ConfigPath, RequireFile: true, Logger: logger})
		if err != nil {
			return nil, err
		}
	default:
		cfg, err = config.Load(config.LoadOptions{Logger: logger})
		if err != nil {
			return nil, err
		}
	}

	transport, err := cfg.ResolveTransport()
	if err != nil {
		return nil, err
	}

	metrics := telemetry.NewMetricsCollector()
	client, err := mem0.NewClient(cfg, mem0.Options{
		HTTPClient: opts.HTTPClient,
		UserAgent:  "mem0mcp/" + Version,
		Logger:     logger,
		Metrics:    metrics,
	})
	if err != nil {
		return nil, err
	}

	toolServer := server.NewMemoryToolServer(client, server.Options{
		DefaultUserID: cfg.Mem0.DefaultUserID,
		Transport:     transport,
		Logger:        logger,
		Metrics:       metrics,
	})
	if err := toolServer.Initialize(); err != nil {
		return nil, errortypes.ConfigError(err, "failed to initialize MCP memory tool server")
	}

	logger.Info("mem0mcp server successfully initialized",
		"transport", transport.Mode(), "base_url", client.BaseURL(), "default_user_id", cfg.Mem0.DefaultUserID)
	return &Server{
		config:     cfg,
		client:     client,
		toolServer: toolServer,
		metrics:    metrics,
		logger:     logger,
	}, nil
}

// DefaultConfig returns a Config holding the default values. The transport
// mode and API key must still be set before it validates.
func DefaultConfig() *Config {
	return config.NewConfig()
}

// Config returns the configuration the server was built with.
func (s *Server) Config() *Config {
	return s.config
}

// Start serves on the configured transport and blocks until it ends.
func (s *Server) Start() error {
	s.logger.Info("Starting mem0mcp service")
	return s.toolServer.Start()
}

// Stop stops the service. In-flight tool calls are cancelled.
func (s *Server) Stop() error {
	s.logger.Info("Stopping mem0mcp service")
	if err := s.toolServer.Stop(); err != nil {
		s.logger.Error("Error stopping tool server", "error", err)
		return err
	}
	s.logger.Info("mem0mcp service stopped")
	return nil
}

// Tools returns the names of the registered tools.
func (s *Server) Tools() []string {
	return s.toolServer.Registry().Names()
}

// RegisterTools adds the memory tools to an MCP server owned by the caller,
// so they can be served next to the caller's own tools. Start is not needed
// in that case; Stop still cancels in-flight calls.
func (s *Server) RegisterTools(srv gomcpserver.Server) gomcpserver.Server {
	return s.toolServer.Bind(srv)
}

// Invoke runs a tool by name with JSON-encoded arguments, as an MCP client would.
func (s *Server) Invoke(ctx context.Context, name string, args json.RawMessage) (Result, error) {
	return s.toolServer.Invoke(ctx, name, args)
}

// SaveMemory runs the save_memory tool.
func (s *Server) SaveMemory(ctx context.Context, req SaveMemoryRequest) Result {
	return s.toolServer.SaveMemory(ctx, req)
}

// GetAllMemories runs the get_all_memories tool.
func (s *Server) GetAllMemories(ctx context.Context, req GetAllMemoriesRequest) Result {
	return s.toolServer.GetAllMemories(ctx, req)
}

// SearchMemories runs the search_memories tool.
func (s *Server) SearchMemories(ctx context.Context, req SearchMemoriesRequest) Result {
	return s.toolServer.SearchMemories(ctx, req)
}

// MetricsReport returns a text report of tool and remote call counters.
func (s *Server) MetricsReport() string {
	return s.metrics.GetReport()
}
