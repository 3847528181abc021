package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/localrivet/gomcp/server"

	"github.com/localrivet/mem0mcp/internal/config"
	"github.com/localrivet/mem0mcp/internal/errortypes"
	"github.com/localrivet/mem0mcp/internal/telemetry"
	"github.com/localrivet/mem0mcp/internal/tools"
)

// DefaultServerName is the name announced to MCP clients.
const DefaultServerName = "mem0mcp"

// Prefixes of failed tool results.
const (
	failSave     = "Error saving memory"
	failRetrieve = "Error retrieving memories"
	failSearch   = "Error searching memories"
)

// Common server error types
var (
	ErrServerNotInitialized = errors.New("server not initialized")
	ErrMissingDependencies  = errors.New("one or more required dependencies are nil")
)

// Options configures an MCPMemoryToolServer.
type Options struct {
	// Name is announced to clients. Defaults to DefaultServerName.
	Name string

	// DefaultUserID is used when a call omits user_id. Required.
	DefaultUserID string

	// Transport selects how Start serves. Required by Start only.
	Transport config.Transport

	Logger  *slog.Logger
	Metrics *telemetry.MetricsCollector
}

// MCPMemoryToolServer implements the ToolServer interface, forwarding each
// tool call to the remote memory API.
type MCPMemoryToolServer struct {
	client        MemoryClient
	name          string
	defaultUserID string
	transport     config.Transport
	logger        *slog.Logger
	metrics       *telemetry.MetricsCollector
	registry      *tools.Registry

	mu        sync.Mutex
	mcpServer server.Server
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewMemoryToolServer creates a new MCPMemoryToolServer. The tool registry
// is available immediately; Initialize must be called before Start.
func NewMemoryToolServer(client MemoryClient, opts Options) *MCPMemoryToolServer {
	name := opts.Name
	if name == "" {
		name = DefaultServerName
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &MCPMemoryToolServer{
		client:        client,
		name:          name,
		defaultUserID: strings.TrimSpace(opts.DefaultUserID),
		transport:     opts.Transport,
		logger:        logger.With("component", "server"),
		metrics:       opts.Metrics,
		ctx:           ctx,
		cancel:        cancel,
	}
	s.registry = s.buildRegistry()
	return s
}

func (s *MCPMemoryToolServer) buildRegistry() *tools.Registry {
	reg := tools.NewRegistry()
	for _, d := range []*tools.Descriptor{
		tools.NewDescriptor(tools.ToolSaveMemory,
			"Save information to long-term memory. Stores the text under the user and memory type for later retrieval.",
			failSave, s.SaveMemory),
		tools.NewDescriptor(tools.ToolGetAllMemories,
			"Get all stored memories for the user. Use this to load the full context of what is known about the user.",
			failRetrieve, s.GetAllMemories),
		tools.NewDescriptor(tools.ToolSearchMemories,
			"Search memories using semantic search. Returns the memories most relevant to the query.",
			failSearch, s.SearchMemories),
	} {
		// names are constants, so registration cannot collide
		_ = reg.Register(d)
	}
	return reg
}

// Registry returns the tool registry.
func (s *MCPMemoryToolServer) Registry() *tools.Registry {
	return s.registry
}

// Initialize checks dependencies and binds every registered tool to a new
// MCP server.
func (s *MCPMemoryToolServer) Initialize() error {
	s.logger.Info("Initializing MCP Memory Tool Server")

	if s.client == nil {
		return errortypes.ConfigError(ErrMissingDependencies, "server initialization failed")
	}
	if s.defaultUserID == "" {
		return errortypes.ConfigError(errors.New("default user id is empty"), "server initialization failed")
	}

	srv := s.Bind(server.NewServer(s.name))

	s.mu.Lock()
	s.mcpServer = srv
	s.mu.Unlock()

	count := len(s.registry.Names())
	s.metrics.SetGauge(telemetry.MetricRegisteredTools, float64(count))
	s.logger.Info("MCP Memory Tool Server initialized successfully", "tool_count", count, "tools", s.registry.Names())
	return nil
}

// Start serves on the configured transport and blocks until it ends.
func (s *MCPMemoryToolServer) Start() error {
	s.mu.Lock()
	srv := s.mcpServer
	s.mu.Unlock()
	if srv == nil {
		return errortypes.ConfigError(ErrServerNotInitialized, "cannot start server")
	}

	switch t := s.transport.(type) {
	case config.StdioTransport:
		s.logger.Info("Starting MCP Memory Tool Server", "transport", t.Mode())
		return srv.AsStdio().Run()
	case config.StreamTransport:
		s.logger.Info("Starting MCP Memory Tool Server", "transport", t.Mode(), "address", t.Address())
		return srv.AsSSE(t.Address()).Run()
	case nil:
		return errortypes.ConfigError(errors.New("no transport configured"), "cannot start server")
	default:
		return errortypes.ConfigError(fmt.Errorf("unsupported transport %T", t), "cannot start server")
	}
}

// Stop cancels in-flight tool calls and logs the telemetry report.
func (s *MCPMemoryToolServer) Stop() error {
	s.logger.Info("Stopping MCP Memory Tool Server")
	s.cancel()
	if s.metrics != nil {
		s.logger.Info("Tool server telemetry", "report", s.metrics.GetReport())
	}
	return nil
}

// Bind registers the memory tools on srv, which may be an MCP server owned
// by the caller.
func (s *MCPMemoryToolServer) Bind(srv server.Server) server.Server {
	return s.registry.Bind(srv, s.baseContext)
}

// Invoke runs a tool by name with JSON arguments.
func (s *MCPMemoryToolServer) Invoke(ctx context.Context, name string, args json.RawMessage) (tools.Result, error) {
	return s.registry.Invoke(ctx, name, args)
}

func (s *MCPMemoryToolServer) baseContext() context.Context {
	return s.ctx
}

// begin starts bookkeeping for one call. The returned function records the
// outcome and passes the result through.
func (s *MCPMemoryToolServer) begin(tool string) (*slog.Logger, func(tools.Result) tools.Result) {
	start := time.Now()
	log := s.logger.With("tool", tool, "call_id", uuid.NewString())
	return log, func(res tools.Result) tools.Result {
		s.metrics.ObserveCall(telemetry.MetricToolCalls, telemetry.MetricToolErrors,
			telemetry.MetricToolLatency, tool, time.Since(start), res.IsError)
		s.metrics.RecordTimestamp(telemetry.MetricLastToolCall)
		return res
	}
}

func (s *MCPMemoryToolServer) fail(log *slog.Logger, prefix string, err error) tools.Result {
	errortypes.LogError(log, err)
	if errortypes.IsInvalidArgument(err) {
		s.metrics.IncrementCounter(telemetry.MetricInvalidArguments, 1)
	}
	return tools.Failure(prefix, err)
}

// SaveMemory handles the save_memory tool call.
func (s *MCPMemoryToolServer) SaveMemory(ctx context.Context, req tools.SaveMemoryRequest) tools.Result {
	log, done := s.begin(tools.ToolSaveMemory)

	args, err := req.Normalize(s.defaultUserID)
	if err != nil {
		return done(s.fail(log, failSave, err))
	}
	log.Info("Processing save_memory request", "user_id", args.UserID, "memory_type", args.Category,
		"text_length", len(args.Text))

	res, err := s.client.Add(ctx, args.Text, args.UserID, args.Category, args.Metadata)
	if err != nil {
		return done(s.fail(log, failSave, err))
	}

	log.Info("Successfully saved memory", "ids", res.IDs())
	return done(tools.Success(tools.FormatSaved(args.Text)))
}

// GetAllMemories handles the get_all_memories tool call.
func (s *MCPMemoryToolServer) GetAllMemories(ctx context.Context, req tools.GetAllMemoriesRequest) tools.Result {
	log, done := s.begin(tools.ToolGetAllMemories)

	args, err := req.Normalize(s.defaultUserID)
	if err != nil {
		return done(s.fail(log, failRetrieve, err))
	}
	log.Info("Processing get_all_memories request", "user_id", args.UserID, "memory_type", args.Category)

	records, err := s.client.GetAll(ctx, args.UserID, args.Category)
	if err != nil {
		return done(s.fail(log, failRetrieve, err))
	}

	text, err := tools.FormatList(records, args)
	if err != nil {
		return done(s.fail(log, failRetrieve, err))
	}

	log.Info("Successfully retrieved memories", "count", len(records))
	return done(tools.Success(text))
}

// SearchMemories handles the search_memories tool call. Invalid arguments
// are rejected before any remote call.
func (s *MCPMemoryToolServer) SearchMemories(ctx context.Context, req tools.SearchMemoriesRequest) tools.Result {
	log, done := s.begin(tools.ToolSearchMemories)

	args, err := req.Normalize(s.defaultUserID)
	if err != nil {
		return done(s.fail(log, failSearch, err))
	}
	log.Info("Processing search_memories request", "user_id", args.UserID, "memory_type", args.Category,
		"query", args.Query, "limit", args.Limit)

	records, err := s.client.Search(ctx, args.Query, args.UserID, args.Category, args.Limit)
	if err != nil {
		return done(s.fail(log, failSearch, err))
	}

	text, err := tools.FormatSearch(records, args)
	if err != nil {
		return done(s.fail(log, failSearch, err))
	}

	log.Info("Successfully searched memories", "count", len(records))
	return done(tools.Success(text))
}
