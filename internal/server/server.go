package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/localrivet/gomcp/server"
	"github.com/localrivet/gomcp/transport/stdio"

	"github.com/memphora/memphora-mcp/internal/errortypes"
	"github.com/memphora/memphora-mcp/internal/prompts"
	"github.com/memphora/memphora-mcp/internal/resources"
	"github.com/memphora/memphora-mcp/internal/tools"
)

// DefaultName is the MCP server name announced to hosts.
const DefaultName = "memphora"

// ErrServerNotInitialized is returned by Start before Initialize succeeded.
var ErrServerNotInitialized = errors.New("server not initialized")

// MemphoraServer implements ToolServer on top of gomcp.
type MemphoraServer struct {
	name       string
	dispatcher *tools.Dispatcher
	resources  *resources.Registry
	prompts    *prompts.Registry
	logger     *slog.Logger

	mcpServer server.Server
	ctx       context.Context
	cancel    context.CancelFunc
}

// memoriesArgs carries the user segment of a resource URI template.
type memoriesArgs struct {
	UserID string `json:"user_id" path:"user_id"`
}

// NewMemphoraServer creates a server. Call Initialize before Start.
func NewMemphoraServer(name string, dispatcher *tools.Dispatcher, res *resources.Registry, pr *prompts.Registry, logger *slog.Logger) *MemphoraServer {
	if name == "" {
		name = DefaultName
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &MemphoraServer{
		name:       name,
		dispatcher: dispatcher,
		resources:  res,
		prompts:    pr,
		logger:     logger.With("component", "server"),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Initialize registers the tools, resources and prompts.
func (s *MemphoraServer) Initialize() error {
	s.logger.Info("Initializing Memphora MCP server")

	if s.dispatcher == nil || s.resources == nil || s.prompts == nil {
		return errortypes.ConfigError(errors.New("missing dependencies"), "server initialization failed")
	}

	srv := server.NewServer(s.name, server.WithLogger(s.logger.With("component", "gomcp")))
	srv = s.Register(srv)

	s.mcpServer = srv
	s.logger.Info("Memphora MCP server initialized",
		"tool_count", len(tools.Definitions()),
		"resource_count", len(s.resources.List()),
		"prompt_count", len(s.prompts.List()))
	return nil
}

// Register adds the Memphora capabilities to srv and returns it. It lets
// other MCP servers embed the Memphora tools next to their own.
//
// Tools are advertised with the schemas from tools.Definitions, resources
// under their concrete URIs and a {user_id} template, and prompts with the
// registry's descriptions and arguments.
func (s *MemphoraServer) Register(srv server.Server) server.Server {
	for _, def := range tools.Definitions() {
		srv = srv.Tool(def.Name, def.Description, s.toolHandler(def.Name))
	}
	for _, r := range s.resources.List() {
		srv = srv.Resource(r.URI, r.Description, s.resourceHandler(r.URI))
		srv = srv.Resource(uriTemplate(r.URI), r.Description, s.resourceHandler(r.URI))
	}
	for _, p := range s.prompts.List() {
		srv = srv.Prompt(p.Name, p.Description, server.User(p.Template))
	}

	s.describe(srv)
	return srv
}

// describe replaces the metadata gomcp derives at registration with the
// Memphora definitions.
func (s *MemphoraServer) describe(srv server.Server) {
	impl := srv.GetServer()

	registered := impl.GetTools()
	for _, def := range tools.Definitions() {
		t, ok := registered[def.Name]
		if !ok {
			continue
		}
		var schema map[string]interface{}
		if err := json.Unmarshal(def.SchemaJSON(), &schema); err != nil {
			errortypes.LogError(s.logger.With("tool", def.Name),
				errortypes.InternalError(err, "failed to decode tool schema"))
			continue
		}
		t.Schema = schema
	}

	for path, r := range impl.GetResources() {
		if !strings.HasPrefix(path, resources.Scheme+"://") {
			continue
		}
		schema, ok := r.Schema.(map[string]interface{})
		if !ok {
			schema = map[string]interface{}{"type": "object"}
		}
		schema["mimeType"] = resources.MIMEType
		r.Schema = schema
	}

	registeredPrompts := impl.GetPrompts()
	for _, p := range s.prompts.List() {
		gp, ok := registeredPrompts[p.Name]
		if !ok {
			continue
		}
		gp.Description = p.Description
		gp.Arguments = make([]server.PromptArgument, 0, len(p.Arguments))
		for _, a := range p.Arguments {
			gp.Arguments = append(gp.Arguments, server.PromptArgument{
				Name:        a.Name,
				Description: a.Description,
				Required:    a.Required,
			})
		}
	}
}

// Start serves MCP over stdio until Stop is called or stdin is closed.
func (s *MemphoraServer) Start() error {
	return s.Serve(os.Stdin, os.Stdout)
}

// Serve answers newline-delimited JSON-RPC messages read from in, writing
// the responses to out. It returns when Stop is called or in is exhausted.
func (s *MemphoraServer) Serve(in io.Reader, out io.Writer) error {
	if s.mcpServer == nil {
		return errortypes.ConfigError(ErrServerNotInitialized, "cannot start server")
	}

	input := &endSignal{r: in, done: make(chan struct{})}
	t := stdio.NewTransportWithIO(input, out)
	t.SetMessageHandler(s.HandleMessage)
	if err := t.Initialize(); err != nil {
		return errortypes.TransportError(err, "failed to initialize stdio transport")
	}
	if err := t.Start(); err != nil {
		return errortypes.TransportError(err, "failed to start stdio transport")
	}

	s.logger.Info("Starting Memphora MCP server", "transport", "stdio")
	select {
	case <-s.ctx.Done():
	case <-input.done:
		s.logger.Info("Host closed the input stream")
	}
	return t.Stop()
}

// Stop cancels in-flight tool calls and ends Serve.
func (s *MemphoraServer) Stop() error {
	s.logger.Info("Stopping Memphora MCP server")
	s.cancel()
	return nil
}

// endSignal closes done once the wrapped reader fails or reaches EOF.
type endSignal struct {
	r    io.Reader
	once sync.Once
	done chan struct{}
}

func (e *endSignal) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if err != nil {
		e.once.Do(func() { close(e.done) })
	}
	return n, err
}

// toolHandler hands the raw arguments to the dispatcher, which validates
// them against the tool's schema before decoding.
func (s *MemphoraServer) toolHandler(name string) server.ToolHandler {
	return func(_ *server.Context, args interface{}) (interface{}, error) {
		m, _ := args.(map[string]interface{})
		return s.dispatcher.Call(s.ctx, name, m).Text(), nil
	}
}

// resourceHandler reads the resource at uri, or at the same URI rewritten
// for the user named in the request.
func (s *MemphoraServer) resourceHandler(uri string) func(*server.Context, memoriesArgs) (string, error) {
	return func(_ *server.Context, args memoriesArgs) (string, error) {
		return s.resources.Read(s.ctx, withUser(uri, args.UserID)), nil
	}
}

// uriTemplate turns a concrete resource URI into a gomcp template with a
// {user_id} path parameter.
func uriTemplate(uri string) string {
	return replaceUser(uri, "{user_id}")
}

func withUser(uri, userID string) string {
	if userID == "" {
		return uri
	}
	return replaceUser(uri, userID)
}

func replaceUser(uri, userID string) string {
	const marker = "users/"
	i := strings.Index(uri, marker)
	if i < 0 {
		return uri
	}
	start := i + len(marker)
	end := strings.Index(uri[start:], "/")
	if end < 0 {
		return uri
	}
	return uri[:start] + userID + uri[start+end:]
}
