// Package mcpserver exposes an endpoint catalogue as MCP tools using the
// official MCP Go SDK.
//
// Every [tools.Endpoint] becomes one tool whose input schema is generated
// from its parameters. Calls are executed by an [Invoker]; the result is
// always a single text content block. Invalid arguments are reported with
// IsError set, every other outcome (including upstream failures, which yield
// the endpoint's fallback sentence) is a normal result.
//
// Callers may supply their own RapidAPI key per session, either through the
// X-RapidAPI-Key HTTP header on the streamable HTTP transport or through the
// "rapidAPIKey" field of the call's _meta object.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/yhfinance/internal/credential"
	"github.com/MrWong99/yhfinance/internal/mcp/tools"
	"github.com/MrWong99/yhfinance/internal/observe"
)

const (
	// Name is the MCP implementation name.
	Name = "yhfinance"

	// Title is the human-readable implementation title.
	Title = "Yahoo Finance Server"

	// HeaderAPIKey carries a per-session RapidAPI key on HTTP transports.
	HeaderAPIKey = "X-RapidAPI-Key"

	// MetaAPIKey is the _meta field carrying a per-call RapidAPI key.
	MetaAPIKey = "rapidAPIKey"
)

const instructions = "Tools for the Yahoo Finance API: search tickers, quotes, news, " +
	"screeners, company fundamentals, earnings, options and price history. " +
	"List results are limited to 5 items; pass the optional start argument " +
	"to page through longer lists."

// Invoker executes one endpoint. [*tools.Invoker] implements it.
type Invoker interface {
	Invoke(ctx context.Context, e tools.Endpoint, args map[string]any) (string, error)
}

// Option configures a [Server].
type Option func(*Server)

// WithVersion sets the implementation version reported to clients.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithMetrics records tool metrics to m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the logger handed to the SDK.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithDisabled registers every endpoint except the named ones.
func WithDisabled(names ...string) Option {
	return func(s *Server) { s.initialDisabled = append(s.initialDisabled, names...) }
}

// Server wraps an [mcp.Server] with the tool catalogue registered on it.
type Server struct {
	sdk       *mcp.Server
	inv       Invoker
	endpoints []tools.Endpoint
	metrics   *observe.Metrics
	logger    *slog.Logger
	version   string

	initialDisabled []string

	mu       sync.Mutex
	disabled map[string]bool
}

// New validates endpoints and registers them on a new MCP server.
func New(inv Invoker, endpoints []tools.Endpoint, opts ...Option) (*Server, error) {
	if inv == nil {
		return nil, errors.New("mcpserver: invoker is required")
	}
	if err := tools.ValidateCatalogue(endpoints); err != nil {
		return nil, fmt.Errorf("mcpserver: %w", err)
	}

	s := &Server{
		inv:       inv,
		endpoints: slices.Clone(endpoints),
		version:   "dev",
		disabled:  make(map[string]bool),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.sdk = mcp.NewServer(&mcp.Implementation{
		Name:    Name,
		Title:   Title,
		Version: s.version,
	}, &mcp.ServerOptions{
		Instructions: instructions,
		Logger:       s.logger,
	})

	unknown := s.unknown(s.initialDisabled)
	for _, name := range s.initialDisabled {
		s.disabled[name] = true
	}
	for _, ep := range s.endpoints {
		if !s.disabled[ep.Name] {
			s.sdk.AddTool(s.tool(ep), s.handler(ep))
		}
	}
	if len(unknown) > 0 {
		s.logger.Warn("ignoring unknown disabled tools", slog.Any("tools", unknown))
	}
	return s, nil
}

// SDK returns the underlying MCP server.
func (s *Server) SDK() *mcp.Server {
	return s.sdk
}

// Enabled returns the names of the currently registered tools in catalogue
// order.
func (s *Server) Enabled() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for _, ep := range s.endpoints {
		if !s.disabled[ep.Name] {
			names = append(names, ep.Name)
		}
	}
	return names
}

// SetDisabled replaces the set of disabled tools, registering and removing
// tools on the live server as needed. Connected clients receive a
// tools/list_changed notification. Unknown names are returned as an error
// after the known ones have been applied.
func (s *Server) SetDisabled(names []string) error {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []string
	for _, ep := range s.endpoints {
		switch {
		case want[ep.Name] && !s.disabled[ep.Name]:
			removed = append(removed, ep.Name)
		case !want[ep.Name] && s.disabled[ep.Name]:
			s.sdk.AddTool(s.tool(ep), s.handler(ep))
			s.logger.Info("tool enabled", slog.String("tool", ep.Name))
		}
	}
	if len(removed) > 0 {
		s.sdk.RemoveTools(removed...)
		s.logger.Info("tools disabled", slog.Any("tools", removed))
	}
	s.disabled = want

	if unknown := s.unknown(names); len(unknown) > 0 {
		return fmt.Errorf("mcpserver: unknown tools: %s", strings.Join(unknown, ", "))
	}
	return nil
}

// RunStdio serves the MCP protocol over stdin/stdout until ctx is done or
// the client disconnects.
func (s *Server) RunStdio(ctx context.Context) error {
	return s.sdk.Run(ctx, &mcp.StdioTransport{})
}

// HTTPHandler returns a streamable HTTP handler serving this server.
func (s *Server) HTTPHandler(stateless bool) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.sdk
	}, &mcp.StreamableHTTPOptions{
		Stateless: stateless,
		Logger:    s.logger,
	})
}

// unknown lists the names that match no endpoint, each with a suggested
// correction when a close catalogue name exists.
func (s *Server) unknown(names []string) []string {
	var out []string
	for _, n := range names {
		if !slices.ContainsFunc(s.endpoints, func(e tools.Endpoint) bool { return e.Name == n }) {
			out = append(out, tools.DescribeUnknown(n, s.endpoints))
		}
	}
	return out
}

func (s *Server) tool(ep tools.Endpoint) *mcp.Tool {
	openWorld := true
	return &mcp.Tool{
		Name:        ep.Name,
		Description: ep.Description,
		InputSchema: ep.InputSchema(),
		Annotations: &mcp.ToolAnnotations{
			Title:          toolTitle(ep.Name),
			ReadOnlyHint:   true,
			IdempotentHint: true,
			OpenWorldHint:  &openWorld,
		},
	}
}

func (s *Server) handler(ep tools.Endpoint) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		ctx, span := observe.StartSpan(ctx, "tool."+ep.Name)
		span.SetAttributes(observe.Attr("tool.name", ep.Name))
		defer span.End()

		ctx = credential.WithSession(ctx, sessionKey(req))

		status := observe.StatusOK
		defer func() {
			s.metrics.RecordToolCall(ctx, ep.Name, status, time.Since(start).Seconds())
		}()

		var args map[string]any
		if req.Params != nil && len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				status = observe.StatusInvalid
				return errorResult(fmt.Sprintf("Invalid arguments for %s: arguments must be a JSON object", ep.Name)), nil
			}
		}

		text, err := s.inv.Invoke(ctx, ep, args)
		if err != nil {
			if errors.Is(err, tools.ErrInvalidArgument) {
				status = observe.StatusInvalid
				return errorResult(err.Error()), nil
			}
			status = observe.StatusError
			observe.Logger(ctx).Error("tool call failed", slog.String("tool", ep.Name), slog.Any("err", err))
			return errorResult(ep.Fallback), nil
		}
		if text == ep.Fallback {
			status = observe.StatusFallback
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: text}},
		}, nil
	}
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}

// sessionKey extracts a caller-supplied API key from the call's _meta or,
// failing that, the HTTP request headers.
func sessionKey(req *mcp.CallToolRequest) string {
	if req == nil {
		return ""
	}
	if req.Params != nil {
		if v, ok := req.Params.Meta[MetaAPIKey].(string); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	if req.Extra != nil && req.Extra.Header != nil {
		return req.Extra.Header.Get(HeaderAPIKey)
	}
	return ""
}

// toolTitle turns "get_stock_history" into "Get stock history".
func toolTitle(name string) string {
	words := strings.Fields(strings.ReplaceAll(name, "_", " "))
	if len(words) == 0 {
		return name
	}
	words[0] = strings.ToUpper(words[0][:1]) + words[0][1:]
	return strings.Join(words, " ")
}
