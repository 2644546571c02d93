// Package app wires the yhfinance subsystems into a running MCP server.
//
// The App struct owns the full lifecycle: New builds the credential
// resolver, upstream client, tool invoker and MCP server from the config,
// Run serves the configured transport until the context is cancelled, and
// Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithHTTPClient,
// WithMetrics, WithStdioTransport). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/yhfinance/internal/config"
	"github.com/MrWong99/yhfinance/internal/credential"
	"github.com/MrWong99/yhfinance/internal/health"
	"github.com/MrWong99/yhfinance/internal/mcp/mcpserver"
	"github.com/MrWong99/yhfinance/internal/mcp/tools"
	"github.com/MrWong99/yhfinance/internal/mcp/tools/yahoo"
	"github.com/MrWong99/yhfinance/internal/observe"
	"github.com/MrWong99/yhfinance/internal/upstream"
)

// shutdownTimeout bounds the graceful HTTP shutdown once Run's context ends.
const shutdownTimeout = 15 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg     *config.Config
	version string

	// Hot-reload inputs.
	cfgPath string
	level   *slog.LevelVar
	env     func(string) (string, bool)

	// Injected or built in New.
	httpClient *http.Client
	metrics    *observe.Metrics
	stdio      mcp.Transport
	telemetry  bool
	listener   net.Listener

	creds   *credential.Resolver
	client  *upstream.Client
	invoker *tools.Invoker
	server  *mcpserver.Server
	health  *health.Handler
	watcher *config.Watcher

	// closers are called in order during Shutdown.
	closers []func(context.Context) error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithVersion sets the version reported to MCP clients and telemetry.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// WithConfigPath enables hot reload of the file at path. Log level and
// disabled tools are applied live; other changes are logged.
func WithConfigPath(path string) Option {
	return func(a *App) { a.cfgPath = path }
}

// WithLevelVar lets hot reload adjust the level of the caller's logger.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithEnv sets the environment lookup applied to reloaded configs, so a
// reload sees the same api_key overlay as startup.
func WithEnv(lookup func(string) (string, bool)) Option {
	return func(a *App) { a.env = lookup }
}

// WithHTTPClient injects the HTTP client used for upstream requests.
func WithHTTPClient(c *http.Client) Option {
	return func(a *App) { a.httpClient = c }
}

// WithMetrics injects the metric instruments instead of
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithTelemetry controls whether New initialises the global OTel providers
// (Prometheus bridge and optional OTLP trace export). Default: true.
func WithTelemetry(enabled bool) Option {
	return func(a *App) { a.telemetry = enabled }
}

// WithStdioTransport replaces the stdin/stdout transport used by Run when
// server.transport is stdio.
func WithStdioTransport(t mcp.Transport) Option {
	return func(a *App) { a.stdio = t }
}

// WithListener serves streamable HTTP on l instead of listening on
// server.listen_addr.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App from cfg. cfg must already be validated and have its
// environment overlay applied.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	a := &App{
		cfg:       cfg,
		version:   "dev",
		telemetry: true,
	}
	for _, o := range opts {
		o(a)
	}
	if a.level == nil {
		a.level = new(slog.LevelVar)
	}
	a.level.Set(cfg.Server.LogLevel.Level())

	// ── 1. Telemetry ─────────────────────────────────────────────────────
	if a.telemetry {
		shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: a.version,
			OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("app: init telemetry: %w", err)
		}
		a.closers = append(a.closers, shutdown)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 2. Upstream ──────────────────────────────────────────────────────
	if err := a.initUpstream(); err != nil {
		return nil, fmt.Errorf("app: init upstream: %w", err)
	}

	// ── 3. MCP server ────────────────────────────────────────────────────
	a.invoker = tools.NewInvoker(a.client)
	srv, err := mcpserver.New(a.invoker, yahoo.Endpoints(),
		mcpserver.WithVersion(a.version),
		mcpserver.WithMetrics(a.metrics),
		mcpserver.WithDisabled(cfg.Tools.Disabled...),
	)
	if err != nil {
		return nil, fmt.Errorf("app: init mcp server: %w", err)
	}
	a.server = srv

	// ── 4. Health ────────────────────────────────────────────────────────
	a.health = health.New(
		health.ToolsCheck(a.server.Enabled),
		health.CredentialCheck(a.creds),
	)

	// ── 5. Config watcher ────────────────────────────────────────────────
	if a.cfgPath != "" {
		w, err := config.NewWatcher(a.cfgPath, a.onConfigChange, config.WithEnv(a.env))
		if err != nil {
			return nil, fmt.Errorf("app: watch config: %w", err)
		}
		a.watcher = w
	}

	if !a.creds.HasFallback() {
		slog.Warn("no RapidAPI key configured; calls without a per-session key will return fallback messages",
			"env", credential.EnvVar)
	}
	return a, nil
}

func (a *App) initUpstream() error {
	a.creds = credential.NewResolver(a.cfg.Upstream.APIKey)

	opts := []upstream.Option{
		upstream.WithMetrics(a.metrics),
		upstream.WithTimeout(a.cfg.Upstream.Timeout),
	}
	if a.cfg.Upstream.BaseURL != "" {
		opts = append(opts, upstream.WithBaseURL(a.cfg.Upstream.BaseURL))
	}
	if a.cfg.Upstream.Host != "" {
		opts = append(opts, upstream.WithHost(a.cfg.Upstream.Host))
	}
	if a.httpClient != nil {
		opts = append(opts, upstream.WithHTTPClient(a.httpClient))
	}

	c, err := upstream.New(a.creds, opts...)
	if err != nil {
		return err
	}
	a.client = c
	return nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Server returns the MCP server.
func (a *App) Server() *mcpserver.Server {
	return a.server
}

// Invoker returns the tool invoker, for running tools outside MCP.
func (a *App) Invoker() *tools.Invoker {
	return a.invoker
}

// Handler returns the HTTP handler used by the streamable-http transport:
// /mcp, /healthz, /readyz and /metrics behind the observability middleware.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/mcp", a.server.HTTPHandler(a.cfg.Server.Stateless))
	a.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	return observe.Middleware(a.metrics)(mux)
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the configured transport until ctx is cancelled (or, for stdio,
// until the client disconnects).
func (a *App) Run(ctx context.Context) error {
	switch a.cfg.Server.Transport {
	case config.TransportStreamableHTTP:
		return a.runHTTP(ctx)
	case config.TransportStdio, "":
		t := a.stdio
		if t == nil {
			t = &mcp.StdioTransport{}
		}
		slog.Info("serving MCP over stdio", "tools", len(a.server.Enabled()))
		return a.server.SDK().Run(ctx, t)
	default:
		return fmt.Errorf("app: unsupported transport %q", a.cfg.Server.Transport)
	}
}

func (a *App) runHTTP(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	ln := a.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", srv.Addr)
		if err != nil {
			return fmt.Errorf("app: listen %s: %w", srv.Addr, err)
		}
	}

	if t := a.cfg.Server.TLS; t != nil {
		cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
		if err != nil {
			ln.Close()
			return fmt.Errorf("app: load tls key pair: %w", err)
		}
		ln = tls.NewListener(ln, &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		})
	}

	slog.Info("serving MCP over streamable HTTP",
		"addr", ln.Addr().String(),
		"tls", a.cfg.Server.TLS != nil,
		"stateless", a.cfg.Server.Stateless,
		"tools", len(a.server.Enabled()),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

func (a *App) onConfigChange(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged {
		a.level.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.ToolsChanged {
		if err := a.server.SetDisabled(d.Disabled); err != nil {
			slog.Warn("applying disabled tools", "err", err)
		}
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart to take effect", "fields", d.RestartRequired)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the config watcher and flushes telemetry. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.watcher != nil {
			a.watcher.Stop()
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(ctx); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
