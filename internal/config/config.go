// Package config provides the configuration schema, loader and hot-reload
// watcher for the yhfinance MCP server.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity for the yhfinance server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l onto a [slog.Level]. Unknown and empty values map to
// [slog.LevelInfo].
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Transport selects how MCP clients connect to the server.
type Transport string

const (
	// TransportStdio serves a single client over stdin/stdout.
	TransportStdio Transport = "stdio"

	// TransportStreamableHTTP serves the MCP Streamable HTTP protocol at /mcp.
	TransportStreamableHTTP Transport = "streamable-http"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	return t == TransportStdio || t == TransportStreamableHTTP
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr  = ":8080"
	DefaultServiceName = "yhfinance"
	DefaultTimeout     = 30 * time.Second
)

// Config is the root configuration structure for yhfinance.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
// The zero value, after [ApplyDefaults], is a working stdio configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Tools     ToolsConfig     `yaml:"tools"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds transport and logging settings.
type ServerConfig struct {
	// Transport selects stdio (default) or streamable-http.
	Transport Transport `yaml:"transport"`

	// ListenAddr is the TCP address used by the streamable-http transport
	// (e.g., ":8080"). Ignored for stdio.
	ListenAddr string `yaml:"listen_addr"`

	// Stateless serves streamable HTTP without session tracking.
	Stateless bool `yaml:"stateless"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the HTTP listener. When nil, the server runs
	// plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// UpstreamConfig describes the RapidAPI provider.
type UpstreamConfig struct {
	// BaseURL overrides the provider's API root. Must be https.
	// Leave empty to use the built-in default.
	BaseURL string `yaml:"base_url"`

	// Host overrides the x-rapidapi-host header value.
	Host string `yaml:"host"`

	// APIKey is the process-wide fallback RapidAPI key. The RAPIDAPI_KEY
	// environment variable takes precedence (see [ApplyEnv]).
	APIKey string `yaml:"api_key"`

	// Timeout bounds a single upstream request, e.g. "30s".
	Timeout time.Duration `yaml:"timeout"`
}

// ToolsConfig selects which catalogue entries are exposed.
type ToolsConfig struct {
	// Disabled lists tool names that are not registered. Hot-reloadable.
	Disabled []string `yaml:"disabled"`
}

// TelemetryConfig controls tracing export.
type TelemetryConfig struct {
	// ServiceName is the OTel service.name resource attribute.
	ServiceName string `yaml:"service_name"`

	// OTLPEndpoint, when set, exports traces over OTLP/HTTP to this URL
	// (e.g., "http://localhost:4318/v1/traces").
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// ApplyDefaults fills unset fields of cfg with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Transport == "" {
		cfg.Server.Transport = TransportStdio
	}
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Upstream.Timeout == 0 {
		cfg.Upstream.Timeout = DefaultTimeout
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = DefaultServiceName
	}
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
