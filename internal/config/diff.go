package config

import (
	"slices"
)

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// ToolsChanged is true when the set of disabled tools differs.
	ToolsChanged bool
	Disabled     []string

	// RestartRequired names changed settings that only take effect after a
	// restart (transport, listener, upstream and telemetry).
	RestartRequired []string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !sameSet(old.Tools.Disabled, new.Tools.Disabled) {
		d.ToolsChanged = true
		d.Disabled = slices.Clone(new.Tools.Disabled)
	}

	restart := func(field string, changed bool) {
		if changed {
			d.RestartRequired = append(d.RestartRequired, field)
		}
	}
	restart("server.transport", old.Server.Transport != new.Server.Transport)
	restart("server.listen_addr", old.Server.ListenAddr != new.Server.ListenAddr)
	restart("server.stateless", old.Server.Stateless != new.Server.Stateless)
	restart("server.tls", !equalTLS(old.Server.TLS, new.Server.TLS))
	restart("upstream", old.Upstream != new.Upstream)
	restart("telemetry", old.Telemetry != new.Telemetry)

	return d
}

// Empty reports whether d carries no changes at all.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.ToolsChanged && len(d.RestartRequired) == 0
}

func sameSet(a, b []string) bool {
	a, b = slices.Clone(a), slices.Clone(b)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(slices.Compact(a), slices.Compact(b))
}

func equalTLS(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
