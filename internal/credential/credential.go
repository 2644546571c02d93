// Package credential resolves the RapidAPI key used for upstream requests.
//
// Two sources are consulted, in order:
//
//  1. A session credential attached to the call context with [WithSession].
//     MCP transports attach it when a client supplies its own key.
//  2. A process-wide fallback captured once at start-up (environment or
//     config file) and injected into [NewResolver].
//
// Nothing is read from the environment at call time.
package credential

import (
	"context"
	"errors"
	"strings"
)

// EnvVar is the environment variable holding the process-wide fallback key.
const EnvVar = "RAPIDAPI_KEY"

// ErrMissing is returned by [Resolver.Resolve] when neither the session nor
// the fallback yields a non-empty key.
var ErrMissing = errors.New("credential: API key not found; set the RAPIDAPI_KEY environment variable or provide rapidAPIKey in the request")

type sessionKey struct{}

// WithSession returns a copy of ctx carrying key as the session credential.
// An empty (or whitespace-only) key leaves ctx unchanged.
func WithSession(ctx context.Context, key string) context.Context {
	key = strings.TrimSpace(key)
	if key == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionKey{}, key)
}

// FromContext returns the session credential attached to ctx, if any.
func FromContext(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(sessionKey{}).(string)
	return key, ok && key != ""
}

// Resolver picks the credential for a single call. It holds only immutable
// state and is safe for concurrent use.
type Resolver struct {
	fallback string
}

// NewResolver returns a Resolver that falls back to fallback when a call
// carries no session credential. fallback may be empty.
func NewResolver(fallback string) *Resolver {
	return &Resolver{fallback: strings.TrimSpace(fallback)}
}

// Resolve returns the session credential from ctx when present, otherwise the
// fallback. It returns [ErrMissing] when both are empty.
func (r *Resolver) Resolve(ctx context.Context) (string, error) {
	if key, ok := FromContext(ctx); ok {
		return key, nil
	}
	if r != nil && r.fallback != "" {
		return r.fallback, nil
	}
	return "", ErrMissing
}

// HasFallback reports whether a process-wide key is configured.
func (r *Resolver) HasFallback() bool {
	return r != nil && r.fallback != ""
}
