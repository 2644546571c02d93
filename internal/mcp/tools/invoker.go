package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strconv"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/MrWong99/yhfinance/internal/observe"
	"github.com/MrWong99/yhfinance/internal/upstream"
)

// Dispatcher performs one upstream request. [*upstream.Client] implements it.
type Dispatcher interface {
	Fetch(ctx context.Context, r upstream.Request) (json.RawMessage, error)
}

// Invoker executes endpoints against a [Dispatcher]. It is safe for
// concurrent use.
type Invoker struct {
	d Dispatcher

	mu      sync.Mutex
	schemas map[string]*jsonschema.Resolved
}

// NewInvoker returns an Invoker dispatching through d.
func NewInvoker(d Dispatcher) *Invoker {
	return &Invoker{d: d, schemas: make(map[string]*jsonschema.Resolved)}
}

// Invoke runs e with the decoded JSON arguments args and returns the text
// shown to the caller: four-space indented JSON, or e.Fallback when the
// request fails or yields nothing.
//
// The only error returned is an [*ArgumentError], produced before any
// request is made.
func (inv *Invoker) Invoke(ctx context.Context, e Endpoint, args map[string]any) (string, error) {
	args = withDefaults(e, args)

	for _, p := range e.Params {
		v, ok := args[p.Name]
		if !ok || p.Validate == nil {
			continue
		}
		if err := p.Validate(v); err != nil {
			return "", &ArgumentError{Tool: e.Name, Param: p.Name, Message: err.Error()}
		}
	}

	rs, err := inv.resolved(e)
	if err != nil {
		return "", fmt.Errorf("tools: %s: resolve schema: %w", e.Name, err)
	}
	if err := rs.Validate(args); err != nil {
		return "", &ArgumentError{
			Tool:    e.Name,
			Message: fmt.Sprintf("Invalid arguments for %s: %v", e.Name, err),
		}
	}

	req, cursor, err := buildRequest(e, args)
	if err != nil {
		return "", err
	}

	log := observe.Logger(ctx).With(slog.String("tool", e.Name))

	raw, err := inv.d.Fetch(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, upstream.ErrMissingCredential):
			log.Warn("no API key available for tool call", slog.Any("err", err))
		default:
			log.Warn("upstream request failed", slog.Any("err", err))
		}
		return e.Fallback, nil
	}

	out, err := shape(e, raw, cursor)
	if err != nil {
		if errors.Is(err, ErrEmptyResult) {
			log.Debug("empty result", slog.Any("err", err))
		} else {
			log.Warn("shaping response failed", slog.Any("err", err))
		}
		return e.Fallback, nil
	}

	text, err := pretty(out)
	if err != nil {
		log.Warn("formatting response failed", slog.Any("err", err))
		return e.Fallback, nil
	}
	return text, nil
}

// resolved returns the cached resolved schema for e.
func (inv *Invoker) resolved(e Endpoint) (*jsonschema.Resolved, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if rs, ok := inv.schemas[e.Name]; ok {
		return rs, nil
	}
	rs, err := e.InputSchema().Resolve(&jsonschema.ResolveOptions{ValidateDefaults: true})
	if err != nil {
		return nil, err
	}
	inv.schemas[e.Name] = rs
	return rs, nil
}

// withDefaults returns a copy of args with nil values dropped and declared
// defaults filled in.
func withDefaults(e Endpoint, args map[string]any) map[string]any {
	out := make(map[string]any, len(args)+len(e.Params))
	for k, v := range args {
		if v != nil {
			out[k] = v
		}
	}
	for _, p := range e.Params {
		if _, ok := out[p.Name]; !ok && p.Default != nil {
			out[p.Name] = p.Default
		}
	}
	return out
}

// buildRequest substitutes path parameters and collects query parameters.
// Arguments must already be schema-valid.
func buildRequest(e Endpoint, args map[string]any) (upstream.Request, *int, error) {
	req := upstream.Request{Route: e.Path, Query: map[string]string{}}

	inPath := make(map[string]bool)
	var subErr error
	req.Path = placeholderRE.ReplaceAllStringFunc(e.Path, func(m string) string {
		name := m[1 : len(m)-1]
		inPath[name] = true
		s := argString(args[name])
		if s == "" {
			subErr = &ArgumentError{
				Tool:    e.Name,
				Param:   name,
				Message: fmt.Sprintf("Invalid arguments for %s: %s must not be empty", e.Name, name),
			}
		}
		return url.PathEscape(s)
	})
	if subErr != nil {
		return upstream.Request{}, nil, subErr
	}

	for _, p := range e.Params {
		if inPath[p.Name] {
			continue
		}
		if v, ok := args[p.Name]; ok {
			req.Query[p.QueryName()] = argString(v)
		}
	}

	var cursor *int
	if e.Pageable() {
		if v, ok := args[StartParam]; ok {
			n := argInt(v)
			cursor = &n
		}
	}
	return req, cursor, nil
}

func argString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case json.Number:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func argInt(v any) int {
	switch x := v.(type) {
	case float64:
		if x > math.MaxInt32 {
			return math.MaxInt32
		}
		if x < math.MinInt32 {
			return math.MinInt32
		}
		return int(x)
	case int:
		return x
	case int64:
		return int(x)
	case json.Number:
		n, _ := x.Int64()
		return int(n)
	}
	return 0
}
