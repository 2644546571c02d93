// Package tools defines the declarative [Endpoint] type that describes one
// upstream-backed MCP tool, and the generic [Invoker] that executes any of
// them: validate arguments, build the request, dispatch it, shape the result.
//
// Endpoint catalogues live in sub-packages (see tools/yahoo) and are plain
// data; no endpoint carries its own handler body.
package tools

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// StartParam is the optional cursor accepted by every pageable endpoint.
const StartParam = "start"

// ErrInvalidArgument matches every [*ArgumentError].
var ErrInvalidArgument = errors.New("tools: invalid argument")

// ErrEmptyResult is reported when a request succeeded but the expected data
// was absent or empty. It never leaves [Invoker.Invoke]; callers see the
// endpoint's fallback sentence instead.
var ErrEmptyResult = errors.New("tools: empty result")

// ArgumentError rejects a call before any request is made. Its message is
// meant to be shown to the caller verbatim.
type ArgumentError struct {
	Tool    string
	Param   string
	Message string
}

func (e *ArgumentError) Error() string { return e.Message }

func (e *ArgumentError) Unwrap() error { return ErrInvalidArgument }

// ParamType is the JSON Schema type of a parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
)

// Param describes one tool argument.
type Param struct {
	// Name is the argument name exposed to MCP clients.
	Name string

	// Query is the upstream query parameter name. Empty means Name. Ignored
	// for parameters substituted into the path.
	Query string

	Type        ParamType
	Description string
	Required    bool

	// Default is applied when the caller omits the argument. It must match
	// Type (string, or int for integers).
	Default any

	// Enum, when non-empty, restricts the accepted values in the schema.
	Enum []string

	// Validate runs before schema validation. A non-nil error becomes an
	// [ArgumentError] whose message is err.Error().
	Validate func(v any) error
}

// QueryName returns the upstream query parameter name.
func (p Param) QueryName() string {
	if p.Query != "" {
		return p.Query
	}
	return p.Name
}

// Shape selects how a successful response is reduced before it is returned.
type Shape int

const (
	// ShapeWhole returns the entire response; empty responses fall back.
	ShapeWhole Shape = iota

	// ShapeList extracts the array at ResultKey and returns its first
	// page.Size items, or a page envelope when the caller supplies a cursor.
	ShapeList

	// ShapeListOrWhole behaves like ShapeList when ResultKey holds an array
	// and otherwise returns the value at ResultKey unchanged.
	ShapeListOrWhole

	// ShapeListInPlace returns the entire response with the array at
	// ResultKey truncated to page.Size items.
	ShapeListInPlace
)

func (s Shape) String() string {
	switch s {
	case ShapeWhole:
		return "whole"
	case ShapeList:
		return "list"
	case ShapeListOrWhole:
		return "list-or-whole"
	case ShapeListInPlace:
		return "list-in-place"
	default:
		return fmt.Sprintf("Shape(%d)", int(s))
	}
}

// Endpoint describes one upstream-backed tool.
type Endpoint struct {
	// Name is the MCP tool name.
	Name string

	// Description is shown to the model.
	Description string

	// Path is relative to the upstream base URL and may contain {param}
	// placeholders, which are path-escaped on substitution.
	Path string

	Params []Param

	// ResultKey is the top-level response field the list shapes operate on.
	ResultKey string

	Shape Shape

	// Fallback is returned instead of data whenever the call fails or yields
	// nothing.
	Fallback string
}

// Pageable reports whether the endpoint accepts the [StartParam] cursor.
func (e Endpoint) Pageable() bool {
	return e.Shape == ShapeList || e.Shape == ShapeListOrWhole
}

// Param returns the parameter called name.
func (e Endpoint) Param(name string) (Param, bool) {
	for _, p := range e.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

var placeholderRE = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// PathParams returns the placeholder names in Path, in order.
func (e Endpoint) PathParams() []string {
	var names []string
	for _, m := range placeholderRE.FindAllStringSubmatch(e.Path, -1) {
		names = append(names, m[1])
	}
	return names
}

// Validate checks that the endpoint is internally consistent.
func (e Endpoint) Validate() error {
	var errs []error
	if e.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if !strings.HasPrefix(e.Path, "/") {
		errs = append(errs, fmt.Errorf("path %q must start with /", e.Path))
	}
	if strings.TrimSpace(e.Fallback) == "" {
		errs = append(errs, errors.New("fallback is required"))
	}
	if e.Shape != ShapeWhole && e.ResultKey == "" {
		errs = append(errs, fmt.Errorf("shape %s requires a result key", e.Shape))
	}

	seen := make(map[string]bool, len(e.Params))
	for _, p := range e.Params {
		switch {
		case p.Name == "":
			errs = append(errs, errors.New("parameter with empty name"))
		case p.Name == StartParam:
			errs = append(errs, fmt.Errorf("parameter %q is reserved", StartParam))
		case seen[p.Name]:
			errs = append(errs, fmt.Errorf("duplicate parameter %q", p.Name))
		}
		seen[p.Name] = true
		if p.Type != TypeString && p.Type != TypeInteger {
			errs = append(errs, fmt.Errorf("parameter %q: unsupported type %q", p.Name, p.Type))
		}
		if p.Default != nil && !defaultMatches(p) {
			errs = append(errs, fmt.Errorf("parameter %q: default %v does not match type %s", p.Name, p.Default, p.Type))
		}
		if len(p.Enum) > 0 && p.Default != nil {
			if s, ok := p.Default.(string); ok && !slices.Contains(p.Enum, s) {
				errs = append(errs, fmt.Errorf("parameter %q: default %q not in enum", p.Name, s))
			}
		}
	}
	for _, name := range e.PathParams() {
		p, ok := e.Param(name)
		if !ok {
			errs = append(errs, fmt.Errorf("path placeholder {%s} has no parameter", name))
			continue
		}
		if !p.Required && p.Default == nil {
			errs = append(errs, fmt.Errorf("path parameter %q must be required or have a default", name))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("tools: endpoint %q: %w", e.Name, err)
	}
	return nil
}

func defaultMatches(p Param) bool {
	switch p.Type {
	case TypeString:
		_, ok := p.Default.(string)
		return ok
	case TypeInteger:
		_, ok := p.Default.(int)
		return ok
	}
	return false
}

// ValidateCatalogue validates every endpoint and rejects duplicate names.
func ValidateCatalogue(eps []Endpoint) error {
	var errs []error
	seen := make(map[string]bool, len(eps))
	for _, ep := range eps {
		if err := ep.Validate(); err != nil {
			errs = append(errs, err)
		}
		if seen[ep.Name] {
			errs = append(errs, fmt.Errorf("tools: duplicate endpoint %q", ep.Name))
		}
		seen[ep.Name] = true
	}
	return errors.Join(errs...)
}
