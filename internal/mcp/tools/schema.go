package tools

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// InputSchema returns the JSON Schema for the endpoint's arguments. A fresh
// schema is built on every call.
func (e Endpoint) InputSchema() *jsonschema.Schema {
	s := &jsonschema.Schema{
		Type:       "object",
		Properties: make(map[string]*jsonschema.Schema, len(e.Params)+1),
	}
	for _, p := range e.Params {
		ps := &jsonschema.Schema{
			Type:        string(p.Type),
			Description: p.Description,
		}
		if p.Default != nil {
			if raw, err := json.Marshal(p.Default); err == nil {
				ps.Default = raw
			}
		}
		for _, v := range p.Enum {
			ps.Enum = append(ps.Enum, v)
		}
		s.Properties[p.Name] = ps
		if p.Required {
			s.Required = append(s.Required, p.Name)
		}
	}
	if e.Pageable() {
		s.Properties[StartParam] = &jsonschema.Schema{
			Type: string(TypeInteger),
			Description: "Optional zero-based index of the first item to return. " +
				"When given, the result is a page envelope with items, start, count, " +
				"totalCount, hasMore and nextStart; pass nextStart to continue.",
		}
	}
	return s
}

// ParseArgs converts textual key=value arguments (as typed on a command
// line) into typed values according to the endpoint's parameter types.
// Unknown keys are passed through as strings and rejected later by schema
// validation if they do not fit.
func ParseArgs(e Endpoint, kv map[string]string) (map[string]any, error) {
	args := make(map[string]any, len(kv))
	for k, v := range kv {
		typ := TypeString
		if p, ok := e.Param(k); ok {
			typ = p.Type
		} else if k == StartParam && e.Pageable() {
			typ = TypeInteger
		}
		if typ == TypeInteger {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return nil, &ArgumentError{
					Tool:    e.Name,
					Param:   k,
					Message: fmt.Sprintf("Invalid value for %s: %q is not an integer", k, v),
				}
			}
			args[k] = float64(n)
			continue
		}
		args[k] = v
	}
	return args, nil
}
