package tools

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// suggestThreshold is the minimum Jaro-Winkler score for a name to be offered
// as a correction.
const suggestThreshold = 0.85

// Closest returns the endpoint name most similar to name, for "did you mean"
// hints on unknown tool names. ok is false when nothing scores at least
// suggestThreshold. Ties go to the earlier endpoint.
func Closest(name string, eps []Endpoint) (string, bool) {
	in := strings.ToLower(strings.TrimSpace(name))
	if in == "" {
		return "", false
	}
	var best string
	bestScore := 0.0
	for _, ep := range eps {
		if s := matchr.JaroWinkler(in, ep.Name, false); s > bestScore {
			best, bestScore = ep.Name, s
		}
	}
	if bestScore < suggestThreshold {
		return "", false
	}
	return best, true
}

// DescribeUnknown renders an unknown tool name with a suggestion appended
// when one exists, e.g. `get_stok_history (did you mean "get_stock_history"?)`.
func DescribeUnknown(name string, eps []Endpoint) string {
	if s, ok := Closest(name, eps); ok {
		return name + ` (did you mean "` + s + `"?)`
	}
	return name
}
