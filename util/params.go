package util

import (
	"strings"

	"github.com/oliveagle/jsonpath"
)

// ResolveValue resolves an authored action value against the variable
// map. String values starting with "$" are jsonpath lookups into the
// variables; anything else is taken literally.
func ResolveValue(value any, vars map[string]any) any {
	s, ok := value.(string)
	if !ok || !strings.HasPrefix(s, "$") {
		return value
	}
	resolved, err := jsonpath.JsonPathLookup(map[string]any(vars), s)
	if err != nil {
		return value
	}
	return resolved
}
