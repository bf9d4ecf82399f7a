package config

import (
	"strings"
)

const pathSeparator = "."

// Document is the raw configuration tree as read from YAML. Keys are
// addressed by dot-joined paths such as "model.params.max_depth".
type Document map[string]any

// Get resolves path by descending the nested mappings. A missing key or a
// non-mapping intermediate yields def. Values keep the type they were
// decoded with.
func (d Document) Get(path string, def any) any {
	if d == nil || path == "" {
		return def
	}

	var node any = map[string]any(d)
	for _, k := range strings.Split(path, pathSeparator) {
		m, ok := asMap(node)
		if !ok {
			return def
		}
		v, ok := m[k]
		if !ok {
			return def
		}
		node = v
	}
	return node
}

// Set assigns value at path, creating intermediate mappings as needed.
// A non-mapping intermediate is replaced by a mapping.
func (d Document) Set(path string, value any) {
	if d == nil || path == "" {
		return
	}

	keys := strings.Split(path, pathSeparator)
	m := map[string]any(d)
	for _, k := range keys[:len(keys)-1] {
		next, ok := asMap(m[k])
		if !ok {
			next = map[string]any{}
			m[k] = next
		}
		m = next
	}
	m[keys[len(keys)-1]] = value
}

func asMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case Document:
		return t, true
	default:
		return nil, false
	}
}
