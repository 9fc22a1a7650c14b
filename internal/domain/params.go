package domain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cast"
)

// Params holds transformation arguments. Values arrive either typed (JSON,
// YAML) or as strings (query syntax), so reads go through the coercing
// accessors below.
type Params map[string]any

// Has reports whether key is set to something other than nil or "".
func (p Params) Has(key string) bool {
	v, ok := p[key]
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
		return false
	}
	return true
}

func (p Params) Int(key string, fallback int) (int, error) {
	if !p.Has(key) {
		return fallback, nil
	}
	if s, ok := p[key].(string); ok {
		f, err := cast.ToFloat64E(strings.TrimSpace(s))
		if err != nil {
			return 0, fmt.Errorf("param %q: %w", key, err)
		}
		return int(f), nil
	}
	v, err := cast.ToIntE(p[key])
	if err != nil {
		return 0, fmt.Errorf("param %q: %w", key, err)
	}
	return v, nil
}

func (p Params) Float(key string, fallback float64) (float64, error) {
	if !p.Has(key) {
		return fallback, nil
	}
	v, err := cast.ToFloat64E(p[key])
	if err != nil {
		return 0, fmt.Errorf("param %q: %w", key, err)
	}
	return v, nil
}

func (p Params) String(key, fallback string) string {
	if !p.Has(key) {
		return fallback
	}
	return strings.TrimSpace(cast.ToString(p[key]))
}

// Clone is shallow; values are treated as immutable scalars.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Keys returns the param names in lexical order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
