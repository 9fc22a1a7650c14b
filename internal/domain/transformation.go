package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dunamismax/pixelvault/internal/apperrors"
)

// Transformation is one entry of a request's ordered chain.
type Transformation struct {
	Name   string `json:"name"`
	Params Params `json:"params,omitempty"`
}

// ParseTransformation reads the query form "name:key=value,key=value".
// Values stay strings; Params accessors coerce them on read.
func ParseTransformation(raw string) (Transformation, error) {
	raw = strings.TrimSpace(raw)
	name, args, hasArgs := strings.Cut(raw, ":")
	name = strings.TrimSpace(name)
	if name == "" {
		return Transformation{}, apperrors.New(apperrors.CategoryUnknownTransformation, "parse transformation", errors.New("missing transformation name"))
	}

	t := Transformation{Name: name, Params: Params{}}
	if !hasArgs || strings.TrimSpace(args) == "" {
		return t, nil
	}

	for _, pair := range strings.Split(args, ",") {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return Transformation{}, apperrors.Errorf(
				apperrors.CategoryUnknownTransformation,
				"parse transformation",
				"malformed argument %q in %q", pair, raw,
			)
		}
		t.Params[key] = strings.TrimSpace(value)
	}
	return t, nil
}

func ParseTransformations(raw []string) ([]Transformation, error) {
	out := make([]Transformation, 0, len(raw))
	for i, item := range raw {
		t, err := ParseTransformation(item)
		if err != nil {
			return nil, fmt.Errorf("transformation[%d]: %w", i, err)
		}
		out = append(out, t)
	}
	return out, nil
}

func (t Transformation) String() string {
	if len(t.Params) == 0 {
		return t.Name
	}
	parts := make([]string, 0, len(t.Params))
	for _, key := range t.Params.Keys() {
		parts = append(parts, fmt.Sprintf("%s=%v", key, t.Params[key]))
	}
	return t.Name + ":" + strings.Join(parts, ",")
}

// CloneChain copies entries and their params so in-place rescaling never
// leaks into the caller's slice.
func CloneChain(chain []Transformation) []Transformation {
	if chain == nil {
		return nil
	}
	out := make([]Transformation, len(chain))
	for i, t := range chain {
		out[i] = Transformation{Name: t.Name, Params: t.Params.Clone()}
	}
	return out
}
