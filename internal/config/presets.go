package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dunamismax/pixelvault/internal/domain"
)

// LoadPresets reads a YAML document mapping preset names to their entries.
//
//	thumb:
//	  - maxSize            # positional, inherits the request params
//	  - compress: {level: 70}
//	avatar:
//	  crop: {mode: center}
//	  desaturate: ~
//
// A sequence may mix positional scalars with keyed mappings. A mapping lists
// keyed entries in document order.
func LoadPresets(path string) (map[string]domain.Preset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read presets %s: %w", path, err)
	}
	presets, err := ParsePresets(raw)
	if err != nil {
		return nil, fmt.Errorf("presets %s: %w", path, err)
	}
	return presets, nil
}

func ParsePresets(raw []byte) (map[string]domain.Preset, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	out := map[string]domain.Preset{}
	if len(doc.Content) == 0 {
		return out, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: presets must be a mapping of name to entries", root.Line)
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		name := root.Content[i].Value
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("line %d: duplicate preset %q", root.Content[i].Line, name)
		}
		preset, err := parsePreset(root.Content[i+1])
		if err != nil {
			return nil, fmt.Errorf("preset %q: %w", name, err)
		}
		out[name] = preset
	}
	return out, nil
}

func parsePreset(node *yaml.Node) (domain.Preset, error) {
	switch node.Kind {
	case yaml.SequenceNode:
		var preset domain.Preset
		for _, item := range node.Content {
			switch item.Kind {
			case yaml.ScalarNode:
				preset = append(preset, domain.Positional(item.Value))
			case yaml.MappingNode:
				entries, err := keyedEntries(item)
				if err != nil {
					return nil, err
				}
				preset = append(preset, entries...)
			default:
				return nil, fmt.Errorf("line %d: entry must be a name or a name: params mapping", item.Line)
			}
		}
		return preset, nil
	case yaml.MappingNode:
		return keyedEntries(node)
	default:
		return nil, fmt.Errorf("line %d: entries must be a sequence or a mapping", node.Line)
	}
}

func keyedEntries(node *yaml.Node) (domain.Preset, error) {
	var preset domain.Preset
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		value := node.Content[i+1]

		params := domain.Params{}
		switch {
		case value.Kind == yaml.ScalarNode && value.Tag == "!!null":
		case value.Kind == yaml.MappingNode:
			if err := value.Decode(&params); err != nil {
				return nil, fmt.Errorf("line %d: %s params: %w", value.Line, name, err)
			}
		default:
			return nil, fmt.Errorf("line %d: %s params must be a mapping", value.Line, name)
		}
		preset = append(preset, domain.Keyed(name, params))
	}
	return preset, nil
}
