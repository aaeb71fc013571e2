package configmap

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// YAML tag extensions recognized by the loader. `!delete` decodes to
// the DELETE tombstone, `!replace` wraps its value in a Replace.
const (
	tagDelete  = "!delete"
	tagReplace = "!replace"
)

// Position is a source location recorded by the line-tracking loader.
type Position struct {
	Line   int
	Column int
}

// LineMap maps dotted key paths to their source position, for use in
// provenance-aware config display.
type LineMap map[string]Position

// DecodeYAML parses a YAML document into a layer mapping, honoring the
// !delete and !replace tags. An empty document yields an empty layer.
// A non-mapping top level is an error.
func DecodeYAML(data []byte) (map[string]any, error) {
	layer, _, err := decodeYAML(data, false)
	return layer, err
}

// DecodeYAMLWithLines is DecodeYAML plus a LineMap recording the source
// line and column of every key path.
func DecodeYAMLWithLines(data []byte) (map[string]any, LineMap, error) {
	return decodeYAML(data, true)
}

func decodeYAML(data []byte, trackLines bool) (map[string]any, LineMap, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, nil, fmt.Errorf("invalid YAML: %w", err)
	}

	if root.Kind == 0 || len(root.Content) == 0 {
		return map[string]any{}, LineMap{}, nil
	}

	var lines LineMap
	if trackLines {
		lines = make(LineMap)
	}

	doc := root.Content[0]
	value, err := decodeNode(doc, nil, lines, make(map[*yaml.Node]bool))
	if err != nil {
		return nil, nil, err
	}

	layer, ok := value.(map[string]any)
	if !ok {
		return nil, nil, fmt.Errorf("top-level YAML value must be a mapping, got %T", value)
	}
	return layer, lines, nil
}

func decodeNode(n *yaml.Node, path []string, lines LineMap, seen map[*yaml.Node]bool) (any, error) {
	if seen[n] {
		return nil, fmt.Errorf("recursive YAML alias at line %d", n.Line)
	}
	seen[n] = true
	defer delete(seen, n)

	switch n.Tag {
	case tagDelete:
		return Delete, nil
	case tagReplace:
		inner, err := decodeUntagged(n, path, lines, seen)
		if err != nil {
			return nil, err
		}
		return Replace{Value: inner}, nil
	}

	return decodeUntagged(n, path, lines, seen)
}

func decodeUntagged(n *yaml.Node, path []string, lines LineMap, seen map[*yaml.Node]bool) (any, error) {
	switch n.Kind {
	case yaml.AliasNode:
		return decodeNode(n.Alias, path, lines, seen)

	case yaml.MappingNode:
		out := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			keyNode, valNode := n.Content[i], n.Content[i+1]
			var key string
			if err := keyNode.Decode(&key); err != nil {
				return nil, fmt.Errorf("mapping key at line %d: %w", keyNode.Line, err)
			}
			childPath := append(append([]string(nil), path...), key)
			if lines != nil {
				lines[strings.Join(childPath, ".")] = Position{Line: keyNode.Line, Column: keyNode.Column}
			}
			value, err := decodeNode(valNode, childPath, lines, seen)
			if err != nil {
				return nil, err
			}
			out[key] = value
		}
		return out, nil

	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, item := range n.Content {
			value, err := decodeNode(item, path, lines, seen)
			if err != nil {
				return nil, err
			}
			out = append(out, value)
		}
		return out, nil

	case yaml.ScalarNode:
		plain := *n
		plain.Tag = ""
		plain.Style = 0
		var value any
		if err := plain.Decode(&value); err != nil {
			return nil, fmt.Errorf("scalar at line %d: %w", n.Line, err)
		}
		return value, nil

	default:
		return nil, fmt.Errorf("unsupported YAML node kind %d at line %d", n.Kind, n.Line)
	}
}
