package main

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/quillcode/quill/pkg/config"
	"github.com/quillcode/quill/pkg/configmap"
)

// ConfigCmd inspects the merged configuration.
type ConfigCmd struct {
	Show ConfigShowCmd `cmd:"" default:"withargs" help:"Print the merged configuration."`
}

type ConfigShowCmd struct {
	Provenance bool `help:"Annotate every value with the layer that supplied it."`
}

func (c *ConfigShowCmd) Run() error {
	settings, err := config.New()
	if err != nil {
		return err
	}

	if c.Provenance {
		return printProvenance(settings)
	}

	data, err := yaml.Marshal(settings.Map().ToMap())
	if err != nil {
		return err
	}
	fmt.Print(string(data))
	return nil
}

func printProvenance(settings *config.Settings) error {
	m := settings.Map()
	m.EnableProvenance(true)

	names := map[int]string{configmap.FrontIndex: "runtime"}
	for _, src := range settings.Sources() {
		label := string(src.Name)
		if src.Path != "" {
			label += " (" + src.Path + ")"
		}
		names[src.Index] = label
	}

	for _, key := range m.Keys() {
		tree, err := m.ProvenanceFor(key)
		if err != nil {
			continue
		}
		printProvenanceTree(key, tree, names)
	}
	return nil
}

func printProvenanceTree(path string, tree map[string]any, names map[int]string) {
	keys := make([]string, 0, len(tree))
	for k := range tree {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		childPath := path
		if k != "." {
			childPath = path + "." + k
		}
		switch v := tree[k].(type) {
		case map[string]any:
			printProvenanceTree(childPath, v, names)
		case int:
			fmt.Printf("%-50s %s\n", childPath, layerLabel(v, names))
		}
	}
}

func layerLabel(index int, names map[int]string) string {
	if name, ok := names[index]; ok {
		return name
	}
	return fmt.Sprintf("layer %d", index)
}
