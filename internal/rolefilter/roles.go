package rolefilter

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"playbookctl/internal/core"
)

// RoleDefinition is one entry of the source requirements list.
type RoleDefinition struct {
	Name string

	// ActivationPrefix is nil when the entry never activates.
	ActivationPrefix *string

	// node is the original mapping, re-emitted verbatim (key order kept)
	// when the requirements file is rewritten.
	node *yaml.Node
}

// EnabledBy reports whether any variable name activates the role.
func (d RoleDefinition) EnabledBy(vars VariableNames) bool {
	if d.ActivationPrefix == nil {
		return false
	}
	prefix := *d.ActivationPrefix
	if prefix == "" {
		return true
	}
	for name := range vars {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// VariableNames is the union of top-level keys across vars files.
type VariableNames map[string]struct{}

// LoadVariableNames reads every vars file and collects its top-level keys.
// An empty file contributes nothing; anything other than a mapping is a
// ValidationError.
func LoadVariableNames(paths []string) (VariableNames, error) {
	names := VariableNames{}
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, &core.IOError{Op: "read vars", Path: p, Err: err}
		}
		var doc yaml.Node
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, core.Validationf("vars file %s: %v", p, err)
		}
		root := documentRoot(&doc)
		if root == nil || isNull(root) {
			continue
		}
		if root.Kind != yaml.MappingNode {
			return nil, core.Validationf("vars file %s did not parse to a YAML mapping", p)
		}
		for i := 0; i+1 < len(root.Content); i += 2 {
			names[root.Content[i].Value] = struct{}{}
		}
	}
	return names, nil
}

// LoadRoleDefinitions parses the source requirements file: a YAML list of
// mappings, each with a name.
func LoadRoleDefinitions(path string) ([]RoleDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &core.IOError{Op: "read requirements", Path: path, Err: err}
	}
	return ParseRoleDefinitions(path, data)
}

// ParseRoleDefinitions is LoadRoleDefinitions over an in-memory buffer;
// source names the buffer in errors.
func ParseRoleDefinitions(source string, data []byte) ([]RoleDefinition, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, core.Validationf("requirements %s: %v", source, err)
	}
	root := documentRoot(&doc)
	if root == nil || isNull(root) {
		return nil, core.Validationf("requirements %s parsed as empty", source)
	}
	if root.Kind != yaml.SequenceNode {
		return nil, core.Validationf("requirements %s must be a YAML list", source)
	}

	defs := make([]RoleDefinition, 0, len(root.Content))
	for i, item := range root.Content {
		if item.Kind != yaml.MappingNode {
			return nil, core.Validationf("requirements %s: entry %d must be a mapping", source, i+1)
		}
		def := RoleDefinition{node: item}
		hasName := false
		for j := 0; j+1 < len(item.Content); j += 2 {
			key, value := item.Content[j], item.Content[j+1]
			switch key.Value {
			case "name":
				def.Name = value.Value
				hasName = true
			case "activation_prefix":
				if !isNull(value) {
					prefix := value.Value
					def.ActivationPrefix = &prefix
				}
			}
		}
		if !hasName {
			return nil, core.Validationf("requirements %s: entry %d (line %d) has no name", source, i+1, item.Line)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// RoleSets splits definitions into the known and enabled name sets.
type RoleSets struct {
	Known   map[string]struct{}
	Enabled map[string]struct{}
}

// Resolve computes which definitions the variable names enable.
func Resolve(defs []RoleDefinition, vars VariableNames) ([]RoleDefinition, RoleSets) {
	sets := RoleSets{
		Known:   make(map[string]struct{}, len(defs)),
		Enabled: map[string]struct{}{},
	}
	var enabled []RoleDefinition
	for _, d := range defs {
		sets.Known[d.Name] = struct{}{}
		if d.EnabledBy(vars) {
			sets.Enabled[d.Name] = struct{}{}
			enabled = append(enabled, d)
		}
	}
	return enabled, sets
}

// EncodeRoleDefinitions renders definitions as a YAML list, keeping each
// entry's original key order.
func EncodeRoleDefinitions(defs []RoleDefinition) ([]byte, error) {
	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, d := range defs {
		if d.node == nil {
			return nil, fmt.Errorf("role %s has no source node", d.Name)
		}
		seq.Content = append(seq.Content, d.node)
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(seq); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func documentRoot(doc *yaml.Node) *yaml.Node {
	if doc.Kind == 0 {
		return nil
	}
	if doc.Kind == yaml.DocumentNode {
		if len(doc.Content) == 0 {
			return nil
		}
		return doc.Content[0]
	}
	return doc
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.Tag == "!!null"
}
