package core

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Known generated-file roles.
const (
	RoleRequirements = "requirements"
	RoleSetup        = "setup"
	RoleGroupVars    = "group-vars"
)

// KnownRoles lists the generated files every project carries, in the order
// they are reconciled and cleaned.
var KnownRoles = []string{RoleRequirements, RoleSetup, RoleGroupVars}

// TemplatePair binds an immutable template to the destination it seeds.
//
// Template and Destination are absolute once a Layout has resolved them.
type TemplatePair struct {
	// Role is one of KnownRoles.
	Role string

	// Template is the source artifact; never written.
	Template string

	// Destination is the generated file; user-owned once it exists.
	Destination string
}

// LogicalName is the key of the pair's provenance record: the base name of
// the destination (e.g. "requirements.yml", "mash_servers").
func (p TemplatePair) LogicalName() string {
	return filepath.Base(p.Destination)
}

// Validate ensures the pair is well-formed.
func (p TemplatePair) Validate() error {
	if strings.TrimSpace(p.Role) == "" {
		return Validationf("template pair: role is required")
	}
	if strings.TrimSpace(p.Template) == "" {
		return Validationf("template pair %s: template path is required", p.Role)
	}
	if strings.TrimSpace(p.Destination) == "" {
		return Validationf("template pair %s: destination path is required", p.Role)
	}
	if filepath.Clean(p.Template) == filepath.Clean(p.Destination) {
		return Validationf("template pair %s: template and destination are the same file", p.Role)
	}
	return nil
}

func (p TemplatePair) String() string {
	return fmt.Sprintf("%s (%s -> %s)", p.Role, p.Template, p.Destination)
}

// PairSet is the fixed set of generated files for a project.
type PairSet []TemplatePair

// ByRole returns the pair with the given role.
func (s PairSet) ByRole(role string) (TemplatePair, bool) {
	for _, p := range s {
		if p.Role == role {
			return p, true
		}
	}
	return TemplatePair{}, false
}

// Roles returns the roles in set order.
func (s PairSet) Roles() []string {
	out := make([]string, 0, len(s))
	for _, p := range s {
		out = append(out, p.Role)
	}
	return out
}

// Validate checks every pair and requires each known role exactly once.
func (s PairSet) Validate() error {
	seen := make(map[string]bool, len(s))
	names := make(map[string]string, len(s))
	for _, p := range s {
		if err := p.Validate(); err != nil {
			return err
		}
		if seen[p.Role] {
			return Validationf("duplicate generated file role %q", p.Role)
		}
		seen[p.Role] = true
		if other, ok := names[p.LogicalName()]; ok {
			return Validationf("generated files %q and %q share the logical name %q", other, p.Role, p.LogicalName())
		}
		names[p.LogicalName()] = p.Role
	}
	for _, role := range KnownRoles {
		if !seen[role] {
			return Validationf("missing generated file role %q", role)
		}
	}
	return nil
}
