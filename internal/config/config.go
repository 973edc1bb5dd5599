// Package config loads playbookctl.toml and applies environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"

	"playbookctl/internal/core"
)

// FileName is the config file looked up in the project directory.
const FileName = "playbookctl.toml"

// Environment overrides.
const (
	EnvProjectDir  = "PLAYBOOKCTL_PROJECT_DIR"
	EnvRunDir      = "PLAYBOOKCTL_RUN_DIR"
	EnvTransformer = "PLAYBOOKCTL_TRANSFORMER"
)

// Transformer kinds.
const (
	TransformerExternal = "external"
	TransformerBuiltin  = "builtin"
)

// Config is the resolved project configuration. Relative paths are relative
// to ProjectDir.
type Config struct {
	ProjectDir   string      `toml:"project_dir"`
	RunDir       string      `toml:"run_dir" validate:"required"`
	InventoryDir string      `toml:"inventory_dir" validate:"required"`
	Generated    []Generated `toml:"generated" validate:"required,unique=Name,dive"`
	Transformer  Transformer `toml:"transformer"`
	Ansible      Ansible     `toml:"ansible"`
}

// Generated is one template -> destination pair.
type Generated struct {
	Name        string `toml:"name" validate:"required,oneof=requirements setup group-vars"`
	Template    string `toml:"template" validate:"required"`
	Destination string `toml:"destination" validate:"required,nefield=Template"`
}

type Transformer struct {
	Kind              string   `toml:"kind" validate:"oneof=external builtin"`
	Command           string   `toml:"command" validate:"required_if=Kind external"`
	Args              []string `toml:"args"`
	WriteRequirements bool     `toml:"write_requirements"`
}

type Ansible struct {
	PlaybookBin string `toml:"playbook_bin" validate:"required"`
	GalaxyBin   string `toml:"galaxy_bin" validate:"required"`
	RolesPath   string `toml:"roles_path" validate:"required"`
	HostsFile   string `toml:"hosts_file" validate:"required"`

	InstallAllTags []string `toml:"install_all_tags" validate:"min=1"`
	SetupAllTags   []string `toml:"setup_all_tags" validate:"min=1"`
}

// Default returns the layout of a stock playbook checkout.
func Default() Config {
	return Config{
		RunDir:       "var",
		InventoryDir: "inventory",
		Generated: []Generated{
			{Name: core.RoleRequirements, Template: "templates/requirements.yml", Destination: "requirements.yml"},
			{Name: core.RoleSetup, Template: "templates/setup.yml", Destination: "setup.yml"},
			{Name: core.RoleGroupVars, Template: "templates/group_vars_mash_servers", Destination: "inventory/group_vars/mash_servers"},
		},
		Transformer: Transformer{
			Kind:    TransformerExternal,
			Command: "bin/optimize.py",
		},
		Ansible: Ansible{
			PlaybookBin:    "ansible-playbook",
			GalaxyBin:      "ansible-galaxy",
			RolesPath:      "roles/galaxy/",
			HostsFile:      "inventory/hosts",
			InstallAllTags: []string{"install-all", "start"},
			SetupAllTags:   []string{"setup-all", "start"},
		},
	}
}

// LoadOptions controls Load.
type LoadOptions struct {
	// ProjectDir is used when neither the file nor the environment name one.
	ProjectDir string

	// Path is the config file. When empty, <ProjectDir>/playbookctl.toml is
	// used if it exists.
	Path string

	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

// Load builds a Config from defaults, the optional file, and the
// environment, in that order, then validates it. ProjectDir is returned
// absolute.
func Load(opts LoadOptions) (Config, error) {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg := Default()
	cfg.ProjectDir = opts.ProjectDir
	if v := strings.TrimSpace(getenv(EnvProjectDir)); v != "" && opts.ProjectDir == "" {
		cfg.ProjectDir = v
	}
	if cfg.ProjectDir == "" {
		cfg.ProjectDir = "."
	}

	path := opts.Path
	explicit := path != ""
	if !explicit {
		path = filepath.Join(cfg.ProjectDir, FileName)
	}
	if err := applyFile(&cfg, path, explicit); err != nil {
		return Config{}, err
	}

	if v := strings.TrimSpace(getenv(EnvRunDir)); v != "" {
		cfg.RunDir = v
	}
	if v := strings.TrimSpace(getenv(EnvTransformer)); v != "" {
		cfg.Transformer.Kind = v
	}

	abs, err := filepath.Abs(cfg.ProjectDir)
	if err != nil {
		return Config{}, &core.IOError{Op: "resolve project dir", Path: cfg.ProjectDir, Err: err}
	}
	cfg.ProjectDir = abs

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string, explicit bool) error {
	var raw Config
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil
		}
		if errors.Is(err, fs.ErrNotExist) {
			return &core.NotFoundError{What: "config file", Path: path}
		}
		return core.Validationf("load config %s: %v", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return core.Validationf("config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}

	if meta.IsDefined("project_dir") {
		dir := strings.TrimSpace(raw.ProjectDir)
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(filepath.Dir(path), dir)
		}
		cfg.ProjectDir = dir
	}
	if meta.IsDefined("run_dir") {
		cfg.RunDir = strings.TrimSpace(raw.RunDir)
	}
	if meta.IsDefined("inventory_dir") {
		cfg.InventoryDir = strings.TrimSpace(raw.InventoryDir)
	}
	if meta.IsDefined("generated") {
		cfg.Generated = raw.Generated
	}

	if meta.IsDefined("transformer", "kind") {
		cfg.Transformer.Kind = strings.TrimSpace(raw.Transformer.Kind)
	}
	if meta.IsDefined("transformer", "command") {
		cfg.Transformer.Command = strings.TrimSpace(raw.Transformer.Command)
	}
	if meta.IsDefined("transformer", "args") {
		cfg.Transformer.Args = raw.Transformer.Args
	}
	if meta.IsDefined("transformer", "write_requirements") {
		cfg.Transformer.WriteRequirements = raw.Transformer.WriteRequirements
	}

	if meta.IsDefined("ansible", "playbook_bin") {
		cfg.Ansible.PlaybookBin = strings.TrimSpace(raw.Ansible.PlaybookBin)
	}
	if meta.IsDefined("ansible", "galaxy_bin") {
		cfg.Ansible.GalaxyBin = strings.TrimSpace(raw.Ansible.GalaxyBin)
	}
	if meta.IsDefined("ansible", "roles_path") {
		cfg.Ansible.RolesPath = strings.TrimSpace(raw.Ansible.RolesPath)
	}
	if meta.IsDefined("ansible", "hosts_file") {
		cfg.Ansible.HostsFile = strings.TrimSpace(raw.Ansible.HostsFile)
	}
	if meta.IsDefined("ansible", "install_all_tags") {
		cfg.Ansible.InstallAllTags = raw.Ansible.InstallAllTags
	}
	if meta.IsDefined("ansible", "setup_all_tags") {
		cfg.Ansible.SetupAllTags = raw.Ansible.SetupAllTags
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct constraints, then that every known generated file
// is configured exactly once.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return core.Validationf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return core.Validationf("invalid config: %v", err)
	}

	seen := make(map[string]bool, len(c.Generated))
	for _, g := range c.Generated {
		seen[g.Name] = true
	}
	for _, role := range core.KnownRoles {
		if !seen[role] {
			return core.Validationf("invalid config: generated file %q is not configured", role)
		}
	}
	return nil
}

// Abs resolves p against ProjectDir.
func (c Config) Abs(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(c.ProjectDir, p)
}

// Pairs returns the generated files with absolute paths, in KnownRoles order.
func (c Config) Pairs() core.PairSet {
	byName := make(map[string]Generated, len(c.Generated))
	for _, g := range c.Generated {
		byName[g.Name] = g
	}
	pairs := make(core.PairSet, 0, len(core.KnownRoles))
	for _, role := range core.KnownRoles {
		g, ok := byName[role]
		if !ok {
			continue
		}
		pairs = append(pairs, core.TemplatePair{
			Role:        role,
			Template:    c.Abs(g.Template),
			Destination: c.Abs(g.Destination),
		})
	}
	return pairs
}
