// Package inventory discovers per-host variable files in an Ansible
// inventory tree.
package inventory

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"playbookctl/internal/core"
)

const (
	HostVarsDir  = "host_vars"
	VarsFileName = "vars.yml"
)

// Resolver maps an inventory root to canonical vars.yml paths.
//
// Discovery is exactly one host-directory level deep:
//
//	<root>/host_vars/<host>/vars.yml
//
// and every returned path is absolute with symlinks resolved, sorted
// lexicographically so repeated scans of an unchanged tree agree.
type Resolver struct {
	// Root is the inventory directory.
	Root string
}

func NewResolver(root string) *Resolver {
	return &Resolver{Root: root}
}

// HostVarsPath is where the vars file of hostname would live.
func (r *Resolver) HostVarsPath(hostname string) string {
	return filepath.Join(r.Root, HostVarsDir, hostname, VarsFileName)
}

// AllHosts returns the vars file of every host that has one. An inventory
// without host_vars yields an empty result.
func (r *Resolver) AllHosts() ([]string, error) {
	pattern := filepath.Join(r.Root, HostVarsDir, "*", VarsFileName)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid host_vars pattern %q: %w", pattern, err)
	}

	seen := make(map[string]struct{}, len(matches))
	paths := make([]string, 0, len(matches))
	for _, m := range matches {
		canonical, isFile, err := canonicalize(m)
		if err != nil {
			return nil, err
		}
		if !isFile {
			continue
		}
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}
		paths = append(paths, canonical)
	}
	sort.Strings(paths)
	return paths, nil
}

// Host returns the vars file of one host as a zero-or-one element set;
// a missing file is a NotFoundError.
func (r *Resolver) Host(hostname string) ([]string, error) {
	if err := validateHostname(hostname); err != nil {
		return nil, err
	}
	path := r.HostVarsPath(hostname)
	canonical, isFile, err := canonicalize(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &core.NotFoundError{What: fmt.Sprintf("host vars for %s", hostname), Path: path}
		}
		return nil, err
	}
	if !isFile {
		return nil, &core.NotFoundError{What: fmt.Sprintf("host vars for %s", hostname), Path: path}
	}
	return []string{canonical}, nil
}

// Hosts lists the host names that AllHosts would return paths for.
func (r *Resolver) Hosts() ([]string, error) {
	paths, err := r.AllHosts()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(paths))
	for _, p := range paths {
		names = append(names, filepath.Base(filepath.Dir(p)))
	}
	sort.Strings(names)
	return names, nil
}

func canonicalize(path string) (string, bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false, &core.IOError{Op: "resolve", Path: path, Err: err}
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, err
		}
		return "", false, &core.IOError{Op: "resolve", Path: abs, Err: err}
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", false, &core.IOError{Op: "stat", Path: resolved, Err: err}
	}
	return resolved, info.Mode().IsRegular(), nil
}

func validateHostname(hostname string) error {
	h := strings.TrimSpace(hostname)
	if h == "" {
		return core.Validationf("hostname is required")
	}
	if h != hostname || strings.ContainsAny(h, `/\`) || h == "." || h == ".." {
		return core.Validationf("invalid hostname %q", hostname)
	}
	return nil
}
