package rolefilter

import (
	"os"
	"regexp"
	"sort"
	"strings"

	"playbookctl/internal/core"
)

var (
	blockStart = regexp.MustCompile(`^\s*#\s*role-specific:\s*(\S+)$`)
	blockEnd   = regexp.MustCompile(`^\s*#\s*/role-specific:\s*(\S+)$`)
)

// maxBlankRun is the longest run of blank lines kept in filtered output.
const maxBlankRun = 2

// FilterFile reads path and filters it; see Filter.
func FilterFile(path string, sets RoleSets) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &core.IOError{Op: "read", Path: path, Err: err}
	}
	return Filter(path, string(data), sets)
}

// Filter drops the role-specific blocks of disabled roles from contents.
//
// Unknown role names, closers without an opener, closers that do not match
// the innermost opener, and unclosed blocks are ValidationErrors naming
// source and the 1-based line.
func Filter(source, contents string, sets RoleSets) (string, error) {
	var stack []string
	out := make([]string, 0, strings.Count(contents, "\n")+1)
	blankRun := 0

	for i, line := range strings.Split(contents, "\n") {
		lineNo := i + 1

		if m := blockStart.FindStringSubmatch(line); m != nil {
			role := m[1]
			if _, ok := sets.Known[role]; !ok {
				return "", core.Validationf("found start block for role %s on line %d in file %s, but it is not a known role name found among: %s",
					role, lineNo, source, knownList(sets))
			}
			stack = append(stack, role)
			continue
		}

		if m := blockEnd.FindStringSubmatch(line); m != nil {
			role := m[1]
			if _, ok := sets.Known[role]; !ok {
				return "", core.Validationf("found end block for role %s on line %d in file %s, but it is not a known role name found among: %s",
					role, lineNo, source, knownList(sets))
			}
			if len(stack) == 0 {
				return "", core.Validationf("found end block for role %s on line %d in file %s, but there is no opening statement for it",
					role, lineNo, source)
			}
			if last := stack[len(stack)-1]; last != role {
				return "", core.Validationf("found end block for role %s on line %d in file %s, but the last starting block was for role %s",
					role, lineNo, source, last)
			}
			stack = stack[:len(stack)-1]
			continue
		}

		if !allEnabled(stack, sets) {
			continue
		}

		if line == "" {
			if blankRun < maxBlankRun {
				out = append(out, line)
				blankRun++
			}
			continue
		}
		out = append(out, line)
		blankRun = 0
	}

	if len(stack) != 0 {
		return "", core.Validationf("expected closing block for role-specific tags in file %s: %v", source, stack)
	}
	return strings.Join(out, "\n"), nil
}

func allEnabled(stack []string, sets RoleSets) bool {
	for _, role := range stack {
		if _, ok := sets.Enabled[role]; !ok {
			return false
		}
	}
	return true
}

func knownList(sets RoleSets) string {
	names := make([]string, 0, len(sets.Known))
	for n := range sets.Known {
		names = append(names, n)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
