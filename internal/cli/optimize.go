package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"playbookctl/internal/optimize"
	"playbookctl/internal/workspace"
)

type optimizeOptions struct {
	all       bool
	host      string
	varsPaths []string
}

func (a *app) optimizeCommand() *cobra.Command {
	var opts optimizeOptions
	cmd := &cobra.Command{
		Use:   "optimize (--all | --host HOST | --vars-paths PATH...)",
		Short: "Trim the generated files to the roles enabled by host vars",
		Long: `Saves the selected vars files as the optimization state, records template
provenance for every generated file, and runs the optimizer over them.

If the optimizer fails the saved state is kept; fix the cause and run
"playbookctl optimize restore" to retry with the same vars files.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.validate(); err != nil {
				return err
			}
			return a.mutate(func(ws *workspace.Workspace) error {
				paths, err := opts.resolve(ws)
				if err != nil {
					return err
				}
				out, err := ws.Optimizer.RunOptimizationFor(a.contextOf(cmd), paths)
				if err != nil {
					return err
				}
				return a.reportOutcome(out)
			})
		},
	}
	f := cmd.Flags()
	f.BoolVar(&opts.all, "all", false, "use the vars file of every host in the inventory")
	f.StringVar(&opts.host, "host", "", "use the vars file of one host")
	f.StringArrayVar(&opts.varsPaths, "vars-paths", nil, "explicit vars files (repeatable; whitespace-separated lists are split)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "restore",
			Short: "Re-run the last optimization with its saved vars files",
			Args:  noArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.mutate(func(ws *workspace.Workspace) error {
					out, err := ws.Optimizer.Replay(a.contextOf(cmd))
					if err != nil {
						return err
					}
					return a.reportOutcome(out)
				})
			},
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Forget the saved optimization and delete the generated files and their provenance",
			Args:  noArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.mutate(func(ws *workspace.Workspace) error {
					return ws.Optimizer.Reset()
				})
			},
		},
	)
	return cmd
}

func (o optimizeOptions) validate() error {
	selected := 0
	if o.all {
		selected++
	}
	if strings.TrimSpace(o.host) != "" {
		selected++
	}
	if len(o.varsPaths) > 0 {
		selected++
	}
	if selected != 1 {
		return invalidInvocationf("exactly one of --all, --host or --vars-paths is required")
	}
	return nil
}

func (o optimizeOptions) resolve(ws *workspace.Workspace) ([]string, error) {
	switch {
	case o.all:
		return optimize.ComputeForAllHosts(ws.InventoryDir)
	case o.host != "":
		return optimize.ComputeForHost(ws.InventoryDir, strings.TrimSpace(o.host))
	}
	var paths []string
	for _, raw := range o.varsPaths {
		for _, p := range strings.Fields(raw) {
			abs, err := filepath.Abs(p)
			if err != nil {
				return nil, invalidInvocationf("resolve %q: %v", p, err)
			}
			paths = append(paths, abs)
		}
	}
	return paths, nil
}

func (a *app) reportOutcome(out optimize.Outcome) error {
	if err := out.Err(); err != nil {
		return fmt.Errorf("optimization failed, saved state kept for \"optimize restore\": %w", err)
	}
	a.logger.Info("optimization finished", zap.Int("vars_files", len(out.Paths)))
	fmt.Fprintf(a.stdout, "optimized using %d vars file(s)\n", len(out.Paths))
	return nil
}
