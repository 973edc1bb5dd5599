package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"playbookctl/internal/core"
	"playbookctl/internal/workspace"
)

var roleArgHelp = strings.Join(append(append([]string(nil), core.KnownRoles...), workspace.RoleAll), "|")

func (a *app) reconcileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile [" + roleArgHelp + "]",
		Short: "Seed missing generated files from their templates and record provenance",
		Long: `Seeds each selected generated file from its template if the file does not
exist yet. Existing files are never overwritten. The template's digest is
recorded as the file's provenance either way.`,
		Args: maximumArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			role := workspace.RoleAll
			if len(args) == 1 {
				role = args[0]
			}
			return a.mutate(func(ws *workspace.Workspace) error {
				outcomes, err := ws.Reconcile(role)
				for _, out := range outcomes {
					fmt.Fprintf(a.stdout, "%-8s %s\n", out.Action, out.Pair.Destination)
				}
				return err
			})
		},
	}
}

func (a *app) saveHashCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "save-hash <" + strings.Join(core.KnownRoles, "|") + ">",
		Short: "Record a template's digest as provenance without touching the generated file",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.mutate(func(ws *workspace.Workspace) error {
				digest, err := ws.SaveHash(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "%s  %s\n", digest, args[0])
				return nil
			})
		},
	}
}

func (a *app) cleanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clean-template-derived",
		Short: "Delete the generated files, their provenance and the saved optimization",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.mutate(func(ws *workspace.Workspace) error {
				return ws.Optimizer.CleanTemplateDerived()
			})
		},
	}
}
