package cli

import (
	"github.com/spf13/cobra"

	"playbookctl/internal/config"
	"playbookctl/internal/workspace"
)

func (a *app) rolesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "roles",
		Short: "Prepare generated files and install galaxy roles from requirements.yml",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.mutate(func(ws *workspace.Workspace) error {
				return ws.InstallRoles(a.contextOf(cmd))
			})
		},
	}
}

func (a *app) runCommand() *cobra.Command {
	var tags []string
	cmd := &cobra.Command{
		Use:   "run [--tags TAG,...] [-- ANSIBLE_ARGS...]",
		Short: "Prepare generated files and run ansible-playbook on setup.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.mutate(func(ws *workspace.Workspace) error {
				return ws.RunPlaybook(a.contextOf(cmd), workspace.PlaybookOptions{Tags: tags, Extra: args})
			})
		},
	}
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "playbook tags to run")
	return cmd
}

func (a *app) tagShorthandCommand(name, short string, tags func(config.Config) []string) *cobra.Command {
	return &cobra.Command{
		Use:   name + " [-- ANSIBLE_ARGS...]",
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.mutate(func(ws *workspace.Workspace) error {
				return ws.RunPlaybook(a.contextOf(cmd), workspace.PlaybookOptions{Tags: tags(ws.Config), Extra: args})
			})
		},
	}
}
