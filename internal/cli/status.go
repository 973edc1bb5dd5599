package cli

import (
	"github.com/spf13/cobra"

	"playbookctl/internal/watch"
	"playbookctl/internal/workspace"
)

func (a *app) statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show generated files, template drift and the optimization state",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := a.openWorkspace()
			if err != nil {
				return err
			}
			report, err := ws.Status()
			if err != nil {
				return err
			}
			return workspace.RenderStatus(a.stdout, report)
		},
	}
}

func (a *app) watchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Report template drift as templates change, re-seeding missing generated files",
		Long: `Watches the template files until interrupted. Every change is compared
against the recorded provenance and logged. Generated files that are missing
are seeded again; existing ones are left alone.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := a.openWorkspace()
			if err != nil {
				return err
			}
			return watch.New(ws.Pairs, ws.Reconciler, a.logger.Named("watch")).Run(a.contextOf(cmd))
		},
	}
}
