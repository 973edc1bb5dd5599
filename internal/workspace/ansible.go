package workspace

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"playbookctl/internal/core"
	"playbookctl/internal/runner"
)

// PlaybookOptions selects what ansible-playbook runs.
type PlaybookOptions struct {
	Tags  []string
	Extra []string
}

// PlaybookCommand is the ansible-playbook invocation for opts.
func (ws *Workspace) PlaybookCommand(opts PlaybookOptions) runner.Command {
	setup, _ := ws.Pairs.ByRole(core.RoleSetup)
	args := []string{"-i", ws.Config.Abs(ws.Config.Ansible.HostsFile), setup.Destination}
	if len(opts.Tags) > 0 {
		args = append(args, "--tags="+strings.Join(opts.Tags, ","))
	}
	args = append(args, opts.Extra...)
	return runner.Command{
		Name:   ws.Config.Ansible.PlaybookBin,
		Args:   args,
		Dir:    ws.Config.ProjectDir,
		Stdout: ws.stdout,
		Stderr: ws.stderr,
	}
}

// RolesCommand is the ansible-galaxy invocation that installs requirements.
func (ws *Workspace) RolesCommand() runner.Command {
	requirements, _ := ws.Pairs.ByRole(core.RoleRequirements)
	return runner.Command{
		Name: ws.Config.Ansible.GalaxyBin,
		Args: []string{
			"install",
			"-r", requirements.Destination,
			"-p", ws.Config.Abs(ws.Config.Ansible.RolesPath),
			"--force",
		},
		Dir:    ws.Config.ProjectDir,
		Stdout: ws.stdout,
		Stderr: ws.stderr,
	}
}

// RunPlaybook prepares the generated files and runs ansible-playbook.
func (ws *Workspace) RunPlaybook(ctx context.Context, opts PlaybookOptions) error {
	if err := ws.Prepare(ctx); err != nil {
		return err
	}
	return ws.delegate(ctx, ws.PlaybookCommand(opts))
}

// InstallRoles prepares the generated files and installs galaxy roles.
func (ws *Workspace) InstallRoles(ctx context.Context) error {
	if err := ws.Prepare(ctx); err != nil {
		return err
	}
	return ws.delegate(ctx, ws.RolesCommand())
}

func (ws *Workspace) delegate(ctx context.Context, cmd runner.Command) error {
	ws.logger.Info("running", zap.String("command", cmd.String()))
	res, err := ws.runner.Run(ctx, cmd)
	if err != nil {
		return &core.ExternalToolFailure{Tool: cmd.Name, ExitCode: res.ExitCode, Stderr: string(res.Stderr), Err: err}
	}
	if !res.Succeeded() {
		return &core.ExternalToolFailure{Tool: cmd.Name, ExitCode: res.ExitCode}
	}
	return nil
}
