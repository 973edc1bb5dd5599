package cli

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"playbookctl/internal/config"
	"playbookctl/internal/logging"
	"playbookctl/internal/runner"
	"playbookctl/internal/trace"
	"playbookctl/internal/workspace"
)

type globalOptions struct {
	configPath string
	projectDir string
	runDir     string
	verbose    bool
	logFormat  string
	tracePath  string
}

// app holds the state of one invocation. Fields left nil are built on
// demand; tests preset them.
type app struct {
	global   globalOptions
	stdout   io.Writer
	stderr   io.Writer
	getenv   func(string) string
	logger   *zap.Logger
	recorder *trace.Recorder
	runner   runner.Runner
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout:   stdout,
		stderr:   stderr,
		getenv:   os.Getenv,
		recorder: trace.NewRecorder(),
	}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "playbookctl",
		Short: "Seed, track and optimize the generated files of an Ansible playbook checkout",
		Long: `playbookctl manages the files a playbook checkout derives from templates:
requirements.yml, setup.yml and the mash_servers group vars.

Generated files are seeded from their templates once and then belong to you;
playbookctl only records which template version last offered them so drift is
visible. Optimization trims the generated files down to the roles your host
vars enable, and remembers which vars files it used so it can be replayed.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return invalidInvocationf("unknown command %q for %q", args[0], cmd.CommandPath())
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.logger != nil {
				return nil
			}
			logger, err := logging.New(logging.Options{
				Format:  a.global.logFormat,
				Verbose: a.global.verbose,
				Getenv:  a.getenv,
			})
			if err != nil {
				return invalidInvocationf("%v", err)
			}
			a.logger = logger
			return nil
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return invalidInvocationf("%v", err)
	})

	pf := root.PersistentFlags()
	pf.StringVar(&a.global.configPath, "config", "", "config file (default <project-dir>/"+config.FileName+")")
	pf.StringVar(&a.global.projectDir, "project-dir", "", "playbook checkout (default $"+config.EnvProjectDir+" or the current directory)")
	pf.StringVar(&a.global.runDir, "run-dir", "", "run-directory holding provenance and optimization state (default var)")
	pf.BoolVarP(&a.global.verbose, "verbose", "v", false, "debug logging")
	pf.StringVar(&a.global.logFormat, "log-format", "", "log format: console or json (default console on a terminal, json otherwise)")
	pf.StringVar(&a.global.tracePath, "trace", "", "write the ordered operation trace as JSON to this file")

	root.AddCommand(
		a.reconcileCommand(),
		a.saveHashCommand(),
		a.optimizeCommand(),
		a.cleanCommand(),
		a.statusCommand(),
		a.watchCommand(),
		a.rolesCommand(),
		a.runCommand(),
		a.tagShorthandCommand("install-all", "Install and start every enabled service", func(c config.Config) []string { return c.Ansible.InstallAllTags }),
		a.tagShorthandCommand("setup-all", "Set up and start every enabled service", func(c config.Config) []string { return c.Ansible.SetupAllTags }),
	)
	return root
}

// exactArgs is cobra.ExactArgs reporting an InvocationError.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return invalidInvocationf("%v", err)
		}
		return nil
	}
}

func maximumArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.MaximumNArgs(n)(cmd, args); err != nil {
			return invalidInvocationf("%v", err)
		}
		return nil
	}
}

func noArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.NoArgs(cmd, args); err != nil {
		return invalidInvocationf("%v", err)
	}
	return nil
}

// loadConfig resolves configuration from flags, the environment and the
// config file.
func (a *app) loadConfig() (config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{
		ProjectDir: a.global.projectDir,
		Path:       a.global.configPath,
		Getenv:     a.getenv,
	})
	if err != nil {
		return config.Config{}, err
	}
	if a.global.runDir != "" {
		cfg.RunDir = a.global.runDir
	}
	return cfg, nil
}

func (a *app) openWorkspace() (*workspace.Workspace, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	a.logger.Debug("opening workspace",
		zap.String("project_dir", cfg.ProjectDir),
		zap.String("run_dir", cfg.RunDir),
		zap.String("transformer", cfg.Transformer.Kind))
	return workspace.Open(cfg, workspace.Options{
		Logger: a.logger,
		Sink:   a.recorder,
		Runner: a.runner,
		Stdout: a.stdout,
		Stderr: a.stderr,
	})
}

// mutate runs fn with the run-directory locked.
func (a *app) mutate(fn func(ws *workspace.Workspace) error) error {
	ws, err := a.openWorkspace()
	if err != nil {
		return err
	}
	l, err := ws.Lock()
	if err != nil {
		return err
	}
	defer func() {
		if rerr := l.Release(); rerr != nil {
			a.logger.Warn("failed to release run-directory lock", zap.String("path", l.Path()), zap.Error(rerr))
		}
	}()
	return fn(ws)
}

func (a *app) contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
