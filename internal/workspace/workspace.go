// Package workspace wires the stores, reconciler and optimizer of one
// playbook project together and provides the composite operations the CLI
// exposes.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"playbookctl/internal/config"
	"playbookctl/internal/core"
	"playbookctl/internal/lock"
	"playbookctl/internal/optimize"
	"playbookctl/internal/reconcile"
	"playbookctl/internal/runner"
	"playbookctl/internal/state"
	"playbookctl/internal/trace"
)

// RoleAll selects every generated file.
const RoleAll = "all"

type Options struct {
	Logger *zap.Logger
	Sink   trace.Sink

	// Runner defaults to a runner.ExecRunner.
	Runner runner.Runner

	// Stdout and Stderr receive live output of delegated tools.
	Stdout io.Writer
	Stderr io.Writer
}

// Workspace is an opened project.
type Workspace struct {
	Config       config.Config
	Pairs        core.PairSet
	RunDir       string
	InventoryDir string

	Provenance *state.ProvenanceStore
	States     *state.OptimizationStore
	Reconciler *reconcile.Reconciler
	Optimizer  *optimize.Optimizer

	runner runner.Runner
	logger *zap.Logger
	sink   trace.Sink
	stdout io.Writer
	stderr io.Writer
}

// Open resolves cfg against its project directory and builds every
// collaborator. Nothing is written.
func Open(cfg config.Config, opts Options) (*Workspace, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sink := opts.Sink
	if sink == nil {
		sink = trace.NopSink{}
	}
	run := opts.Runner
	if run == nil {
		run = runner.NewExecRunner(logger)
	}
	stdout, stderr := opts.Stdout, opts.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}

	pairs := cfg.Pairs()
	if err := pairs.Validate(); err != nil {
		return nil, err
	}

	ws := &Workspace{
		Config:       cfg,
		Pairs:        pairs,
		RunDir:       cfg.Abs(cfg.RunDir),
		InventoryDir: cfg.Abs(cfg.InventoryDir),
		runner:       run,
		logger:       logger,
		sink:         sink,
		stdout:       stdout,
		stderr:       stderr,
	}

	records, err := state.NewDirStore(ws.RunDir)
	if err != nil {
		return nil, err
	}
	ws.Provenance = state.NewProvenanceStore(records)
	ws.States = state.NewOptimizationStore(records)
	ws.Reconciler = reconcile.New(ws.Provenance,
		reconcile.WithLogger(logger.Named("reconcile")),
		reconcile.WithSink(sink))

	ws.Optimizer, err = optimize.New(pairs, ws.States, ws.Provenance, ws.Reconciler, ws.transformer(),
		optimize.WithLogger(logger.Named("optimize")),
		optimize.WithSink(sink))
	if err != nil {
		return nil, err
	}
	return ws, nil
}

func (ws *Workspace) transformer() optimize.Transformer {
	t := ws.Config.Transformer
	if t.Kind == config.TransformerBuiltin {
		return &optimize.BuiltinTransformer{
			WriteRequirements: t.WriteRequirements,
			Logger:            ws.logger.Named("builtin"),
		}
	}
	command := t.Command
	if strings.ContainsRune(command, os.PathSeparator) {
		command = ws.Config.Abs(command)
	}
	return &optimize.ExternalTransformer{
		Runner:  ws.runner,
		Command: command,
		Args:    t.Args,
		Dir:     ws.Config.ProjectDir,
		Stdout:  ws.stdout,
		Stderr:  ws.stderr,
	}
}

// Select returns the pairs named by role, or all of them for RoleAll.
func (ws *Workspace) Select(role string) (core.PairSet, error) {
	if role == "" || role == RoleAll {
		return ws.Pairs, nil
	}
	pair, ok := ws.Pairs.ByRole(role)
	if !ok {
		return nil, core.Validationf("unknown generated file %q (want one of %s, %s)",
			role, strings.Join(core.KnownRoles, ", "), RoleAll)
	}
	return core.PairSet{pair}, nil
}

// Reconcile ensures the selected generated files.
func (ws *Workspace) Reconcile(role string) ([]reconcile.Outcome, error) {
	pairs, err := ws.Select(role)
	if err != nil {
		return nil, err
	}
	outcomes := make([]reconcile.Outcome, 0, len(pairs))
	for _, pair := range pairs {
		out, err := ws.Reconciler.Ensure(pair)
		if err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}

// SaveHash records provenance for one generated file without touching it.
func (ws *Workspace) SaveHash(role string) (core.Digest, error) {
	if role == "" || role == RoleAll {
		return "", core.Validationf("save-hash needs a single generated file")
	}
	pairs, err := ws.Select(role)
	if err != nil {
		return "", err
	}
	return ws.Reconciler.RecordOnly(pairs[0])
}

// Drift reports every pair.
func (ws *Workspace) Drift() ([]reconcile.DriftReport, error) {
	reports := make([]reconcile.DriftReport, 0, len(ws.Pairs))
	for _, pair := range ws.Pairs {
		r, err := ws.Reconciler.Drift(pair)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// Prepare readies the generated files before ansible runs.
//
// When a template changed since it was last recorded and an optimization is
// saved, the optimization is replayed so the generated files pick up the
// new template. Without a saved optimization the change is only reported,
// since the generated files are user-owned. Every pair is then ensured.
func (ws *Workspace) Prepare(ctx context.Context) error {
	reports, err := ws.Drift()
	if err != nil {
		return err
	}
	var changed []string
	for _, r := range reports {
		if !r.Changed() {
			continue
		}
		changed = append(changed, r.Pair.LogicalName())
		trace.SafeRecord(ws.sink, trace.Event{
			Kind:    trace.EventDriftDetected,
			Subject: r.Pair.LogicalName(),
			Digest:  r.Current.String(),
			Reason:  "recorded " + r.Recorded.String(),
		})
	}

	if len(changed) > 0 {
		st, err := ws.Optimizer.Status()
		if err != nil {
			return err
		}
		if st.Status == state.StatusSaved {
			ws.logger.Info("templates changed; replaying saved optimization", zap.Strings("files", changed))
			out, err := ws.Optimizer.Replay(ctx)
			if err != nil {
				return err
			}
			if err := out.Err(); err != nil {
				return err
			}
		} else {
			ws.logger.Warn("templates changed since the generated files were seeded; review them by hand or run clean-template-derived",
				zap.Strings("files", changed))
		}
	}

	for _, pair := range ws.Pairs {
		if _, err := ws.Reconciler.Ensure(pair); err != nil {
			return err
		}
	}
	return nil
}

// Lock takes the run-directory lock.
func (ws *Workspace) Lock() (*lock.RunDirLock, error) {
	l, err := lock.Acquire(ws.RunDir)
	if err != nil {
		var locked *lock.LockedError
		if errors.As(err, &locked) {
			return nil, fmt.Errorf("another playbookctl is working on %s: %w", ws.RunDir, err)
		}
		return nil, err
	}
	return l, nil
}
