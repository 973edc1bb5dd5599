// Package optimize owns the optimization state machine.
//
// The machine has two states, ABSENT and SAVED. An optimization run saves
// its vars-file paths (ABSENT or SAVED -> SAVED), refreshes template
// provenance, and hands the rewrite of the generated files to a
// Transformer. Restore replays the saved paths through the same path; Reset
// returns to ABSENT.
package optimize

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"playbookctl/internal/core"
	"playbookctl/internal/reconcile"
	"playbookctl/internal/state"
	"playbookctl/internal/trace"
)

// Outcome is the result of an optimization run that got as far as invoking
// the transformer.
type Outcome struct {
	// Paths is the vars-file set the run used.
	Paths []string

	// Provenance holds the template digests recorded before the transformer
	// ran, keyed by logical name.
	Provenance map[string]core.Digest

	// Failure is set when the transformer reported a non-zero exit. The saved
	// state is kept so the run can be retried with Replay.
	Failure *core.ExternalToolFailure
}

// Succeeded reports a run whose transformer exited cleanly.
func (o Outcome) Succeeded() bool {
	return o.Failure == nil
}

// Err returns Failure as an error, or nil.
func (o Outcome) Err() error {
	if o.Failure == nil {
		return nil
	}
	return o.Failure
}

// Optimizer drives optimization runs against one project.
type Optimizer struct {
	pairs       core.PairSet
	states      *state.OptimizationStore
	provenance  *state.ProvenanceStore
	reconciler  *reconcile.Reconciler
	transformer Transformer
	logger      *zap.Logger
	sink        trace.Sink
}

// Option customizes an Optimizer during construction.
type Option func(*Optimizer)

func WithLogger(logger *zap.Logger) Option {
	return func(o *Optimizer) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithSink(sink trace.Sink) Option {
	return func(o *Optimizer) {
		if sink != nil {
			o.sink = sink
		}
	}
}

func New(
	pairs core.PairSet,
	states *state.OptimizationStore,
	provenance *state.ProvenanceStore,
	reconciler *reconcile.Reconciler,
	transformer Transformer,
	opts ...Option,
) (*Optimizer, error) {
	if err := pairs.Validate(); err != nil {
		return nil, err
	}
	switch {
	case states == nil:
		return nil, errors.New("optimizer: state store is nil")
	case provenance == nil:
		return nil, errors.New("optimizer: provenance store is nil")
	case reconciler == nil:
		return nil, errors.New("optimizer: reconciler is nil")
	case transformer == nil:
		return nil, errors.New("optimizer: transformer is nil")
	}
	o := &Optimizer{
		pairs:       pairs,
		states:      states,
		provenance:  provenance,
		reconciler:  reconciler,
		transformer: transformer,
		logger:      zap.NewNop(),
		sink:        trace.NopSink{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Status returns the persisted optimization state.
func (o *Optimizer) Status() (state.OptimizationState, error) {
	return o.states.Load()
}

// Save persists paths, replacing any prior state.
func (o *Optimizer) Save(paths []string) error {
	if err := o.states.Save(paths); err != nil {
		return err
	}
	o.logger.Info("saved optimization state",
		zap.String("state", string(state.StatusSaved)),
		zap.Strings("paths", paths))
	trace.SafeRecord(o.sink, trace.Event{Kind: trace.EventStateSaved, Subject: state.OptimizationStateRecord, Paths: paths})
	return nil
}

// Restore returns the saved paths unchanged. It fails with a NotFoundError
// when the state is ABSENT.
func (o *Optimizer) Restore() ([]string, error) {
	st, err := o.states.Load()
	if err != nil {
		return nil, err
	}
	if st.Status != state.StatusSaved {
		return nil, &core.NotFoundError{What: "saved optimization state", Path: o.states.Location()}
	}
	return st.Paths, nil
}

// RunOptimizationFor saves paths, records template provenance for every
// generated file, and invokes the transformer.
//
// Invalid paths and filesystem failures are returned as errors before the
// transformer runs. A transformer that exits non-zero yields an Outcome with
// Failure set and a nil error; the state stays SAVED.
func (o *Optimizer) RunOptimizationFor(ctx context.Context, paths []string) (Outcome, error) {
	if err := o.Save(paths); err != nil {
		return Outcome{}, err
	}

	out := Outcome{
		Paths:      append([]string(nil), paths...),
		Provenance: make(map[string]core.Digest, len(o.pairs)),
	}
	for _, pair := range o.pairs {
		digest, err := o.reconciler.RecordOnly(pair)
		if err != nil {
			return Outcome{}, fmt.Errorf("record provenance for %s: %w", pair.LogicalName(), err)
		}
		out.Provenance[pair.LogicalName()] = digest
	}

	o.logger.Info("running optimization transformer",
		zap.String("transformer", o.transformer.Name()),
		zap.Int("vars_files", len(paths)))
	trace.SafeRecord(o.sink, trace.Event{Kind: trace.EventTransformerInvoked, Subject: o.transformer.Name(), Paths: paths})

	err := o.transformer.Transform(ctx, Request{VarsPaths: out.Paths, Pairs: o.pairs})
	if err == nil {
		return out, nil
	}

	var failure *core.ExternalToolFailure
	if errors.As(err, &failure) {
		out.Failure = failure
		o.logger.Error("optimization transformer failed; saved state kept for retry",
			zap.String("transformer", o.transformer.Name()),
			zap.Int("exit_code", failure.ExitCode))
		trace.SafeRecord(o.sink, trace.Event{
			Kind:    trace.EventTransformerFailed,
			Subject: o.transformer.Name(),
			Reason:  fmt.Sprintf("exit %d", failure.ExitCode),
		})
		return out, nil
	}
	trace.SafeRecord(o.sink, trace.Event{Kind: trace.EventTransformerFailed, Subject: o.transformer.Name(), Reason: err.Error()})
	return out, fmt.Errorf("optimization with %s: %w", o.transformer.Name(), err)
}

// Replay re-runs the last optimization with its saved paths.
func (o *Optimizer) Replay(ctx context.Context) (Outcome, error) {
	paths, err := o.Restore()
	if err != nil {
		return Outcome{}, err
	}
	o.logger.Info("replaying saved optimization", zap.Strings("paths", paths))
	trace.SafeRecord(o.sink, trace.Event{Kind: trace.EventReplayed, Subject: state.OptimizationStateRecord, Paths: paths})
	return o.RunOptimizationFor(ctx, paths)
}

// Reset clears the saved state, then removes every generated file along with
// its provenance. Resetting an ABSENT optimizer is not an error.
func (o *Optimizer) Reset() error {
	if err := o.clearState(); err != nil {
		return err
	}
	return o.removeDerived()
}

// CleanTemplateDerived removes every generated file and its provenance
// (missing files are fine), then clears the saved state.
func (o *Optimizer) CleanTemplateDerived() error {
	if err := o.removeDerived(); err != nil {
		return err
	}
	return o.clearState()
}
