// Package reconcile seeds generated files from their templates exactly once
// and keeps the template provenance of every generated file current.
package reconcile

import (
	"errors"
	"io/fs"
	"os"

	"go.uber.org/zap"

	"playbookctl/internal/core"
	"playbookctl/internal/state"
	"playbookctl/internal/trace"
)

// Action is the branch Ensure took for a destination.
type Action string

const (
	// ActionSeeded means the destination was absent and now holds the
	// template's bytes.
	ActionSeeded Action = "seeded"

	// ActionKept means the destination existed and was left untouched.
	ActionKept Action = "kept"
)

// Outcome is the result of a reconciliation pass over one pair.
type Outcome struct {
	Pair   core.TemplatePair
	Action Action
	Digest core.Digest
}

// Reconciler ensures generated files exist without ever overwriting them.
//
// Seeding is one-way: once a destination exists it is user-owned, whatever
// happens to its template afterwards. Provenance, however, is refreshed on
// every pass, so it records the last template offered rather than the
// template the destination matches.
type Reconciler struct {
	hasher     *core.Hasher
	provenance *state.ProvenanceStore
	logger     *zap.Logger
	sink       trace.Sink
}

// Option customizes a Reconciler during construction.
type Option func(*Reconciler)

// WithLogger sets the logger; the default discards.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithSink sets the trace sink; the default discards.
func WithSink(sink trace.Sink) Option {
	return func(r *Reconciler) {
		if sink != nil {
			r.sink = sink
		}
	}
}

func New(provenance *state.ProvenanceStore, opts ...Option) *Reconciler {
	r := &Reconciler{
		hasher:     core.NewHasher(),
		provenance: provenance,
		logger:     zap.NewNop(),
		sink:       trace.NopSink{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Ensure seeds pair.Destination from pair.Template when the destination does
// not exist, then records the template's fingerprint as the destination's
// provenance regardless of the branch taken.
func (r *Reconciler) Ensure(pair core.TemplatePair) (Outcome, error) {
	if err := pair.Validate(); err != nil {
		return Outcome{}, err
	}

	content, err := os.ReadFile(pair.Template)
	if err != nil {
		return Outcome{}, &core.IOError{Op: "read template", Path: pair.Template, Err: err}
	}
	digest := r.hasher.FingerprintBytes(content)

	exists, err := destinationExists(pair.Destination)
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{Pair: pair, Digest: digest, Action: ActionKept}
	if exists {
		r.logger.Debug("destination exists, leaving it untouched",
			zap.String("file", pair.Destination))
		trace.SafeRecord(r.sink, trace.Event{Kind: trace.EventKept, Subject: pair.LogicalName(), Reason: "DestinationExists"})
	} else {
		perm := fs.FileMode(0o644)
		if info, statErr := os.Stat(pair.Template); statErr == nil {
			perm = info.Mode().Perm()
		}
		if err := state.WriteFileAtomic(pair.Destination, content, perm); err != nil {
			return Outcome{}, &core.IOError{Op: "seed", Path: pair.Destination, Err: err}
		}
		out.Action = ActionSeeded
		r.logger.Info("seeded generated file from template",
			zap.String("file", pair.Destination),
			zap.String("template", pair.Template))
		trace.SafeRecord(r.sink, trace.Event{Kind: trace.EventSeeded, Subject: pair.LogicalName(), Digest: digest.String()})
	}

	if err := r.record(pair, digest); err != nil {
		return Outcome{}, err
	}
	return out, nil
}

// RecordOnly refreshes the provenance of pair without looking at, or
// touching, the destination.
func (r *Reconciler) RecordOnly(pair core.TemplatePair) (core.Digest, error) {
	if err := pair.Validate(); err != nil {
		return "", err
	}
	digest, err := r.hasher.Fingerprint(pair.Template)
	if err != nil {
		return "", err
	}
	if err := r.record(pair, digest); err != nil {
		return "", err
	}
	return digest, nil
}

func (r *Reconciler) record(pair core.TemplatePair, digest core.Digest) error {
	if err := r.provenance.Record(pair.LogicalName(), digest); err != nil {
		return err
	}
	r.logger.Debug("recorded template provenance",
		zap.String("file", pair.LogicalName()),
		zap.String("digest", digest.String()))
	trace.SafeRecord(r.sink, trace.Event{Kind: trace.EventProvenanceRecorded, Subject: pair.LogicalName(), Digest: digest.String()})
	return nil
}

func destinationExists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, &core.IOError{Op: "stat destination", Path: path, Err: err}
}
