package optimize

import (
	"errors"
	"io/fs"
	"os"

	"go.uber.org/zap"

	"playbookctl/internal/core"
	"playbookctl/internal/state"
	"playbookctl/internal/trace"
)

func (o *Optimizer) clearState() error {
	if err := o.states.Clear(); err != nil {
		return err
	}
	o.logger.Info("cleared optimization state", zap.String("state", string(state.StatusAbsent)))
	trace.SafeRecord(o.sink, trace.Event{Kind: trace.EventStateCleared, Subject: state.OptimizationStateRecord})
	return nil
}

// removeDerived keeps going past individual failures so one unwritable file
// does not strand the others; all failures are returned joined.
func (o *Optimizer) removeDerived() error {
	var errs []error
	for _, pair := range o.pairs {
		removed, err := removeIfExists(pair.Destination)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if removed {
			o.logger.Info("removed generated file", zap.String("file", pair.Destination))
			trace.SafeRecord(o.sink, trace.Event{Kind: trace.EventFileRemoved, Subject: pair.LogicalName()})
		}
		if err := o.provenance.Clear(pair.LogicalName()); err != nil {
			errs = append(errs, err)
			continue
		}
		trace.SafeRecord(o.sink, trace.Event{Kind: trace.EventProvenanceCleared, Subject: pair.LogicalName()})
	}
	return errors.Join(errs...)
}

func removeIfExists(path string) (bool, error) {
	err := os.Remove(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, &core.IOError{Op: "remove", Path: path, Err: err}
	}
}
