package reconcile

import (
	"playbookctl/internal/core"
)

// DriftReport compares a pair's recorded provenance with its template as it
// is now. Computing it never writes anything.
type DriftReport struct {
	Pair              core.TemplatePair
	Recorded          core.Digest
	HasRecord         bool
	Current           core.Digest
	DestinationExists bool
}

// Changed reports a template that moved since provenance was last recorded.
// A pair that was never recorded has not changed.
func (d DriftReport) Changed() bool {
	return d.HasRecord && d.Recorded != d.Current
}

// Drift inspects pair without side effects.
func (r *Reconciler) Drift(pair core.TemplatePair) (DriftReport, error) {
	if err := pair.Validate(); err != nil {
		return DriftReport{}, err
	}
	current, err := r.hasher.Fingerprint(pair.Template)
	if err != nil {
		return DriftReport{}, err
	}
	recorded, ok, err := r.provenance.Lookup(pair.LogicalName())
	if err != nil {
		return DriftReport{}, err
	}
	exists, err := destinationExists(pair.Destination)
	if err != nil {
		return DriftReport{}, err
	}
	return DriftReport{
		Pair:              pair,
		Recorded:          recorded,
		HasRecord:         ok,
		Current:           current,
		DestinationExists: exists,
	}, nil
}
