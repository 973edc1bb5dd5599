package state

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"playbookctl/internal/core"
)

// OptimizationStateRecord is the record name of the single optimization slot.
const OptimizationStateRecord = "optimization-vars-files.state"

// Status tags the optimization slot.
type Status string

const (
	StatusAbsent Status = "ABSENT"
	StatusSaved  Status = "SAVED"
)

// OptimizationState is the ordered set of variable-file paths that the last
// optimization pass considered enabled.
type OptimizationState struct {
	Status Status
	Paths  []string
}

// OptimizationStore is a single-slot persisted record. Writing replaces it
// wholesale; there is never more than one.
type OptimizationStore struct {
	records RecordStore

	// stat resolves a path to file info; swapped in tests that use a
	// MemoryStore without touching disk.
	stat func(string) (os.FileInfo, error)
}

func NewOptimizationStore(records RecordStore) *OptimizationStore {
	return &OptimizationStore{records: records, stat: os.Stat}
}

// WithStat overrides the function used to check that saved paths exist.
func (o *OptimizationStore) WithStat(stat func(string) (os.FileInfo, error)) *OptimizationStore {
	o.stat = stat
	return o
}

// Validate checks a candidate path set: non-empty, absolute, whitespace-free,
// each resolving to an existing regular file.
func (o *OptimizationStore) Validate(paths []string) error {
	if len(paths) == 0 {
		return core.Validationf("at least one vars file path is required")
	}
	var errs []error
	for i, p := range paths {
		switch {
		case strings.TrimSpace(p) == "":
			errs = append(errs, core.Validationf("paths[%d] is empty", i))
			continue
		case !filepath.IsAbs(p):
			errs = append(errs, core.Validationf("paths[%d] %q is not absolute", i, p))
			continue
		case strings.IndexFunc(p, unicode.IsSpace) >= 0:
			errs = append(errs, core.Validationf("paths[%d] %q contains whitespace", i, p))
			continue
		}
		info, err := o.stat(p)
		if err != nil {
			errs = append(errs, core.Validationf("paths[%d] %q does not exist", i, p))
			continue
		}
		if info.IsDir() {
			errs = append(errs, core.Validationf("paths[%d] %q is a directory", i, p))
		}
	}
	return errors.Join(errs...)
}

// Save persists paths verbatim (order preserved), replacing any prior state.
func (o *OptimizationStore) Save(paths []string) error {
	if err := o.Validate(paths); err != nil {
		return err
	}
	return o.records.Write(OptimizationStateRecord, []byte(strings.Join(paths, "\n")+"\n"))
}

// Load returns the slot; a missing or empty record is StatusAbsent.
func (o *OptimizationStore) Load() (OptimizationState, error) {
	data, err := o.records.Read(OptimizationStateRecord)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return OptimizationState{Status: StatusAbsent}, nil
		}
		return OptimizationState{}, err
	}
	// Older run-directories hold a single space-separated line.
	paths := strings.Fields(string(data))
	if len(paths) == 0 {
		return OptimizationState{Status: StatusAbsent}, nil
	}
	return OptimizationState{Status: StatusSaved, Paths: paths}, nil
}

// Clear deletes the slot. Clearing an absent slot is not an error.
func (o *OptimizationStore) Clear() error {
	return o.records.Delete(OptimizationStateRecord)
}

// Location describes where the slot lives, for messages.
func (o *OptimizationStore) Location() string {
	return describe(o.records, OptimizationStateRecord)
}
