package state

import (
	"errors"
	"strings"

	"playbookctl/internal/core"
)

// ProvenanceSuffix is appended to a generated file's logical name to form
// its record name.
const ProvenanceSuffix = ".srchash"

// ProvenanceRecord is the fingerprint of the template that last offered a
// generated file.
type ProvenanceRecord struct {
	Name   string
	Digest core.Digest
}

// ProvenanceStore keeps exactly one record per generated file name.
//
// Records track "last template seen", not "template matching destination":
// they are rewritten on every reconciliation even when the destination is
// left untouched.
type ProvenanceStore struct {
	records RecordStore
}

func NewProvenanceStore(records RecordStore) *ProvenanceStore {
	return &ProvenanceStore{records: records}
}

func recordName(logicalName string) string {
	return logicalName + ProvenanceSuffix
}

// Record overwrites the record for logicalName with digest.
func (p *ProvenanceStore) Record(logicalName string, digest core.Digest) error {
	if digest.IsZero() {
		return core.Validationf("provenance for %s: digest is required", logicalName)
	}
	return p.records.Write(recordName(logicalName), []byte(digest.String()+"\n"))
}

// Lookup returns the stored digest; ok is false when no record exists.
func (p *ProvenanceStore) Lookup(logicalName string) (core.Digest, bool, error) {
	data, err := p.records.Read(recordName(logicalName))
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	digest := core.ParseDigest(string(data))
	if digest.IsZero() {
		return "", false, nil
	}
	return digest, true, nil
}

// Clear removes the record for logicalName. Absent records are not an error.
func (p *ProvenanceStore) Clear(logicalName string) error {
	return p.records.Delete(recordName(logicalName))
}

// All returns every provenance record, ordered by name.
func (p *ProvenanceStore) All() ([]ProvenanceRecord, error) {
	names, err := p.records.List()
	if err != nil {
		return nil, err
	}
	out := make([]ProvenanceRecord, 0, len(names))
	for _, name := range names {
		if !strings.HasSuffix(name, ProvenanceSuffix) {
			continue
		}
		logical := strings.TrimSuffix(name, ProvenanceSuffix)
		digest, ok, err := p.Lookup(logical)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, ProvenanceRecord{Name: logical, Digest: digest})
		}
	}
	return out, nil
}
