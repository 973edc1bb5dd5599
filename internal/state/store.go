// Package state persists the run-directory records: one provenance record
// per generated file and the single optimization-state slot.
package state

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"playbookctl/internal/core"
)

// ErrRecordNotFound is returned by RecordStore.Read for absent records.
var ErrRecordNotFound = errors.New("record not found")

// RecordStore reads and writes whole named records.
//
// Write replaces a record atomically; Delete of an absent record is not an
// error. Names are flat (no path separators).
type RecordStore interface {
	Read(name string) ([]byte, error)
	Write(name string, data []byte) error
	Delete(name string) error
	List() ([]string, error)
}

// DirStore keeps records as files directly under a run-directory:
//
//	<dir>/optimization-vars-files.state
//	<dir>/<generated-file-name>.srchash
type DirStore struct {
	dir string
}

func NewDirStore(dir string) (*DirStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("run directory is required")
	}
	return &DirStore{dir: filepath.Clean(dir)}, nil
}

// Dir returns the run-directory root.
func (s *DirStore) Dir() string {
	return s.dir
}

// Path returns the on-disk location of a record.
func (s *DirStore) Path(name string) string {
	return filepath.Join(s.dir, name)
}

func (s *DirStore) Read(name string) ([]byte, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrRecordNotFound
		}
		return nil, &core.IOError{Op: "read record", Path: s.Path(name), Err: err}
	}
	return data, nil
}

func (s *DirStore) Write(name string, data []byte) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := WriteFileAtomic(s.Path(name), data, 0o644); err != nil {
		return &core.IOError{Op: "write record", Path: s.Path(name), Err: err}
	}
	return nil
}

func (s *DirStore) Delete(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := os.Remove(s.Path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &core.IOError{Op: "delete record", Path: s.Path(name), Err: err}
	}
	return nil
}

// List returns the record names present on disk.
//
// Determinism: the returned slice is sorted lexicographically. Hidden files
// (temp files, the lock file) are skipped.
func (s *DirStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &core.IOError{Op: "list records", Path: s.dir, Err: err}
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// MemoryStore is a RecordStore held in memory.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string][]byte{}}
}

func (m *MemoryStore) Read(name string) ([]byte, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.records[name]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryStore) Write(name string, data []byte) error {
	if err := validateName(name); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[name] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryStore) Delete(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, name)
	return nil
}

func (m *MemoryStore) List() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.records))
	for name := range m.records {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return core.Validationf("record name is required")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return core.Validationf("record name %q must not contain path separators", name)
	}
	return nil
}

func describe(store RecordStore, name string) string {
	if ds, ok := store.(*DirStore); ok {
		return ds.Path(name)
	}
	return fmt.Sprintf("record %s", name)
}
