package trace

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"

	"playbookctl/internal/state"
)

// OperationTrace is the ordered record of what one playbookctl invocation did
// to the generated files and the run-directory.
//
// Unlike a log it carries only logical decisions (seeded, kept, recorded,
// cleared, invoked), never timestamps, so two invocations against identical
// trees produce identical event lists.
type OperationTrace struct {
	RunID   string
	Command string
	Events  []Event
}

// EventKind is the stable discriminator for Event. The string values are
// part of the JSON output; do not rename.
type EventKind string

const (
	EventSeeded             EventKind = "Seeded"
	EventKept               EventKind = "Kept"
	EventProvenanceRecorded EventKind = "ProvenanceRecorded"
	EventProvenanceCleared  EventKind = "ProvenanceCleared"
	EventStateSaved         EventKind = "StateSaved"
	EventStateCleared       EventKind = "StateCleared"
	EventTransformerInvoked EventKind = "TransformerInvoked"
	EventTransformerFailed  EventKind = "TransformerFailed"
	EventFileRemoved        EventKind = "FileRemoved"
	EventReplayed           EventKind = "Replayed"
	EventDriftDetected      EventKind = "DriftDetected"
)

// Event is a single logical transition.
type Event struct {
	Kind EventKind

	// Subject names the generated file, record or tool the event is about.
	Subject string

	// Reason is a stable reason code (e.g. "DestinationExists").
	Reason string

	// Digest is the template fingerprint involved, when any.
	Digest string

	// Paths carries the vars paths for state events.
	Paths []string
}

// New starts an empty trace with a fresh run identifier.
func New(command string) *OperationTrace {
	return &OperationTrace{RunID: uuid.NewString(), Command: command}
}

// Validate checks basic invariants and returns a descriptive error.
func (t *OperationTrace) Validate() error {
	if t == nil {
		return errors.New("trace is nil")
	}
	if t.RunID == "" {
		return errors.New("runId is required")
	}
	for i, e := range t.Events {
		if e.Kind == "" {
			return fmt.Errorf("events[%d].kind is required", i)
		}
		if e.Subject == "" {
			return fmt.Errorf("events[%d].subject is required for kind %q", i, e.Kind)
		}
	}
	return nil
}

// Kinds returns the event kinds in order; handy for assertions.
func (t *OperationTrace) Kinds() []EventKind {
	out := make([]EventKind, 0, len(t.Events))
	for _, e := range t.Events {
		out = append(out, e.Kind)
	}
	return out
}

// WriteFile persists the trace as JSON, atomically.
func (t *OperationTrace) WriteFile(path string) error {
	if err := t.Validate(); err != nil {
		return err
	}
	b, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	return state.WriteFileAtomic(path, append(b, '\n'), 0o644)
}

// MarshalJSON fixes field order and omits empty optional fields.
func (t OperationTrace) MarshalJSON() ([]byte, error) {
	if t.RunID == "" {
		return nil, errors.New("runId is required")
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	writeField(&buf, "runId", t.RunID, false)
	if t.Command != "" {
		writeField(&buf, "command", t.Command, true)
	}
	buf.WriteString(",\"events\":[")
	for i := range t.Events {
		if i > 0 {
			buf.WriteByte(',')
		}
		eb, err := json.Marshal(t.Events[i])
		if err != nil {
			return nil, err
		}
		buf.Write(eb)
	}
	buf.WriteString("]}")
	return buf.Bytes(), nil
}

// MarshalJSON fixes field order and omits empty optional fields.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Kind == "" {
		return nil, errors.New("kind is required")
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	writeField(&buf, "kind", string(e.Kind), false)
	writeField(&buf, "subject", e.Subject, true)
	if e.Reason != "" {
		writeField(&buf, "reason", e.Reason, true)
	}
	if e.Digest != "" {
		writeField(&buf, "digest", e.Digest, true)
	}
	if len(e.Paths) > 0 {
		pb, err := json.Marshal(e.Paths)
		if err != nil {
			return nil, err
		}
		buf.WriteString(",\"paths\":")
		buf.Write(pb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeField(buf *bytes.Buffer, key, value string, comma bool) {
	if comma {
		buf.WriteByte(',')
	}
	kb, _ := json.Marshal(key)
	vb, _ := json.Marshal(value)
	buf.Write(kb)
	buf.WriteByte(':')
	buf.Write(vb)
}

// ReadFile loads a trace written by WriteFile.
func ReadFile(path string) (*OperationTrace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw struct {
		RunID   string `json:"runId"`
		Command string `json:"command"`
		Events  []struct {
			Kind    string   `json:"kind"`
			Subject string   `json:"subject"`
			Reason  string   `json:"reason"`
			Digest  string   `json:"digest"`
			Paths   []string `json:"paths"`
		} `json:"events"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse trace %s: %w", path, err)
	}
	t := &OperationTrace{RunID: raw.RunID, Command: raw.Command}
	for _, e := range raw.Events {
		t.Events = append(t.Events, Event{
			Kind:    EventKind(e.Kind),
			Subject: e.Subject,
			Reason:  e.Reason,
			Digest:  e.Digest,
			Paths:   e.Paths,
		})
	}
	return t, t.Validate()
}
