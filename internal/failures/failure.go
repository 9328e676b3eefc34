// Package failures records results that could not be decoded.
package failures

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/pingsantohq/atlasdecode/internal/corpus"
	"github.com/pingsantohq/atlasdecode/pkg/measurement"
)

// KindInvariant marks a record that decoded but broke a cross-field rule.
const KindInvariant = "invariant"

// Failure describes one record that was rejected during a validation run.
type Failure struct {
	RunID      string    `json:"run_id"`
	Source     string    `json:"source"`
	Line       int       `json:"line"`
	Type       string    `json:"type"`
	Kind       string    `json:"kind"`
	Path       string    `json:"path,omitempty"`
	Message    string    `json:"message"`
	Raw        string    `json:"raw"`
	ObservedAt time.Time `json:"observed_at"`
}

// FromError builds a Failure for rec. Decode errors are classified by their innermost
// kind and path so that a bad reply deep inside a record is reported where it happened.
func FromError(runID string, rec corpus.Record, kind measurement.MeasurementType, err error) Failure {
	f := Failure{
		RunID:      runID,
		Source:     rec.Source,
		Line:       rec.Line,
		Type:       string(kind),
		Kind:       KindInvariant,
		Message:    err.Error(),
		Raw:        string(rec.Raw),
		ObservedAt: time.Now().UTC(),
	}
	var de *measurement.DecodeError
	if errors.As(err, &de) {
		root := de.Root()
		f.Kind = root.Kind.String()
		f.Path = root.Path
	}
	return f
}

// Pretty returns the raw record indented for reading, or as-is when it is not valid JSON.
func (f Failure) Pretty() string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(f.Raw), "", "  "); err != nil {
		return f.Raw
	}
	return buf.String()
}

// Sink accepts failures produced by a validation run.
type Sink interface {
	Record(ctx context.Context, f Failure) error
}

// MemorySink keeps failures in memory.
type MemorySink struct {
	mu       sync.Mutex
	failures []Failure
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (m *MemorySink) Record(ctx context.Context, f Failure) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, f)
	return nil
}

// Failures returns a copy of everything recorded so far.
func (m *MemorySink) Failures() []Failure {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Failure, len(m.failures))
	copy(out, m.failures)
	return out
}

type discardSink struct{}

func (discardSink) Record(context.Context, Failure) error { return nil }

// Discard drops every failure.
var Discard Sink = discardSink{}
