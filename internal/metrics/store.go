package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Store maintains in-memory counters for decode activity.
type Store struct {
	records           sync.Map // type -> *atomic.Uint64
	decoded           sync.Map // type -> *atomic.Uint64
	failures          sync.Map // failureKey -> *atomic.Uint64
	spillPendingBytes atomic.Int64
	spillEvictions    atomic.Uint64
}

type failureKey struct {
	Type string
	Kind string
}

// NewStore constructs a Store with zeroed metrics.
func NewStore() *Store {
	return &Store{}
}

// Snapshot captures the current metric values in a plain struct.
type Snapshot struct {
	Records           []TypeCount
	Decoded           []TypeCount
	Failures          []FailureCount
	SpillPendingBytes int64
	SpillEvictions    uint64
}

type TypeCount struct {
	Type  string
	Count uint64
}

type FailureCount struct {
	Type  string
	Kind  string
	Count uint64
}

// Snapshot returns a point-in-time copy of the metrics, sorted by label.
func (s *Store) Snapshot() Snapshot {
	snap := Snapshot{
		Records:           typeCounts(&s.records),
		Decoded:           typeCounts(&s.decoded),
		SpillPendingBytes: s.spillPendingBytes.Load(),
		SpillEvictions:    s.spillEvictions.Load(),
	}
	s.failures.Range(func(key, value any) bool {
		fkey, ok := key.(failureKey)
		if !ok {
			return true
		}
		counter, ok := value.(*atomic.Uint64)
		if !ok || counter == nil {
			return true
		}
		snap.Failures = append(snap.Failures, FailureCount{Type: fkey.Type, Kind: fkey.Kind, Count: counter.Load()})
		return true
	})
	sort.Slice(snap.Failures, func(i, j int) bool {
		if snap.Failures[i].Type == snap.Failures[j].Type {
			return snap.Failures[i].Kind < snap.Failures[j].Kind
		}
		return snap.Failures[i].Type < snap.Failures[j].Type
	})
	return snap
}

func typeCounts(m *sync.Map) []TypeCount {
	var counts []TypeCount
	m.Range(func(key, value any) bool {
		name, ok := key.(string)
		if !ok {
			return true
		}
		counter, ok := value.(*atomic.Uint64)
		if !ok || counter == nil {
			return true
		}
		counts = append(counts, TypeCount{Type: name, Count: counter.Load()})
		return true
	})
	sort.Slice(counts, func(i, j int) bool { return counts[i].Type < counts[j].Type })
	return counts
}

func counterFor(m *sync.Map, key any) *atomic.Uint64 {
	if value, ok := m.Load(key); ok {
		if counter, ok := value.(*atomic.Uint64); ok && counter != nil {
			return counter
		}
	}
	counter := &atomic.Uint64{}
	actual, _ := m.LoadOrStore(key, counter)
	if existing, ok := actual.(*atomic.Uint64); ok && existing != nil {
		return existing
	}
	return counter
}

func normalizeLabel(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	return v
}

// DecodeRecorder returns a DecodeRecorder backed by the store.
func (s *Store) DecodeRecorder() DecodeRecorder {
	return decodeRecorder{store: s}
}

// SpillRecorder returns a SpillRecorder backed by the store.
func (s *Store) SpillRecorder() SpillRecorder {
	return spillRecorder{store: s}
}

type decodeRecorder struct {
	store *Store
}

func (r decodeRecorder) ObserveRecord(kind string) {
	counterFor(&r.store.records, normalizeLabel(kind)).Add(1)
}

func (r decodeRecorder) ObserveDecoded(kind string) {
	counterFor(&r.store.decoded, normalizeLabel(kind)).Add(1)
}

func (r decodeRecorder) ObserveFailure(kind, errKind string) {
	key := failureKey{Type: normalizeLabel(kind), Kind: normalizeLabel(errKind)}
	counterFor(&r.store.failures, key).Add(1)
}

type spillRecorder struct {
	store *Store
}

func (r spillRecorder) ObservePendingBytes(bytes int64) {
	if bytes < 0 {
		bytes = 0
	}
	r.store.spillPendingBytes.Store(bytes)
}

func (r spillRecorder) IncSpillEvictions() {
	r.store.spillEvictions.Add(1)
}

// WritePrometheus renders the current metrics using the Prometheus text format.
func (s *Store) WritePrometheus(w io.Writer) error {
	snap := s.Snapshot()
	lines := []string{
		"# HELP atlasdecode_records_total Records read, by measurement type.",
		"# TYPE atlasdecode_records_total counter",
	}
	for _, c := range snap.Records {
		lines = append(lines, fmt.Sprintf("atlasdecode_records_total{type=%q} %d", c.Type, c.Count))
	}
	lines = append(lines,
		"# HELP atlasdecode_decoded_total Records decoded without error, by measurement type.",
		"# TYPE atlasdecode_decoded_total counter",
	)
	for _, c := range snap.Decoded {
		lines = append(lines, fmt.Sprintf("atlasdecode_decoded_total{type=%q} %d", c.Type, c.Count))
	}
	lines = append(lines,
		"# HELP atlasdecode_failures_total Records that failed to decode, by measurement type and error kind.",
		"# TYPE atlasdecode_failures_total counter",
	)
	if len(snap.Failures) == 0 {
		lines = append(lines, fmt.Sprintf("atlasdecode_failures_total{type=%q,kind=%q} 0", "none", "none"))
	}
	for _, f := range snap.Failures {
		lines = append(lines, fmt.Sprintf("atlasdecode_failures_total{type=%q,kind=%q} %d", f.Type, f.Kind, f.Count))
	}
	lines = append(lines,
		"# HELP atlasdecode_spill_pending_bytes Bytes of failures waiting in the spill directory.",
		"# TYPE atlasdecode_spill_pending_bytes gauge",
		fmt.Sprintf("atlasdecode_spill_pending_bytes %d", snap.SpillPendingBytes),
		"# HELP atlasdecode_spill_evictions_total Spill segments dropped to stay under the disk cap.",
		"# TYPE atlasdecode_spill_evictions_total counter",
		fmt.Sprintf("atlasdecode_spill_evictions_total %d", snap.SpillEvictions),
		"",
	)
	for _, line := range lines {
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// NewHTTPHandler returns an http.Handler that serves Prometheus formatted metrics.
func NewHTTPHandler(store *Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		if r.Method == http.MethodHead {
			return
		}
		if err := store.WritePrometheus(w); err != nil {
			http.Error(w, "metrics unavailable", http.StatusInternalServerError)
		}
	})
}
