package validate

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pingsantohq/atlasdecode/internal/config"
	"github.com/pingsantohq/atlasdecode/internal/failures"
	"github.com/pingsantohq/atlasdecode/internal/metrics"
)

const validPing = `{"fw":4790,"from":"203.0.113.7","msm_id":1,"msm_name":"Ping","prb_id":1,"timestamp":1700000000,"type":"ping","af":4,"avg":1.5,"dst_name":"example.com","dup":0,"max":2,"min":1,"proto":"ICMP","rcvd":2,"sent":2,"size":48,"result":[{"rtt":1},{"rtt":2}]}`

var badPing = strings.Replace(validPing, `{"rtt":2}`, `{"ttl":2}`, 1)

func writeDump(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dump.ndjson")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600); err != nil {
		t.Fatalf("write dump: %v", err)
	}
	return path
}

func TestRunCountsAndRecordsFailures(t *testing.T) {
	path := writeDump(t, validPing, badPing, "", validPing, `{"type":"wifi"}`)
	sink := failures.NewMemorySink()
	store := metrics.NewStore()
	var logs bytes.Buffer

	r := New(config.ValidateConfig{Workers: 3, FailureLogBurst: 10}, Dependencies{
		Logger:  log.New(&logs, "", 0),
		Sink:    sink,
		Metrics: store.DecodeRecorder(),
	})
	report, err := r.Run(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.RunID == "" || report.Aborted {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.Records != 4 || report.Decoded != 2 || report.Failures != 2 {
		t.Fatalf("unexpected counts %+v", report)
	}
	if report.ByType["ping"] != 3 || report.ByType["wifi"] != 1 {
		t.Fatalf("unexpected type counts %v", report.ByType)
	}
	if report.ByKind["missing_field"] != 1 || report.ByKind["invalid_variant"] != 1 {
		t.Fatalf("unexpected kind counts %v", report.ByKind)
	}

	recorded := sink.Failures()
	if len(recorded) != 2 {
		t.Fatalf("expected 2 recorded failures got %d", len(recorded))
	}
	for _, f := range recorded {
		if f.RunID != report.RunID || f.Source != path {
			t.Fatalf("unexpected failure %+v", f)
		}
		if f.Kind == "missing_field" && (f.Line != 2 || f.Path != "result[1].rtt") {
			t.Fatalf("unexpected missing field failure %+v", f)
		}
	}
	if !strings.Contains(logs.String(), `"ttl": 2`) {
		t.Fatalf("expected pretty record in logs, got:\n%s", logs.String())
	}

	snap := store.Snapshot()
	if len(snap.Failures) != 2 {
		t.Fatalf("expected failure metrics, got %+v", snap.Failures)
	}
}

func TestRunStrictMode(t *testing.T) {
	path := writeDump(t, strings.Replace(validPing, `"dup":0`, `"dup":0,"zz_new":true`, 1))

	lenient, err := New(config.ValidateConfig{Workers: 1}, Dependencies{}).Run(context.Background(), path)
	if err != nil || lenient.Failures != 0 {
		t.Fatalf("unexpected lenient result %+v %v", lenient, err)
	}
	strict, err := New(config.ValidateConfig{Workers: 1, Strict: true}, Dependencies{}).Run(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strict.ByKind["unexpected_field"] != 1 {
		t.Fatalf("expected unexpected field failure, got %+v", strict)
	}
}

func TestRunStopsAtMaxFailures(t *testing.T) {
	lines := make([]string, 50)
	for i := range lines {
		lines[i] = badPing
	}
	path := writeDump(t, lines...)
	sink := failures.NewMemorySink()

	report, err := New(config.ValidateConfig{Workers: 2, MaxFailures: 3}, Dependencies{Sink: sink}).Run(context.Background(), path)
	if err != nil {
		t.Fatalf("abort must not be an error: %v", err)
	}
	if !report.Aborted || report.Failures != 3 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(sink.Failures()) != 3 {
		t.Fatalf("expected 3 recorded failures got %d", len(sink.Failures()))
	}
}

type failingSink struct{}

func (failingSink) Record(context.Context, failures.Failure) error {
	return errors.New("disk full")
}

func TestRunSinkError(t *testing.T) {
	path := writeDump(t, badPing, badPing)
	_, err := New(config.ValidateConfig{Workers: 1}, Dependencies{Sink: failingSink{}}).Run(context.Background(), path)
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected sink error, got %v", err)
	}
}

func TestRunSignatureRequired(t *testing.T) {
	path := writeDump(t, validPing)
	_, err := New(config.ValidateConfig{}, Dependencies{RequireSignature: true}).Run(context.Background(), path)
	if !errors.Is(err, ErrSignatureRequired) {
		t.Fatalf("expected ErrSignatureRequired, got %v", err)
	}
}

func TestRunMissingFile(t *testing.T) {
	_, err := New(config.ValidateConfig{}, Dependencies{}).Run(context.Background(), filepath.Join(t.TempDir(), "missing.json"))
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
}
