package corpus

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

const ndjson = `{"type":"ping","prb_id":1}

{"type":"traceroute","prb_id":2}
`

func collect(t *testing.T, fn func(out chan<- Record) error) []Record {
	t.Helper()
	out := make(chan Record, 16)
	errCh := make(chan error, 1)
	go func() {
		errCh <- fn(out)
		close(out)
	}()
	var recs []Record
	for rec := range out {
		recs = append(recs, rec)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return recs
}

func TestRecordsNDJSON(t *testing.T) {
	recs := collect(t, func(out chan<- Record) error {
		return Records(context.Background(), strings.NewReader(ndjson), "dump.ndjson", out)
	})
	if len(recs) != 2 {
		t.Fatalf("expected 2 records got %d", len(recs))
	}
	if recs[1].Line != 3 || !strings.Contains(string(recs[1].Raw), "traceroute") {
		t.Fatalf("unexpected second record %+v", recs[1])
	}
	if recs[0].Source != "dump.ndjson" {
		t.Fatalf("unexpected source %q", recs[0].Source)
	}
}

func TestRecordsArray(t *testing.T) {
	input := "  \n[{\"type\":\"ping\"},\n {\"type\":\"dns\"}]\n"
	recs := collect(t, func(out chan<- Record) error {
		return Records(context.Background(), strings.NewReader(input), "dump.json", out)
	})
	if len(recs) != 2 {
		t.Fatalf("expected 2 records got %d", len(recs))
	}
	if recs[1].Line != 2 || string(recs[1].Raw) != `{"type":"dns"}` {
		t.Fatalf("unexpected second record %+v", recs[1])
	}
}

func TestRecordsEmptyInput(t *testing.T) {
	recs := collect(t, func(out chan<- Record) error {
		return Records(context.Background(), strings.NewReader(" \n"), "empty", out)
	})
	if len(recs) != 0 {
		t.Fatalf("expected no records got %d", len(recs))
	}
}

func TestRecordsStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := make(chan Record)
	if err := Records(ctx, strings.NewReader(ndjson), "dump", out); err == nil {
		t.Fatalf("expected cancellation error")
	}
}

func TestStreamCompressed(t *testing.T) {
	dir := t.TempDir()

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	if _, err := zw.Write([]byte(ndjson)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	zst := enc.EncodeAll([]byte(ndjson), nil)
	enc.Close()

	files := map[string][]byte{
		"dump.ndjson.gz":  gz.Bytes(),
		"dump.ndjson.zst": zst,
		"dump.ndjson":     []byte(ndjson),
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, content, 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		recs := collect(t, func(out chan<- Record) error {
			return Stream(context.Background(), path, out)
		})
		if len(recs) != 2 {
			t.Fatalf("%s: expected 2 records got %d", name, len(recs))
		}
	}
}

func TestOpenMissing(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing.gz")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
