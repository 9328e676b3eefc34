package corpus

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const maxLineBytes = 64 << 20

// Record is one raw result taken from a dump. Line is the 1-based line number for
// newline-delimited input and the 1-based element index for a JSON array.
type Record struct {
	Source string
	Line   int
	Raw    []byte
}

// Records streams the results in r to out until r is exhausted or ctx is cancelled.
// Input is either newline-delimited JSON or a single JSON array; blank lines are skipped.
func Records(ctx context.Context, r io.Reader, source string, out chan<- Record) error {
	br := bufio.NewReaderSize(r, 1<<16)
	first, err := firstByte(br)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %q: %w", source, err)
	}
	if first == '[' {
		return arrayRecords(ctx, br, source, out)
	}
	return lineRecords(ctx, br, source, out)
}

func firstByte(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		if b == ' ' || b == '\t' || b == '\r' || b == '\n' {
			continue
		}
		return b, br.UnreadByte()
	}
}

func lineRecords(ctx context.Context, r io.Reader, source string, out chan<- Record) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1<<16), maxLineBytes)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		rec := Record{Source: source, Line: line, Raw: bytes.Clone(raw)}
		if err := send(ctx, out, rec); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan %q at line %d: %w", source, line+1, err)
	}
	return nil
}

func arrayRecords(ctx context.Context, r io.Reader, source string, out chan<- Record) error {
	dec := json.NewDecoder(r)
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("read %q: %w", source, err)
	}
	index := 0
	for dec.More() {
		index++
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("read %q element %d: %w", source, index, err)
		}
		if err := send(ctx, out, Record{Source: source, Line: index, Raw: raw}); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("read %q: %w", source, err)
	}
	return nil
}

func send(ctx context.Context, out chan<- Record, rec Record) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case out <- rec:
		return nil
	}
}

// Stream opens path and streams its records.
func Stream(ctx context.Context, path string, out chan<- Record) error {
	rc, err := Open(path)
	if err != nil {
		return err
	}
	defer rc.Close()
	return Records(ctx, rc, path, out)
}
