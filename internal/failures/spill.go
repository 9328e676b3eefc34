package failures

import (
	"bufio"
	"cmp"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/pingsantohq/atlasdecode/internal/metrics"
)

const (
	spillPrefix      = "failures-"
	spillSuffix      = ".seg"
	cursorFileName   = "cursor.json"
	frameHeaderBytes = 4
	defaultSpillCap  = 1 << 30
	defaultBatchSize = 256
)

// SpillStore is an on-disk log of failures split into numbered segments. Failures are
// framed as a big-endian length followed by JSON. A cursor file tracks what has been
// acknowledged, and the oldest segments are dropped when the log outgrows its cap.
type SpillStore struct {
	mu           sync.Mutex
	dir          string
	capBytes     int64
	segmentBytes int64
	recorder     metrics.SpillRecorder

	segs    []*spillSegment
	tail    *os.File
	nextSeq int64
	cursor  spillCursor
	size    int64
}

type spillSegment struct {
	seq  int64
	path string
	size int64
}

type spillCursor struct {
	Seq    int64 `json:"seq"`
	Offset int64 `json:"offset"`
}

func (c spillCursor) before(o spillCursor) bool {
	return c.Seq < o.Seq || (c.Seq == o.Seq && c.Offset < o.Offset)
}

// Batch is a run of failures read from the head of the log. Ack it once handled.
type Batch struct {
	Failures []Failure
	end      spillCursor
}

type SpillOption func(*SpillStore)

// WithSpillRecorder reports log size and evictions.
func WithSpillRecorder(r metrics.SpillRecorder) SpillOption {
	return func(s *SpillStore) {
		if r != nil {
			s.recorder = r
		}
	}
}

// OpenSpill opens or creates the log in dir.
func OpenSpill(dir string, capBytes, segmentBytes int64, opts ...SpillOption) (*SpillStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("ensure spill dir %q: %w", dir, err)
	}
	if capBytes <= 0 {
		capBytes = defaultSpillCap
	}
	if segmentBytes <= 0 || segmentBytes > capBytes {
		segmentBytes = min(capBytes, 16<<20)
	}
	s := &SpillStore{
		dir:          dir,
		capBytes:     capBytes,
		segmentBytes: segmentBytes,
		recorder:     metrics.NoopSpillRecorder{},
		nextSeq:      1,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.scan(); err != nil {
		return nil, err
	}
	if err := s.readCursor(); err != nil {
		return nil, err
	}
	s.recorder.ObservePendingBytes(s.size)
	return s, nil
}

// Record appends f to the log.
func (s *SpillStore) Record(ctx context.Context, f Failure) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Append(f)
}

// Append writes f and syncs it to disk.
func (s *SpillStore) Append(f Failure) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal failure: %w", err)
	}
	buf := make([]byte, frameHeaderBytes+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[frameHeaderBytes:], payload)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureTail(int64(len(buf))); err != nil {
		return err
	}
	seg := s.segs[len(s.segs)-1]
	if _, err := s.tail.Write(buf); err != nil {
		return fmt.Errorf("write segment %q: %w", seg.path, err)
	}
	if err := s.tail.Sync(); err != nil {
		return fmt.Errorf("sync segment %q: %w", seg.path, err)
	}
	seg.size += int64(len(buf))
	s.size += int64(len(buf))

	if err := s.evict(); err != nil {
		return err
	}
	s.recorder.ObservePendingBytes(s.size)
	return nil
}

// ReadBatch returns up to max unacknowledged failures, oldest first. It does not move
// the cursor.
func (s *SpillStore) ReadBatch(max int) (Batch, error) {
	if max <= 0 {
		max = defaultBatchSize
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	pos := s.cursor
	i := slices.IndexFunc(s.segs, func(seg *spillSegment) bool { return seg.seq >= pos.Seq })
	if i < 0 {
		return Batch{end: pos}, nil
	}
	if s.segs[i].seq != pos.Seq {
		pos = spillCursor{Seq: s.segs[i].seq}
	}

	b := Batch{end: pos}
	for ; i < len(s.segs) && len(b.Failures) < max; i++ {
		seg := s.segs[i]
		if seg.seq != pos.Seq {
			pos = spillCursor{Seq: seg.seq}
		}
		read, err := readFrames(seg, pos.Offset, max-len(b.Failures))
		if err != nil {
			return Batch{}, err
		}
		for _, fr := range read {
			b.Failures = append(b.Failures, fr.failure)
			pos.Offset = fr.end
		}
		b.end = pos
		if pos.Offset < seg.size {
			break
		}
	}
	return b, nil
}

type frame struct {
	failure Failure
	end     int64
}

func readFrames(seg *spillSegment, offset int64, max int) ([]frame, error) {
	file, err := os.Open(seg.path)
	if err != nil {
		return nil, fmt.Errorf("open segment %q: %w", seg.path, err)
	}
	defer file.Close()
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek segment %q: %w", seg.path, err)
	}

	r := bufio.NewReader(io.LimitReader(file, seg.size-offset))
	var out []frame
	header := make([]byte, frameHeaderBytes)
	for len(out) < max {
		if _, err := io.ReadFull(r, header); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return nil, fmt.Errorf("read frame header in %q: %w", seg.path, err)
		}
		payload := make([]byte, binary.BigEndian.Uint32(header))
		if _, err := io.ReadFull(r, payload); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				// torn write at the end of the segment
				break
			}
			return nil, fmt.Errorf("read frame in %q: %w", seg.path, err)
		}
		var f Failure
		if err := json.Unmarshal(payload, &f); err != nil {
			return nil, fmt.Errorf("decode frame in %q: %w", seg.path, err)
		}
		offset += int64(frameHeaderBytes + len(payload))
		out = append(out, frame{failure: f, end: offset})
	}
	return out, nil
}

// Ack moves the cursor past b and deletes segments that are fully consumed.
func (s *SpillStore) Ack(b Batch) error {
	if len(b.Failures) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.end.before(s.cursor) {
		return nil
	}
	s.cursor = b.end
	for len(s.segs) > 0 {
		head := s.segs[0]
		consumed := head.seq < s.cursor.Seq || (head.seq == s.cursor.Seq && s.cursor.Offset >= head.size)
		if !consumed {
			break
		}
		if err := s.dropHead(); err != nil {
			return err
		}
	}
	if len(s.segs) == 0 {
		s.cursor = spillCursor{Seq: s.nextSeq}
	}
	s.recorder.ObservePendingBytes(s.size)
	return s.writeCursor()
}

// SizeBytes reports the bytes held on disk, acknowledged or not.
func (s *SpillStore) SizeBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

func (s *SpillStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeTail()
}

func (s *SpillStore) closeTail() error {
	if s.tail == nil {
		return nil
	}
	err := s.tail.Close()
	s.tail = nil
	return err
}

// ensureTail makes sure the last segment is open and can take n more bytes.
func (s *SpillStore) ensureTail(n int64) error {
	if len(s.segs) > 0 {
		last := s.segs[len(s.segs)-1]
		if last.size == 0 || last.size+n <= s.segmentBytes {
			if s.tail != nil {
				return nil
			}
			file, err := os.OpenFile(last.path, os.O_WRONLY|os.O_APPEND, 0o600)
			if err != nil {
				return fmt.Errorf("open segment %q: %w", last.path, err)
			}
			s.tail = file
			return nil
		}
	}
	if err := s.closeTail(); err != nil {
		return fmt.Errorf("close segment: %w", err)
	}
	seq := s.nextSeq
	path := filepath.Join(s.dir, fmt.Sprintf("%s%08d%s", spillPrefix, seq, spillSuffix))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("create segment %q: %w", path, err)
	}
	s.segs = append(s.segs, &spillSegment{seq: seq, path: path})
	s.tail = file
	s.nextSeq = seq + 1
	return nil
}

// evict drops the oldest segments until the log fits its cap. The segment being
// written is never dropped.
func (s *SpillStore) evict() error {
	evicted := false
	for s.size > s.capBytes && len(s.segs) > 1 {
		if err := s.dropHead(); err != nil {
			return err
		}
		s.recorder.IncSpillEvictions()
		evicted = true
	}
	if !evicted {
		return nil
	}
	if s.cursor.Seq < s.segs[0].seq {
		s.cursor = spillCursor{Seq: s.segs[0].seq}
	}
	return s.writeCursor()
}

func (s *SpillStore) dropHead() error {
	head := s.segs[0]
	if len(s.segs) == 1 {
		if err := s.closeTail(); err != nil {
			return fmt.Errorf("close segment %q: %w", head.path, err)
		}
	}
	if err := os.Remove(head.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove segment %q: %w", head.path, err)
	}
	s.size -= head.size
	s.segs = s.segs[1:]
	return nil
}

func (s *SpillStore) scan() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read spill dir: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, spillPrefix) || !strings.HasSuffix(name, spillSuffix) {
			continue
		}
		seq, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(name, spillPrefix), spillSuffix), 10, 64)
		if err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return fmt.Errorf("stat segment %q: %w", name, err)
		}
		s.segs = append(s.segs, &spillSegment{seq: seq, path: filepath.Join(s.dir, name), size: info.Size()})
		s.size += info.Size()
		if seq >= s.nextSeq {
			s.nextSeq = seq + 1
		}
	}
	slices.SortFunc(s.segs, func(a, b *spillSegment) int { return cmp.Compare(a.seq, b.seq) })
	if len(s.segs) == 0 {
		return nil
	}
	// A crash mid-Append leaves a partial frame at the end of the tail segment. Cut it
	// off so later appends start on a frame boundary.
	tail := s.segs[len(s.segs)-1]
	end, err := wholeFramesEnd(tail)
	if err != nil {
		return err
	}
	if end < tail.size {
		if err := os.Truncate(tail.path, end); err != nil {
			return fmt.Errorf("truncate torn segment %q: %w", tail.path, err)
		}
		s.size -= tail.size - end
		tail.size = end
	}
	return nil
}

// wholeFramesEnd returns the offset just past the last complete frame in seg.
func wholeFramesEnd(seg *spillSegment) (int64, error) {
	file, err := os.Open(seg.path)
	if err != nil {
		return 0, fmt.Errorf("open segment %q: %w", seg.path, err)
	}
	defer file.Close()

	r := bufio.NewReader(file)
	header := make([]byte, frameHeaderBytes)
	var end int64
	for {
		if _, err := io.ReadFull(r, header); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return end, nil
			}
			return 0, fmt.Errorf("read frame header in %q: %w", seg.path, err)
		}
		n := int64(binary.BigEndian.Uint32(header))
		next := end + frameHeaderBytes + n
		if next > seg.size {
			return end, nil
		}
		if _, err := r.Discard(int(n)); err != nil {
			return 0, fmt.Errorf("skip frame in %q: %w", seg.path, err)
		}
		end = next
	}
}

func (s *SpillStore) readCursor() error {
	data, err := os.ReadFile(filepath.Join(s.dir, cursorFileName))
	if errors.Is(err, os.ErrNotExist) {
		if len(s.segs) > 0 {
			s.cursor = spillCursor{Seq: s.segs[0].seq}
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("read cursor: %w", err)
	}
	if err := json.Unmarshal(data, &s.cursor); err != nil {
		return fmt.Errorf("parse cursor: %w", err)
	}
	return nil
}

func (s *SpillStore) writeCursor() error {
	path := filepath.Join(s.dir, cursorFileName)
	data, err := json.Marshal(s.cursor)
	if err != nil {
		return fmt.Errorf("marshal cursor: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write cursor: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit cursor: %w", err)
	}
	return nil
}
