// Package log writes and reads zstd-compressed JSONL segment files.
package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// DefaultSegmentBytes caps the uncompressed size of one segment.
const DefaultSegmentBytes = 64 << 20

// SegmentWriter appends JSON lines to <dir>/<prefix>-<hour>-<part>.jsonl.zst.
// A new segment starts each UTC hour and whenever the current one reaches
// MaxBytes of uncompressed lines.
//
// Lines are buffered until Flush, so callers that write in bursts (a tick's
// worth of frames) pay for one encoder flush per burst.
type SegmentWriter struct {
	Dir      string
	Prefix   string
	MaxBytes int64

	now func() time.Time

	mu   sync.Mutex
	seg  *segment
	hour string
	part int
}

type segment struct {
	f     *os.File
	enc   *zstd.Encoder
	buf   *bufio.Writer
	bytes int64
}

func NewSegmentWriter(dir, prefix string) *SegmentWriter {
	return &SegmentWriter{Dir: dir, Prefix: prefix, MaxBytes: DefaultSegmentBytes, now: time.Now}
}

// Write buffers v as one line, opening a new segment first when needed.
func (w *SegmentWriter) Write(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	switch {
	case w.seg == nil || hour != w.hour:
		if err := w.open(hour, w.lastPart(hour)); err != nil {
			return err
		}
	case w.MaxBytes > 0 && w.seg.bytes > 0 && w.seg.bytes+int64(len(line)) > w.MaxBytes:
		if err := w.open(hour, w.part+1); err != nil {
			return err
		}
	}
	n, err := w.seg.buf.Write(line)
	w.seg.bytes += int64(n)
	return err
}

// Flush pushes buffered lines through the encoder to the file.
func (w *SegmentWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.seg == nil {
		return nil
	}
	return w.seg.flush()
}

func (w *SegmentWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.seg == nil {
		return nil
	}
	err := w.seg.close()
	w.seg = nil
	return err
}

// lastPart resumes the newest existing segment of hour after a restart.
func (w *SegmentWriter) lastPart(hour string) int {
	matches, _ := filepath.Glob(filepath.Join(w.Dir, w.Prefix+"-"+hour+"-*.jsonl.zst"))
	last := 0
	for _, m := range matches {
		var part int
		name := strings.TrimSuffix(filepath.Base(m), ".jsonl.zst")
		if _, err := fmt.Sscanf(name[strings.LastIndexByte(name, '-')+1:], "%d", &part); err == nil && part > last {
			last = part
		}
	}
	return last
}

func (w *SegmentWriter) open(hour string, part int) error {
	if w.seg != nil {
		if err := w.seg.close(); err != nil {
			return err
		}
		w.seg = nil
	}
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(w.Dir, fmt.Sprintf("%s-%s-%03d.jsonl.zst", w.Prefix, hour, part))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		f.Close()
		return err
	}
	w.seg = &segment{f: f, enc: enc, buf: bufio.NewWriter(enc)}
	w.hour = hour
	w.part = part
	return nil
}

func (s *segment) flush() error {
	if err := s.buf.Flush(); err != nil {
		return err
	}
	return s.enc.Flush()
}

func (s *segment) close() error {
	ferr := s.buf.Flush()
	if err := s.enc.Close(); ferr == nil {
		ferr = err
	}
	if err := s.f.Close(); ferr == nil {
		ferr = err
	}
	return ferr
}

// ListFiles returns dir's <prefix>-*.jsonl.zst files in time order.
func ListFiles(dir, prefix string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, prefix+"-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// ReadLines calls fn with every line of a compressed JSONL file. The slice
// is only valid during the call.
func ReadLines(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		if err := fn(sc.Bytes()); err != nil {
			return err
		}
	}
	return sc.Err()
}
