package log

import (
	"encoding/json"
	"path/filepath"
	"time"

	"worldsmith.dev/internal/network"
	"worldsmith.dev/internal/protocol"
)

const framesPrefix = "frames"

// FrameEntry is one recorded frame. Frames that are valid JSON are kept
// inline in Frame; anything else is kept verbatim in Raw.
type FrameEntry struct {
	At    time.Time         `json:"at"`
	Dir   network.Direction `json:"dir"`
	Kind  protocol.Kind     `json:"kind,omitempty"`
	Code  string            `json:"code,omitempty"`
	Frame json.RawMessage   `json:"frame,omitempty"`
	Raw   string            `json:"raw,omitempty"`
}

// Bytes returns the frame as it was on the wire.
func (e FrameEntry) Bytes() []byte {
	if e.Frame != nil {
		return e.Frame
	}
	return []byte(e.Raw)
}

// FrameRecorder keeps every frame the network system sees under
// <data>/frames/frames-YYYY-MM-DD-HH-NNN.jsonl.zst. Frames are buffered
// until Flush; the game flushes once per tick.
type FrameRecorder struct{ w *SegmentWriter }

func NewFrameRecorder(dataDir string) *FrameRecorder {
	return &FrameRecorder{w: NewSegmentWriter(FramesDir(dataDir), framesPrefix)}
}

func FramesDir(dataDir string) string { return filepath.Join(dataDir, "frames") }

func (r *FrameRecorder) RecordFrame(f network.Frame) error {
	e := FrameEntry{At: f.At.UTC(), Dir: f.Dir, Kind: f.Kind, Code: f.Code}
	if json.Valid(f.Data) {
		e.Frame = append(json.RawMessage(nil), f.Data...)
	} else {
		e.Raw = string(f.Data)
	}
	return r.w.Write(e)
}

func (r *FrameRecorder) Flush() error { return r.w.Flush() }
func (r *FrameRecorder) Close() error { return r.w.Close() }

// ListFrameFiles returns the recorded frame files under dataDir in order.
func ListFrameFiles(dataDir string) ([]string, error) {
	return ListFiles(FramesDir(dataDir), framesPrefix)
}

// ReadFrames calls fn with every entry of one frame file.
func ReadFrames(path string, fn func(FrameEntry) error) error {
	return ReadLines(path, func(line []byte) error {
		var e FrameEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return err
		}
		return fn(e)
	})
}
