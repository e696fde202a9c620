package log

import (
	"path/filepath"
	"testing"
	"time"

	"worldsmith.dev/internal/network"
	"worldsmith.dev/internal/protocol"
)

func TestFrameRecorder_RoundTripAcrossRotation(t *testing.T) {
	dir := t.TempDir()
	rec := NewFrameRecorder(dir)
	clock := time.Date(2024, 5, 1, 10, 59, 0, 0, time.UTC)
	rec.w.now = func() time.Time { return clock }

	frames := []network.Frame{
		{At: clock, Dir: network.Outbound, Kind: protocol.KindChatMessage, Data: []byte(`{"message":"hello"}`)},
		{At: clock, Dir: network.Inbound, Code: protocol.ErrCodeNotJSON, Data: []byte("not json")},
	}
	for _, f := range frames {
		if err := rec.RecordFrame(f); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	clock = clock.Add(2 * time.Minute)
	late := network.Frame{At: clock, Dir: network.Inbound, Kind: protocol.KindChatMessage, Data: []byte(`{"message":"later"}`)}
	if err := rec.RecordFrame(late); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := ListFrameFiles(dir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("files=%v, want one per hour", files)
	}
	if filepath.Base(files[0]) != "frames-2024-05-01-10-000.jsonl.zst" {
		t.Fatalf("first file=%s", files[0])
	}

	var got []FrameEntry
	for _, p := range files {
		if err := ReadFrames(p, func(e FrameEntry) error {
			got = append(got, e)
			return nil
		}); err != nil {
			t.Fatalf("read %s: %v", p, err)
		}
	}
	if len(got) != 3 {
		t.Fatalf("entries=%d", len(got))
	}
	if string(got[0].Bytes()) != `{"message":"hello"}` || got[0].Dir != network.Outbound || got[0].Kind != protocol.KindChatMessage {
		t.Fatalf("entry0=%+v", got[0])
	}
	if string(got[1].Bytes()) != "not json" || got[1].Code != protocol.ErrCodeNotJSON || got[1].Frame != nil {
		t.Fatalf("entry1=%+v", got[1])
	}
	if string(got[2].Bytes()) != `{"message":"later"}` || !got[2].At.Equal(clock) {
		t.Fatalf("entry2=%+v", got[2])
	}
}

func TestListFiles_FiltersAndSorts(t *testing.T) {
	dir := t.TempDir()
	for _, h := range []string{"2024-01-01-02", "2024-01-01-01"} {
		w := NewSegmentWriter(dir, "frames")
		hour, _ := time.Parse("2006-01-02-15", h)
		w.now = func() time.Time { return hour }
		if err := w.Write(map[string]int{"n": 1}); err != nil {
			t.Fatal(err)
		}
		if err := w.Close(); err != nil {
			t.Fatal(err)
		}
	}
	other := NewSegmentWriter(dir, "other")
	if err := other.Write(1); err != nil {
		t.Fatal(err)
	}
	_ = other.Close()

	files, err := ListFiles(dir, "frames")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "frames-2024-01-01-01-000.jsonl.zst" {
		t.Fatalf("files=%v", files)
	}
}

func TestSegmentWriter_SplitsBySizeAndResumes(t *testing.T) {
	dir := t.TempDir()
	hour := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	w := NewSegmentWriter(dir, "frames")
	w.MaxBytes = 16
	w.now = func() time.Time { return hour }
	for i := 0; i < 3; i++ {
		if err := w.Write(map[string]string{"n": "0123456"}); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := w.Flush(); err != nil {
			t.Fatalf("flush: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// A restart in the same hour appends to the newest segment.
	again := NewSegmentWriter(dir, "frames")
	again.now = func() time.Time { return hour }
	if err := again.Write(map[string]string{"n": "resumed"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := again.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := ListFiles(dir, "frames")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 3 || filepath.Base(files[2]) != "frames-2024-05-01-10-002.jsonl.zst" {
		t.Fatalf("files=%v", files)
	}
	var lines []string
	if err := ReadLines(files[2], func(line []byte) error {
		lines = append(lines, string(line))
		return nil
	}); err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(lines) != 2 || lines[1] != `{"n":"resumed"}` {
		t.Fatalf("lines=%v", lines)
	}
}
