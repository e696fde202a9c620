// Package render keeps the client's view of what the authority displays.
// It draws nothing; it tracks objects and their texture loads so a front end
// (or a test) can read a consistent picture each tick.
package render

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"

	"worldsmith.dev/internal/protocol"
)

// Loader fetches texture data. It runs on a background goroutine.
type Loader interface {
	Load(texture string) ([]byte, error)
}

// DirLoader reads textures from files under Root.
type DirLoader struct {
	Root string
}

func (d DirLoader) Load(texture string) ([]byte, error) {
	clean := filepath.Clean("/" + strings.TrimSpace(texture))
	return os.ReadFile(filepath.Join(d.Root, clean))
}

type Poster interface {
	Post(fn func())
}

// Object is one tracked render object plus its applied texture.
type Object struct {
	protocol.RenderObject
	// AppliedTexture is the texture whose data is loaded, which can lag
	// RenderObject.Texture while a load is in flight.
	AppliedTexture string
	TextureBytes   int

	appliedSeq uint64
	// wantSeq is the sequence of the latest texture change; older loads
	// never apply.
	wantSeq uint64
}

type Stats struct {
	Objects      int
	Frames       uint64
	LoadsStarted uint64
	LoadsApplied uint64
	LoadsStale   uint64
	LoadsFailed  uint64
	TextureBytes uint64
}

func (s Stats) String() string {
	return "objects=" + humanize.Comma(int64(s.Objects)) +
		" frames=" + humanize.Comma(int64(s.Frames)) +
		" textures=" + humanize.Comma(int64(s.LoadsApplied)) +
		" (" + humanize.Bytes(s.TextureBytes) + ")" +
		" stale=" + humanize.Comma(int64(s.LoadsStale))
}

// Table is touched only from the loop goroutine; texture loads post their
// completions back through the Poster.
type Table struct {
	loader Loader
	exec   Poster
	log    *log.Logger

	objects map[string]*Object
	seq     uint64
	dirty   map[string]struct{}

	wg    sync.WaitGroup
	stats Stats
}

func NewTable(loader Loader, exec Poster, logger *log.Logger) *Table {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Table{
		loader:  loader,
		exec:    exec,
		log:     logger,
		objects: map[string]*Object{},
		dirty:   map[string]struct{}{},
	}
}

// UpdateRenderObject inserts, moves or removes one object. Every texture
// change takes a fresh sequence number, and a load for a non-empty texture
// is started under it. Clearing the texture clears the applied one.
func (t *Table) UpdateRenderObject(ro protocol.RenderObject) {
	t.dirty[ro.ID] = struct{}{}
	if ro.Deleted {
		delete(t.objects, ro.ID)
		return
	}
	o, ok := t.objects[ro.ID]
	if !ok {
		// Loads started for an earlier object with this id are stale.
		o = &Object{appliedSeq: t.seq, wantSeq: t.seq}
		t.objects[ro.ID] = o
	}
	prev := o.Texture
	o.RenderObject = ro
	if ok && prev == ro.Texture {
		return
	}
	t.seq++
	o.wantSeq = t.seq
	if ro.Texture == "" {
		o.AppliedTexture = ""
		o.TextureBytes = 0
		return
	}
	if t.loader == nil || t.exec == nil {
		return
	}
	t.startLoad(ro.ID, t.seq, ro.Texture)
}

func (t *Table) startLoad(id string, seq uint64, texture string) {
	t.stats.LoadsStarted++
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		data, err := t.loader.Load(texture)
		t.exec.Post(func() { t.TextureLoaded(id, seq, texture, data, err) })
	}()
}

// TextureLoaded applies a finished load unless the object's texture changed
// after the load started, a newer load was already applied, or the object is
// gone. It reports whether the
// texture was applied.
func (t *Table) TextureLoaded(id string, seq uint64, texture string, data []byte, err error) bool {
	if err != nil {
		t.stats.LoadsFailed++
		t.log.Printf("texture %q for %s: %v", texture, id, err)
		return false
	}
	o, ok := t.objects[id]
	if !ok || seq < o.wantSeq || seq <= o.appliedSeq {
		t.stats.LoadsStale++
		return false
	}
	o.appliedSeq = seq
	o.AppliedTexture = texture
	o.TextureBytes = len(data)
	t.stats.LoadsApplied++
	t.stats.TextureBytes += uint64(len(data))
	t.dirty[id] = struct{}{}
	return true
}

// Update closes one frame and returns how many objects changed since the
// previous one.
func (t *Table) Update() int {
	n := len(t.dirty)
	if n > 0 {
		t.dirty = map[string]struct{}{}
	}
	t.stats.Frames++
	return n
}

func (t *Table) Get(id string) (Object, bool) {
	o, ok := t.objects[id]
	if !ok {
		return Object{}, false
	}
	return *o, true
}

// Objects returns a snapshot in draw order: ascending depth, then id.
func (t *Table) Objects() []Object {
	out := make([]Object, 0, len(t.objects))
	for _, o := range t.objects {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Depth != out[j].Depth {
			return out[i].Depth < out[j].Depth
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (t *Table) Stats() Stats {
	st := t.stats
	st.Objects = len(t.objects)
	return st
}

// Wait blocks until every started load has posted its completion.
func (t *Table) Wait() { t.wg.Wait() }
