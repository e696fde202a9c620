package input

import (
	"sort"

	"worldsmith.dev/internal/protocol"
)

// ClickDetector remembers what is on screen so mouse presses can be
// resolved to entities.
type ClickDetector struct {
	objects map[string]protocol.RenderObject
}

func NewClickDetector() *ClickDetector {
	return &ClickDetector{objects: map[string]protocol.RenderObject{}}
}

func (d *ClickDetector) Len() int { return len(d.objects) }

func (d *ClickDetector) Get(id string) (protocol.RenderObject, bool) {
	o, ok := d.objects[id]
	return o, ok
}

// Update applies a display package: deleted objects are forgotten, the rest
// are inserted or replaced.
func (d *ClickDetector) Update(objs []protocol.RenderObject) {
	for _, o := range objs {
		if o.Deleted {
			delete(d.objects, o.ID)
			continue
		}
		d.objects[o.ID] = o
	}
}

// ClickObjects returns every object whose screen rectangle contains (x, y),
// ordered by ascending depth, then id.
func (d *ClickDetector) ClickObjects(cam Camera, x, y float64) []protocol.RenderObject {
	var hits []protocol.RenderObject
	for _, o := range d.objects {
		tl := cam.Transform(o.Position.X, o.Position.Y)
		br := cam.Transform(
			o.Position.X+o.TextureSubregion.Width*o.Scale.X,
			o.Position.Y+o.TextureSubregion.Height*o.Scale.Y,
		)
		// Negative scale flips the rectangle.
		if br.X < tl.X {
			tl.X, br.X = br.X, tl.X
		}
		if br.Y < tl.Y {
			tl.Y, br.Y = br.Y, tl.Y
		}
		if x >= tl.X && x < br.X && y >= tl.Y && y < br.Y {
			hits = append(hits, o)
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Depth != hits[j].Depth {
			return hits[i].Depth < hits[j].Depth
		}
		return hits[i].ID < hits[j].ID
	})
	return hits
}
