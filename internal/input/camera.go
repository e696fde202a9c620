// Package input turns raw key and mouse events into editor intents.
package input

import "worldsmith.dev/internal/protocol"

// Camera maps world coordinates to screen coordinates.
type Camera struct {
	X, Y float64
	Zoom float64
}

func (c Camera) zoom() float64 {
	if c.Zoom == 0 {
		return 1
	}
	return c.Zoom
}

func (c Camera) Transform(x, y float64) protocol.Vec2 {
	z := c.zoom()
	return protocol.Vec2{X: (x - c.X) * z, Y: (y - c.Y) * z}
}

// Unproject is the inverse of Transform.
func (c Camera) Unproject(sx, sy float64) protocol.Vec2 {
	z := c.zoom()
	return protocol.Vec2{X: sx/z + c.X, Y: sy/z + c.Y}
}
