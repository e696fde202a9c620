package input

import (
	"testing"

	"worldsmith.dev/internal/protocol"
)

func obj(id string, x, y, depth float64) protocol.RenderObject {
	return protocol.RenderObject{
		ID:               id,
		Position:         protocol.Vec2{X: x, Y: y},
		Depth:            depth,
		Scale:            protocol.Vec2{X: 1, Y: 1},
		TextureSubregion: protocol.Rect{Width: 10, Height: 10},
	}
}

func ids(objs []protocol.RenderObject) []string {
	out := make([]string, len(objs))
	for i, o := range objs {
		out[i] = o.ID
	}
	return out
}

func TestClickDetector_UpdateRemovesDeleted(t *testing.T) {
	d := NewClickDetector()
	d.Update([]protocol.RenderObject{obj("a", 0, 0, 0), obj("b", 0, 0, 0)})
	if d.Len() != 2 {
		t.Fatalf("len=%d", d.Len())
	}
	del := obj("a", 0, 0, 0)
	del.Deleted = true
	moved := obj("b", 50, 50, 0)
	d.Update([]protocol.RenderObject{del, moved})
	if _, ok := d.Get("a"); ok {
		t.Fatalf("deleted object still clickable")
	}
	if b, _ := d.Get("b"); b.Position.X != 50 {
		t.Fatalf("object not replaced: %+v", b)
	}
}

func TestClickDetector_HitsSortedByDepth(t *testing.T) {
	d := NewClickDetector()
	d.Update([]protocol.RenderObject{
		obj("deep", 0, 0, 5),
		obj("shallow", 5, 5, 1),
		obj("tie", 2, 2, 1),
		obj("far", 100, 100, 0),
	})
	got := ids(d.ClickObjects(Camera{Zoom: 1}, 6, 6))
	want := []string{"shallow", "tie", "deep"}
	if len(got) != len(want) {
		t.Fatalf("hits=%v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("hits=%v want %v", got, want)
		}
	}
	// Right and bottom edges are exclusive.
	if hits := d.ClickObjects(Camera{Zoom: 1}, 110, 100); len(hits) != 0 {
		t.Fatalf("edge hit: %v", ids(hits))
	}
}

func TestClickDetector_CameraAndNegativeScale(t *testing.T) {
	d := NewClickDetector()
	flipped := obj("flip", 20, 20, 0)
	flipped.Scale = protocol.Vec2{X: -1, Y: -1}
	d.Update([]protocol.RenderObject{flipped})

	if hits := d.ClickObjects(Camera{Zoom: 1}, 15, 15); len(hits) != 1 {
		t.Fatalf("flipped object not hit")
	}
	// Zoomed 2x around (10,10): world (15,15) is screen (10,10).
	cam := Camera{X: 10, Y: 10, Zoom: 2}
	if hits := d.ClickObjects(cam, 10, 10); len(hits) != 1 {
		t.Fatalf("zoomed hit missing")
	}
	if p := cam.Unproject(10, 10); p.X != 15 || p.Y != 15 {
		t.Fatalf("unproject=%+v", p)
	}
}

func TestHandler_Tools(t *testing.T) {
	h := NewHandler()
	h.UpdateClickableEntities([]protocol.RenderObject{obj("e1", 0, 0, 0)})

	var placed []string
	var erased []string
	var edits []*string
	h.OnPlace = func(prefab string, x, y float64) {
		if x != 3 || y != 4 {
			t.Errorf("place at %v,%v", x, y)
		}
		placed = append(placed, prefab)
	}
	h.OnErase = func(id string) { erased = append(erased, id) }
	h.OnEdit = func(id *string) { edits = append(edits, id) }

	// No tool: nothing happens.
	h.HandleMousePress(MouseEvent{X: 3, Y: 4})

	h.SetTool(ToolPlace)
	h.HandleMousePress(MouseEvent{X: 3, Y: 4})
	if len(placed) != 0 {
		t.Fatalf("placed without a prefab")
	}
	h.SetPrefab("tree")
	h.HandleMousePress(MouseEvent{X: 3, Y: 4})
	h.HandleMousePress(MouseEvent{X: 3, Y: 4, Button: MouseRight})

	h.SetTool(ToolErase)
	h.HandleMousePress(MouseEvent{X: 5, Y: 5})
	h.HandleMousePress(MouseEvent{X: 50, Y: 50})

	h.SetTool(ToolEdit)
	h.HandleMousePress(MouseEvent{X: 5, Y: 5})
	h.HandleMousePress(MouseEvent{X: 50, Y: 50})

	if len(placed) != 1 || placed[0] != "tree" {
		t.Fatalf("placed=%v", placed)
	}
	if len(erased) != 1 || erased[0] != "e1" {
		t.Fatalf("erased=%v", erased)
	}
	if len(edits) != 2 || edits[0] == nil || *edits[0] != "e1" || edits[1] != nil {
		t.Fatalf("edits=%v", edits)
	}
}

func TestHandler_KeysForwarded(t *testing.T) {
	h := NewHandler()
	var got []KeyEvent
	h.OnKeyPress = func(ev KeyEvent) { got = append(got, ev) }
	h.OnKeyRelease = func(ev KeyEvent) { got = append(got, ev) }
	h.HandleKeyPress(KeyEvent{Key: "w", State: KeyPressed})
	h.HandleKeyRelease(KeyEvent{Key: "w", State: KeyReleased})
	if len(got) != 2 || got[0].State != KeyPressed || got[1].State != KeyReleased {
		t.Fatalf("got=%+v", got)
	}
}

func TestHandler_MiddleDragPans(t *testing.T) {
	h := NewHandler()
	h.HandleMousePress(MouseEvent{X: 10, Y: 10, Button: MouseMiddle})
	h.HandleMouseMove(MouseEvent{X: 15, Y: 12})
	h.HandleMouseRelease(MouseEvent{X: 15, Y: 12})
	h.HandleMouseMove(MouseEvent{X: 100, Y: 100})
	if c := h.Camera(); c.X != -5 || c.Y != -2 {
		t.Fatalf("camera=%+v", c)
	}
}

func TestParseTool(t *testing.T) {
	for _, tool := range []Tool{ToolNone, ToolPlace, ToolErase, ToolEdit} {
		got, ok := ParseTool(tool.String())
		if !ok || got != tool {
			t.Fatalf("ParseTool(%q)=%v,%v", tool.String(), got, ok)
		}
	}
	if _, ok := ParseTool("paint"); ok {
		t.Fatalf("unknown tool parsed")
	}
}
