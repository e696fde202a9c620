package input

import (
	"fmt"

	"worldsmith.dev/internal/protocol"
)

type Tool int

const (
	ToolNone Tool = iota
	ToolPlace
	ToolErase
	ToolEdit
)

func (t Tool) String() string {
	switch t {
	case ToolNone:
		return "none"
	case ToolPlace:
		return "place"
	case ToolErase:
		return "erase"
	case ToolEdit:
		return "edit"
	default:
		return fmt.Sprintf("Tool(%d)", int(t))
	}
}

// ParseTool accepts the names String produces.
func ParseTool(s string) (Tool, bool) {
	for _, t := range []Tool{ToolNone, ToolPlace, ToolErase, ToolEdit} {
		if t.String() == s {
			return t, true
		}
	}
	return ToolNone, false
}

// KeyState and Device values travel unchanged in keyboard input packets.
type KeyState int

const (
	KeyPressed KeyState = iota
	KeyReleased
)

type Device int

const (
	DeviceKeyboard Device = iota
	DeviceMouse
)

type KeyEvent struct {
	Key    string
	State  KeyState
	Device Device
}

type MouseButton int

const (
	MouseLeft MouseButton = iota
	MouseMiddle
	MouseRight
)

// MouseEvent positions are screen coordinates.
type MouseEvent struct {
	X, Y   float64
	Button MouseButton
}

// Handler holds the current tool and turns events into intents. Intent hooks
// that are nil are skipped.
type Handler struct {
	tool   Tool
	prefab string
	camera Camera
	clicks *ClickDetector

	lastMouse MouseEvent
	mouseDown bool

	OnKeyPress   func(KeyEvent)
	OnKeyRelease func(KeyEvent)
	OnPlace      func(prefabID string, x, y float64)
	OnErase      func(id string)
	// OnEdit receives nil when the press hit nothing: stop inspecting.
	OnEdit func(id *string)
}

func NewHandler() *Handler {
	return &Handler{clicks: NewClickDetector(), camera: Camera{Zoom: 1}}
}

func (h *Handler) Tool() Tool                    { return h.tool }
func (h *Handler) SetTool(t Tool)                { h.tool = t }
func (h *Handler) Prefab() string                { return h.prefab }
func (h *Handler) SetPrefab(id string)           { h.prefab = id }
func (h *Handler) Camera() Camera                { return h.camera }
func (h *Handler) SetCamera(c Camera)            { h.camera = c }
func (h *Handler) ClickDetector() *ClickDetector { return h.clicks }

func (h *Handler) UpdateClickableEntities(objs []protocol.RenderObject) {
	h.clicks.Update(objs)
}

func (h *Handler) HandleKeyPress(ev KeyEvent) {
	if h.OnKeyPress != nil {
		h.OnKeyPress(ev)
	}
}

func (h *Handler) HandleKeyRelease(ev KeyEvent) {
	if h.OnKeyRelease != nil {
		h.OnKeyRelease(ev)
	}
}

// HandleMousePress applies the current tool at the pointer. Only the left
// button acts.
func (h *Handler) HandleMousePress(ev MouseEvent) {
	h.lastMouse = ev
	h.mouseDown = true
	if ev.Button != MouseLeft {
		return
	}
	switch h.tool {
	case ToolPlace:
		if h.prefab == "" || h.OnPlace == nil {
			return
		}
		w := h.camera.Unproject(ev.X, ev.Y)
		h.OnPlace(h.prefab, w.X, w.Y)
	case ToolErase:
		hits := h.clicks.ClickObjects(h.camera, ev.X, ev.Y)
		if len(hits) == 0 || h.OnErase == nil {
			return
		}
		h.OnErase(hits[0].ID)
	case ToolEdit:
		if h.OnEdit == nil {
			return
		}
		hits := h.clicks.ClickObjects(h.camera, ev.X, ev.Y)
		if len(hits) == 0 {
			h.OnEdit(nil)
			return
		}
		id := hits[0].ID
		h.OnEdit(&id)
	}
}

func (h *Handler) HandleMouseRelease(ev MouseEvent) {
	h.lastMouse = ev
	h.mouseDown = false
}

// HandleMouseMove pans the camera while the middle button is held.
func (h *Handler) HandleMouseMove(ev MouseEvent) {
	if h.mouseDown && h.lastMouse.Button == MouseMiddle {
		z := h.camera.zoom()
		h.camera.X -= (ev.X - h.lastMouse.X) / z
		h.camera.Y -= (ev.Y - h.lastMouse.Y) / z
		ev.Button = MouseMiddle
	}
	h.lastMouse = ev
}
