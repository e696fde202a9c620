// Package netevent routes decoded inbound packets to the subsystems that
// registered interest in their kind.
package netevent

import (
	"worldsmith.dev/internal/protocol"
)

// Delegate reacts to one dispatched packet.
type Delegate func(protocol.Packet)

// Handler keeps an ordered delegate list per kind. Delegates run
// synchronously, in registration order, on the goroutine that calls
// Dispatch; a kind nobody registered for is silently ignored.
//
// Handler is not safe for concurrent use. The network system only touches
// it from the game loop goroutine.
type Handler struct {
	delegates map[protocol.Kind][]entry
}

// entry is one registration. accepts is nil for delegates that take every
// packet of their kind.
type entry struct {
	fn      Delegate
	accepts func(protocol.Packet) bool
}

func NewHandler() *Handler {
	return &Handler{delegates: map[protocol.Kind][]entry{}}
}

// Add registers fn for kind. Use it for kinds that have no typed helper yet.
func (h *Handler) Add(kind protocol.Kind, fn Delegate) {
	if fn == nil {
		return
	}
	h.delegates[kind] = append(h.delegates[kind], entry{fn: fn})
}

// Count reports how many delegates are registered for kind.
func (h *Handler) Count(kind protocol.Kind) int { return len(h.delegates[kind]) }

// Dispatch invokes the delegates registered for ev's kind and reports how
// many ran. Typed delegates skip packets of another type. Re-entrant
// dispatch of the same kind from inside a delegate is not guarded against.
func (h *Handler) Dispatch(ev protocol.NetEvent) int {
	if ev.IsZero() {
		return 0
	}
	p := ev.Packet()
	ran := 0
	for _, e := range h.delegates[ev.Kind()] {
		if e.accepts != nil && !e.accepts(p) {
			continue
		}
		e.fn(p)
		ran++
	}
	return ran
}

// addTyped registers fn under kind for packets of type T only. Chat is
// shared by both directions, so a client packet under the same kind is
// skipped.
func addTyped[T protocol.Packet](h *Handler, kind protocol.Kind, fn func(T)) {
	if fn == nil {
		return
	}
	h.delegates[kind] = append(h.delegates[kind], entry{
		fn:      func(p protocol.Packet) { fn(p.(T)) },
		accepts: func(p protocol.Packet) bool {
			_, ok := p.(T)
			return ok
		},
	})
}

func (h *Handler) AddConnectionDelegate(fn func(protocol.ServerConnectionPacket)) {
	addTyped(h, protocol.KindConnection, fn)
}

func (h *Handler) AddDisconnectionDelegate(fn func(protocol.ServerDisconnectionPacket)) {
	addTyped(h, protocol.KindDisconnection, fn)
}

func (h *Handler) AddChatMessageDelegate(fn func(protocol.ServerChatMessagePacket)) {
	addTyped(h, protocol.KindChatMessage, fn)
}

func (h *Handler) AddDisplayDelegate(fn func(protocol.ServerDisplayPacket)) {
	addTyped(h, protocol.KindDisplay, fn)
}

func (h *Handler) AddTokenDelegate(fn func(protocol.ServerTokenPacket)) {
	addTyped(h, protocol.KindToken, fn)
}

func (h *Handler) AddResourceListingDelegate(fn func(protocol.ServerResourceListingPacket)) {
	addTyped(h, protocol.KindResourceListing, fn)
}

func (h *Handler) AddEntityInspectListingDelegate(fn func(protocol.ServerEntityInspectionListingPacket)) {
	addTyped(h, protocol.KindEntityInspectionListing, fn)
}
