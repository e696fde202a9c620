package protocol

import "fmt"

// Kind discriminates message kinds. The same value tags a NetEvent and, when
// tagging is enabled, the "kind" field of a wire frame.
type Kind string

// Client -> authority kinds.
const (
	KindChatMessage             Kind = "ChatMessage"
	KindEntityCreation          Kind = "EntityCreation"
	KindEntityDeletion          Kind = "EntityDeletion"
	KindEntityInspection        Kind = "EntityInspection"
	KindInput                   Kind = "Input"
	KindExecuteScript           Kind = "ExecuteScript"
	KindModifyMetadata          Kind = "ModifyMetadata"
	KindModifyComponentMeta     Kind = "ModifyComponentMeta"
	KindSetComponentEnableState Kind = "SetComponentEnableState"
	KindRemoveComponent         Kind = "RemoveComponent"
	KindTokenRequest            Kind = "TokenRequest"
)

// Authority -> client kinds. ChatMessage is shared by both directions.
const (
	KindConnection              Kind = "Connection"
	KindDisconnection           Kind = "Disconnection"
	KindDisplay                 Kind = "Display"
	KindToken                   Kind = "Token"
	KindResourceListing         Kind = "ResourceListing"
	KindEntityInspectionListing Kind = "EntityInspectionListing"
)

// KindField is the wire discriminant added to tagged frames.
const KindField = "kind"

// Packet is one unit of client/authority intent or state. Implementations
// are plain value types holding only serializable fields.
type Packet interface {
	Kind() Kind
	// Serialize returns a value ready for JSON encoding.
	Serialize() any
}

// NetEvent pairs a kind with exactly one packet of that kind.
// It is used unchanged for inbound and outbound traffic.
type NetEvent struct {
	kind   Kind
	packet Packet
}

// NewNetEvent panics when the packet does not belong to kind: a mismatched
// pairing is a programming error at the call site.
func NewNetEvent(kind Kind, p Packet) NetEvent {
	if p == nil {
		panic(fmt.Sprintf("protocol: nil packet for kind %s", kind))
	}
	if p.Kind() != kind {
		panic(fmt.Sprintf("protocol: packet %T has kind %s, not %s", p, p.Kind(), kind))
	}
	return NetEvent{kind: kind, packet: p}
}

// EventOf wraps p under its own kind.
func EventOf(p Packet) NetEvent { return NewNetEvent(p.Kind(), p) }

func (e NetEvent) Kind() Kind     { return e.kind }
func (e NetEvent) Packet() Packet { return e.packet }
func (e NetEvent) IsZero() bool   { return e.packet == nil }
func (e NetEvent) String() string { return string(e.kind) }
