package network

import (
	"context"
	"time"

	"worldsmith.dev/internal/protocol"
)

// Conn is one open transport connection carrying whole frames.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(frame []byte) error
	Close() error
}

// Transport opens connections to the authority.
type Transport interface {
	Dial(ctx context.Context, addr string) (Conn, error)
}

// Executor runs fn as a discrete turn on the game loop goroutine. Transport
// goroutines never touch System state directly; they post.
type Executor interface {
	Post(fn func())
}

type Direction string

const (
	Inbound  Direction = "in"
	Outbound Direction = "out"
)

// Frame is a copy of one wire frame handed to a Recorder.
type Frame struct {
	At   time.Time     `json:"at"`
	Dir  Direction     `json:"dir"`
	Kind protocol.Kind `json:"kind,omitempty"`
	Code string        `json:"code,omitempty"`
	Data []byte        `json:"data"`
}

// Recorder keeps a copy of traffic for later inspection.
type Recorder interface {
	RecordFrame(Frame) error
}

// FlushReport summarizes one SendMessages call.
type FlushReport struct {
	At        time.Time
	Sent      int
	Bytes     int
	Dropped   int
	Remaining int
}

// DropReport describes one inbound frame that could not be decoded.
type DropReport struct {
	At   time.Time
	Code string
	Size int
	Err  string
}

// Observer receives traffic statistics. Implementations must not block.
type Observer interface {
	ObserveFlush(FlushReport)
	ObserveDrop(DropReport)
}
