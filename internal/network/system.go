package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/dustin/go-humanize"

	"worldsmith.dev/internal/netevent"
	"worldsmith.dev/internal/protocol"
)

var (
	ErrNotConnected = errors.New("network: not connected")
	ErrBusy         = errors.New("network: connect already in progress or connected")
)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type Config struct {
	Address string
	// Tagged adds the kind discriminant to outbound frames.
	Tagged bool
	// Variants is the inbound decode priority order (default: protocol.ServerVariants()).
	Variants []protocol.Variant

	Logger   *log.Logger
	Recorder Recorder
	Observer Observer

	// Now is used for report timestamps (default time.Now).
	Now func() time.Time
}

type Stats struct {
	Connects       uint64
	Disconnects    uint64
	FramesSent     uint64
	BytesSent      uint64
	FramesReceived uint64
	BytesReceived  uint64
	DecodeFailures uint64
	SendFailures   uint64
	QueueDepth     int
}

func (s Stats) String() string {
	return fmt.Sprintf("sent=%d (%s) recv=%d (%s) decode_failures=%d send_failures=%d queued=%d",
		s.FramesSent, humanize.Bytes(s.BytesSent),
		s.FramesReceived, humanize.Bytes(s.BytesReceived),
		s.DecodeFailures, s.SendFailures, s.QueueDepth)
}

// System owns the connection to the authority, the outbound queue and the
// inbound decode-and-dispatch path.
//
// Every method must be called from the goroutine that runs the Executor's
// turns. Transport goroutines only post completions; a completion carries
// the connection generation it belongs to and is discarded when a newer
// connection (or a disconnect) has happened since.
type System struct {
	cfg       Config
	transport Transport
	exec      Executor
	handler   *netevent.Handler
	dec       *protocol.Decoder
	enc       protocol.Encoder
	log       *log.Logger

	state     State
	connected bool
	conn      Conn
	addr      string
	gen       uint64

	outbound []protocol.NetEvent

	stats Stats
}

func New(cfg Config, t Transport, exec Executor) *System {
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	if cfg.Variants == nil {
		cfg.Variants = protocol.ServerVariants()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &System{
		cfg:       cfg,
		transport: t,
		exec:      exec,
		handler:   netevent.NewHandler(),
		dec:       protocol.NewDecoder(cfg.Variants),
		enc:       protocol.Encoder{Tagged: cfg.Tagged},
		log:       cfg.Logger,
	}
}

func (s *System) NetEventHandler() *netevent.Handler { return s.handler }
func (s *System) Connected() bool                    { return s.connected }
func (s *System) State() State                       { return s.state }
func (s *System) Address() string                    { return s.addr }

func (s *System) Stats() Stats {
	st := s.stats
	st.QueueDepth = len(s.outbound)
	return st
}

// Connect starts dialing addr (the configured address when empty). The
// result arrives later as a loop turn: Connected plus the connection
// delegates on success, Disconnected plus the disconnection delegates on
// failure. There is no automatic retry.
func (s *System) Connect(ctx context.Context, addr string) error {
	if s.state != Disconnected {
		return ErrBusy
	}
	if addr == "" {
		addr = s.cfg.Address
	}
	s.gen++
	gen := s.gen
	s.state = Connecting
	s.addr = addr
	s.log.Printf("connecting to %s", addr)

	go func() {
		conn, err := s.transport.Dial(ctx, addr)
		s.exec.Post(func() { s.onDialed(gen, conn, err) })
	}()
	return nil
}

// Disconnect closes the current connection, or abandons a dial in flight.
func (s *System) Disconnect() {
	switch s.state {
	case Connected:
		s.teardown("closed by client")
	case Connecting:
		s.gen++
		s.state = Disconnected
		s.connected = false
		s.stats.Disconnects++
		s.handler.Dispatch(protocol.EventOf(protocol.ServerDisconnectionPacket{Reason: "connect abandoned"}))
	}
}

func (s *System) onDialed(gen uint64, conn Conn, err error) {
	if gen != s.gen {
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		s.state = Disconnected
		s.connected = false
		s.stats.Disconnects++
		s.log.Printf("connect %s: %v", s.addr, err)
		s.handler.Dispatch(protocol.EventOf(protocol.ServerDisconnectionPacket{Reason: err.Error()}))
		return
	}

	s.conn = conn
	s.state = Connected
	s.connected = true
	s.stats.Connects++
	s.log.Printf("connected to %s", s.addr)
	go s.readLoop(gen, conn)
	s.handler.Dispatch(protocol.EventOf(protocol.ServerConnectionPacket{Address: s.addr}))
}

func (s *System) readLoop(gen uint64, conn Conn) {
	for {
		frame, err := conn.ReadMessage()
		if err != nil {
			s.exec.Post(func() { s.onClosed(gen, err) })
			return
		}
		s.exec.Post(func() { s.onFrame(gen, frame) })
	}
}

func (s *System) onClosed(gen uint64, err error) {
	if gen != s.gen {
		return
	}
	s.teardown(err.Error())
}

func (s *System) onFrame(gen uint64, frame []byte) {
	if gen != s.gen {
		return
	}
	s.HandleFrame(frame)
}

// HandleFrame decodes one inbound frame and dispatches it. Undecodable frames
// are dropped and reported; they never stop the dispatch path.
func (s *System) HandleFrame(frame []byte) {
	now := s.cfg.Now()
	s.stats.BytesReceived += uint64(len(frame))
	ev, err := s.dec.Decode(frame)
	if err != nil {
		code := protocol.DecodeErrorCode(err)
		s.stats.DecodeFailures++
		s.record(Frame{At: now, Dir: Inbound, Code: code, Data: frame})
		s.log.Printf("drop inbound frame (%d bytes): %v", len(frame), err)
		if s.cfg.Observer != nil {
			s.cfg.Observer.ObserveDrop(DropReport{At: now, Code: code, Size: len(frame), Err: err.Error()})
		}
		return
	}
	s.stats.FramesReceived++
	s.record(Frame{At: now, Dir: Inbound, Kind: ev.Kind(), Data: frame})
	s.handler.Dispatch(ev)
}

func (s *System) teardown(reason string) {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.gen++
	s.state = Disconnected
	s.connected = false
	s.stats.Disconnects++
	s.log.Printf("disconnected from %s: %s", s.addr, reason)
	s.handler.Dispatch(protocol.EventOf(protocol.ServerDisconnectionPacket{Reason: reason}))
}

// Queue appends ev to the outbound FIFO. It never blocks and works in any
// state; events wait until the next successful flush.
func (s *System) Queue(ev protocol.NetEvent) {
	if ev.IsZero() {
		panic("network: queue of empty NetEvent")
	}
	s.outbound = append(s.outbound, ev)
}

// Pending returns a copy of the outbound queue in send order.
func (s *System) Pending() []protocol.NetEvent {
	return append([]protocol.NetEvent(nil), s.outbound...)
}

// SendMessages drains the outbound queue in FIFO order, one frame per event.
// Calling it while disconnected is a caller bug and returns ErrNotConnected
// with the queue untouched. A frame that fails to encode is dropped; a frame
// the transport fails to write is dropped, the connection is torn down and
// the remaining events stay queued for the next connection.
func (s *System) SendMessages() error {
	if !s.connected || s.conn == nil {
		return ErrNotConnected
	}
	now := s.cfg.Now()
	rep := FlushReport{At: now}
	defer func() {
		rep.Remaining = len(s.outbound)
		if s.cfg.Observer != nil && (rep.Sent > 0 || rep.Dropped > 0) {
			s.cfg.Observer.ObserveFlush(rep)
		}
	}()

	for len(s.outbound) > 0 {
		ev := s.outbound[0]
		s.outbound[0] = protocol.NetEvent{}
		s.outbound = s.outbound[1:]

		b, err := s.enc.Encode(ev)
		if err != nil {
			rep.Dropped++
			s.stats.SendFailures++
			s.log.Printf("drop outbound %s: %v", ev.Kind(), err)
			continue
		}
		if err := s.conn.WriteMessage(b); err != nil {
			rep.Dropped++
			s.stats.SendFailures++
			s.log.Printf("drop outbound %s: write: %v", ev.Kind(), err)
			s.teardown(fmt.Sprintf("write: %v", err))
			return fmt.Errorf("send %s: %w", ev.Kind(), err)
		}
		rep.Sent++
		rep.Bytes += len(b)
		s.stats.FramesSent++
		s.stats.BytesSent += uint64(len(b))
		s.record(Frame{At: now, Dir: Outbound, Kind: ev.Kind(), Data: b})
	}
	s.outbound = nil
	return nil
}

func (s *System) record(f Frame) {
	if s.cfg.Recorder == nil {
		return
	}
	if err := s.cfg.Recorder.RecordFrame(f); err != nil {
		s.log.Printf("record frame: %v", err)
	}
}
