package network

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"worldsmith.dev/internal/protocol"
)

// turnQueue is an Executor whose turns the test runs explicitly.
type turnQueue struct {
	ch chan func()
}

func newTurnQueue() *turnQueue { return &turnQueue{ch: make(chan func(), 256)} }

func (q *turnQueue) Post(fn func()) { q.ch <- fn }

// runUntil executes posted turns until cond holds.
func (q *turnQueue) runUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case fn := <-q.ch:
			fn()
		case <-deadline:
			t.Fatalf("timeout waiting for condition")
		}
	}
}

type fakeConn struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	mu        sync.Mutex
	written   [][]byte
	failAfter int // fail the write after this many successes; <0 never
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 64), closed: make(chan struct{}), failAfter: -1}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case b, ok := <-c.in:
		if !ok {
			return nil, io.EOF
		}
		return b, nil
	case <-c.closed:
		return nil, errors.New("use of closed connection")
	}
}

func (c *fakeConn) WriteMessage(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAfter >= 0 && len(c.written) >= c.failAfter {
		return errors.New("broken pipe")
	}
	c.written = append(c.written, append([]byte(nil), b...))
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.written...)
}

type fakeTransport struct {
	mu    sync.Mutex
	conns []*fakeConn
	err   error
	addrs []string
}

func (t *fakeTransport) Dial(ctx context.Context, addr string) (Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.addrs = append(t.addrs, addr)
	if t.err != nil {
		return nil, t.err
	}
	c := newFakeConn()
	t.conns = append(t.conns, c)
	return c, nil
}

func (t *fakeTransport) last() *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conns[len(t.conns)-1]
}

func connectedSystem(t *testing.T, cfg Config) (*System, *fakeTransport, *turnQueue) {
	t.Helper()
	tr := &fakeTransport{}
	q := newTurnQueue()
	if cfg.Address == "" {
		cfg.Address = "ws://test"
	}
	s := New(cfg, tr, q)
	if err := s.Connect(context.Background(), ""); err != nil {
		t.Fatalf("connect: %v", err)
	}
	q.runUntil(t, s.Connected)
	return s, tr, q
}

func chat(msg string) protocol.NetEvent {
	return protocol.NewNetEvent(protocol.KindChatMessage, protocol.ClientChatMessagePacket{Message: msg})
}

func decodeMessages(t *testing.T, frames [][]byte) []string {
	t.Helper()
	out := make([]string, 0, len(frames))
	for _, f := range frames {
		var m struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(f, &m); err != nil {
			t.Fatalf("unmarshal %s: %v", f, err)
		}
		out = append(out, m.Message)
	}
	return out
}

func TestConnect_DispatchesConnection(t *testing.T) {
	tr := &fakeTransport{}
	q := newTurnQueue()
	s := New(Config{Address: "ws://localhost:7777"}, tr, q)

	var got []string
	s.NetEventHandler().AddConnectionDelegate(func(p protocol.ServerConnectionPacket) { got = append(got, p.Address) })

	if err := s.Connect(context.Background(), ""); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if s.State() != Connecting || s.Connected() {
		t.Fatalf("state=%s connected=%v, want connecting", s.State(), s.Connected())
	}
	if err := s.Connect(context.Background(), ""); !errors.Is(err, ErrBusy) {
		t.Fatalf("second connect err=%v, want ErrBusy", err)
	}
	q.runUntil(t, s.Connected)
	if s.State() != Connected {
		t.Fatalf("state=%s", s.State())
	}
	if len(got) != 1 || got[0] != "ws://localhost:7777" {
		t.Fatalf("connection delegate calls=%v", got)
	}
}

func TestConnect_FailureDispatchesDisconnection(t *testing.T) {
	tr := &fakeTransport{err: errors.New("connection refused")}
	q := newTurnQueue()
	s := New(Config{Address: "ws://nowhere"}, tr, q)

	var reasons []string
	s.NetEventHandler().AddDisconnectionDelegate(func(p protocol.ServerDisconnectionPacket) { reasons = append(reasons, p.Reason) })

	if err := s.Connect(context.Background(), ""); err != nil {
		t.Fatalf("connect: %v", err)
	}
	q.runUntil(t, func() bool { return len(reasons) == 1 })
	if s.Connected() || s.State() != Disconnected {
		t.Fatalf("state=%s connected=%v", s.State(), s.Connected())
	}
	if reasons[0] != "connection refused" {
		t.Fatalf("reason=%q", reasons[0])
	}
}

func TestSendMessages_FIFOAndEmptiesQueue(t *testing.T) {
	s, tr, _ := connectedSystem(t, Config{})
	for _, m := range []string{"a", "b", "c", "d"} {
		s.Queue(chat(m))
	}
	if err := s.SendMessages(); err != nil {
		t.Fatalf("send: %v", err)
	}
	got := decodeMessages(t, tr.last().frames())
	want := []string{"a", "b", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("frames=%v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("frame %d=%q want %q", i, got[i], want[i])
		}
	}
	if n := len(s.Pending()); n != 0 {
		t.Fatalf("queue len=%d after flush", n)
	}
	if st := s.Stats(); st.FramesSent != 4 || st.QueueDepth != 0 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestSendMessages_ChatHelloScenario(t *testing.T) {
	s, tr, _ := connectedSystem(t, Config{})
	s.Queue(protocol.NewNetEvent(protocol.KindChatMessage, protocol.ClientChatMessagePacket{Message: "hello"}))
	if err := s.SendMessages(); err != nil {
		t.Fatalf("send: %v", err)
	}
	frames := tr.last().frames()
	if len(frames) != 1 {
		t.Fatalf("frames=%d want 1", len(frames))
	}
	if string(frames[0]) != `{"message":"hello"}` {
		t.Fatalf("frame=%s", frames[0])
	}
}

func TestSendMessages_TaggedFrames(t *testing.T) {
	s, tr, _ := connectedSystem(t, Config{Tagged: true})
	s.Queue(chat("hello"))
	if err := s.SendMessages(); err != nil {
		t.Fatalf("send: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(tr.last().frames()[0], &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["kind"] != "ChatMessage" || m["message"] != "hello" {
		t.Fatalf("frame=%v", m)
	}
}

func TestSendMessages_WhileDisconnected(t *testing.T) {
	s := New(Config{}, &fakeTransport{}, newTurnQueue())
	s.Queue(chat("queued"))
	if err := s.SendMessages(); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err=%v, want ErrNotConnected", err)
	}
	if n := len(s.Pending()); n != 1 {
		t.Fatalf("queue len=%d, want 1", n)
	}
}

func TestQueue_SurvivesDisconnectAndFlushesOnReconnect(t *testing.T) {
	s, tr, q := connectedSystem(t, Config{})
	s.Queue(chat("one"))
	s.Queue(chat("two"))

	s.Disconnect()
	if s.Connected() {
		t.Fatalf("still connected")
	}
	if n := len(s.Pending()); n != 2 {
		t.Fatalf("queue len=%d after disconnect, want 2", n)
	}
	s.Queue(chat("three"))

	if err := s.Connect(context.Background(), ""); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	q.runUntil(t, s.Connected)
	if err := s.SendMessages(); err != nil {
		t.Fatalf("send: %v", err)
	}
	got := decodeMessages(t, tr.last().frames())
	if len(got) != 3 || got[0] != "one" || got[1] != "two" || got[2] != "three" {
		t.Fatalf("frames=%v", got)
	}
}

func TestSendMessages_WriteFailureDropsFrameKeepsRest(t *testing.T) {
	s, tr, _ := connectedSystem(t, Config{})
	conn := tr.last()
	conn.mu.Lock()
	conn.failAfter = 1
	conn.mu.Unlock()

	var disconnects int
	s.NetEventHandler().AddDisconnectionDelegate(func(protocol.ServerDisconnectionPacket) { disconnects++ })

	s.Queue(chat("ok"))
	s.Queue(chat("lost"))
	s.Queue(chat("kept"))
	if err := s.SendMessages(); err == nil {
		t.Fatalf("expected write error")
	}
	if s.Connected() {
		t.Fatalf("expected disconnect after write failure")
	}
	if disconnects != 1 {
		t.Fatalf("disconnection delegate calls=%d", disconnects)
	}
	pending := s.Pending()
	if len(pending) != 1 {
		t.Fatalf("pending=%d want 1", len(pending))
	}
	if p := pending[0].Packet().(protocol.ClientChatMessagePacket); p.Message != "kept" {
		t.Fatalf("pending=%q want kept", p.Message)
	}
	if st := s.Stats(); st.SendFailures != 1 || st.FramesSent != 1 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestInbound_MalformedFramesDroppedDispatchContinues(t *testing.T) {
	obs := &memObserver{}
	s, tr, q := connectedSystem(t, Config{Observer: obs})
	var chats []string
	s.NetEventHandler().AddChatMessageDelegate(func(p protocol.ServerChatMessagePacket) { chats = append(chats, p.Message) })

	conn := tr.last()
	conn.in <- []byte(`garbage`)
	conn.in <- []byte(`{"message":42}`)
	conn.in <- []byte(`{"message":"first"}`)
	conn.in <- []byte(`{"message":"second"}`)

	q.runUntil(t, func() bool { return len(chats) == 2 })
	if chats[0] != "first" || chats[1] != "second" {
		t.Fatalf("chats=%v", chats)
	}
	st := s.Stats()
	if st.DecodeFailures != 2 || st.FramesReceived != 2 {
		t.Fatalf("stats=%+v", st)
	}
	if len(obs.drops) != 2 || obs.drops[0].Code != protocol.ErrCodeNotJSON || obs.drops[1].Code != protocol.ErrCodeNoVariant {
		t.Fatalf("drops=%+v", obs.drops)
	}
}

func TestInbound_RemoteCloseDisconnects(t *testing.T) {
	s, tr, q := connectedSystem(t, Config{})
	var reasons []string
	s.NetEventHandler().AddDisconnectionDelegate(func(p protocol.ServerDisconnectionPacket) { reasons = append(reasons, p.Reason) })

	close(tr.last().in)
	q.runUntil(t, func() bool { return !s.Connected() })
	if len(reasons) != 1 || reasons[0] != io.EOF.Error() {
		t.Fatalf("reasons=%v", reasons)
	}
}

func TestInbound_StaleFramesAfterDisconnectIgnored(t *testing.T) {
	s, _, _ := connectedSystem(t, Config{})
	var chats int
	s.NetEventHandler().AddChatMessageDelegate(func(protocol.ServerChatMessagePacket) { chats++ })

	oldGen := s.gen
	s.Disconnect()
	s.onFrame(oldGen, []byte(`{"message":"late"}`))
	if chats != 0 {
		t.Fatalf("stale frame dispatched")
	}
}

func TestDisconnect_AbandonsDialInFlight(t *testing.T) {
	tr := &fakeTransport{}
	q := newTurnQueue()
	s := New(Config{Address: "ws://x"}, tr, q)
	if err := s.Connect(context.Background(), ""); err != nil {
		t.Fatalf("connect: %v", err)
	}
	s.Disconnect()
	if s.State() != Disconnected {
		t.Fatalf("state=%s", s.State())
	}
	// The late dial result must close its connection and leave us disconnected.
	fn := <-q.ch
	fn()
	if s.Connected() {
		t.Fatalf("stale dial result connected the system")
	}
	select {
	case <-tr.last().closed:
	default:
		t.Fatalf("stale connection was not closed")
	}
}

func TestQueue_PanicsOnZeroEvent(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	New(Config{}, &fakeTransport{}, newTurnQueue()).Queue(protocol.NetEvent{})
}

type memObserver struct {
	flushes []FlushReport
	drops   []DropReport
}

func (m *memObserver) ObserveFlush(r FlushReport) { m.flushes = append(m.flushes, r) }
func (m *memObserver) ObserveDrop(r DropReport)   { m.drops = append(m.drops, r) }

func TestObserver_FlushReport(t *testing.T) {
	obs := &memObserver{}
	s, _, _ := connectedSystem(t, Config{Observer: obs})
	if err := s.SendMessages(); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(obs.flushes) != 0 {
		t.Fatalf("empty flush reported")
	}
	s.Queue(chat("x"))
	if err := s.SendMessages(); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(obs.flushes) != 1 || obs.flushes[0].Sent != 1 || obs.flushes[0].Bytes != len(`{"message":"x"}`) {
		t.Fatalf("flushes=%+v", obs.flushes)
	}
}
