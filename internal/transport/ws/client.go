// Package ws carries protocol frames over gorilla/websocket text messages.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"worldsmith.dev/internal/network"
)

const (
	defaultHandshakeTimeout = 5 * time.Second
	defaultWriteTimeout     = 5 * time.Second
	defaultBufferSize       = 64 * 1024
)

type Options struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// ReadTimeout bounds the gap between inbound frames. Zero means the
	// authority may stay silent indefinitely.
	ReadTimeout time.Duration
	// MaxFrameBytes limits inbound frame size. Zero means no limit.
	MaxFrameBytes int64
	Header        http.Header
}

// Transport dials the authority's WebSocket endpoint.
type Transport struct {
	opts   Options
	dialer websocket.Dialer
}

func NewTransport(opts Options) *Transport {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	return &Transport{
		opts: opts,
		dialer: websocket.Dialer{
			HandshakeTimeout: opts.HandshakeTimeout,
			ReadBufferSize:   defaultBufferSize,
			WriteBufferSize:  defaultBufferSize,
		},
	}
}

func (t *Transport) Dial(ctx context.Context, addr string) (network.Conn, error) {
	if addr == "" {
		return nil, errors.New("ws: empty address")
	}
	c, resp, err := t.dialer.DialContext(ctx, addr, t.opts.Header.Clone())
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("ws: dial %s: %w (status %d)", addr, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("ws: dial %s: %w", addr, err)
	}
	if t.opts.MaxFrameBytes > 0 {
		c.SetReadLimit(t.opts.MaxFrameBytes)
	}
	return &Conn{conn: c, opts: t.opts}, nil
}

// Conn is one WebSocket connection. ReadMessage is called from a single
// reader goroutine; WriteMessage and Close may be called from any goroutine.
type Conn struct {
	conn *websocket.Conn
	opts Options

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// ReadMessage returns the next data frame. Binary frames are returned as
// they are; the decoder rejects them like any other non-JSON frame.
func (c *Conn) ReadMessage() ([]byte, error) {
	if c.opts.ReadTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	}
	_, msg, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (c *Conn) WriteMessage(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

// Close sends a normal close frame (best effort) and releases the socket.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
