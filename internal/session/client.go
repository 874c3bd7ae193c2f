package session

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type ClientOptions struct {
	SendBuffer      int
	WriteTimeout    time.Duration
	PingInterval    time.Duration
	MaxMessageBytes int64
}

func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		SendBuffer:      32,
		WriteTimeout:    10 * time.Second,
		PingInterval:    25 * time.Second,
		MaxMessageBytes: 1 << 20,
	}
}

// Client is the live handle for one websocket. Outbound frames go through a
// bounded queue drained by a single writer goroutine, so writes to one
// connection never interleave and a slow peer never blocks the hub.
type Client struct {
	Conn       *websocket.Conn
	userID     string
	documentID string
	opts       ClientOptions

	mu     sync.Mutex
	hook   func([]byte)
	out    chan []byte
	closed bool
	done   chan struct{}
}

func NewClient(conn *websocket.Conn, userID, documentID string) *Client {
	return NewClientWithOptions(conn, userID, documentID, DefaultClientOptions())
}

func NewClientWithOptions(conn *websocket.Conn, userID, documentID string, opts ClientOptions) *Client {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultClientOptions().SendBuffer
	}
	c := &Client{
		Conn:       conn,
		userID:     userID,
		documentID: documentID,
		opts:       opts,
		out:        make(chan []byte, opts.SendBuffer),
		done:       make(chan struct{}),
	}
	if conn != nil {
		go c.writePump()
	}
	return c
}

func (c *Client) UserID() string     { return c.userID }
func (c *Client) DocumentID() string { return c.documentID }

// SetSendHook replaces the default WebSocket sender (used in tests).
func (c *Client) SetSendHook(fn func([]byte)) {
	c.mu.Lock()
	c.hook = fn
	c.mu.Unlock()
}

// Send queues msg for delivery. It never blocks: a closed handle or a full
// queue drops the frame and reports false.
func (c *Client) Send(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	if c.hook != nil {
		c.hook(msg)
		return true
	}
	if c.Conn == nil {
		return false
	}
	select {
	case c.out <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Close marks the handle dead and stops the writer, which closes the socket.
// Safe to call more than once and from any goroutine.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

// Done is closed once the handle has been closed.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) writePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	defer c.Conn.Close()

	for {
		select {
		case msg := <-c.out:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteTimeout)); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			_ = c.Conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		}
	}
}

// ReadLoop delivers every inbound text frame to handle until the socket
// fails, the handle is closed, or ctx is cancelled.
func (c *Client) ReadLoop(ctx context.Context, handle func([]byte)) error {
	pongWait := 2 * c.opts.PingInterval
	c.Conn.SetReadLimit(c.opts.MaxMessageBytes)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-stop:
		}
	}()

	for {
		mt, msg, err := c.Conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		// any inbound traffic proves liveness
		_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		if mt != websocket.TextMessage {
			continue
		}
		handle(msg)
	}
}
