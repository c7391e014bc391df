// Package cdp implements a minimal Chrome DevTools Protocol client over a
// raw WebSocket connection: command/response correlation by numeric id,
// one handler per subscribed event method, and a read loop that routes
// inbound frames to whichever side is waiting on them.
package cdp

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	oasis "github.com/nevindra/clawgate"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// outboundCommand is the wire shape of a command sent to the browser.
type outboundCommand struct {
	ID     uint32          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// inboundFrame covers both response and event shapes; exactly one of
// (ID set) or (Method set) is populated on any given frame.
type inboundFrame struct {
	ID     uint32          `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *protocolError  `json:"error,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
}

type protocolError struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type pendingCall struct {
	result chan json.RawMessage
	err    chan *oasis.Error
}

// EventHandler receives the raw params of a subscribed CDP event.
type EventHandler func(params json.RawMessage)

// Client is a single CDP WebSocket connection. Safe for concurrent use:
// SendCommand may be called from many goroutines; Subscribe should be
// called before the event of interest can fire.
type Client struct {
	conn      *websocket.Conn
	log       *slog.Logger
	nextID    atomic.Uint32
	connected atomic.Bool

	mu       sync.Mutex
	pending  map[uint32]*pendingCall
	handlers map[string]EventHandler

	closeOnce sync.Once
	closed    chan struct{}
}

// Connect performs the WebSocket handshake against wsURL and starts the
// background read loop. The returned Client is ready for SendCommand and
// Subscribe calls.
func Connect(ctx context.Context, wsURL string, log *slog.Logger) (*Client, *oasis.Error) {
	if log == nil {
		log = slog.Default()
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, oasis.NewConnectionFailed("cdp handshake failed", err.Error())
	}

	c := &Client{
		conn:     conn,
		log:      log,
		pending:  make(map[uint32]*pendingCall),
		handlers: make(map[string]EventHandler),
		closed:   make(chan struct{}),
	}
	c.connected.Store(true)

	conn.SetReadLimit(32 * 1024 * 1024)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

// SendCommand allocates a monotonic id, writes the command frame, and
// blocks until the browser answers (or the connection closes).
func (c *Client) SendCommand(ctx context.Context, method string, params any) (json.RawMessage, *oasis.Error) {
	if !c.connected.Load() {
		return nil, oasis.NewConnectionClosed("cdp client is disconnected")
	}

	id := c.nextID.Add(1)
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, oasis.NewInvalidArgument("invalid cdp params", err.Error())
		}
		raw = b
	}

	call := &pendingCall{result: make(chan json.RawMessage, 1), err: make(chan *oasis.Error, 1)}
	c.mu.Lock()
	c.pending[id] = call
	c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(outboundCommand{ID: id, Method: method, Params: raw}); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, oasis.NewConnectionFailed("cdp write failed", err.Error())
	}

	select {
	case result := <-call.result:
		return result, nil
	case gwErr := <-call.err:
		return nil, gwErr
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, oasis.NewTimeout("cdp command cancelled", method)
	case <-c.closed:
		return nil, oasis.NewConnectionClosed("cdp connection closed")
	}
}

// Subscribe installs a single handler for a CDP event method, replacing any
// previously installed handler for the same method.
func (c *Client) Subscribe(method string, handler EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[method] = handler
}

// IsConnected reports whether the read loop is still active.
func (c *Client) IsConnected() bool { return c.connected.Load() }

// Disconnect closes the underlying connection and fails every pending
// command with ConnectionClosed. Idempotent.
func (c *Client) Disconnect() {
	c.closeOnce.Do(func() {
		c.connected.Store(false)
		close(c.closed)
		c.conn.Close()
	})
}

func (c *Client) readLoop() {
	defer c.failAllPending()
	defer c.Disconnect()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.log.Warn("cdp: unparseable frame", "error", err)
			continue
		}

		if frame.ID != 0 {
			c.resolvePending(frame)
			continue
		}
		c.dispatchEvent(frame)
	}
}

func (c *Client) resolvePending(frame inboundFrame) {
	c.mu.Lock()
	call, ok := c.pending[frame.ID]
	if ok {
		delete(c.pending, frame.ID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	if frame.Error != nil {
		call.err <- oasis.NewProtocolError(frame.Error.Message, string(frame.Error.Data))
		return
	}
	call.result <- frame.Result
}

func (c *Client) dispatchEvent(frame inboundFrame) {
	c.mu.Lock()
	handler, ok := c.handlers[frame.Method]
	c.mu.Unlock()
	if !ok {
		return
	}
	handler(frame.Params)
}

func (c *Client) failAllPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, call := range c.pending {
		call.err <- oasis.NewConnectionClosed("cdp connection closed")
		delete(c.pending, id)
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}
