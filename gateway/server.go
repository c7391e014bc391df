// Package gateway hosts the WebSocket front door: it accepts connections,
// frames JSON request/response/event traffic, and fans events out to every
// connected client on a topic.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	oasis "github.com/nevindra/clawgate"
	"github.com/nevindra/clawgate/guard"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 2 * 1024 * 1024
	sendQueueDepth = 64
)

// Server accepts WebSocket connections and dispatches their request frames
// through a Dispatcher, broadcasting emitted events to every client
// subscribed to the matching topic.
type Server struct {
	dispatcher *oasis.Dispatcher
	upgrader   websocket.Upgrader
	log        *slog.Logger

	mu      sync.RWMutex
	clients map[*connection]struct{}
}

// New creates a Server around dispatcher. log may be nil.
func New(dispatcher *oasis.Dispatcher, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		dispatcher: dispatcher,
		log:        log,
		clients:    make(map[*connection]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The gateway is a local, loopback-bound process; any origin
			// that can reach the port is presumed trusted the same way a
			// CLI tool trusts its own stdin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Emit implements oasis.EventSink: it fans an event out to every connected
// client with a non-blocking send, logging and dropping the event for any
// client whose outbound queue is already full rather than stalling the
// broadcast.
func (s *Server) Emit(ev oasis.EventFrame) {
	payload, err := json.Marshal(ev)
	if err != nil {
		s.log.Error("gateway: failed to marshal event", "error", err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.clients {
		select {
		case c.outbound <- payload:
		default:
			s.log.Warn("gateway: dropping event, client send queue full", "client", c.id, "topic", ev.Topic)
		}
	}
}

// ServeHTTP upgrades the connection and runs its read/write pumps until it
// closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("gateway: upgrade failed", "error", err)
		return
	}

	c := &connection{
		id:       oasis.NewID(),
		server:   s,
		conn:     conn,
		outbound: make(chan []byte, sendQueueDepth),
		flood:    guard.NewUnauthorizedFloodGuard(0, s.log),
		closed:   make(chan struct{}),
	}

	s.register(c)
	defer s.unregister(c)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); c.writePump() }()
	go func() { defer wg.Done(); c.readPump() }()
	wg.Wait()
}

func (s *Server) register(c *connection) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	s.log.Info("gateway: client connected", "client", c.id)
}

func (s *Server) unregister(c *connection) {
	s.mu.Lock()
	_, present := s.clients[c]
	delete(s.clients, c)
	s.mu.Unlock()
	if present {
		c.close()
		s.log.Info("gateway: client disconnected", "client", c.id)
	}
}

// ClientCount reports the number of currently connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Shutdown closes every connected client's socket.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	conns := make([]*connection, 0, len(s.clients))
	for c := range s.clients {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	for _, c := range conns {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "gateway shutting down"),
			time.Now().Add(writeWait))
		c.close()
	}
	return nil
}

// connection is one accepted WebSocket client. All writes to conn happen on
// writePump's goroutine; every other goroutine hands bytes to outbound.
type connection struct {
	id       string
	server   *Server
	conn     *websocket.Conn
	outbound chan []byte
	flood    *guard.UnauthorizedFloodGuard

	closeOnce sync.Once
	closed    chan struct{}
}

func (c *connection) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.conn.Close()
	})
}

func (c *connection) readPump() {
	defer c.server.unregister(c)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}

		var req oasis.RequestFrame
		if err := json.Unmarshal(raw, &req); err != nil {
			c.server.log.Warn("gateway: malformed frame", "client", c.id, "error", err)
			continue
		}

		go c.handle(req)
	}
}

func (c *connection) handle(req oasis.RequestFrame) {
	ctx := oasis.WithEventSink(context.Background(), c.server)
	resp := c.server.dispatcher.HandleRequest(ctx, req)

	if resp.Error != nil && resp.Error.Code == unauthorizedCode {
		if c.flood.RecordRejection() {
			c.server.log.Warn("gateway: closing connection after unauthorized flood", "client", c.id)
			c.close()
			return
		}
	} else {
		c.flood.Reset()
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		c.server.log.Error("gateway: failed to marshal response", "error", err)
		return
	}
	select {
	case c.outbound <- payload:
	case <-c.closed:
	}
}

// unauthorizedCode mirrors kindToCode[KindUnauthorized] on the wire.
const unauthorizedCode = 1002

func (c *connection) handleReadError(err error) {
	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseNoStatusReceived,
	) {
		c.server.log.Warn("gateway: unexpected close", "client", c.id, "error", err)
	}
}

func (c *connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case payload, ok := <-c.outbound:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.server.log.Warn("gateway: write failed", "client", c.id, "error", err)
				return
			}
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
