// Package channel adapts oasis.Frontend implementations (Telegram, Discord,
// ...) into named, independently start/stoppable channels, backing the
// gateway's channel.* method group.
package channel

import (
	"context"
	"fmt"
	"sync"

	oasis "github.com/nevindra/clawgate"
)

const receiveBuffer = 64

// Channel wraps one connected Frontend with start/stop lifecycle and a small
// inbound queue that channel.receive drains.
type Channel struct {
	Name string
	Type string

	frontend oasis.Frontend

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	inbox   chan oasis.IncomingMessage
}

// New wraps frontend as a named channel, initially stopped.
func New(name, typ string, frontend oasis.Frontend) *Channel {
	return &Channel{
		Name:     name,
		Type:     typ,
		frontend: frontend,
		inbox:    make(chan oasis.IncomingMessage, receiveBuffer),
	}
}

// Start begins polling the underlying frontend for incoming messages,
// buffering them for channel.receive. A no-op if already running.
func (c *Channel) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}

	pollCtx, cancel := context.WithCancel(ctx)
	updates, err := c.frontend.Poll(pollCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("channel %s: start: %w", c.Name, err)
	}

	c.cancel = cancel
	c.running = true

	go func() {
		for msg := range updates {
			select {
			case c.inbox <- msg:
			default:
				// inbox full: drop the oldest buffered message to make room
				select {
				case <-c.inbox:
				default:
				}
				c.inbox <- msg
			}
		}
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	return nil
}

// Stop cancels the poll loop. A no-op if not running.
func (c *Channel) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || c.cancel == nil {
		return
	}
	c.cancel()
	c.running = false
}

// IsRunning reports whether the channel's poll loop is active.
func (c *Channel) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Send delivers outbound text through the underlying frontend.
func (c *Channel) Send(ctx context.Context, chatID, text string) (string, error) {
	return c.frontend.Send(ctx, chatID, text)
}

// Receive drains up to max buffered incoming messages without blocking.
func (c *Channel) Receive(max int) []oasis.IncomingMessage {
	if max <= 0 || max > receiveBuffer {
		max = receiveBuffer
	}
	out := make([]oasis.IncomingMessage, 0, max)
	for len(out) < max {
		select {
		case msg := <-c.inbox:
			out = append(out, msg)
		default:
			return out
		}
	}
	return out
}

// Registry is the name -> Channel map backing channel.list/connect/
// disconnect/status/send/receive.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]*Channel
}

// NewRegistry creates an empty channel registry.
func NewRegistry() *Registry {
	return &Registry{channels: make(map[string]*Channel)}
}

// Add registers ch under its own name, replacing any previous entry with
// the same name (stopping it first).
func (r *Registry) Add(ch *Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.channels[ch.Name]; ok {
		existing.Stop()
	}
	r.channels[ch.Name] = ch
}

// Get returns the named channel, if registered.
func (r *Registry) Get(name string) (*Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[name]
	return ch, ok
}

// Names lists every registered channel name, in no particular order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}
	return names
}

// Status describes one channel's current connection state.
type Status struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Running bool   `json:"running"`
}

// List reports the status of every registered channel.
func (r *Registry) List() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	statuses := make([]Status, 0, len(r.channels))
	for _, ch := range r.channels {
		statuses = append(statuses, Status{Name: ch.Name, Type: ch.Type, Running: ch.IsRunning()})
	}
	return statuses
}

// StopAll stops every channel's poll loop, for use on gateway shutdown.
func (r *Registry) StopAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ch := range r.channels {
		ch.Stop()
	}
}
