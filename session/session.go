// Package session manages per-chat conversation state: the live message
// history a chat engine turn is built from, and the fork/redact operations
// that let that history cross a trust boundary (a sub-agent, a logged
// transcript, a plugin) without leaking credentials or channel-internal
// metadata.
package session

import (
	"sync"
	"time"

	oasis "github.com/nevindra/clawgate"
)

// Session is the live, mutable conversation state for one chat. A gateway
// keeps one Session per chat ID; ChatEngine turns append to its History.
type Session struct {
	mu sync.RWMutex

	ChatID    string
	ThreadID  string
	Channel   string
	History   []oasis.ChatMessage
	Metadata  map[string]string
	CreatedAt int64
	UpdatedAt int64
}

// New creates an empty session for chatID on channel, stamped with now.
func New(chatID, channel string, now time.Time) *Session {
	return &Session{
		ChatID:    chatID,
		Channel:   channel,
		Metadata:  make(map[string]string),
		CreatedAt: now.Unix(),
		UpdatedAt: now.Unix(),
	}
}

// Append adds msg to the history and bumps UpdatedAt.
func (s *Session) Append(msg oasis.ChatMessage, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.History = append(s.History, msg)
	s.UpdatedAt = now.Unix()
}

// Snapshot returns a copy of the current history, safe to hand to a
// goroutine that outlives the caller's lock.
func (s *Session) Snapshot() []oasis.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]oasis.ChatMessage, len(s.History))
	copy(out, s.History)
	return out
}

// Trim drops the oldest messages until at most keep remain, preserving any
// leading system message (index 0) if present.
func (s *Session) Trim(keep int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.History) <= keep || keep <= 0 {
		return
	}
	hasSystem := len(s.History) > 0 && s.History[0].Role == "system"
	if hasSystem {
		tail := s.History[len(s.History)-keep+1:]
		s.History = append([]oasis.ChatMessage{s.History[0]}, tail...)
		return
	}
	s.History = s.History[len(s.History)-keep:]
}

// Fork returns a new, independent Session seeded with a redacted copy of
// the current history. Forked sessions are what a sub-agent, a plugin tool
// call, or a cross-channel handoff receives: they never share the parent's
// backing slice, and every message has passed through Redact.
func (s *Session) Fork(now time.Time) *Session {
	s.mu.RLock()
	history := make([]oasis.ChatMessage, len(s.History))
	copy(history, s.History)
	channel := s.Channel
	chatID := s.ChatID
	s.mu.RUnlock()

	forked := New(chatID, channel, now)
	forked.History = make([]oasis.ChatMessage, len(history))
	for i, msg := range history {
		forked.History[i] = RedactMessage(msg)
	}
	return forked
}
