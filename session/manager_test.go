package session

import (
	"testing"
	"time"

	oasis "github.com/nevindra/clawgate"
)

func TestGetOrCreateReturnsSameSession(t *testing.T) {
	m := NewManager()
	now := time.Unix(1000, 0)
	a := m.GetOrCreate("chat-1", "telegram", now)
	b := m.GetOrCreate("chat-1", "telegram", now)
	if a != b {
		t.Fatal("expected GetOrCreate to return the same session for the same chat ID")
	}
}

func TestDestroyRemovesSession(t *testing.T) {
	m := NewManager()
	now := time.Unix(1000, 0)
	m.GetOrCreate("chat-1", "telegram", now)

	if !m.Destroy("chat-1") {
		t.Fatal("expected Destroy to report success for an existing session")
	}
	if m.Destroy("chat-1") {
		t.Fatal("expected second Destroy to report failure")
	}
	if _, ok := m.Get("chat-1"); ok {
		t.Fatal("expected session to be gone after Destroy")
	}
}

func TestListSummarizesLiveSessions(t *testing.T) {
	m := NewManager()
	now := time.Unix(1000, 0)
	s := m.GetOrCreate("chat-1", "telegram", now)
	s.Append(oasis.UserMessage("hi"), now)
	m.GetOrCreate("chat-2", "discord", now)

	summaries := m.List()
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}
	for _, sum := range summaries {
		if sum.ChatID == "chat-1" && sum.Messages != 1 {
			t.Fatalf("expected chat-1 to have 1 message, got %d", sum.Messages)
		}
	}
}

func TestContextSetGetClear(t *testing.T) {
	s := New("chat-1", "telegram", time.Unix(1000, 0))
	s.SetContext("locale", "en-US")

	v, ok := s.GetContext("locale")
	if !ok || v != "en-US" {
		t.Fatalf("expected locale=en-US, got %q ok=%v", v, ok)
	}

	s.ClearContext()
	if _, ok := s.GetContext("locale"); ok {
		t.Fatal("expected context to be empty after ClearContext")
	}
}

func TestTouchUpdatesTimestamp(t *testing.T) {
	s := New("chat-1", "telegram", time.Unix(1000, 0))
	s.Touch(time.Unix(2000, 0))
	if s.UpdatedAt != 2000 {
		t.Fatalf("expected UpdatedAt=2000, got %d", s.UpdatedAt)
	}
}
