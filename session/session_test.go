package session

import (
	"encoding/json"
	"testing"
	"time"

	oasis "github.com/nevindra/clawgate"
)

func TestAppendAndSnapshot(t *testing.T) {
	now := time.Unix(1000, 0)
	s := New("chat-1", "telegram", now)
	s.Append(oasis.UserMessage("hello"), now)
	s.Append(oasis.AssistantMessage("hi there"), now)

	snap := s.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(snap))
	}

	// Mutating the snapshot must not affect the session's own history.
	snap[0].Content = "mutated"
	if s.History[0].Content != "hello" {
		t.Fatalf("snapshot mutation leaked into session history: %q", s.History[0].Content)
	}
}

func TestTrimPreservesLeadingSystemMessage(t *testing.T) {
	now := time.Unix(1000, 0)
	s := New("chat-1", "telegram", now)
	s.Append(oasis.SystemMessage("be helpful"), now)
	for i := 0; i < 10; i++ {
		s.Append(oasis.UserMessage("msg"), now)
	}

	s.Trim(5)
	if s.History[0].Role != "system" {
		t.Fatalf("expected leading system message to survive trim, got role %q", s.History[0].Role)
	}
	if len(s.History) != 5 {
		t.Fatalf("expected 5 messages after trim, got %d", len(s.History))
	}
}

func TestTrimWithoutSystemMessage(t *testing.T) {
	now := time.Unix(1000, 0)
	s := New("chat-1", "telegram", now)
	for i := 0; i < 10; i++ {
		s.Append(oasis.UserMessage("msg"), now)
	}
	s.Trim(3)
	if len(s.History) != 3 {
		t.Fatalf("expected 3 messages after trim, got %d", len(s.History))
	}
}

func TestForkRedactsAndIsolates(t *testing.T) {
	now := time.Unix(1000, 0)
	s := New("chat-1", "telegram", now)
	meta, _ := json.Marshal(map[string]string{"thoughtSignature": "abc", "keep": "me"})
	s.Append(oasis.ChatMessage{
		Role:     "user",
		Content:  "my key is sk-abcdefghijklmnopqrstuvwxyz",
		Metadata: meta,
	}, now)

	forked := s.Fork(now)
	if forked == s {
		t.Fatal("fork must return a distinct session")
	}
	if len(forked.History) != 1 {
		t.Fatalf("expected 1 forked message, got %d", len(forked.History))
	}
	if forked.History[0].Content == s.History[0].Content {
		t.Fatal("expected forked content to be redacted")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(forked.History[0].Metadata, &fields); err != nil {
		t.Fatalf("expected forked metadata to remain valid JSON: %v", err)
	}
	if _, present := fields["thoughtSignature"]; present {
		t.Fatal("expected thoughtSignature to be stripped from forked metadata")
	}
	if _, present := fields["keep"]; !present {
		t.Fatal("expected unrelated metadata field to survive")
	}

	// Mutating the fork must not affect the parent.
	forked.Append(oasis.UserMessage("only in fork"), now)
	if len(s.History) != 1 {
		t.Fatalf("expected parent history unaffected by fork mutation, got %d messages", len(s.History))
	}
}
