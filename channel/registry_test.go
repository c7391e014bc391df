package channel

import (
	"context"
	"testing"
	"time"

	oasis "github.com/nevindra/clawgate"
)

type fakeFrontend struct {
	updates chan oasis.IncomingMessage
	sent    []string
}

func (f *fakeFrontend) Poll(ctx context.Context) (<-chan oasis.IncomingMessage, error) {
	return f.updates, nil
}

func (f *fakeFrontend) Send(ctx context.Context, chatID, text string) (string, error) {
	f.sent = append(f.sent, text)
	return "msg-1", nil
}

func (f *fakeFrontend) Edit(ctx context.Context, chatID, msgID, text string) error { return nil }
func (f *fakeFrontend) EditFormatted(ctx context.Context, chatID, msgID, text string) error {
	return nil
}
func (f *fakeFrontend) SendTyping(ctx context.Context, chatID string) error { return nil }
func (f *fakeFrontend) DownloadFile(ctx context.Context, fileID string) ([]byte, string, error) {
	return nil, "", nil
}

func TestChannelStartBuffersIncomingMessages(t *testing.T) {
	fe := &fakeFrontend{updates: make(chan oasis.IncomingMessage, 1)}
	ch := New("test", "telegram", fe)

	if err := ch.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ch.IsRunning() {
		t.Fatal("expected channel to report running after Start")
	}

	fe.updates <- oasis.IncomingMessage{ChatID: "1", Text: "hi"}

	deadline := time.Now().Add(time.Second)
	for {
		msgs := ch.Receive(10)
		if len(msgs) == 1 {
			if msgs[0].Text != "hi" {
				t.Fatalf("unexpected message: %+v", msgs[0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for buffered message")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestChannelStopMarksNotRunning(t *testing.T) {
	fe := &fakeFrontend{updates: make(chan oasis.IncomingMessage)}
	ch := New("test", "telegram", fe)
	if err := ch.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ch.Stop()
	if ch.IsRunning() {
		t.Fatal("expected channel to report stopped")
	}
}

func TestChannelSendDelegatesToFrontend(t *testing.T) {
	fe := &fakeFrontend{updates: make(chan oasis.IncomingMessage)}
	ch := New("test", "telegram", fe)
	id, err := ch.Send(context.Background(), "42", "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "msg-1" || len(fe.sent) != 1 || fe.sent[0] != "hello" {
		t.Fatalf("unexpected send result: id=%q sent=%v", id, fe.sent)
	}
}

func TestRegistryListReportsAllChannels(t *testing.T) {
	r := NewRegistry()
	r.Add(New("a", "telegram", &fakeFrontend{updates: make(chan oasis.IncomingMessage)}))
	r.Add(New("b", "telegram", &fakeFrontend{updates: make(chan oasis.IncomingMessage)}))

	statuses := r.List()
	if len(statuses) != 2 {
		t.Fatalf("expected 2 channels, got %d", len(statuses))
	}
}

func TestRegistryGetMissingChannel(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Get("missing"); ok {
		t.Fatal("expected missing channel to not be found")
	}
}
