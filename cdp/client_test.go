package cdp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{}

// newEchoServer starts a test server that answers every inbound command
// with {"id": <same id>, "result": {"echo": method}} and can separately
// push events via the returned push function.
func newEchoServer(t *testing.T) (wsURL string, push func(method string, params any), closeServer func()) {
	t.Helper()
	var conn *websocket.Conn
	connCh := make(chan *websocket.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connCh <- c
		for {
			var cmd outboundCommand
			if err := c.ReadJSON(&cmd); err != nil {
				return
			}
			c.WriteJSON(inboundFrame{ID: cmd.ID, Result: mustJSON(map[string]string{"echo": cmd.Method})})
		}
	}))

	wsURL = "ws" + srv.URL[len("http"):]

	go func() { conn = <-connCh }()

	return wsURL, func(method string, params any) {
		for conn == nil {
			time.Sleep(time.Millisecond)
		}
		raw, _ := json.Marshal(params)
		conn.WriteJSON(inboundFrame{Method: method, Params: raw})
	}, srv.Close
}

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func TestClientSendCommand(t *testing.T) {
	wsURL, _, closeServer := newEchoServer(t)
	defer closeServer()

	client, gwErr := Connect(context.Background(), wsURL, nil)
	if gwErr != nil {
		t.Fatalf("connect failed: %v", gwErr)
	}
	defer client.Disconnect()

	result, gwErr := client.SendCommand(context.Background(), "Page.navigate", map[string]string{"url": "about:blank"})
	if gwErr != nil {
		t.Fatalf("send command failed: %v", gwErr)
	}

	var decoded map[string]string
	if err := json.Unmarshal(result, &decoded); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if decoded["echo"] != "Page.navigate" {
		t.Fatalf("expected echo of method name, got %+v", decoded)
	}
}

func TestClientSubscribeReceivesEvent(t *testing.T) {
	wsURL, push, closeServer := newEchoServer(t)
	defer closeServer()

	client, gwErr := Connect(context.Background(), wsURL, nil)
	if gwErr != nil {
		t.Fatalf("connect failed: %v", gwErr)
	}
	defer client.Disconnect()

	received := make(chan json.RawMessage, 1)
	client.Subscribe("Page.loadEventFired", func(params json.RawMessage) {
		received <- params
	})

	push("Page.loadEventFired", map[string]int{"timestamp": 42})

	select {
	case params := <-received:
		var decoded map[string]int
		json.Unmarshal(params, &decoded)
		if decoded["timestamp"] != 42 {
			t.Fatalf("expected timestamp 42, got %+v", decoded)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestClientDisconnectFailsPending(t *testing.T) {
	wsURL, _, closeServer := newEchoServer(t)
	defer closeServer()

	client, gwErr := Connect(context.Background(), wsURL, nil)
	if gwErr != nil {
		t.Fatalf("connect failed: %v", gwErr)
	}

	client.Disconnect()
	if client.IsConnected() {
		t.Fatal("expected IsConnected() false after Disconnect")
	}

	_, gwErr = client.SendCommand(context.Background(), "Page.navigate", nil)
	if gwErr == nil || gwErr.Kind.String() != "ConnectionClosed" {
		t.Fatalf("expected ConnectionClosed error, got %v", gwErr)
	}

	// Disconnect is idempotent.
	client.Disconnect()
}
