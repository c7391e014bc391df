package browser

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/nevindra/clawgate/cdp"
)

var testUpgrader = websocket.Upgrader{}

// newActionServer answers each inbound CDP command with the canned result
// registered for its method name, defaulting to an empty object.
func newActionServer(t *testing.T, results map[string]any) (inst *Instance, closeServer func()) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for {
			var cmd struct {
				ID     uint32          `json:"id"`
				Method string          `json:"method"`
				Params json.RawMessage `json:"params"`
			}
			if err := conn.ReadJSON(&cmd); err != nil {
				return
			}
			result, ok := results[cmd.Method]
			if !ok {
				result = map[string]any{}
			}
			conn.WriteJSON(map[string]any{"id": cmd.ID, "result": result})
		}
	}))

	wsURL := "ws" + srv.URL[len("http"):]
	client, err := cdp.Connect(context.Background(), wsURL, nil)
	if err != nil {
		t.Fatalf("failed to connect test cdp client: %v", err)
	}
	return &Instance{ID: "test", CDP: client}, func() {
		client.Disconnect()
		srv.Close()
	}
}

func TestNavigateSendsPageNavigate(t *testing.T) {
	inst, closeServer := newActionServer(t, map[string]any{
		"Page.navigate": map[string]any{"frameId": "f1"},
	})
	defer closeServer()

	if err := inst.Navigate(context.Background(), "https://example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestScreenshotDecodesBase64Payload(t *testing.T) {
	inst, closeServer := newActionServer(t, map[string]any{
		"Page.captureScreenshot": map[string]any{"data": "cGFzcw=="},
	})
	defer closeServer()

	data, err := inst.Screenshot(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data != "cGFzcw==" {
		t.Fatalf("expected base64 payload, got %q", data)
	}
}

func TestEvaluateReturnsValue(t *testing.T) {
	inst, closeServer := newActionServer(t, map[string]any{
		"Runtime.evaluate": map[string]any{"result": map[string]any{"value": 42}},
	})
	defer closeServer()

	raw, err := inst.Evaluate(context.Background(), "21 * 2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var n int
	if jerr := json.Unmarshal(raw, &n); jerr != nil || n != 42 {
		t.Fatalf("expected 42, got %s (err=%v)", raw, jerr)
	}
}

func TestEvaluateSurfacesPageException(t *testing.T) {
	inst, closeServer := newActionServer(t, map[string]any{
		"Runtime.evaluate": map[string]any{
			"result":           map[string]any{"value": nil},
			"exceptionDetails": map[string]any{"text": "boom"},
		},
	})
	defer closeServer()

	_, err := inst.Evaluate(context.Background(), "throw new Error('boom')")
	if err == nil {
		t.Fatal("expected an error when the page script throws")
	}
}

func TestContentReturnsOuterHTML(t *testing.T) {
	inst, closeServer := newActionServer(t, map[string]any{
		"Runtime.evaluate": map[string]any{"result": map[string]any{"value": "<html></html>"}},
	})
	defer closeServer()

	html, err := inst.Content(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if html != "<html></html>" {
		t.Fatalf("got %q", html)
	}
}

func TestCookiesReturnsRawResult(t *testing.T) {
	inst, closeServer := newActionServer(t, map[string]any{
		"Network.getCookies": map[string]any{"cookies": []any{}},
	})
	defer closeServer()

	raw, err := inst.Cookies(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded struct {
		Cookies []any `json:"cookies"`
	}
	if jerr := json.Unmarshal(raw, &decoded); jerr != nil {
		t.Fatalf("malformed cookies payload: %v", jerr)
	}
}
