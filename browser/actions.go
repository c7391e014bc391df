package browser

import (
	"context"
	"encoding/json"
	"time"

	oasis "github.com/nevindra/clawgate"
)

// Navigate loads url in the instance's active page and waits for the
// command acknowledgement (not full page load — callers needing that
// should follow up with Wait against a selector or document.readyState).
func (inst *Instance) Navigate(ctx context.Context, url string) *oasis.Error {
	_, err := inst.CDP.SendCommand(ctx, "Page.navigate", map[string]any{"url": url})
	return err
}

// Screenshot captures the current page as a base64-encoded PNG.
func (inst *Instance) Screenshot(ctx context.Context) (string, *oasis.Error) {
	raw, err := inst.CDP.SendCommand(ctx, "Page.captureScreenshot", map[string]any{"format": "png"})
	if err != nil {
		return "", err
	}
	var result struct {
		Data string `json:"data"`
	}
	if jerr := json.Unmarshal(raw, &result); jerr != nil {
		return "", oasis.NewBrowserError("malformed captureScreenshot response", jerr.Error())
	}
	return result.Data, nil
}

// PDF renders the current page to a base64-encoded PDF.
func (inst *Instance) PDF(ctx context.Context) (string, *oasis.Error) {
	raw, err := inst.CDP.SendCommand(ctx, "Page.printToPDF", map[string]any{})
	if err != nil {
		return "", err
	}
	var result struct {
		Data string `json:"data"`
	}
	if jerr := json.Unmarshal(raw, &result); jerr != nil {
		return "", oasis.NewBrowserError("malformed printToPDF response", jerr.Error())
	}
	return result.Data, nil
}

// Content returns the page's outer HTML via Runtime.evaluate against
// document.documentElement.outerHTML.
func (inst *Instance) Content(ctx context.Context) (string, *oasis.Error) {
	return inst.evalString(ctx, "document.documentElement.outerHTML")
}

// Evaluate runs an arbitrary JavaScript expression and returns its result
// value as a raw JSON blob (so numbers, strings, objects all round-trip).
func (inst *Instance) Evaluate(ctx context.Context, expression string) (json.RawMessage, *oasis.Error) {
	raw, err := inst.CDP.SendCommand(ctx, "Runtime.evaluate", map[string]any{
		"expression":    expression,
		"returnByValue": true,
	})
	if err != nil {
		return nil, err
	}
	var result struct {
		Result struct {
			Value json.RawMessage `json:"value"`
		} `json:"result"`
		ExceptionDetails json.RawMessage `json:"exceptionDetails,omitempty"`
	}
	if jerr := json.Unmarshal(raw, &result); jerr != nil {
		return nil, oasis.NewBrowserError("malformed Runtime.evaluate response", jerr.Error())
	}
	if result.ExceptionDetails != nil {
		return nil, oasis.NewBrowserError("page script threw", string(result.ExceptionDetails))
	}
	return result.Result.Value, nil
}

func (inst *Instance) evalString(ctx context.Context, expression string) (string, *oasis.Error) {
	raw, err := inst.Evaluate(ctx, expression)
	if err != nil {
		return "", err
	}
	var s string
	if jerr := json.Unmarshal(raw, &s); jerr != nil {
		return "", oasis.NewBrowserError("expected a string result", jerr.Error())
	}
	return s, nil
}

// Click dispatches a mouse click at the center of the element matching
// selector, found via querySelector + getBoundingClientRect.
func (inst *Instance) Click(ctx context.Context, selector string) *oasis.Error {
	x, y, err := inst.centerOf(ctx, selector)
	if err != nil {
		return err
	}
	for _, evType := range []string{"mousePressed", "mouseReleased"} {
		if _, err := inst.CDP.SendCommand(ctx, "Input.dispatchMouseEvent", map[string]any{
			"type":       evType,
			"x":          x,
			"y":          y,
			"button":     "left",
			"clickCount": 1,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (inst *Instance) centerOf(ctx context.Context, selector string) (float64, float64, *oasis.Error) {
	expr := "(() => { const el = document.querySelector(" + jsString(selector) + "); " +
		"if (!el) throw new Error('element not found'); " +
		"const r = el.getBoundingClientRect(); return {x: r.x + r.width/2, y: r.y + r.height/2}; })()"
	raw, err := inst.Evaluate(ctx, expr)
	if err != nil {
		return 0, 0, err
	}
	var point struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	if jerr := json.Unmarshal(raw, &point); jerr != nil {
		return 0, 0, oasis.NewBrowserError("could not resolve element position", jerr.Error())
	}
	return point.X, point.Y, nil
}

// Type dispatches one key event per rune of text to the currently focused
// element.
func (inst *Instance) Type(ctx context.Context, text string) *oasis.Error {
	for _, r := range text {
		if _, err := inst.CDP.SendCommand(ctx, "Input.dispatchKeyEvent", map[string]any{
			"type": "char",
			"text": string(r),
		}); err != nil {
			return err
		}
	}
	return nil
}

// Fill clicks selector, selects any existing value, then types text — the
// combined form-field interaction browser.fill exposes.
func (inst *Instance) Fill(ctx context.Context, selector, text string) *oasis.Error {
	if err := inst.Click(ctx, selector); err != nil {
		return err
	}
	selectAll := "document.querySelector(" + jsString(selector) + ").select && " +
		"document.querySelector(" + jsString(selector) + ").select()"
	if _, err := inst.Evaluate(ctx, selectAll); err != nil {
		return err
	}
	return inst.Type(ctx, text)
}

// Scroll scrolls the page by (dx, dy) pixels.
func (inst *Instance) Scroll(ctx context.Context, dx, dy float64) *oasis.Error {
	_, err := inst.Evaluate(ctx, jsScrollExpr(dx, dy))
	return err
}

func jsScrollExpr(dx, dy float64) string {
	return "window.scrollBy(" + floatLiteral(dx) + "," + floatLiteral(dy) + ")"
}

// Wait polls for selector to appear in the DOM, up to timeout.
func (inst *Instance) Wait(ctx context.Context, selector string, timeout time.Duration) *oasis.Error {
	deadline := time.Now().Add(timeout)
	expr := "!!document.querySelector(" + jsString(selector) + ")"
	for {
		raw, err := inst.Evaluate(ctx, expr)
		if err != nil {
			return err
		}
		var found bool
		if jerr := json.Unmarshal(raw, &found); jerr == nil && found {
			return nil
		}
		if time.Now().After(deadline) {
			return oasis.NewTimeout("element did not appear", selector)
		}
		select {
		case <-ctx.Done():
			return oasis.NewTimeout("wait cancelled", selector)
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// Cookies returns the browser's current cookie jar.
func (inst *Instance) Cookies(ctx context.Context) (json.RawMessage, *oasis.Error) {
	raw, err := inst.CDP.SendCommand(ctx, "Network.getCookies", map[string]any{})
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// SetCookie installs a single cookie.
func (inst *Instance) SetCookie(ctx context.Context, name, value, domain string) *oasis.Error {
	_, err := inst.CDP.SendCommand(ctx, "Network.setCookie", map[string]any{
		"name":   name,
		"value":  value,
		"domain": domain,
	})
	return err
}

func jsString(s string) string {
	encoded, _ := json.Marshal(s)
	return string(encoded)
}

func floatLiteral(f float64) string {
	encoded, _ := json.Marshal(f)
	return string(encoded)
}
