package clawgate

import "encoding/json"

// FrameType discriminates the three wire-level frame shapes defined in
// SPEC_FULL.md §6.
const (
	FrameRequest  = "request"
	FrameResponse = "response"
	FrameEvent    = "event"
)

// RequestFrame is a client-to-gateway call.
type RequestFrame struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// FrameError is the error payload embedded in a ResponseFrame.
type FrameError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// ResponseFrame answers a RequestFrame by ID. Exactly one of Result/Error is set.
type ResponseFrame struct {
	Type   string      `json:"type"`
	ID     string      `json:"id"`
	Result any         `json:"result,omitempty"`
	Error  *FrameError `json:"error,omitempty"`
}

// EventFrame is an unsolicited, topic-scoped broadcast.
type EventFrame struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
	Data  any    `json:"data"`
	TS    int64  `json:"ts"`
}

// Event topics (SPEC_FULL.md §6).
const (
	TopicChat    = "chat"
	TopicAgent   = "agent"
	TopicSession = "session"
	TopicChannel = "channel"
	TopicTool    = "tool"
	TopicMemory  = "memory"
	TopicBrowser = "browser"
	TopicPlugin  = "plugin"
	TopicCron    = "cron"
	TopicConfig  = "config"
	TopicGateway = "gateway"
)

// kindToCode maps an Error Kind to a stable numeric code carried on the wire.
// Values are gateway-internal; clients should match on Message/Kind-derived
// text rather than relying on specific integers.
var kindToCode = map[Kind]int{
	KindInternal:         1000,
	KindNotFound:         1001,
	KindUnauthorized:     1002,
	KindForbidden:        1003,
	KindTimeout:          1004,
	KindConnectionFailed: 1005,
	KindConnectionClosed: 1006,
	KindProtocolError:    1007,
	KindBrowserError:     1008,
	KindRateLimited:      1009,
	KindInvalidArgument:  1010,
}

// NewResponse builds a successful ResponseFrame.
func NewResponse(id string, result any) ResponseFrame {
	return ResponseFrame{Type: FrameResponse, ID: id, Result: result}
}

// NewErrorResponse builds a failed ResponseFrame from a gateway *Error.
func NewErrorResponse(id string, err *Error) ResponseFrame {
	return ResponseFrame{
		Type: FrameResponse,
		ID:   id,
		Error: &FrameError{
			Code:    kindToCode[err.Kind],
			Message: err.Message,
			Detail:  err.Detail,
		},
	}
}

// NewEvent builds an EventFrame stamped with the supplied millisecond timestamp.
func NewEvent(topic string, data any, tsMillis int64) EventFrame {
	return EventFrame{Type: FrameEvent, Topic: topic, Data: data, TS: tsMillis}
}
