package clawgate

import (
	"fmt"
	"strconv"
	"time"
)

// Kind tags an Error with a coarse category so callers can branch on
// failure class without string matching.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindUnauthorized
	KindForbidden
	KindTimeout
	KindConnectionFailed
	KindConnectionClosed
	KindProtocolError
	KindBrowserError
	KindRateLimited
	KindInvalidArgument
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindUnauthorized:
		return "Unauthorized"
	case KindForbidden:
		return "Forbidden"
	case KindTimeout:
		return "Timeout"
	case KindConnectionFailed:
		return "ConnectionFailed"
	case KindConnectionClosed:
		return "ConnectionClosed"
	case KindProtocolError:
		return "ProtocolError"
	case KindBrowserError:
		return "BrowserError"
	case KindRateLimited:
		return "RateLimited"
	case KindInvalidArgument:
		return "InvalidArgument"
	default:
		return "InternalError"
	}
}

// Error is the gateway's single tagged error type. Message is always set;
// Detail is optional extra context (an upstream error string, a port
// number, a path). See What() for the user-visible rendering rule.
type Error struct {
	Kind    Kind
	Message string
	Detail  string
}

func (e *Error) Error() string { return e.What() }

// What renders the error the way it is surfaced to clients: the message
// alone, or "message: detail" when a detail string is present.
func (e *Error) What() string {
	if e.Detail == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}

func newErr(k Kind, msg, detail string) *Error {
	return &Error{Kind: k, Message: msg, Detail: detail}
}

func NewNotFound(msg, detail string) *Error { return newErr(KindNotFound, msg, detail) }

func NewUnauthorized(msg, detail string) *Error { return newErr(KindUnauthorized, msg, detail) }

func NewForbidden(msg, detail string) *Error { return newErr(KindForbidden, msg, detail) }

func NewTimeout(msg, detail string) *Error { return newErr(KindTimeout, msg, detail) }

func NewConnectionFailed(msg, detail string) *Error {
	return newErr(KindConnectionFailed, msg, detail)
}

func NewConnectionClosed(msg string) *Error {
	return newErr(KindConnectionClosed, msg, "")
}

func NewProtocolError(msg, detail string) *Error { return newErr(KindProtocolError, msg, detail) }

func NewBrowserError(msg, detail string) *Error { return newErr(KindBrowserError, msg, detail) }

func NewRateLimited(msg, detail string) *Error { return newErr(KindRateLimited, msg, detail) }

func NewInvalidArgument(msg, detail string) *Error {
	return newErr(KindInvalidArgument, msg, detail)
}

func NewInternal(msg, detail string) *Error { return newErr(KindInternal, msg, detail) }

// ErrLLM is returned by a provider when a request fails before an HTTP
// response status can be evaluated (marshaling, building the request,
// decoding a malformed body).
type ErrLLM struct {
	Provider string
	Message  string
}

func (e *ErrLLM) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// ErrHTTP is returned by a provider for a non-2xx HTTP response. RetryAfter
// is the parsed Retry-After header (0 if absent or unparsable); retry
// middleware uses it as a minimum backoff floor.
type ErrHTTP struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// ParseRetryAfter parses an HTTP Retry-After header value, which is either a
// number of seconds or an HTTP-date. Returns 0 if header is empty or unparsable.
func ParseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := time.Parse(time.RFC1123, header); err == nil {
		d := time.Until(t)
		if d < 0 {
			return 0
		}
		return d
	}
	return 0
}

// AsError unwraps a generic error into a *Error, wrapping foreign errors as
// InternalError with the original message as detail.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return NewInternal("internal error", err.Error())
}
