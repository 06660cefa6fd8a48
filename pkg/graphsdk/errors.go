package graphsdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/aussiebroadwan/graphconnect/pkg/formx"
)

// ============================================================================
// Error kinds
// ============================================================================

var (
	// ErrInvalidParameter is returned synchronously by builders when a
	// parameter value cannot be encoded.
	ErrInvalidParameter = formx.ErrInvalidParameter

	// ErrInvalidState is returned when an operation is invoked on an entity
	// in the wrong lifecycle state, such as dispatching a request twice.
	ErrInvalidState = errors.New("invalid state")

	// ErrTransport covers network failures and non-2xx provider responses.
	ErrTransport = errors.New("transport error")

	// ErrProtocol is returned when a response or redirect does not have the
	// expected shape.
	ErrProtocol = errors.New("protocol error")

	// ErrCanceled is returned when the caller or user abandoned the operation.
	ErrCanceled = errors.New("canceled")

	// ErrSessionExpired is returned when a token is present but past its expiry.
	ErrSessionExpired = errors.New("session expired")
)

// Error pairs an error kind with the operation that failed and its cause.
// errors.Is matches both the kind and anything in the cause chain.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func newError(kind error, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("graphsdk: ")
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Error())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsCanceled reports whether err is a cancellation, from either the SDK or
// a context.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled) || errors.Is(err, context.Canceled)
}

// IsTransport reports whether err is a transport failure. Callers typically
// retry these.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

func IsSessionExpired(err error) bool {
	return errors.Is(err, ErrSessionExpired)
}

// ============================================================================
// Provider error payloads
// ============================================================================

// APIError is an error reported by the provider, either in a Graph
// {"error":{...}} envelope or a REST {"error_code":..,"error_msg":..} body.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       int    `json:"code"`
	Subcode    int    `json:"error_subcode"`
	Type       string `json:"type"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	var b strings.Builder
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, "HTTP %d", e.StatusCode)
	}
	if e.Type != "" {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(e.Type)
	}
	if e.Code != 0 {
		fmt.Fprintf(&b, " (code %d", e.Code)
		if e.Subcode != 0 {
			fmt.Fprintf(&b, ", subcode %d", e.Subcode)
		}
		b.WriteString(")")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return strings.TrimSpace(b.String())
}

// SessionInvalidated reports whether the provider rejected the access token.
func (e *APIError) SessionInvalidated() bool {
	return e.Code == 190 || e.Code == 102 || strings.EqualFold(e.Type, "OAuthException")
}

// flexInt accepts both 190 and "190".
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	*f = flexInt(n)
	return nil
}

// parseAPIError extracts a provider error payload from body. It returns nil
// when the body carries no recognised error.
func parseAPIError(status int, body []byte) *APIError {
	var envelope struct {
		Error     json.RawMessage `json:"error"`
		ErrorCode flexInt         `json:"error_code"`
		ErrorMsg  string          `json:"error_msg"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil
	}

	if len(envelope.Error) > 0 && string(envelope.Error) != "null" {
		var graph struct {
			Message string  `json:"message"`
			Type    string  `json:"type"`
			Code    flexInt `json:"code"`
			Subcode flexInt `json:"error_subcode"`
		}
		if err := json.Unmarshal(envelope.Error, &graph); err == nil {
			return &APIError{
				StatusCode: status,
				Code:       int(graph.Code),
				Subcode:    int(graph.Subcode),
				Type:       graph.Type,
				Message:    graph.Message,
			}
		}
		var msg string
		if err := json.Unmarshal(envelope.Error, &msg); err == nil && msg != "" {
			return &APIError{StatusCode: status, Message: msg}
		}
	}

	if envelope.ErrorCode != 0 || envelope.ErrorMsg != "" {
		return &APIError{
			StatusCode: status,
			Code:       int(envelope.ErrorCode),
			Message:    envelope.ErrorMsg,
		}
	}
	return nil
}

// statusError builds the cause for a non-2xx response without a payload.
func statusError(status int) *APIError {
	return &APIError{
		StatusCode: status,
		Message:    http.StatusText(status),
	}
}
