package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel status values carried by Error when no HTTP status exists.
const (
	// StatusNoResponse marks a request that was sent but got no response
	// (connection refused, DNS failure, timeout).
	StatusNoResponse = 0

	// StatusNotSent marks a request that could not be built.
	StatusNotSent = -1
)

var (
	// ErrUnauthorized is matched by errors.Is for every 401 response.
	ErrUnauthorized = errors.New("session expired")

	// ErrLoginFailed is returned by Login for any outcome other than a 200
	// response carrying an access token.
	ErrLoginFailed = errors.New("login failed")

	// ErrUnknownResource is returned when a resource name is not recognized.
	ErrUnknownResource = errors.New("unknown resource")
)

// Error is the normalized shape of every failed backend call, so callers can
// branch on Status without knowing anything about net/http.
type Error struct {
	// Status is the HTTP status, StatusNoResponse or StatusNotSent.
	Status int

	// Data is the response body. JSON bodies are kept as-is; anything else is
	// encoded as a JSON string. Nil when there was no response.
	Data json.RawMessage

	// Message is a human-readable summary.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	switch e.Status {
	case StatusNotSent:
		return e.Message
	case StatusNoResponse:
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Message, e.Err)
		}
		return e.Message
	default:
		return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusOf returns the Status of an *Error in err's chain, or StatusNotSent
// when err is not an API error.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return StatusNotSent
}

// IsUnauthorized reports whether err came from a 401 response.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsConnectionError reports whether err means the backend never answered.
func IsConnectionError(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == StatusNoResponse
}

// responseData converts a raw body into Error.Data.
func responseData(body []byte) json.RawMessage {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil
	}
	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed)
	}
	quoted, _ := json.Marshal(trimmed)
	return quoted
}

// responseMessage extracts a message from common backend error bodies
// (plain objects and RFC 7807 problem details), falling back to the status
// text.
func responseMessage(status int, body []byte) string {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err == nil {
		for _, key := range []string{"message", "mensagem", "error", "detail", "title"} {
			if s, ok := obj[key].(string); ok && s != "" {
				return s
			}
		}
	}
	if text := http.StatusText(status); text != "" {
		return strings.ToLower(text)
	}
	return fmt.Sprintf("unexpected status %d", status)
}
