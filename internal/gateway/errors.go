package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrSchemaMismatch marks a 2xx response whose body did not match the
	// expected shape.
	ErrSchemaMismatch = errors.New("response schema mismatch")

	// ErrTransport marks failures where no HTTP response was received.
	ErrTransport = errors.New("transport failure")
)

// RequestError is the single failure shape produced by the gateway. Message
// is human readable and safe to show to the user.
type RequestError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *RequestError) Error() string {
	return e.Message
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Unauthorized reports whether the backend rejected the credentials.
func (e *RequestError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// StatusCode extracts the HTTP status from err, or 0 when err is not a
// RequestError carrying a response.
func StatusCode(err error) int {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.StatusCode
	}
	return 0
}

// errorMessage extracts "message" then "detail" from a JSON error payload and
// falls back to "HTTP <status>".
func errorMessage(status int, body []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, field := range []string{"message", "detail"} {
			if msg, ok := payload[field].(string); ok && msg != "" {
				return msg
			}
		}
	}
	return fmt.Sprintf("HTTP %d", status)
}
