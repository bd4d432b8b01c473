// Package backend holds the HTTP clients for the two upstream services the
// console consumes: the KYC document service and the fraud analysis service.
// Calls apply a fixed timeout and never retry; callers decide whether to
// surface the failure or substitute fallback data.
package backend

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NetworkError wraps a transport-level failure (connection refused, DNS,
// broken pipe). Prior state should be retained by the caller.
type NetworkError struct {
	Op  string
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// TimeoutError marks a call that exceeded the client deadline. Surfaced to
// operators identically to NetworkError.
type TimeoutError struct {
	Op  string
	URL string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s %s: timed out: %v", e.Op, e.URL, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// HTTPStatusError is a non-2xx response. Message carries whatever descriptive
// text could be recovered from the body.
type HTTPStatusError struct {
	Op      string
	URL     string
	Status  int
	Message string
}

func (e *HTTPStatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Op, e.URL, e.Status, e.Message)
	}
	return fmt.Sprintf("%s %s: status %d", e.Op, e.URL, e.Status)
}

// statusMessage extracts a human-readable message from an error response
// body: a JSON "error" or "message" field when the body is JSON, else the
// raw text capped at 200 characters.
func statusMessage(body []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, key := range []string{"error", "message"} {
			if s, ok := payload[key].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}
