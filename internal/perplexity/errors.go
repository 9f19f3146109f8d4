package perplexity

import (
	"errors"
	"fmt"
)

// ErrTimeout is returned when the API call exceeds the client timeout
var ErrTimeout = errors.New("perplexity: request timed out")

// HTTPError is returned when the API answers with a non-200 status
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("perplexity: API returned status %d: %s", e.Status, e.Body)
}

// NetworkError is returned on transport failures (DNS, connection reset,
// TLS handshake) that are not timeouts
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("perplexity: request failed: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ParseError is returned when a 200 response body is malformed or is
// missing required fields
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("perplexity: invalid response: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("perplexity: invalid response: %s", e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
