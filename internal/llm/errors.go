package llm

import (
	"errors"
	"fmt"
)

// Sentinel errors for the backend failure taxonomy. ErrBackendUnreachable,
// HTTPError and ErrModelLoading are retryable; ErrMalformedResponse is not.
var (
	ErrBackendUnreachable = errors.New("backend unreachable")
	ErrModelLoading       = errors.New("model is loading")
	ErrMalformedResponse  = errors.New("malformed backend response")
)

// HTTPError is a non-2xx backend reply.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("backend http %d: %s", e.Status, e.Body)
}

// retryable reports whether another attempt may succeed.
func retryable(err error) bool {
	if errors.Is(err, ErrBackendUnreachable) || errors.Is(err, ErrModelLoading) {
		return true
	}
	var httpErr *HTTPError
	return errors.As(err, &httpErr)
}
