package retry

import (
	"fmt"

	"github.com/pkg/errors"
)

// The tagged error types below are produced at the network call boundary so
// that classification is a pattern match instead of probing an error's shape.

// NetworkError marks a request that obtained no response at all.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// HTTPError carries the status of a response the caller considers a failure.
type HTTPError struct {
	Status int
	URL    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error: status %d from %s", e.Status, e.URL)
}

// IsNetworkError reports whether err is (or wraps) a NetworkError.
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// HTTPStatus extracts the status code when err is (or wraps) an HTTPError.
// Absence of a status means "not retryable", never a panic.
func HTTPStatus(err error) (int, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status, true
	}
	return 0, false
}
