package netop

import (
	"errors"
	"fmt"
)

// StatusError is a non-2xx response
type StatusError struct {
	StatusCode int
	// Message is the service's own explanation, when it gave one
	Message string
}

func (e *StatusError) Error() string {
	switch {
	case e.StatusCode >= 400 && e.StatusCode < 500 && e.Message != "":
		return "Error: " + e.Message
	case e.StatusCode >= 400 && e.StatusCode < 500:
		return fmt.Sprintf("client error: %d", e.StatusCode)
	case e.StatusCode >= 500:
		return fmt.Sprintf("server error: %d", e.StatusCode)
	default:
		return fmt.Sprintf("unexpected status: %d", e.StatusCode)
	}
}

// IsClientError reports a 4xx response
func (e *StatusError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// CheckStatus returns nil for 2xx responses and a StatusError otherwise.
// message extracts the service's error text from a 4xx body; it may be nil.
func CheckStatus(resp Response, message func(body []byte) string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	statusErr := &StatusError{StatusCode: resp.StatusCode}
	if statusErr.IsClientError() && message != nil && len(resp.Body) > 0 {
		statusErr.Message = message(resp.Body)
	}
	return statusErr
}

// StatusCode returns the HTTP status carried by err, or 0
func StatusCode(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}
