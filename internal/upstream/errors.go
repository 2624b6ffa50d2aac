package upstream

import (
	"errors"
	"fmt"
	"net/http"
)

// maxErrorBody caps how much of a rejected stream's body is kept.
const maxErrorBody = 64 << 10

// StatusError is a non-2xx provider reply. The body is forwarded to the caller
// unchanged.
type StatusError struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned HTTP %d", e.StatusCode)
}

// TransportError is a failure to reach the provider or read its reply.
type TransportError struct {
	Err     error
	Timeout bool
}

func (e *TransportError) Error() string {
	if e.Timeout {
		return "upstream timed out"
	}
	return "upstream request failed"
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusCode maps transport failures to 504 for timeouts and 502 otherwise.
func (e *TransportError) StatusCode() int {
	if e.Timeout {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

// AsStatusError returns the provider reply carried by err, if any.
func AsStatusError(err error) (*StatusError, bool) {
	var se *StatusError
	ok := errors.As(err, &se)
	return se, ok
}

// IsTransportError reports whether err is a provider transport failure.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
