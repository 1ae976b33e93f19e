package mfa

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	// KindUnreachable covers transport failures and timeouts.
	KindUnreachable ErrorKind = "unreachable"
	// KindRejected covers any non-2xx response from the remote service.
	KindRejected ErrorKind = "rejected"
)

// RemoteError is the only error type the client returns for calls that made
// it to the network. Retrying is the caller's decision, never the client's.
type RemoteError struct {
	Kind       ErrorKind
	Endpoint   string
	StatusCode int
	Body       string
	Err        error
}

func (e *RemoteError) Error() string {
	if e.Kind == KindRejected {
		return fmt.Sprintf("mfa api %s rejected with status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("mfa api %s unreachable: %v", e.Endpoint, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

func IsUnreachable(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Kind == KindUnreachable
}

func IsRejected(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Kind == KindRejected
}
