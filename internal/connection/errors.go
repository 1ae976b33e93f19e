package connection

import (
	"errors"
	"net/http"
)

type Kind string

const (
	KindPermissionDenied  Kind = "PERMISSION_DENIED"
	KindPolicyBlocked     Kind = "DISCONNECT_BLOCKED"
	KindNotFound          Kind = "NOT_FOUND"
	KindRemoteUnreachable Kind = "REMOTE_UNREACHABLE"
	KindRemoteRejected    Kind = "REMOTE_REJECTED"
	KindAlreadyExists     Kind = "ALREADY_EXISTS"
	KindInternal          Kind = "SERVER_ERROR"
)

// Error carries the specific deny reason and detail all the way out to the
// caller, so operators can tell "you're not allowed" from "nobody is allowed
// right now".
type Error struct {
	Kind    Kind                   `json:"code"`
	Message string                 `json:"error"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// AsError extracts a gateway error; anything else is reported as internal.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindInternal, Message: "internal server error"}
}

// HTTPStatus maps an error kind to the response status the route layer uses.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindPermissionDenied, KindPolicyBlocked:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindAlreadyExists:
		return http.StatusConflict
	case KindRemoteUnreachable:
		return http.StatusBadGateway
	case KindRemoteRejected:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
