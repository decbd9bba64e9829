package mailer

import (
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies provider failures into the four shapes the engine
// reacts to. Everything else is KindUnknown.
type ErrorKind int

const (
	// KindUnknown is an unclassified provider failure.
	KindUnknown ErrorKind = iota
	// KindExpired means the token was rejected as expired or invalid.
	KindExpired
	// KindPermissionDenied means the token is valid but lacks consent/scope.
	KindPermissionDenied
	// KindNetwork means the call never completed; the token's standing is unknown.
	KindNetwork
)

// Error is a normalized provider error.
type Error struct {
	Kind     ErrorKind
	Provider string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	}
	return e.Provider + ": provider error"
}

func (e *Error) Unwrap() error { return e.Err }

func (k ErrorKind) String() string {
	switch k {
	case KindExpired:
		return "expired"
	case KindPermissionDenied:
		return "permission-denied"
	case KindNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// KindOf extracts the normalized kind from err. Untyped network errors
// (timeouts, refused connections) classify as KindNetwork; anything else
// unrecognized is KindUnknown.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindNetwork
	}
	return KindUnknown
}

func newError(kind ErrorKind, provider, message string, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Message: message, Err: err}
}

// classifyHTTPStatus maps an HTTP status from a provider API call to an
// error kind. 401 means the token is no longer accepted; 403 means consent
// or scope is missing.
func classifyHTTPStatus(status int) ErrorKind {
	switch status {
	case 401:
		return KindExpired
	case 403:
		return KindPermissionDenied
	default:
		return KindUnknown
	}
}
