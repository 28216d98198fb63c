package upstream

import (
	"errors"
	"fmt"
)

// Kind classifies a remote failure.
type Kind string

const (
	// KindUnavailable is a transport failure: no usable response arrived.
	KindUnavailable Kind = "unavailable"
	// KindStatus is a response with a status code the call does not accept.
	KindStatus Kind = "status"
	// KindMalformed is a response whose body could not be used.
	KindMalformed Kind = "malformed"
)

// Error is a failed remote call.
type Error struct {
	Service    string
	Op         string
	Kind       Kind
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindStatus:
		if e.Body != "" {
			return fmt.Sprintf("%s %s: status %d: %s", e.Service, e.Op, e.StatusCode, e.Body)
		}
		return fmt.Sprintf("%s %s: status %d", e.Service, e.Op, e.StatusCode)
	case KindMalformed:
		if e.Err != nil {
			return fmt.Sprintf("%s %s: malformed response: %v", e.Service, e.Op, e.Err)
		}
		return fmt.Sprintf("%s %s: malformed response", e.Service, e.Op)
	default:
		return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var ue *Error
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// IsStatus reports whether err is a status error with the given code.
func IsStatus(err error, code int) bool {
	ue, ok := As(err)
	return ok && ue.Kind == KindStatus && ue.StatusCode == code
}
