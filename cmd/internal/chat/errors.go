package chat

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel error kinds (stable for errors.Is and for mapping to API status codes).
var (
	ErrAuthenticationRequired = errors.New("authentication_required")
	ErrAccessDenied           = errors.New("access_denied")
	ErrValidation             = errors.New("validation_error")
	ErrNotFound               = errors.New("not_found")
	ErrRateLimited            = errors.New("rate_limited")
)

// OpError is a typed operation error with a stable Op + Kind contract for callers/tests.
// Msg is user-visible; never put store internals in it.
type OpError struct {
	Op   string
	Kind error
	Msg  string
}

func (e OpError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Msg)
}

func (e OpError) Unwrap() error { return e.Kind }

func opErr(op string, kind error, msg string) error {
	return OpError{Op: op, Kind: kind, Msg: msg}
}

// LimitError reports that a caller exhausted its send budget.
type LimitError struct {
	Op         string
	RetryAfter time.Duration
}

func (e LimitError) Error() string {
	return fmt.Sprintf("%s: %v: retry after %s", e.Op, ErrRateLimited, e.RetryAfter)
}

func (e LimitError) Unwrap() error { return ErrRateLimited }

// RetryAfter returns the wait carried by a LimitError in err's chain.
func RetryAfter(err error) (time.Duration, bool) {
	var le LimitError
	if errors.As(err, &le) {
		return le.RetryAfter, true
	}
	return 0, false
}

// PublicMessage returns the human-readable part of err when it is an OpError.
func PublicMessage(err error) string {
	var oe OpError
	if errors.As(err, &oe) {
		return oe.Msg
	}
	return ""
}

// IsValidation reports whether err represents ErrValidation.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsNotFound reports whether err represents ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsAccessDenied reports whether err represents ErrAccessDenied.
func IsAccessDenied(err error) bool { return errors.Is(err, ErrAccessDenied) }
