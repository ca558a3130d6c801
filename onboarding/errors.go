package onboarding

import (
	"errors"
	"fmt"
)

var (
	// ErrPasswordRequired is the transport's signal that the account has a
	// second factor.
	ErrPasswordRequired = errors.New("onboarding: password required")
	ErrNoAttempt        = errors.New("onboarding: no login in progress")
	ErrWrongStep        = errors.New("onboarding: unexpected step")
	ErrSuperseded       = errors.New("onboarding: login attempt replaced")
)

// LoginError is a rejection reported by the transport. Retry marks errors
// the owner can fix by submitting again at the same step.
type LoginError struct {
	Code    string
	Message string
	Retry   bool
}

func (e *LoginError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Message == "" {
		return fmt.Sprintf("login rejected: %s", e.Code)
	}
	return e.Message
}

func retryable(err error) bool {
	var le *LoginError
	return errors.As(err, &le) && le.Retry
}

// Message returns the owner-facing text for err.
func Message(err error) string {
	var le *LoginError
	if errors.As(err, &le) {
		return le.Error()
	}
	return err.Error()
}
