package recovery

import (
	"errors"
	"fmt"

	"github.com/sheraliortiqboyev4-del/spy-bot/events"
)

// ErrUnavailable is returned by fetchers when the transport no longer
// serves the handle (expired, deleted or never accessible).
var ErrUnavailable = errors.New("media handle unavailable")

type Reason string

const (
	ReasonUnavailable Reason = "unavailable"
	ReasonTransport   Reason = "transport"
	ReasonTooLarge    Reason = "too_large"
	ReasonWrite       Reason = "write"
)

type Error struct {
	Reason Reason
	Handle events.MediaHandle
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err == nil {
		return fmt.Sprintf("recover %s media %s", e.Reason, e.Handle.FileID)
	}
	return fmt.Sprintf("recover %s media %s: %v", e.Reason, e.Handle.FileID, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ReasonOf reports the failure reason of err, or "" when err is not a
// recovery error.
func ReasonOf(err error) Reason {
	var re *Error
	if errors.As(err, &re) {
		return re.Reason
	}
	return ""
}
