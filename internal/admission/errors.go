package admission

import (
	"errors"
	"fmt"
)

// Reason identifies why a claim was rejected.
type Reason string

const (
	ReasonInvalidTimestamp  Reason = "invalid_timestamp"
	ReasonQrExpired         Reason = "qr_expired"
	ReasonSessionNotFound   Reason = "session_not_found"
	ReasonSessionNotActive  Reason = "session_not_active"
	ReasonSessionNotStarted Reason = "session_not_started"
	ReasonSessionEnded      Reason = "session_ended"
	ReasonOutOfRange        Reason = "out_of_range"
	ReasonAlreadyMarked     Reason = "already_marked"
	ReasonStorageError      Reason = "storage_error"
)

// Error is a terminal admission rejection. Detail carries the computed values
// (elapsed seconds, window boundaries, distance) for diagnosability.
type Error struct {
	Reason Reason
	Detail string
}

func (e *Error) Error() string {
	return string(e.Reason) + ": " + e.Detail
}

func reject(reason Reason, format string, args ...any) *Error {
	return &Error{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// ReasonOf extracts the rejection reason from an error chain, or "" when the
// error is not an admission rejection.
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}
