package lobby

import (
	"errors"
	"fmt"
)

// Kind identifies why an operation was rejected. Values are stable strings
// so the transport can serialize them to clients as-is.
type Kind string

const (
	KindAlreadyInRoom       Kind = "already_in_room"
	KindRoomNotFound        Kind = "room_not_found"
	KindInvalidState        Kind = "invalid_state"
	KindRoomFull            Kind = "room_full"
	KindNotHost             Kind = "not_host"
	KindNotFull             Kind = "not_full"
	KindAlreadyStarted      Kind = "already_started"
	KindAllocationExhausted Kind = "allocation_exhausted"
)

// Error is a recoverable, caller-actionable rejection. Internal invariant
// violations are not Errors; the Manager panics on those instead.
type Error struct {
	Kind   Kind
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func reject(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind from err, or "" if err is not a lobby rejection.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
