package core

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindValidation        ErrorKind = "ValidationError"
	KindForbidden         ErrorKind = "Forbidden"
	KindConnectionLimit   ErrorKind = "ConnectionLimitExceeded"
	KindTargetUnavailable ErrorKind = "TargetUnavailable"
	KindTransport         ErrorKind = "TransportFailure"
)

// Error is a lobby failure. Only Reason is shown to clients.
type Error struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on kind, and on reason when target sets one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Reason == "" || t.Reason == e.Reason)
}

// Wrap returns a copy of e carrying cause.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Kind: e.Kind, Reason: e.Reason, Err: cause}
}

func validation(reason string) *Error {
	return &Error{Kind: KindValidation, Reason: reason}
}

var (
	ErrForbidden         = &Error{Kind: KindForbidden, Reason: "Forbidden"}
	ErrConnectionLimit   = &Error{Kind: KindConnectionLimit, Reason: "ConnectionLimitExceeded"}
	ErrTargetUnavailable = &Error{Kind: KindTargetUnavailable, Reason: "TargetUnavailable"}
	ErrTransport         = &Error{Kind: KindTransport, Reason: "TransportFailure"}

	ErrNameEmpty      = validation("Empty")
	ErrNameTooLong    = validation("TooLong")
	ErrNameTaken      = validation("AlreadyTaken")
	ErrInvalidRole    = validation("InvalidRole")
	ErrMalformed      = validation("MalformedMessage")
	ErrUnknownType    = validation("UnknownType")
	ErrExpectedJoin   = validation("ExpectedJoin")
	ErrAlreadyJoined  = validation("AlreadyJoined")
	ErrNoTrack        = validation("NoTrackLoaded")
	ErrEmptyTrack     = validation("EmptyTrack")
	ErrInvalidAction  = validation("InvalidAction")
	ErrInvalidChannel = validation("InvalidChannel")
	ErrRateLimited    = validation("RateLimited")
	ErrNotInVoice     = validation("NotInVoiceChannel")
	ErrJoinTimeout    = validation("JoinTimeout")
)

// ReasonOf extracts the client-facing reason of err.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return "InternalError"
}
