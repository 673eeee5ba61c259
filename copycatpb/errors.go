package copycatpb

import "fmt"

// ErrorType is the typed error taxonomy of spec.md §7, propagated across
// process boundaries so a client knows whether/how to retry.
//
// (raft.raftpb enum-with-String style)
type ErrorType uint8

const (
	ERROR_NONE ErrorType = iota
	ERROR_NO_LEADER
	ERROR_ILLEGAL_MEMBER_STATE
	ERROR_UNKNOWN_SESSION
	ERROR_UNKNOWN_STATE_MACHINE
	ERROR_COMMAND_ERROR
	ERROR_QUERY_ERROR
	ERROR_CONFIGURATION_ERROR
	ERROR_APPLICATION_ERROR
	ERROR_INTERNAL_ERROR
)

func (e ErrorType) String() string {
	switch e {
	case ERROR_NONE:
		return "NONE"
	case ERROR_NO_LEADER:
		return "NO_LEADER"
	case ERROR_ILLEGAL_MEMBER_STATE:
		return "ILLEGAL_MEMBER_STATE"
	case ERROR_UNKNOWN_SESSION:
		return "UNKNOWN_SESSION"
	case ERROR_UNKNOWN_STATE_MACHINE:
		return "UNKNOWN_STATE_MACHINE"
	case ERROR_COMMAND_ERROR:
		return "COMMAND_ERROR"
	case ERROR_QUERY_ERROR:
		return "QUERY_ERROR"
	case ERROR_CONFIGURATION_ERROR:
		return "CONFIGURATION_ERROR"
	case ERROR_APPLICATION_ERROR:
		return "APPLICATION_ERROR"
	case ERROR_INTERNAL_ERROR:
		return "INTERNAL_ERROR"
	default:
		return "ERROR_UNKNOWN"
	}
}

// Error is the typed error returned by the request plane. It carries enough
// state for a client to retry correctly: a leader hint when known, and the
// last accepted sequence number when the failure is sequence-dependent.
type Error struct {
	Type         ErrorType
	Message      string
	LeaderHint   string
	LastSequence uint64
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// NewError builds an Error of the given type with a formatted message.
func NewError(t ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...)}
}
