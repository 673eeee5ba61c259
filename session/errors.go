package session

import "errors"

var (
	// ErrUnknownSession is returned by Manager operations against a session
	// id that was never registered, has expired, or has closed.
	ErrUnknownSession = errors.New("session: unknown session")

	// ErrSessionClosed is not returned by any operation in this package;
	// Manager.Get reports a CLOSED or EXPIRED session as ErrUnknownSession.
	ErrSessionClosed = errors.New("session: session is closed")
)
