package server

import "errors"

var (
	// ErrNotLeader is returned by client-operation handlers when this
	// replica's Role is not RoleLeader and the request cannot be forwarded.
	ErrNotLeader = errors.New("server: not leader")

	// ErrStopped is not returned by any operation in this package: an
	// operation submitted after Stop receives the zero value of its result
	// instead (see await).
	ErrStopped = errors.New("server: stopped")

	// ErrProposalDropped is returned when a proposal's future is failed
	// because the leader stepped down before the entry committed.
	ErrProposalDropped = errors.New("server: proposal dropped, leader stepped down")
)
