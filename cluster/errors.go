package cluster

import "errors"

var (
	// ErrConfiguring is returned by CanPropose when a configuration change
	// has been logged but not yet committed.
	//
	// (spec.md §4.3: "rejects Join/Leave/Reconfigure ... while configuring
	// (lastConfigIndex > commitIndex)")
	ErrConfiguring = errors.New("cluster: a configuration change is still pending commit")

	// ErrInitializing is returned by CanPropose before the leader's noop
	// entry for its term has committed.
	ErrInitializing = errors.New("cluster: leader has not yet committed its initial entry")

	// ErrUnknownMember is returned by BuildLeave for a member id not
	// present in the current configuration.
	ErrUnknownMember = errors.New("cluster: unknown member id")

	// ErrAlreadyMember is returned by BuildJoin when the member id is already
	// present in the current configuration.
	ErrAlreadyMember = errors.New("cluster: member id already present")
)
