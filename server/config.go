// Package server implements the Role State Machine, Leader Appender, and
// single-threaded Server Context & Scheduler of spec.md §4.6, §4.7, and §5.
package server

import (
	"fmt"
	"time"
)

// StorageLevel selects the durability tier for the log and snapshot
// directories.
//
// (spec.md §6: "storageLevel ∈ {MEMORY, MAPPED, DISK}")
type StorageLevel uint8

const (
	StorageLevelMemory StorageLevel = iota
	StorageLevelMapped
	StorageLevelDisk
)

func (l StorageLevel) String() string {
	switch l {
	case StorageLevelMemory:
		return "MEMORY"
	case StorageLevelMapped:
		return "MAPPED"
	case StorageLevelDisk:
		return "DISK"
	default:
		return "UNKNOWN"
	}
}

// Config holds every tunable named in spec.md §6's "Configuration knobs"
// table.
//
// (grounded on raft.Config's struct-plus-validate-plus-WithDefaults shape)
type Config struct {
	Name string
	Dir  string

	ServerAddress string
	ClientAddress string

	ElectionTimeout      time.Duration
	HeartbeatInterval    time.Duration
	SessionTimeout       time.Duration
	GlobalSuspendTimeout time.Duration

	MaxEntriesPerSegment uint64
	MaxSegmentSize       int64
	StorageLevel         StorageLevel

	SnapshotIntervalMs int64

	// UnavailableAfterFailures is the consecutive-append-failure count past
	// which a member is marked UNAVAILABLE.
	UnavailableAfterFailures int
}

// WithDefaults fills in the defaults spec.md §6 names.
func (c Config) WithDefaults() Config {
	if c.ElectionTimeout == 0 {
		c.ElectionTimeout = 750 * time.Millisecond
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 250 * time.Millisecond
	}
	if c.SessionTimeout == 0 {
		c.SessionTimeout = 5000 * time.Millisecond
	}
	if c.GlobalSuspendTimeout == 0 {
		c.GlobalSuspendTimeout = time.Hour
	}
	if c.MaxEntriesPerSegment == 0 {
		c.MaxEntriesPerSegment = 1 << 20
	}
	if c.MaxSegmentSize == 0 {
		c.MaxSegmentSize = 64 * 1024 * 1024
	}
	if c.SnapshotIntervalMs == 0 {
		c.SnapshotIntervalMs = 10 * 60 * 1000
	}
	if c.UnavailableAfterFailures == 0 {
		c.UnavailableAfterFailures = 3
	}
	return c
}

func (c Config) validate() error {
	if c.Name == "" {
		return fmt.Errorf("server: name must not be empty")
	}
	if c.Dir == "" {
		return fmt.Errorf("server: dir must not be empty")
	}
	if c.HeartbeatInterval >= c.ElectionTimeout {
		return fmt.Errorf("server: heartbeatInterval must be less than electionTimeout")
	}
	if c.SessionTimeout <= c.ElectionTimeout {
		return fmt.Errorf("server: sessionTimeout must be greater than electionTimeout")
	}
	return nil
}
