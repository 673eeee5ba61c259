package server

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/1008610010/copycat/pkg/fileutil"
)

// Meta is the small durable state a replica must recover term/vote safety
// across restarts: currentTerm, votedFor, and an opaque serialized cluster
// configuration.
//
// (grounded on raftpb.HardState{Term, VotedFor, CommittedIndex} as
// persisted by raftwal's unsafeEncodeHardState; CommittedIndex is not
// carried here since spec.md derives commitIndex from the log and
// majority acks on restart rather than persisting it directly)
//
// spec.md §6: "{name}.meta — persistent meta: currentTerm:u64,
// votedFor:u64(0 = none), config:bytes"
type Meta struct {
	CurrentTerm uint64
	VotedFor    uint64
	Config      []byte
}

func metaPath(dir, name string) string {
	return filepath.Join(dir, fmt.Sprintf("%s.meta", name))
}

// LoadMeta reads the meta file, returning a zero Meta if it does not exist
// yet (a brand new replica).
func LoadMeta(dir, name string) (Meta, error) {
	path := metaPath(dir, name)
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Meta{}, nil
		}
		return Meta{}, err
	}
	if len(b) < 16 {
		return Meta{}, fmt.Errorf("server: meta file %s is truncated", path)
	}
	m := Meta{
		CurrentTerm: binary.BigEndian.Uint64(b[0:8]),
		VotedFor:    binary.BigEndian.Uint64(b[8:16]),
		Config:      append([]byte(nil), b[16:]...),
	}
	return m, nil
}

// SaveMeta durably writes m, via a temp-file-then-rename, the same pattern
// raftsnap.Snapshotter.SaveDB uses for atomic persistence.
func SaveMeta(dir, name string, m Meta) error {
	b := make([]byte, 16+len(m.Config))
	binary.BigEndian.PutUint64(b[0:8], m.CurrentTerm)
	binary.BigEndian.PutUint64(b[8:16], m.VotedFor)
	copy(b[16:], m.Config)

	path := metaPath(dir, name)
	tmp, err := os.CreateTemp(dir, name+".meta.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := fileutil.Fsync(tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
