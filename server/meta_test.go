package server

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMetaMissingFileReturnsZeroValue(t *testing.T) {
	dir := t.TempDir()
	m, err := LoadMeta(dir, "n1")
	require.NoError(t, err)
	require.Equal(t, Meta{}, m)
}

func TestSaveMetaThenLoadMetaRoundTrips(t *testing.T) {
	dir := t.TempDir()
	want := Meta{CurrentTerm: 7, VotedFor: 3, Config: []byte("cfg-bytes")}

	require.NoError(t, SaveMeta(dir, "n1", want))

	got, err := LoadMeta(dir, "n1")
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestSaveMetaOverwritesPreviousValue(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, SaveMeta(dir, "n1", Meta{CurrentTerm: 1, VotedFor: 1}))
	require.NoError(t, SaveMeta(dir, "n1", Meta{CurrentTerm: 2, VotedFor: 0}))

	got, err := LoadMeta(dir, "n1")
	require.NoError(t, err)
	require.Equal(t, uint64(2), got.CurrentTerm)
	require.Equal(t, uint64(0), got.VotedFor)
	require.Empty(t, got.Config)
}
