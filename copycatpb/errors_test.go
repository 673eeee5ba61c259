package copycatpb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorTypeString(t *testing.T) {
	require.Equal(t, "NO_LEADER", ERROR_NO_LEADER.String())
	require.Equal(t, "ERROR_UNKNOWN", ErrorType(99).String())
}

func TestNewErrorFormatsMessage(t *testing.T) {
	err := NewError(ERROR_COMMAND_ERROR, "bad sequence %d", 7)
	require.Equal(t, ERROR_COMMAND_ERROR, err.Type)
	require.Equal(t, "COMMAND_ERROR: bad sequence 7", err.Error())
}
