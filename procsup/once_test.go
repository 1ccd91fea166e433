package procsup

import (
	"testing"
	"time"

	"github.com/ehrlich-b/muxmirror/muxerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunOnce_Success(t *testing.T) {
	out, err := RunOnce("/bin/echo", []string{"hello"}, nil, "", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(out))
}

func TestRunOnce_NonZeroExit(t *testing.T) {
	_, err := RunOnce("/bin/sh", []string{"-c", "exit 3"}, nil, "", time.Second)
	require.Error(t, err)
	assert.True(t, muxerr.Is(err, muxerr.ChildFailed))
}

func TestRunOnce_Timeout(t *testing.T) {
	_, err := RunOnce("/bin/sleep", []string{"5"}, nil, "", 50*time.Millisecond)
	require.Error(t, err)
	assert.True(t, muxerr.Is(err, muxerr.Timeout))
}
