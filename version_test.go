package muxmirror

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ehrlich-b/muxmirror/muxerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBin writes an executable shell script at dir/mux that prints
// output on stdout when invoked with "-V", then returns its path.
func fakeBin(t *testing.T, output string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mux")
	script := "#!/bin/sh\necho '" + output + "'\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestCheckVersion_AcceptsCurrentVersion(t *testing.T) {
	bin := fakeBin(t, "tmux 3.4")
	assert.NoError(t, checkVersion(bin))
}

func TestCheckVersion_AcceptsExactMinimum(t *testing.T) {
	bin := fakeBin(t, "tmux 2.4")
	assert.NoError(t, checkVersion(bin))
}

func TestCheckVersion_RejectsOlderVersion(t *testing.T) {
	bin := fakeBin(t, "tmux 1.9")
	err := checkVersion(bin)
	require.Error(t, err)
	assert.True(t, muxerr.Is(err, muxerr.ParseError))
}

func TestCheckVersion_AcceptsMasterBuildTag(t *testing.T) {
	bin := fakeBin(t, "tmux master")
	assert.NoError(t, checkVersion(bin))
}

func TestCheckVersion_RejectsUnparseableOutput(t *testing.T) {
	bin := fakeBin(t, "")
	err := checkVersion(bin)
	require.Error(t, err)
	assert.True(t, muxerr.Is(err, muxerr.ParseError))
}

func TestCheckVersion_PropagatesOsErrorOnMissingBinary(t *testing.T) {
	err := checkVersion(filepath.Join(t.TempDir(), "does-not-exist"))
	require.Error(t, err)
	assert.True(t, muxerr.Is(err, muxerr.OsError))
}
