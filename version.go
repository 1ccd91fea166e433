package muxmirror

import (
	"strings"
	"time"

	"golang.org/x/mod/semver"

	"github.com/ehrlich-b/muxmirror/muxerr"
	"github.com/ehrlich-b/muxmirror/procsup"
)

const minVersion = "v2.4"

// checkVersion runs `<binPath> -V`, parses the trailing whitespace-
// separated token (tmux prints "tmux <version>"), and refuses anything
// below minVersion. The literal "master" build tag is always accepted,
// matching a development build that is by definition newer than any
// tagged release.
//
// Grounded on internal/config/wing.go's version-string parsing (split on
// whitespace, parse the trailing dotted version) and
// golang.org/x/mod/semver for the actual comparison.
func checkVersion(binPath string) error {
	out, err := procsup.RunOnce(binPath, []string{"-V"}, nil, "", 2*time.Second)
	if err != nil {
		return muxerr.Wrap(muxerr.OsError, "version check: "+binPath+" -V", err)
	}

	fields := strings.Fields(string(out))
	if len(fields) == 0 {
		return muxerr.New(muxerr.ParseError, "version check: empty -V output")
	}
	token := fields[len(fields)-1]

	if token == "master" {
		return nil
	}

	candidate := "v" + strings.TrimPrefix(token, "v")
	if !semver.IsValid(candidate) {
		return muxerr.New(muxerr.ParseError, "version check: unparseable version "+token)
	}
	if semver.Compare(candidate, minVersion) < 0 {
		return muxerr.New(muxerr.ParseError, "version check: "+token+" is older than the minimum supported 2.4")
	}
	return nil
}
