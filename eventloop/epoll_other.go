//go:build !linux

package eventloop

import "github.com/ehrlich-b/muxmirror/muxerr"

// Epoll is unavailable outside Linux. Consumers on other platforms supply
// their own Loop implementation (this module never requires Epoll itself).
type Epoll struct{}

func NewEpoll() (*Epoll, error) {
	return nil, muxerr.New(muxerr.InvalidArg, "eventloop: epoll reference implementation is linux-only")
}
