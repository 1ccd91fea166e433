//go:build linux

package eventloop

import (
	"container/heap"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/muxmirror/muxerr"
)

// Epoll is a reference Loop implementation backed by Linux epoll. It is not
// required by the core — any Loop works — but lets the module run and be
// tested standalone without an external reactor.
type Epoll struct {
	epfd int

	mu      sync.Mutex
	fds     map[int]*fdSource
	timers  timerHeap
	nextTID int

	wakeR, wakeW int // self-pipe so timer changes interrupt an in-progress wait
}

type fdSource struct {
	fd   int
	mask FDMask
	cb   FDCallback
}

type timerSource struct {
	id       int
	cb       TimerCallback
	deadline time.Time
	armed    bool
	index    int // heap index
}

type timerHeap []*timerSource

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *timerHeap) Push(x interface{}) { t := x.(*timerSource); t.index = len(*h); *h = append(*h, t) }
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// NewEpoll creates a new Epoll reactor. Call Run to drive it.
func NewEpoll() (*Epoll, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, muxerr.OS("epoll_create1", err)
	}
	var pipefds [2]int
	if err := unix.Pipe2(pipefds[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		unix.Close(fd)
		return nil, muxerr.OS("pipe2", err)
	}
	e := &Epoll{
		epfd:  fd,
		fds:   make(map[int]*fdSource),
		wakeR: pipefds[0],
		wakeW: pipefds[1],
	}
	if err := unix.EpollCtl(e.epfd, unix.EPOLL_CTL_ADD, e.wakeR, &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(e.wakeR)}); err != nil {
		e.Close()
		return nil, muxerr.OS("epoll_ctl add wake pipe", err)
	}
	return e, nil
}

// Close releases the epoll and self-pipe descriptors.
func (e *Epoll) Close() error {
	unix.Close(e.wakeR)
	unix.Close(e.wakeW)
	return unix.Close(e.epfd)
}

func toEpollEvents(mask FDMask) uint32 {
	var ev uint32
	if mask&Readable != 0 {
		ev |= unix.EPOLLIN
	}
	if mask&Writable != 0 {
		ev |= unix.EPOLLOUT
	}
	if mask&Hangup != 0 {
		ev |= unix.EPOLLHUP | unix.EPOLLRDHUP
	}
	return ev
}

func fromEpollEvents(ev uint32) FDMask {
	var mask FDMask
	if ev&unix.EPOLLIN != 0 {
		mask |= Readable
	}
	if ev&unix.EPOLLOUT != 0 {
		mask |= Writable
	}
	if ev&(unix.EPOLLHUP|unix.EPOLLRDHUP|unix.EPOLLERR) != 0 {
		mask |= Hangup
	}
	return mask
}

// AddFD implements Loop.
func (e *Epoll) AddFD(fd int, mask FDMask, cb FDCallback) (Source, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	src := &fdSource{fd: fd, mask: mask, cb: cb}
	ev := &unix.EpollEvent{Events: toEpollEvents(mask), Fd: int32(fd)}
	if err := unix.EpollCtl(e.epfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		return nil, muxerr.OS("epoll_ctl add", err)
	}
	e.fds[fd] = src
	return src, nil
}

// AddTimer implements Loop.
func (e *Epoll) AddTimer(cb TimerCallback) (Source, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextTID++
	t := &timerSource{id: e.nextTID, cb: cb, index: -1}
	return t, nil
}

// TimerUpdate implements Loop.
func (e *Epoll) TimerUpdate(s Source, d time.Duration) error {
	t, ok := s.(*timerSource)
	if !ok {
		return muxerr.New(muxerr.InvalidArg, "not a timer source")
	}
	e.mu.Lock()
	if t.armed {
		heap.Remove(&e.timers, t.index)
		t.armed = false
	}
	if d > 0 {
		t.deadline = time.Now().Add(d)
		heap.Push(&e.timers, t)
		t.armed = true
	}
	e.mu.Unlock()
	e.wake()
	return nil
}

// Remove implements Loop.
func (e *Epoll) Remove(s Source) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch src := s.(type) {
	case *fdSource:
		delete(e.fds, src.fd)
		if err := unix.EpollCtl(e.epfd, unix.EPOLL_CTL_DEL, src.fd, nil); err != nil {
			return muxerr.OS("epoll_ctl del", err)
		}
		return nil
	case *timerSource:
		if src.armed {
			heap.Remove(&e.timers, src.index)
			src.armed = false
		}
		return nil
	default:
		return muxerr.New(muxerr.InvalidArg, "unknown source type")
	}
}

func (e *Epoll) wake() {
	var b [1]byte
	unix.Write(e.wakeW, b[:])
}

// Run drives the reactor until stop is closed. Each iteration waits for
// either the next timer deadline or fd readiness, whichever comes first,
// then delivers callbacks — matching spec.md §5's single-threaded,
// cooperative scheduling model.
func (e *Epoll) Run(stop <-chan struct{}) error {
	events := make([]unix.EpollEvent, 32)
	for {
		select {
		case <-stop:
			return nil
		default:
		}

		timeout := e.nextTimeout()
		n, err := unix.EpollWait(e.epfd, events, timeout)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return muxerr.OS("epoll_wait", err)
		}

		aborted := false
		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			if fd == e.wakeR {
				var buf [64]byte
				unix.Read(e.wakeR, buf[:])
				continue
			}
			e.mu.Lock()
			src, ok := e.fds[fd]
			e.mu.Unlock()
			if !ok {
				continue
			}
			if src.cb(fd, fromEpollEvents(events[i].Events)) != 0 {
				aborted = true
				break
			}
		}

		if !aborted {
			e.fireExpiredTimers()
		}
	}
}

func (e *Epoll) nextTimeout() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.timers) == 0 {
		return -1
	}
	d := time.Until(e.timers[0].deadline)
	if d <= 0 {
		return 0
	}
	ms := d.Milliseconds()
	if ms > int64(^uint32(0)>>1) {
		ms = int64(^uint32(0) >> 1)
	}
	return int(ms)
}

func (e *Epoll) fireExpiredTimers() {
	for {
		e.mu.Lock()
		if len(e.timers) == 0 || time.Now().Before(e.timers[0].deadline) {
			e.mu.Unlock()
			return
		}
		t := heap.Pop(&e.timers).(*timerSource)
		t.armed = false
		e.mu.Unlock()
		if t.cb() != 0 {
			return
		}
	}
}
