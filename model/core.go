package model

import "github.com/ehrlich-b/muxmirror/muxerr"

// ReservedTempSessionName is the session name used internally for the
// temporary session (spec.md §1 glossary: "Temporary session"). It is never
// surfaced to the consumer's observer callbacks.
const ReservedTempSessionName = "wtc-temporary-session"

const (
	defaultTimeoutMS = 5000
	defaultVTWidth   = 80
	defaultVTHeight  = 24
	minVTDimension   = 10
)

// Core owns the four entity maps plus the key-table map, the model's
// tunables, and the observer callback set (spec.md §4.1). Everything above
// the model layer (the reconciler, the refresh scheduler, the control-mode
// clients, the supervisor) is composed on top of a Core by the root
// package's Core type — this type only tracks data, not process lifetime.
type Core struct {
	refs int

	connected bool

	binPath    string
	socketName string
	socketPath string
	configFile string
	timeoutMS  int
	vtWidth    int
	vtHeight   int

	Callbacks Callbacks

	Sessions map[int]*Session
	Windows  map[int]*Window
	Panes    map[int]*Pane
	Clients  map[string]*Client
	KeyTabs  map[string]*KeyTable

	// sessionOrder preserves insertion order for RootSession/iteration,
	// since spec.md §4.1 requires "first session in insertion order".
	sessionOrder []int
}

// New returns an empty Core with the spec's stated defaults: 5000ms
// timeout, 80x24 virtual terminal, no binary path, no socket, no config
// file, disconnected (spec.md §4.1).
func New() *Core {
	return &Core{
		refs:      1,
		timeoutMS: defaultTimeoutMS,
		vtWidth:   defaultVTWidth,
		vtHeight:  defaultVTHeight,
		Sessions:  make(map[int]*Session),
		Windows:   make(map[int]*Window),
		Panes:     make(map[int]*Pane),
		Clients:   make(map[string]*Client),
		KeyTabs:   make(map[string]*KeyTable),
	}
}

// Ref increments the reference count.
func (c *Core) Ref() { c.refs++ }

// Unref decrements the reference count. It returns true when the count
// reaches zero — the caller (muxcore.Core) is then responsible for
// disconnecting first if still connected, per spec.md §4.1.
func (c *Core) Unref() bool {
	c.refs--
	return c.refs <= 0
}

// IsConnected reports whether the model is currently attached to a server.
func (c *Core) IsConnected() bool { return c.connected }

// SetConnected is called by muxcore.Core once connect/disconnect actually
// completes; it is not part of the public setter surface a consumer uses
// directly.
func (c *Core) SetConnected(v bool) { c.connected = v }

func (c *Core) busyCheck() error {
	if c.connected {
		return muxerr.New(muxerr.Busy, "cannot change configuration while connected")
	}
	return nil
}

// SetBinPath sets the mux binary path. Fails with Busy while connected.
func (c *Core) SetBinPath(path string) error {
	if err := c.busyCheck(); err != nil {
		return err
	}
	c.binPath = path
	return nil
}

func (c *Core) BinPath() string { return c.binPath }

// SetSocketName sets the -L socket name, clearing any socket path (the two
// are mutually exclusive per spec.md §4.1). Fails with Busy while connected.
func (c *Core) SetSocketName(name string) error {
	if err := c.busyCheck(); err != nil {
		return err
	}
	c.socketName = name
	c.socketPath = ""
	return nil
}

// SetSocketPath sets the -S socket path, clearing any socket name.
func (c *Core) SetSocketPath(path string) error {
	if err := c.busyCheck(); err != nil {
		return err
	}
	c.socketPath = path
	c.socketName = ""
	return nil
}

func (c *Core) SocketName() string { return c.socketName }
func (c *Core) SocketPath() string { return c.socketPath }

// SetConfigFile sets the -f config file path.
func (c *Core) SetConfigFile(path string) error {
	if err := c.busyCheck(); err != nil {
		return err
	}
	c.configFile = path
	return nil
}

func (c *Core) ConfigFile() string { return c.configFile }

// SetTimeout sets the bounded-wait timeout in milliseconds.
func (c *Core) SetTimeout(ms int) error {
	if err := c.busyCheck(); err != nil {
		return err
	}
	if ms <= 0 {
		return muxerr.New(muxerr.InvalidArg, "timeout must be positive")
	}
	c.timeoutMS = ms
	return nil
}

func (c *Core) TimeoutMS() int { return c.timeoutMS }

// SetSize sets the virtual terminal size. Unlike the other setters, this
// takes effect immediately even while connected (spec.md §4.1) — callers
// are expected to replay it to every control client (spec.md §4.3); this
// method only validates and stores the new value.
func (c *Core) SetSize(w, h int) error {
	if w < minVTDimension || h < minVTDimension {
		return muxerr.New(muxerr.InvalidArg, "virtual terminal size must be at least 10x10")
	}
	c.vtWidth, c.vtHeight = w, h
	return nil
}

func (c *Core) Size() (w, h int) { return c.vtWidth, c.vtHeight }

// RootSession returns the first session in insertion order, or nil if none.
func (c *Core) RootSession() *Session {
	for _, id := range c.sessionOrder {
		if s, ok := c.Sessions[id]; ok {
			return s
		}
	}
	return nil
}

// SessionIDs returns session ids in insertion order, for iteration beyond
// RootSession (spec.md §4.1: "remaining sessions reachable by iterator").
func (c *Core) SessionIDs() []int {
	out := make([]int, 0, len(c.sessionOrder))
	for _, id := range c.sessionOrder {
		if _, ok := c.Sessions[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// InsertSession adds a new session and records its insertion order. The
// reconciler is the sole caller.
func (c *Core) InsertSession(s *Session) {
	c.Sessions[s.ID] = s
	c.sessionOrder = append(c.sessionOrder, s.ID)
}

// RemoveSession deletes a session and its order-tracking entry.
func (c *Core) RemoveSession(id int) {
	delete(c.Sessions, id)
	for i, sid := range c.sessionOrder {
		if sid == id {
			c.sessionOrder = append(c.sessionOrder[:i], c.sessionOrder[i+1:]...)
			break
		}
	}
}
