// Package model owns the four entity hash maps (sessions, windows, panes,
// clients) plus the key-table map, per spec.md §3/§4.1. Entities live in
// their owning maps; every cross-reference is a non-owning pointer that is
// torn down and rebuilt by the reconciler on each pass (spec.md §9's
// "external storage + stable handles" discipline — keys/ids are the only
// durable identity, not pointer addresses across reconciliations).
package model

// StatusBar is the three-state placement enum from spec.md §3 / invariant I5.
type StatusBar int

const (
	StatusBarOff StatusBar = iota
	StatusBarTop
	StatusBarBottom
)

// Pane mirrors one tmux pane. Parent/Next/Prev are non-owning: they are
// reset at the start of every reconciliation pass and rebuilt from the
// server's listings (spec.md §3 lifecycle rules).
type Pane struct {
	ID        int
	RootPID   int
	Active    bool
	InMode    bool
	Title     string // best-effort; empty if the server's format omits it
	X, Y      int
	W, H      int
	Parent    *Window
	Next      *Pane
	Prev      *Pane
}

// Window mirrors one tmux window.
type Window struct {
	ID         int
	Name       string
	Layout     string
	Flags      string // best-effort raw #{window_flags}
	ActivePane *Pane
	PaneCount  int
	PaneHead   *Pane
}

// Session mirrors one tmux session.
type Session struct {
	ID            int
	Name          string
	StatusBar     StatusBar
	PrefixKey1    int
	PrefixKey2    int
	Width, Height int
	ActiveWindow  *Window
	Windows       []*Window // owned slice; entries are non-owning pointers
	ClientHead    *Client
}

// Client mirrors one attached tmux client.
type Client struct {
	PID     int
	Name    string
	Session *Session
	Next    *Client
	Prev    *Client
}

// KeyBinding mirrors one tmux key binding within a KeyTable.
type KeyBinding struct {
	Trigger    int
	Command    string
	Repeat     bool
	Table      *KeyTable
	Transition *KeyTable
}

// KeyTable mirrors one tmux key table.
type KeyTable struct {
	Name     string
	Bindings map[int]*KeyBinding
}
