package model

// Callbacks holds the observer hooks enumerated in spec.md §4.6. Every
// field is nil-able; a nil hook is simply not invoked. Each hook returns an
// int in the external event-loop convention (spec.md §6: zero means ok),
// but the reconciler ignores the returned value: a nonzero return neither
// stops the current pass nor skips the hooks queued after it.
type Callbacks struct {
	ClientSessionChanged func(c *Client) int
	NewSession           func(s *Session) int
	SessionClosed        func(s *Session) int
	SessionWindowChanged func(s *Session) int
	NewWindow            func(w *Window) int
	WindowClosed         func(w *Window) int
	WindowPaneChanged    func(w *Window) int
	NewPane              func(p *Pane) int
	PaneClosed           func(p *Pane) int
	PaneResized          func(p *Pane) int
	PaneModeChanged      func(p *Pane) int
}
