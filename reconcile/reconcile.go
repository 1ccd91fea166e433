package reconcile

import (
	"sort"
	"strconv"
	"strings"

	"github.com/ehrlich-b/muxmirror/ccclient"
	"github.com/ehrlich-b/muxmirror/internal/dirty"
	"github.com/ehrlich-b/muxmirror/model"
	"github.com/ehrlich-b/muxmirror/muxlog"
)

// Execer is the one ccclient.Client method most of the reconciler's passes
// depend on. Accepting the interface rather than the concrete type lets
// tests drive the reconciler against a stub that returns canned listings.
type Execer interface {
	Exec(argv []string, done ccclient.ResultFunc) error
}

// SessionClient is the subset of ccclient.Client a dedicated per-session
// control client needs to support: running commands, and being torn down
// once its session closes or is superseded.
type SessionClient interface {
	Execer
	Close() error
}

// Reconciler owns the diff-against-listings logic for one connected Core.
// Its Dispatch method is a refresh.DispatchFunc.
type Reconciler struct {
	core *model.Core
	cc   Execer

	// temp is the bootstrap control client attached to the reserved
	// temporary session (model.ReservedTempSessionName). It is closed the
	// first time a real session appears (spec.md §4.5.1 step 6).
	temp SessionClient

	// launch starts a dedicated control client attached to sess
	// (spec.md §4.5.5: a new_session closure additionally triggers
	// launch(session) as a side effect). Nil in tests that don't exercise
	// per-session client launching.
	launch func(sess *model.Session) (SessionClient, error)

	// sessionClients holds the dedicated client for every real session a
	// launch(session) call has succeeded for, keyed by session id.
	sessionClients map[int]SessionClient

	// ownerSession tracks which sessions own each window id, since
	// model.Window has no back-pointer to its Session(s) (non-owning
	// pointers are rebuilt every pass). A window may be owned by more
	// than one session — the server lists the same window under every
	// session it belongs to — so a window is only actually torn down
	// once its owner list empties.
	ownerSession map[int][]*model.Session
}

// New returns a Reconciler that queries cc and updates core. temp is the
// bootstrap control client already attached to the reserved temporary
// session, if any; launch starts a dedicated client for a newly observed
// real session. Both may be nil for tests that only exercise the listing
// passes.
func New(core *model.Core, cc Execer, temp SessionClient, launch func(sess *model.Session) (SessionClient, error)) *Reconciler {
	return &Reconciler{core: core, cc: cc, temp: temp, launch: launch}
}

// Dispatch runs the reconciliation pass for the given single category
// (already reduced by refresh.Scheduler's precedence rules) and calls
// done once the model reflects the server's current state for it.
func (r *Reconciler) Dispatch(bits dirty.Mask, done func()) {
	if r.cc == nil {
		done()
		return
	}
	switch {
	case bits.Has(dirty.Sessions):
		r.reconcileSessions(done)
	case bits.Has(dirty.Windows):
		r.reconcileWindows(done)
	case bits.Has(dirty.Panes):
		r.reconcilePanes(done)
	default:
		r.reconcileClients(done)
	}
}

type sessionRow struct {
	id     int
	name   string
	w, h   int
}

func parseSessionRow(line string) (sessionRow, bool) {
	f := strings.Split(line, fieldSep)
	if len(f) < 4 {
		return sessionRow{}, false
	}
	id, err := parseID(f[0], '$')
	if err != nil {
		return sessionRow{}, false
	}
	return sessionRow{id: id, name: f[1], w: parseIntField(f[2]), h: parseIntField(f[3])}, true
}

// reconcileSessions re-derives the whole session set. Duplicate rows for
// the same session id (tmux occasionally emits one mid-transition) are
// tolerated by last-write-wins: later rows in the listing simply overwrite
// the map entry for that id.
//
// A new_session closure for anything other than the reserved temporary
// session additionally launches a dedicated control client for it
// (spec.md §4.5.5); once exactly one such session has newly appeared and a
// temporary client is still around, that temporary client is closed
// (§4.5.1 step 6). The pass then derives every session's StatusBar from the
// status/status-position options (§4.5.1 step 3) and runs the windows pass
// (which chains into panes) and the clients pass before calling done.
func (r *Reconciler) reconcileSessions(done func()) {
	argv := []string{"list-sessions", "-F",
		strings.Join([]string{"#{session_id}", "#{session_name}", "#{session_width}", "#{session_height}"}, fieldSep)}

	r.cc.Exec(argv, func(payload []byte, isError bool, err error) {
		if err != nil || isError {
			muxlog.Warn("reconcile: list-sessions failed", "err", err, "payload", string(payload))
			done()
			return
		}

		seen := make(map[int]sessionRow)
		for _, line := range splitRows(payload) {
			row, ok := parseSessionRow(line)
			if !ok {
				continue
			}
			seen[row.id] = row
		}

		for id, sess := range r.core.Sessions {
			if _, ok := seen[id]; !ok {
				r.removeSessionWindows(sess)
				r.closeSessionClient(id)
				r.core.RemoveSession(id)
				if sess.Name != model.ReservedTempSessionName && r.core.Callbacks.SessionClosed != nil {
					r.core.Callbacks.SessionClosed(sess)
				}
			}
		}

		var newReal []*model.Session
		for id, row := range seen {
			if sess, ok := r.core.Sessions[id]; ok {
				sess.Name = row.name
				sess.Width, sess.Height = row.w, row.h
				continue
			}
			sess := &model.Session{ID: id, Name: row.name, Width: row.w, Height: row.h}
			r.core.InsertSession(sess)
			if row.name == model.ReservedTempSessionName {
				continue
			}
			if r.core.Callbacks.NewSession != nil {
				r.core.Callbacks.NewSession(sess)
			}
			newReal = append(newReal, sess)
		}

		for _, sess := range newReal {
			r.launchSessionClient(sess)
		}
		if len(newReal) == 1 && r.temp != nil {
			temp := r.temp
			r.temp = nil
			if err := temp.Close(); err != nil {
				muxlog.Warn("reconcile: close temporary client", "err", err)
			}
		}

		if r.cc == nil {
			// The last listing client closed along with its session.
			done()
			return
		}

		ids := make([]int, 0, len(seen))
		for id := range seen {
			ids = append(ids, id)
		}
		sort.Ints(ids)

		r.queryOption("", "status", func(globalStatus string) {
			r.queryOption("", "status-position", func(globalPos string) {
				r.walkSessionStatusBars(ids, 0, globalStatus, globalPos, func() {
					r.reconcileWindows(func() { r.reconcileClients(done) })
				})
			})
		})
	})
}

// launchSessionClient starts a dedicated control client for sess via r.launch
// and records it, repointing the reconciler's listing client at the newly
// launched client.
func (r *Reconciler) launchSessionClient(sess *model.Session) {
	if r.launch == nil {
		return
	}
	client, err := r.launch(sess)
	if err != nil {
		muxlog.Warn("reconcile: launch session client failed", "session", sess.ID, "err", err)
		return
	}
	if r.sessionClients == nil {
		r.sessionClients = make(map[int]SessionClient)
	}
	r.sessionClients[sess.ID] = client
	r.cc = client
}

// closeSessionClient tears down and forgets the dedicated client for a
// session that has just closed, repointing the listing client elsewhere if
// it was the one in use.
func (r *Reconciler) closeSessionClient(id int) {
	c, ok := r.sessionClients[id]
	if !ok {
		return
	}
	delete(r.sessionClients, id)
	if err := c.Close(); err != nil {
		muxlog.Warn("reconcile: close session client", "session", id, "err", err)
	}
	if active, ok := r.cc.(SessionClient); ok && active == c {
		r.cc = r.anySessionClient()
	}
}

func (r *Reconciler) anySessionClient() Execer {
	for _, c := range r.sessionClients {
		return c
	}
	if r.temp != nil {
		return r.temp
	}
	return nil
}

// queryOption runs `show-options -v` for name, global if target is "" or
// scoped to target otherwise, and reports the trimmed value (empty on
// error, matching tmux's own "unset" representation for an unset override).
func (r *Reconciler) queryOption(target, name string, cb func(value string)) {
	argv := []string{"show-options", "-v"}
	if target == "" {
		argv = append(argv, "-g")
	} else {
		argv = append(argv, "-t", target)
	}
	argv = append(argv, name)
	r.cc.Exec(argv, func(payload []byte, isError bool, err error) {
		if err != nil || isError {
			cb("")
			return
		}
		cb(strings.TrimSpace(string(payload)))
	})
}

// walkSessionStatusBars derives each session's StatusBar in turn (per-session
// overrides inherit the global status/status-position when unset), chaining
// through the single-in-flight Execer one session at a time before calling
// done.
func (r *Reconciler) walkSessionStatusBars(ids []int, i int, globalStatus, globalPos string, done func()) {
	if i >= len(ids) {
		done()
		return
	}
	sess, ok := r.core.Sessions[ids[i]]
	if !ok || sess.Name == model.ReservedTempSessionName {
		r.walkSessionStatusBars(ids, i+1, globalStatus, globalPos, done)
		return
	}

	target := "$" + strconv.Itoa(sess.ID)
	r.queryOption(target, "status", func(status string) {
		if status == "" {
			status = globalStatus
		}
		r.queryOption(target, "status-position", func(pos string) {
			if pos == "" {
				pos = globalPos
			}
			sess.StatusBar = deriveStatusBar(status, pos)
			r.walkSessionStatusBars(ids, i+1, globalStatus, globalPos, done)
		})
	})
}

// deriveStatusBar maps tmux's status/status-position option values to the
// three-state enum (spec.md §3, invariant I5).
func deriveStatusBar(status, position string) model.StatusBar {
	if status == "" || status == "off" {
		return model.StatusBarOff
	}
	if position == "top" {
		return model.StatusBarTop
	}
	return model.StatusBarBottom
}

func (r *Reconciler) removeSessionWindows(sess *model.Session) {
	for _, w := range sess.Windows {
		owners := removeSessionOwner(r.ownerSession[w.ID], sess)
		if len(owners) > 0 {
			r.ownerSession[w.ID] = owners
			continue // still listed under another session
		}
		delete(r.ownerSession, w.ID)
		r.removeWindowPanes(w)
		delete(r.core.Windows, w.ID)
		if r.core.Callbacks.WindowClosed != nil {
			r.core.Callbacks.WindowClosed(w)
		}
	}
}

func removeSessionOwner(owners []*model.Session, target *model.Session) []*model.Session {
	for i, s := range owners {
		if s == target {
			return append(owners[:i], owners[i+1:]...)
		}
	}
	return owners
}

func (r *Reconciler) removeWindowPanes(w *model.Window) {
	for p := w.PaneHead; p != nil; {
		next := p.Next
		delete(r.core.Panes, p.ID)
		if r.core.Callbacks.PaneClosed != nil {
			r.core.Callbacks.PaneClosed(p)
		}
		p = next
	}
}
