package reconcile

import (
	"strings"

	"github.com/ehrlich-b/muxmirror/internal/layout"
	"github.com/ehrlich-b/muxmirror/model"
	"github.com/ehrlich-b/muxmirror/muxlog"
)

type windowRow struct {
	sessionID int
	id        int
	name      string
	active    bool
	flags     string
	layout    string
}

func parseWindowRow(line string) (windowRow, bool) {
	f := strings.Split(line, fieldSep)
	if len(f) < 6 {
		return windowRow{}, false
	}
	sid, err := parseID(f[0], '$')
	if err != nil {
		return windowRow{}, false
	}
	wid, err := parseID(f[1], '@')
	if err != nil {
		return windowRow{}, false
	}
	return windowRow{
		sessionID: sid,
		id:        wid,
		name:      f[2],
		active:    parseBool(f[3]),
		flags:     f[4],
		layout:    f[5],
	}, true
}

var windowFormat = strings.Join([]string{
	"#{session_id}", "#{window_id}", "#{window_name}",
	"#{window_active}", "#{window_flags}", "#{window_visible_layout}",
}, fieldSep)

// reconcileWindows re-derives the window set for every session, then
// chains into the panes half of the pass (list-panes for the attributes
// the layout string doesn't carry) before calling done — a WINDOWS-dirty
// pass clears PANES too (refresh.reduce) because the layout string it
// just fetched is the authoritative source of pane geometry.
func (r *Reconciler) reconcileWindows(done func()) {
	r.cc.Exec([]string{"list-windows", "-a", "-F", windowFormat}, func(payload []byte, isError bool, err error) {
		if err != nil || isError {
			muxlog.Warn("reconcile: list-windows failed", "err", err, "payload", string(payload))
			done()
			return
		}

		var raw []windowRow
		for _, line := range splitRows(payload) {
			row, ok := parseWindowRow(line)
			if !ok {
				continue
			}
			raw = append(raw, row)
		}

		// The server lists the same window under every session it belongs
		// to, so raw can carry multiple rows per window id (one per
		// membership). Dedup by id for the window's own attributes, but
		// keep the raw rows to rebuild each session's Windows array below
		// (a window must appear in every session that lists it).
		rows := make(map[int]windowRow, len(raw))
		for _, row := range raw {
			rows[row.id] = row
		}

		r.applyWindows(rows, raw)

		layouts := make(map[int][]layout.Leaf, len(rows))
		for id, row := range rows {
			leaves, err := layout.Parse(row.layout)
			if err != nil {
				muxlog.Debug("reconcile: layout parse failed", "window", id, "err", err)
				continue
			}
			layouts[id] = leaves
		}

		r.reconcilePanesWithLayouts(layouts, done)
	})
}

// reconcilePanes handles a PANES-only dirty bit (no window add/remove):
// it still needs a fresh layout string per window, since pane geometry is
// only reported there, so it re-fetches list-windows for layouts alone
// without re-running the window add/remove diff.
func (r *Reconciler) reconcilePanes(done func()) {
	r.cc.Exec([]string{"list-windows", "-a", "-F", "#{window_id} #{window_visible_layout}"}, func(payload []byte, isError bool, err error) {
		if err != nil || isError {
			muxlog.Warn("reconcile: list-windows (layout refresh) failed", "err", err)
			done()
			return
		}
		layouts := make(map[int][]layout.Leaf)
		for _, line := range splitRows(payload) {
			f := strings.SplitN(line, " ", 2)
			if len(f) != 2 {
				continue
			}
			wid, err := parseID(f[0], '@')
			if err != nil {
				continue
			}
			leaves, err := layout.Parse(f[1])
			if err != nil {
				continue
			}
			layouts[wid] = leaves
		}
		r.reconcilePanesWithLayouts(layouts, done)
	})
}

// applyWindows diffs rows (deduped by window id) against the model for each
// window's own attributes, then rebuilds every session's Windows array from
// raw — the undeduplicated per-session listing — since a window shared by
// more than one session must appear in each of their arrays.
func (r *Reconciler) applyWindows(rows map[int]windowRow, raw []windowRow) {
	// Remove windows no longer listed under any session.
	for id, w := range r.core.Windows {
		if _, ok := rows[id]; ok {
			continue
		}
		r.removeWindowPanes(w)
		delete(r.core.Windows, id)
		delete(r.ownerSession, id)
		if r.core.Callbacks.WindowClosed != nil {
			r.core.Callbacks.WindowClosed(w)
		}
	}

	for id, row := range rows {
		w, exists := r.core.Windows[id]
		if !exists {
			w = &model.Window{ID: id}
			r.core.Windows[id] = w
			if r.core.Callbacks.NewWindow != nil {
				r.core.Callbacks.NewWindow(w)
			}
		}
		w.Name = row.name
		w.Flags = row.flags
		w.Layout = row.layout
	}

	bySession := make(map[int][]windowRow, len(raw))
	var sessionOrder []int
	for _, row := range raw {
		if _, ok := bySession[row.sessionID]; !ok {
			sessionOrder = append(sessionOrder, row.sessionID)
		}
		bySession[row.sessionID] = append(bySession[row.sessionID], row)
	}

	owners := make(map[int][]*model.Session, len(rows))
	for _, sid := range sessionOrder {
		sess, ok := r.core.Sessions[sid]
		if !ok {
			continue // session not yet reconciled; next sessions pass will pick this up
		}
		windows := make([]*model.Window, 0, len(bySession[sid]))
		for _, row := range bySession[sid] {
			w, ok := r.core.Windows[row.id]
			if !ok {
				continue
			}
			windows = append(windows, w)
			owners[row.id] = append(owners[row.id], sess)
			if row.active && sess.ActiveWindow != w {
				sess.ActiveWindow = w
				if r.core.Callbacks.SessionWindowChanged != nil {
					r.core.Callbacks.SessionWindowChanged(sess)
				}
			}
		}
		sess.Windows = windows
	}
	r.ownerSession = owners
}
