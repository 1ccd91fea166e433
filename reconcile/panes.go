package reconcile

import (
	"strings"

	"github.com/ehrlich-b/muxmirror/internal/layout"
	"github.com/ehrlich-b/muxmirror/model"
	"github.com/ehrlich-b/muxmirror/muxlog"
)

type paneRow struct {
	windowID int
	id       int
	pid      int
	active   bool
	inMode   bool
	title    string
}

var paneFormat = strings.Join([]string{
	"#{window_id}", "#{pane_id}", "#{pane_pid}",
	"#{pane_active}", "#{pane_in_mode}", "#{pane_title}",
}, fieldSep)

func parsePaneRow(line string) (paneRow, bool) {
	f := strings.SplitN(line, fieldSep, 6)
	if len(f) < 6 {
		return paneRow{}, false
	}
	wid, err := parseID(f[0], '@')
	if err != nil {
		return paneRow{}, false
	}
	pid, err := parseID(f[1], '%')
	if err != nil {
		return paneRow{}, false
	}
	return paneRow{
		windowID: wid,
		id:       pid,
		pid:      parseIntField(f[2]),
		active:   parseBool(f[3]),
		inMode:   parseBool(f[4]),
		title:    f[5],
	}, true
}

// reconcilePanesWithLayouts fetches list-panes for the attributes the
// layout grammar doesn't carry (pid, active, in-mode, title), then merges
// in the geometry already parsed from each window's layout string.
func (r *Reconciler) reconcilePanesWithLayouts(layouts map[int][]layout.Leaf, done func()) {
	r.cc.Exec([]string{"list-panes", "-a", "-F", paneFormat}, func(payload []byte, isError bool, err error) {
		defer done()
		if err != nil || isError {
			muxlog.Warn("reconcile: list-panes failed", "err", err, "payload", string(payload))
			return
		}

		rows := make(map[int]paneRow)
		for _, line := range splitRows(payload) {
			row, ok := parsePaneRow(line)
			if !ok {
				continue
			}
			rows[row.id] = row
		}

		r.applyPanes(rows, layouts)
	})
}

func (r *Reconciler) applyPanes(rows map[int]paneRow, layouts map[int][]layout.Leaf) {
	geom := make(map[int]layout.Leaf)
	for _, leaves := range layouts {
		for _, leaf := range leaves {
			geom[leaf.PaneID] = leaf
		}
	}

	for id, p := range r.core.Panes {
		if _, ok := rows[id]; ok {
			continue
		}
		r.unlinkPane(p)
		delete(r.core.Panes, id)
		if r.core.Callbacks.PaneClosed != nil {
			r.core.Callbacks.PaneClosed(p)
		}
	}

	for id, row := range rows {
		w, ok := r.core.Windows[row.windowID]
		if !ok {
			continue // window not yet reconciled; next windows pass catches up
		}
		p, exists := r.core.Panes[id]
		if !exists {
			p = &model.Pane{ID: id}
			r.core.Panes[id] = p
			r.linkPane(w, p)
			if r.core.Callbacks.NewPane != nil {
				r.core.Callbacks.NewPane(p)
			}
		} else if p.Parent != w {
			r.unlinkPane(p)
			r.linkPane(w, p)
		}

		p.RootPID = row.pid
		p.Title = row.title

		if leaf, ok := geom[id]; ok {
			resized := p.X != leaf.X || p.Y != leaf.Y || p.W != leaf.W || p.H != leaf.H
			p.X, p.Y, p.W, p.H = leaf.X, leaf.Y, leaf.W, leaf.H
			if resized && r.core.Callbacks.PaneResized != nil {
				r.core.Callbacks.PaneResized(p)
			}
		}

		if row.inMode != p.InMode {
			p.InMode = row.inMode
			if r.core.Callbacks.PaneModeChanged != nil {
				r.core.Callbacks.PaneModeChanged(p)
			}
		}

		if row.active {
			p.Active = true
			if w.ActivePane != p {
				w.ActivePane = p
				if r.core.Callbacks.WindowPaneChanged != nil {
					r.core.Callbacks.WindowPaneChanged(w)
				}
			}
		} else {
			p.Active = false
		}
	}
}

// linkPane appends p to w's sibling list and sets p.Parent.
func (r *Reconciler) linkPane(w *model.Window, p *model.Pane) {
	p.Parent = w
	p.Prev = nil
	p.Next = nil
	if w.PaneHead == nil {
		w.PaneHead = p
	} else {
		tail := w.PaneHead
		for tail.Next != nil {
			tail = tail.Next
		}
		tail.Next = p
		p.Prev = tail
	}
	w.PaneCount++
}

// unlinkPane removes p from its parent window's sibling list.
func (r *Reconciler) unlinkPane(p *model.Pane) {
	w := p.Parent
	if w == nil {
		return
	}
	if p.Prev != nil {
		p.Prev.Next = p.Next
	} else if w.PaneHead == p {
		w.PaneHead = p.Next
	}
	if p.Next != nil {
		p.Next.Prev = p.Prev
	}
	if w.ActivePane == p {
		w.ActivePane = nil
	}
	w.PaneCount--
	p.Parent, p.Next, p.Prev = nil, nil, nil
}
