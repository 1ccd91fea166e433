package ctlproto

import "github.com/ehrlich-b/muxmirror/internal/dirty"

// Event names recognised on a control client's output stream (spec.md
// §4.4). Framing lines (begin/end/error) are handled separately by the
// parser's block state machine and never reach the Notify callback.
const (
	evBegin = "%begin"
	evEnd   = "%end"
	evError = "%error"

	EvClientSessionChanged = "%client-session-changed"
	EvExit                 = "%exit"
	EvLayoutChange         = "%layout-change"
	EvOutput               = "%output"
	EvPaneModeChanged      = "%pane-mode-changed"
	EvSessionChanged       = "%session-changed"
	EvSessionRenamed       = "%session-renamed"
	EvSessionWindowChanged = "%session-window-changed"
	EvSessionsChanged      = "%sessions-changed"
	EvUnlinkedWindowAdd    = "%unlinked-window-add"
	EvUnlinkedWindowClose  = "%unlinked-window-close"
	EvUnlinkedWindowRename = "%unlinked-window-renamed"
	EvWindowAdd            = "%window-add"
	EvWindowClose          = "%window-close"
	EvWindowPaneChanged    = "%window-pane-changed"
	EvWindowRenamed        = "%window-renamed"
)

// dirtyBits maps each notification to the dirty bits it sets on the
// refresh scheduler (spec.md §4.6). unlinked-window-* notifications fold
// into WINDOWS — per DESIGN.md's decision on that open question, an
// unlinked window still shows up in `list-windows -a` and is reconciled
// the same way as a linked one.
var dirtyBits = map[string]dirty.Mask{
	EvClientSessionChanged: dirty.Clients,
	EvLayoutChange:         dirty.Panes,
	EvPaneModeChanged:      dirty.Panes,
	EvSessionChanged:       dirty.Clients,
	EvSessionRenamed:       dirty.Sessions,
	EvSessionWindowChanged: dirty.Windows,
	EvSessionsChanged:      dirty.Sessions,
	EvUnlinkedWindowAdd:    dirty.Windows,
	EvUnlinkedWindowClose:  dirty.Windows,
	EvUnlinkedWindowRename: dirty.Windows,
	EvWindowAdd:            dirty.Windows,
	EvWindowClose:          dirty.Windows,
	EvWindowPaneChanged:    dirty.Panes,
	EvWindowRenamed:        dirty.Windows,
	// %exit and %output carry no reconciliation-relevant state change on
	// their own; %exit tears the client down (procsup's concern) and
	// %output is raw pane bytes the core does not store.
}

var knownNames = func() map[string]struct{} {
	m := map[string]struct{}{
		evBegin: {}, evEnd: {}, evError: {},
	}
	for name := range dirtyBits {
		m[name] = struct{}{}
	}
	m[EvExit] = struct{}{}
	m[EvOutput] = struct{}{}
	return m
}()
