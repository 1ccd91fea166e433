package reconcile

import (
	"strings"
	"testing"

	"github.com/ehrlich-b/muxmirror/ccclient"
	"github.com/ehrlich-b/muxmirror/internal/dirty"
	"github.com/ehrlich-b/muxmirror/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubExecer answers Exec calls with a canned payload keyed by the
// command's first argument (e.g. "list-sessions"), synchronously — real
// control clients answer asynchronously once their %end line arrives, but
// nothing in the reconciler assumes otherwise.
type stubExecer struct {
	responses map[string]string
	calls     []string
	closed    bool
}

func (s *stubExecer) Exec(argv []string, done ccclient.ResultFunc) error {
	s.calls = append(s.calls, argv[0])
	payload, ok := s.responses[argv[0]]
	if !ok {
		done(nil, true, nil)
		return nil
	}
	done([]byte(payload), false, nil)
	return nil
}

func (s *stubExecer) Close() error {
	s.closed = true
	return nil
}

func tsvLine(fields ...string) string { return strings.Join(fields, "\t") }

func TestReconcileSessions_AddsAndRemoves(t *testing.T) {
	core := model.New()
	core.Sessions[9] = &model.Session{ID: 9, Name: "stale"}
	core.InsertSession(core.Sessions[9])

	var newCalled, closedCalled bool
	core.Callbacks.NewSession = func(s *model.Session) int { newCalled = true; return 0 }
	core.Callbacks.SessionClosed = func(s *model.Session) int { closedCalled = true; return 0 }

	stub := &stubExecer{responses: map[string]string{
		"list-sessions": tsvLine("$0", "main", "80", "24") + "\n",
	}}
	r := New(core, stub, nil, nil)

	done := false
	r.reconcileSessions(func() { done = true })

	require.True(t, done)
	assert.True(t, newCalled)
	assert.True(t, closedCalled)
	require.Contains(t, core.Sessions, 0)
	assert.Equal(t, "main", core.Sessions[0].Name)
	assert.NotContains(t, core.Sessions, 9)
}

func TestReconcileWindows_LinksToSessionAndParsesLayout(t *testing.T) {
	core := model.New()
	sess := &model.Session{ID: 0, Name: "main"}
	core.InsertSession(sess)

	stub := &stubExecer{responses: map[string]string{
		"list-windows": tsvLine("$0", "@1", "bash", "1", "", "abcd,80x24,0,0,3") + "\n",
		"list-panes":   tsvLine("@1", "%3", "4242", "1", "0", "bash") + "\n",
	}}
	r := New(core, stub, nil, nil)

	var newWindow, newPane bool
	core.Callbacks.NewWindow = func(w *model.Window) int { newWindow = true; return 0 }
	core.Callbacks.NewPane = func(p *model.Pane) int { newPane = true; return 0 }

	done := false
	r.reconcileWindows(func() { done = true })

	require.True(t, done)
	assert.True(t, newWindow)
	assert.True(t, newPane)
	require.Len(t, sess.Windows, 1)
	assert.Same(t, core.Windows[1], sess.Windows[0])
	assert.Equal(t, sess.Windows[0], sess.ActiveWindow)

	pane := core.Panes[3]
	require.NotNil(t, pane)
	assert.Equal(t, 80, pane.W)
	assert.Equal(t, 24, pane.H)
	assert.Equal(t, 4242, pane.RootPID)
	assert.Same(t, core.Windows[1], pane.Parent)
	assert.True(t, pane.Active)
}

func TestReconcileClients_TracksSessionAttachment(t *testing.T) {
	core := model.New()
	sess := &model.Session{ID: 0, Name: "main"}
	core.InsertSession(sess)

	stub := &stubExecer{responses: map[string]string{
		"list-clients": tsvLine("/dev/pts/3", "555", "$0") + "\n",
	}}
	r := New(core, stub, nil, nil)

	done := false
	r.reconcileClients(func() { done = true })

	require.True(t, done)
	require.Contains(t, core.Clients, "/dev/pts/3")
	assert.Same(t, sess, core.Clients["/dev/pts/3"].Session)
	assert.Same(t, core.Clients["/dev/pts/3"], sess.ClientHead)
}

func TestDispatch_PrecedenceCallsCorrectPass(t *testing.T) {
	core := model.New()
	stub := &stubExecer{responses: map[string]string{}}
	r := New(core, stub, nil, nil)

	r.Dispatch(dirty.Sessions|dirty.Windows, func() {})
	assert.Equal(t, []string{"list-sessions"}, stub.calls)
}

func TestDispatch_NilExecerSkipsPassAndCallsDone(t *testing.T) {
	core := model.New()
	r := New(core, nil, nil, nil)

	done := false
	r.Dispatch(dirty.Sessions, func() { done = true })
	assert.True(t, done)
}

func TestReconcileSessions_LaunchesClientAndClosesTempOnFirstRealSession(t *testing.T) {
	core := model.New()

	temp := &stubExecer{}
	var launchedFor []int
	launched := map[int]*stubExecer{}
	launch := func(sess *model.Session) (SessionClient, error) {
		launchedFor = append(launchedFor, sess.ID)
		c := &stubExecer{}
		launched[sess.ID] = c
		return c, nil
	}

	stub := &stubExecer{responses: map[string]string{
		"list-sessions": tsvLine("$0", "main", "80", "24") + "\n",
	}}
	r := New(core, stub, temp, launch)

	done := false
	r.reconcileSessions(func() { done = true })

	require.True(t, done)
	assert.Equal(t, []int{0}, launchedFor)
	assert.True(t, temp.closed, "temp client should be closed once the first real session appears")
	assert.Nil(t, r.temp)
	require.Contains(t, r.sessionClients, 0)
	assert.Same(t, launched[0], r.sessionClients[0])
}

func TestReconcileSessions_ClosesSessionClientWhenSessionDisappears(t *testing.T) {
	core := model.New()
	sess := &model.Session{ID: 0, Name: "main"}
	core.InsertSession(sess)

	gone := &stubExecer{}
	r := New(core, gone, nil, nil)
	r.sessionClients = map[int]SessionClient{0: gone}

	stub := &stubExecer{responses: map[string]string{
		"list-sessions": "",
	}}
	r.cc = stub

	done := false
	r.reconcileSessions(func() { done = true })

	require.True(t, done)
	assert.True(t, gone.closed)
	assert.NotContains(t, r.sessionClients, 0)
}

func TestReconcileSessions_DerivesStatusBarFromGlobalsAndOverrides(t *testing.T) {
	core := model.New()

	exec := &scriptedExecer{handler: func(argv []string) (string, bool) {
		if argv[0] == "list-sessions" {
			return tsvLine("$0", "alpha", "80", "24") + "\n" + tsvLine("$1", "beta", "80", "24") + "\n", false
		}
		if argv[0] != "show-options" {
			return "", true
		}
		var target, name string
		if argv[2] == "-g" {
			name = argv[3]
		} else {
			target, name = argv[3], argv[4]
		}
		switch {
		case target == "" && name == "status":
			return "on", false
		case target == "" && name == "status-position":
			return "top", false
		case target == "$0":
			return "", true // unset: inherit globals
		case target == "$1" && name == "status":
			return "", true
		case target == "$1" && name == "status-position":
			return "bottom", false
		}
		return "", true
	}}

	r := New(core, exec, nil, nil)
	done := false
	r.reconcileSessions(func() { done = true })

	require.True(t, done)
	assert.Equal(t, model.StatusBarTop, core.Sessions[0].StatusBar, "inherits the global top placement")
	assert.Equal(t, model.StatusBarBottom, core.Sessions[1].StatusBar, "per-session override wins over the global")
}

// scriptedExecer answers Exec calls by inspecting the full argv, for tests
// that need to distinguish between several show-options calls a map keyed
// only by argv[0] can't tell apart.
type scriptedExecer struct {
	handler func(argv []string) (payload string, isError bool)
}

func (s *scriptedExecer) Exec(argv []string, done ccclient.ResultFunc) error {
	payload, isError := s.handler(argv)
	done([]byte(payload), isError, nil)
	return nil
}

func TestReconcileClients_FiresClientSessionChangedOnFirstAttachment(t *testing.T) {
	core := model.New()
	sess := &model.Session{ID: 0, Name: "main"}
	core.InsertSession(sess)

	var changed *model.Client
	core.Callbacks.ClientSessionChanged = func(c *model.Client) int { changed = c; return 0 }

	stub := &stubExecer{responses: map[string]string{
		"list-clients": tsvLine("/dev/pts/3", "555", "$0") + "\n",
	}}
	r := New(core, stub, nil, nil)

	done := false
	r.reconcileClients(func() { done = true })

	require.True(t, done)
	require.NotNil(t, changed)
	assert.Same(t, core.Clients["/dev/pts/3"], changed)
}

func TestReconcileWindows_SharedWindowAppearsInEverySessionThatListsIt(t *testing.T) {
	core := model.New()
	s0 := &model.Session{ID: 0, Name: "main"}
	s1 := &model.Session{ID: 1, Name: "other"}
	core.InsertSession(s0)
	core.InsertSession(s1)

	stub := &stubExecer{responses: map[string]string{
		"list-windows": tsvLine("$0", "@1", "bash", "1", "", "") + "\n" + tsvLine("$1", "@1", "bash", "1", "", "") + "\n",
		"list-panes":   "",
	}}
	r := New(core, stub, nil, nil)

	done := false
	r.reconcileWindows(func() { done = true })

	require.True(t, done)
	require.Len(t, s0.Windows, 1)
	require.Len(t, s1.Windows, 1)
	assert.Same(t, core.Windows[1], s0.Windows[0])
	assert.Same(t, core.Windows[1], s1.Windows[0])
}

func TestReconcileSessions_ClosingOneOwnerKeepsSharedWindowAlive(t *testing.T) {
	core := model.New()
	s0 := &model.Session{ID: 0, Name: "main"}
	s1 := &model.Session{ID: 1, Name: "other"}
	core.InsertSession(s0)
	core.InsertSession(s1)

	stub := &stubExecer{responses: map[string]string{
		"list-windows": tsvLine("$0", "@1", "bash", "1", "", "") + "\n" + tsvLine("$1", "@1", "bash", "1", "", "") + "\n",
		"list-panes":   "",
	}}
	r := New(core, stub, nil, nil)
	done := false
	r.reconcileWindows(func() { done = true })
	require.True(t, done)

	r.removeSessionWindows(s0)

	assert.Contains(t, core.Windows, 1, "window is still owned by s1")
	assert.Len(t, r.ownerSession[1], 1)
	assert.Same(t, s1, r.ownerSession[1][0])
}
