package reconcile

import (
	"strings"

	"github.com/ehrlich-b/muxmirror/model"
	"github.com/ehrlich-b/muxmirror/muxlog"
)

type clientRow struct {
	name      string
	pid       int
	sessionID int
}

var clientFormat = strings.Join([]string{
	"#{client_name}", "#{client_pid}", "#{session_id}",
}, fieldSep)

func parseClientRow(line string) (clientRow, bool) {
	f := strings.Split(line, fieldSep)
	if len(f) < 3 {
		return clientRow{}, false
	}
	sid, err := parseID(f[2], '$')
	if err != nil {
		return clientRow{}, false
	}
	return clientRow{name: f[0], pid: parseIntField(f[1]), sessionID: sid}, true
}

// reconcileClients re-derives the attached-client set. A client's Name
// (tmux's #{client_name}, normally its tty path) is its stable identity,
// since list-clients has no separate numeric id.
func (r *Reconciler) reconcileClients(done func()) {
	r.cc.Exec([]string{"list-clients", "-F", clientFormat}, func(payload []byte, isError bool, err error) {
		defer done()
		if err != nil || isError {
			muxlog.Warn("reconcile: list-clients failed", "err", err, "payload", string(payload))
			return
		}

		rows := make(map[string]clientRow)
		for _, line := range splitRows(payload) {
			row, ok := parseClientRow(line)
			if !ok {
				continue
			}
			rows[row.name] = row
		}

		for name, c := range r.core.Clients {
			if _, ok := rows[name]; ok {
				continue
			}
			r.unlinkClient(c)
			delete(r.core.Clients, name)
		}

		for name, row := range rows {
			sess, ok := r.core.Sessions[row.sessionID]
			if !ok {
				continue
			}
			c, exists := r.core.Clients[name]
			if !exists {
				c = &model.Client{Name: name, PID: row.pid}
				r.core.Clients[name] = c
				r.linkClient(sess, c)
				if r.core.Callbacks.ClientSessionChanged != nil {
					r.core.Callbacks.ClientSessionChanged(c)
				}
				continue
			}
			if c.Session != sess {
				r.unlinkClient(c)
				r.linkClient(sess, c)
				if r.core.Callbacks.ClientSessionChanged != nil {
					r.core.Callbacks.ClientSessionChanged(c)
				}
			}
		}
	})
}

func (r *Reconciler) linkClient(sess *model.Session, c *model.Client) {
	c.Session = sess
	c.Prev = nil
	c.Next = sess.ClientHead
	if sess.ClientHead != nil {
		sess.ClientHead.Prev = c
	}
	sess.ClientHead = c
}

func (r *Reconciler) unlinkClient(c *model.Client) {
	if c.Prev != nil {
		c.Prev.Next = c.Next
	} else if c.Session != nil && c.Session.ClientHead == c {
		c.Session.ClientHead = c.Next
	}
	if c.Next != nil {
		c.Next.Prev = c.Prev
	}
	c.Session, c.Next, c.Prev = nil, nil, nil
}
