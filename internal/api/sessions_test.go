package api

import (
	"net/http"
	"sync"
	"testing"

	"github.com/nerrad567/homegate/internal/session"
)

// recordingConn is a session.Conn that remembers what it was sent.
type recordingConn struct {
	mu     sync.Mutex
	events []string
	closed bool
}

func (c *recordingConn) Send(event string, _ any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *recordingConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *recordingConn) state() ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.events...), c.closed
}

func TestSessions_RequireAdmin(t *testing.T) {
	env := testServer(t)

	tests := []struct {
		name  string
		roles []string
		want  int
	}{
		{"plain user", []string{"user"}, http.StatusForbidden},
		{"no roles", nil, http.StatusForbidden},
		{"admin", []string{"admin"}, http.StatusOK},
		{"super user", []string{"user", "s-user"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := issueToken(t, "carol", "c1", tt.roles...)
			w := env.doAs(t, tok, http.MethodGet, "/api/v1/sessions", "")
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}

	w := env.do(t, http.MethodPost, "/api/v1/sessions/force-logout", "")
	if w.Code != http.StatusForbidden {
		t.Errorf("force-logout as user = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestSessions_List(t *testing.T) {
	env := testServer(t)
	env.sessions.Accept(session.Identity{UserID: "bob", SessionID: "b1"}, &recordingConn{})
	env.sessions.Accept(session.Identity{UserID: "alice", SessionID: "a1"}, &recordingConn{})

	w := env.doAs(t, issueToken(t, "root", "r1", "admin"), http.MethodGet, "/api/v1/sessions", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	resp := decode(t, w)
	users, _ := resp["users"].([]any) //nolint:errcheck // checked below
	if len(users) != 2 || users[0] != "alice" || users[1] != "bob" {
		t.Errorf("users = %v, want [alice bob]", resp["users"])
	}
	if resp["connections"] != float64(2) {
		t.Errorf("connections = %v, want 2", resp["connections"])
	}
}

func TestForceLogout_SparesRequester(t *testing.T) {
	env := testServer(t)
	bob := &recordingConn{}
	root := &recordingConn{}
	env.sessions.Accept(session.Identity{UserID: "bob", SessionID: "b1"}, bob)
	env.sessions.Accept(session.Identity{UserID: "root", SessionID: "r1", Roles: []string{"admin"}}, root)

	// An explicit exclusion in the body cannot unprotect the caller.
	w := env.doAs(t, issueToken(t, "root", "r1", "admin"), http.MethodPost,
		"/api/v1/sessions/force-logout", `{"excludeUserId":"bob"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if resp := decode(t, w); resp["closed"] != float64(1) {
		t.Errorf("closed = %v, want 1", resp["closed"])
	}

	events, closed := bob.state()
	if !closed || len(events) != 1 || events[0] != session.EventForceLogout {
		t.Errorf("bob events = %v closed = %v, want force-logout then close", events, closed)
	}
	if events, closed := root.state(); closed || len(events) != 0 {
		t.Errorf("requester was touched: events = %v closed = %v", events, closed)
	}
	if env.sessions.Count() != 1 {
		t.Errorf("sessions left = %d, want 1", env.sessions.Count())
	}
}

func TestForceLogout_Target(t *testing.T) {
	env := testServer(t)
	bob := &recordingConn{}
	dave := &recordingConn{}
	env.sessions.Accept(session.Identity{UserID: "bob", SessionID: "b1"}, bob)
	env.sessions.Accept(session.Identity{UserID: "dave", SessionID: "d1"}, dave)

	w := env.doAs(t, issueToken(t, "root", "r1", "admin"), http.MethodPost,
		"/api/v1/sessions/force-logout", `{"targetUserId":"dave"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if _, closed := dave.state(); !closed {
		t.Error("target should be closed")
	}
	if _, closed := bob.state(); closed {
		t.Error("non-target should stay connected")
	}

	w = env.doAs(t, issueToken(t, "root", "r1", "admin"), http.MethodPost,
		"/api/v1/sessions/force-logout", `{"targetUserId":`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad body status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}
