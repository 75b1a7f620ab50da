package session

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu      sync.Mutex
	name    string
	events  []string
	reasons []string
	closed  bool
	sendErr error
}

func (c *fakeConn) Send(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	if p, ok := payload.(ForceLogoutPayload); ok {
		c.reasons = append(c.reasons, p.Reason)
	}
	return c.sendErr
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type fakeMetrics struct {
	sessions int
	forced   int
}

func (m *fakeMetrics) SetSessions(n int)   { m.sessions = n }
func (m *fakeMetrics) ForcedLogouts(n int) { m.forced += n }

func user(id, session string, roles ...string) Identity {
	return Identity{UserID: id, Username: "user-" + id, Roles: roles, SessionID: session}
}

func TestAcceptSupersedesOtherLogin(t *testing.T) {
	m := NewManager(nil)
	metrics := &fakeMetrics{}
	m.SetMetrics(metrics)

	a := &fakeConn{name: "A"}
	b := &fakeConn{name: "B"}

	assert.Zero(t, m.Accept(user("u1", "A", "user"), a))
	assert.Equal(t, 1, m.Accept(user("u1", "B", "user"), b))

	assert.Equal(t, []string{EventForceLogout}, a.events)
	assert.Equal(t, []string{ReasonSuperseded}, a.reasons)
	assert.True(t, a.closed)
	assert.False(t, b.closed)
	assert.Empty(t, b.events)

	assert.Equal(t, 1, m.Count())
	assert.Equal(t, 1, metrics.sessions)
	assert.Equal(t, 1, metrics.forced)
}

func TestAcceptSameSessionIsAReconnect(t *testing.T) {
	m := NewManager(nil)
	first := &fakeConn{}
	second := &fakeConn{}

	m.Accept(user("u1", "A"), first)
	assert.Zero(t, m.Accept(user("u1", "A"), second))

	assert.Empty(t, first.events)
	assert.False(t, first.closed)
	assert.Equal(t, 2, m.Count())
}

func TestAcceptPrivilegedKeepsBoth(t *testing.T) {
	m := NewManager(nil)
	a := &fakeConn{}
	b := &fakeConn{}

	m.Accept(user("root", "A", "s-user"), a)
	assert.Zero(t, m.Accept(user("root", "B", "s-user"), b))

	assert.False(t, a.closed)
	assert.Equal(t, 2, m.Count())
	assert.Equal(t, []string{"root"}, m.ConnectedUserIDs())
}

func TestAcceptCustomPrivilegedRoles(t *testing.T) {
	m := NewManager([]string{"kiosk"})
	a := &fakeConn{}

	m.Accept(user("k", "A", "kiosk"), a)
	m.Accept(user("k", "B", "kiosk"), &fakeConn{})
	assert.False(t, a.closed)

	s := &fakeConn{}
	m.Accept(user("s", "A", "s-user"), s)
	m.Accept(user("s", "B", "s-user"), &fakeConn{})
	assert.True(t, s.closed, "s-user is not privileged when roles are overridden")
}

func TestAcceptSurvivesFailedSend(t *testing.T) {
	m := NewManager(nil)
	a := &fakeConn{sendErr: errors.New("broken pipe")}

	m.Accept(user("u1", "A"), a)
	m.Accept(user("u1", "B"), &fakeConn{})

	assert.True(t, a.closed)
	assert.Equal(t, 1, m.Count())
}

func TestDisconnectRemovesOnlyThatConnection(t *testing.T) {
	m := NewManager(nil)
	id := user("u1", "A")
	a := &fakeConn{}
	b := &fakeConn{}
	m.Accept(id, a)
	m.Accept(id, b)

	m.Disconnect(id, a)
	assert.Equal(t, 1, m.Count())
	assert.Equal(t, []string{"u1"}, m.ConnectedUserIDs())

	// A late disconnect from a superseded connection must not drop the new one.
	m.Disconnect(id, a)
	assert.Equal(t, 1, m.Count())

	m.Disconnect(id, b)
	assert.Zero(t, m.Count())
	assert.Empty(t, m.ConnectedUserIDs())
}

type population struct {
	m     *Manager
	conns map[string]*fakeConn
}

func populate(t *testing.T) population {
	t.Helper()
	p := population{m: NewManager(nil), conns: map[string]*fakeConn{}}
	for _, id := range []Identity{
		user("alice", "1", "admin"),
		user("bob", "1", "user"),
		user("carol", "1", "user", "guest"),
		user("dave", "1", "guest"),
	} {
		c := &fakeConn{}
		p.conns[id.UserID] = c
		p.m.Accept(id, c)
	}
	require.Equal(t, 4, p.m.Count())
	return p
}

func (p population) closed() []string {
	var out []string
	for _, id := range []string{"alice", "bob", "carol", "dave"} {
		if p.conns[id].closed {
			out = append(out, id)
		}
	}
	return out
}

func TestForceLogout(t *testing.T) {
	tests := []struct {
		name       string
		opts       ForceLogoutOptions
		wantClosed []string
	}{
		{
			name:       "global spares excluded roles",
			opts:       ForceLogoutOptions{ExcludeRoles: []string{"admin"}},
			wantClosed: []string{"bob", "carol", "dave"},
		},
		{
			name:       "global spares requester",
			opts:       ForceLogoutOptions{ExcludeUserID: "alice"},
			wantClosed: []string{"bob", "carol", "dave"},
		},
		{
			name:       "target",
			opts:       ForceLogoutOptions{TargetUserID: "bob"},
			wantClosed: []string{"bob"},
		},
		{
			name:       "target with protected role",
			opts:       ForceLogoutOptions{TargetUserID: "alice", ExcludeRoles: []string{"admin"}},
			wantClosed: nil,
		},
		{
			name:       "target wins over include",
			opts:       ForceLogoutOptions{TargetUserID: "dave", Include: []string{"bob", "carol"}},
			wantClosed: []string{"dave"},
		},
		{
			name:       "include list skips requester and unknown ids",
			opts:       ForceLogoutOptions{Include: []string{"alice", "bob", "zed"}, ExcludeUserID: "alice"},
			wantClosed: []string{"bob"},
		},
		{
			name:       "include wins over roles",
			opts:       ForceLogoutOptions{Include: []string{"dave"}, IncludeRoles: []string{"user"}},
			wantClosed: []string{"dave"},
		},
		{
			name:       "by role",
			opts:       ForceLogoutOptions{IncludeRoles: []string{"guest"}},
			wantClosed: []string{"carol", "dave"},
		},
		{
			name:       "by role with exclusion",
			opts:       ForceLogoutOptions{IncludeRoles: []string{"guest"}, ExcludeRoles: []string{"user"}},
			wantClosed: []string{"dave"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := populate(t)
			n := p.m.ForceLogout(tt.opts)

			assert.Equal(t, tt.wantClosed, p.closed())
			assert.Equal(t, len(tt.wantClosed), n)
			assert.Equal(t, 4-n, p.m.Count())
			for _, id := range tt.wantClosed {
				assert.Equal(t, []string{ReasonAdministrator}, p.conns[id].reasons)
			}
		})
	}
}

func TestForceLogoutCustomReason(t *testing.T) {
	p := populate(t)
	p.m.ForceLogout(ForceLogoutOptions{TargetUserID: "bob", Reason: "maintenance"})
	assert.Equal(t, []string{"maintenance"}, p.conns["bob"].reasons)
}

func TestHasAnyRole(t *testing.T) {
	id := user("u", "s", "user", "guest")
	assert.True(t, id.HasAnyRole([]string{"admin", "guest"}))
	assert.False(t, id.HasAnyRole([]string{"admin"}))
	assert.False(t, id.HasAnyRole(nil))
}
