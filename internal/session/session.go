package session

import (
	"slices"
	"sync"
)

// EventForceLogout is sent to a connection just before it is closed.
const EventForceLogout = "force-logout"

// Reasons carried in force-logout payloads.
const (
	ReasonSuperseded    = "You signed in on another device."
	ReasonAdministrator = "Session closed by an administrator"
)

// DefaultPrivilegedRoles may hold several concurrent sessions.
var DefaultPrivilegedRoles = []string{"s-user"}

// Identity is who is on the other end of a push connection, as decoded from
// their access token.
type Identity struct {
	UserID   string   `json:"userId"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`

	// SessionID tells two logins by the same user apart. Reconnects from
	// the same login carry the same value.
	SessionID string `json:"sessionId"`
}

// HasAnyRole reports whether the identity holds at least one of roles.
func (id Identity) HasAnyRole(roles []string) bool {
	for _, r := range roles {
		if slices.Contains(id.Roles, r) {
			return true
		}
	}
	return false
}

// Conn is one live push connection.
type Conn interface {
	Send(event string, payload any) error
	Close() error
}

// ForceLogoutPayload is the force-logout event body.
type ForceLogoutPayload struct {
	Reason string `json:"reason"`
}

// ForceLogoutOptions selects which sessions ForceLogout ends. The first
// non-empty selector wins: TargetUserID, then Include, then IncludeRoles;
// with none set every session is selected. The exclusions apply in every
// mode.
type ForceLogoutOptions struct {
	TargetUserID string   `json:"targetUserId,omitempty"`
	Include      []string `json:"include,omitempty"`
	IncludeRoles []string `json:"includeRoles,omitempty"`

	ExcludeUserID string   `json:"excludeUserId,omitempty"`
	ExcludeRoles  []string `json:"excludeRoles,omitempty"`

	// Reason defaults to ReasonAdministrator.
	Reason string `json:"reason,omitempty"`
}

// Metrics tracks sessions. *metrics.Recorder satisfies it.
type Metrics interface {
	SetSessions(n int)
	ForcedLogouts(n int)
}

// Logger defines the logging interface used by the Manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type live struct {
	identity Identity
	conn     Conn
}

// Manager enforces one login per user across push connections.
//
// A user normally has connections from a single SessionID. A connection
// from a new SessionID supersedes the old ones, which are told why and
// closed, unless the user holds a privileged role.
//
// Thread Safety: all methods are safe for concurrent use. Sends and closes
// happen outside the lock.
type Manager struct {
	privileged []string

	mu    sync.Mutex
	users map[string][]live

	logger  Logger
	metrics Metrics
}

// NewManager creates a Manager. Empty privilegedRoles means
// DefaultPrivilegedRoles.
func NewManager(privilegedRoles []string) *Manager {
	if len(privilegedRoles) == 0 {
		privilegedRoles = DefaultPrivilegedRoles
	}
	return &Manager{
		privileged: slices.Clone(privilegedRoles),
		users:      make(map[string][]live),
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger.
func (m *Manager) SetLogger(logger Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// SetMetrics sets the metrics sink.
func (m *Manager) SetMetrics(metrics Metrics) {
	m.metrics = metrics
}

// Accept registers conn for id, superseding the user's connections from
// other logins when id is not privileged. It returns how many were closed.
func (m *Manager) Accept(id Identity, conn Conn) int {
	m.mu.Lock()
	existing := m.users[id.UserID]

	var kept, superseded []live
	for _, l := range existing {
		if l.identity.SessionID == id.SessionID || id.HasAnyRole(m.privileged) {
			kept = append(kept, l)
		} else {
			superseded = append(superseded, l)
		}
	}
	m.users[id.UserID] = append(kept, live{identity: id, conn: conn})
	m.report(len(superseded))
	m.mu.Unlock()

	for _, l := range superseded {
		m.logger.Info("session superseded by a new login",
			"user_id", id.UserID, "old_session", l.identity.SessionID, "new_session", id.SessionID)
		m.terminate(l, ReasonSuperseded)
	}
	m.logger.Debug("push session accepted", "user_id", id.UserID, "username", id.Username, "session_id", id.SessionID)
	return len(superseded)
}

// Disconnect forgets conn. Other connections of the same user stay.
func (m *Manager) Disconnect(id Identity, conn Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.users[id.UserID]
	for i, l := range list {
		if l.conn == conn {
			list = slices.Delete(list, i, i+1)
			break
		}
	}
	if len(list) == 0 {
		delete(m.users, id.UserID)
	} else {
		m.users[id.UserID] = list
	}
	m.report(0)
}

// ForceLogout ends the selected sessions and returns how many connections
// were closed.
func (m *Manager) ForceLogout(opts ForceLogoutOptions) int {
	reason := opts.Reason
	if reason == "" {
		reason = ReasonAdministrator
	}

	byRole := opts.TargetUserID == "" && len(opts.Include) == 0 && len(opts.IncludeRoles) > 0

	m.mu.Lock()
	var targets []live
	for _, userID := range m.selectUsers(opts) {
		if userID == opts.ExcludeUserID && opts.ExcludeUserID != "" {
			continue
		}
		var kept []live
		for _, l := range m.users[userID] {
			if l.identity.HasAnyRole(opts.ExcludeRoles) {
				kept = append(kept, l)
				continue
			}
			if byRole && !l.identity.HasAnyRole(opts.IncludeRoles) {
				kept = append(kept, l)
				continue
			}
			targets = append(targets, l)
		}
		if len(kept) == 0 {
			delete(m.users, userID)
		} else {
			m.users[userID] = kept
		}
	}
	m.report(len(targets))
	m.mu.Unlock()

	for _, l := range targets {
		m.logger.Info("forcing logout", "user_id", l.identity.UserID, "session_id", l.identity.SessionID, "reason", reason)
		m.terminate(l, reason)
	}
	return len(targets)
}

// selectUsers applies the selector precedence. mu must be held.
func (m *Manager) selectUsers(opts ForceLogoutOptions) []string {
	switch {
	case opts.TargetUserID != "":
		return []string{opts.TargetUserID}
	case len(opts.Include) > 0:
		return opts.Include
	default:
		ids := make([]string, 0, len(m.users))
		for id := range m.users {
			ids = append(ids, id)
		}
		return ids
	}
}

func (m *Manager) terminate(l live, reason string) {
	if err := l.conn.Send(EventForceLogout, ForceLogoutPayload{Reason: reason}); err != nil {
		m.logger.Debug("force-logout not delivered", "user_id", l.identity.UserID, "error", err)
	}
	if err := l.conn.Close(); err != nil {
		m.logger.Debug("closing superseded connection", "user_id", l.identity.UserID, "error", err)
	}
}

// ConnectedUserIDs returns the users with at least one live connection,
// sorted.
func (m *Manager) ConnectedUserIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.users))
	for id := range m.users {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Count returns the number of live connections.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countLocked()
}

func (m *Manager) countLocked() int {
	n := 0
	for _, list := range m.users {
		n += len(list)
	}
	return n
}

// report must be called with mu held.
func (m *Manager) report(closed int) {
	if m.metrics == nil {
		return
	}
	m.metrics.SetSessions(m.countLocked())
	if closed > 0 {
		m.metrics.ForcedLogouts(closed)
	}
}
