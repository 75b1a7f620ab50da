package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/nerrad567/homegate/internal/audit"
	"github.com/nerrad567/homegate/internal/session"
)

// handleForceLogout ends push sessions selected by the body. The caller's
// own sessions are always spared.
func (s *Server) handleForceLogout(w http.ResponseWriter, r *http.Request) {
	var opts session.ForceLogoutOptions
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	claims := claimsFromContext(r.Context())
	if claims != nil {
		opts.ExcludeUserID = claims.UserID
	}

	closed := s.sessions.ForceLogout(opts)
	s.logger.Info("forced logout",
		"requested_by", opts.ExcludeUserID,
		"target", opts.TargetUserID,
		"closed", closed,
	)
	s.recordAudit(r, audit.ActionForceLogout, audit.EntitySession, opts.TargetUserID, map[string]any{
		"closed": closed,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"closed":  closed,
	})
}

// handleListSessions returns who holds a push connection.
func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"users":       s.sessions.ConnectedUserIDs(),
		"connections": s.sessions.Count(),
	})
}
