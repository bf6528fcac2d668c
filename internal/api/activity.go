package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/verdantlogic/greenhouse-core/internal/audit"
)

// recordActivity appends an entry to the audit trail. Failures are logged
// and never surfaced to the client; the audit trail is best effort.
func (s *Server) recordActivity(ctx context.Context, uid, action, entityType, entityID string, details map[string]any) {
	if s.audit == nil {
		return
	}

	entry := &audit.AuditLog{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		UserID:     uid,
		Source:     "api",
		Details:    details,
	}
	if err := s.audit.Create(ctx, entry); err != nil {
		s.logger.Warn("recording activity failed", "action", action, "error", err)
	}
}

// handleUserActivity returns the authenticated user's own audit trail,
// most recent first.
func (s *Server) handleUserActivity(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeJSON(w, http.StatusOK, audit.ListResult{Logs: []audit.AuditLog{}})
		return
	}

	filter := audit.Filter{
		UserID: userID(r),
		Action: r.URL.Query().Get("action"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
