package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-cloudbridge/internal/audit"
)

// handleListAuditLogs returns recorded characteristic writes, newest first.
//
// Query parameters:
//   - accessory_id, characteristic, source: exact match
//   - outcome: ok or failed
//   - since: RFC 3339 timestamp
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeServiceUnavailable(w, "audit trail not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		AccessoryID:    q.Get("accessory_id"),
		Characteristic: q.Get("characteristic"),
		Source:         q.Get("source"),
		Outcome:        q.Get("outcome"),
		Limit:          atoiOr(q.Get("limit"), 0),
		Offset:         atoiOr(q.Get("offset"), 0),
	}

	switch filter.Outcome {
	case "", audit.OutcomeOK, audit.OutcomeFailed:
	default:
		writeBadRequest(w, "outcome must be ok or failed")
		return
	}

	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "since must be an RFC 3339 timestamp")
			return
		}
		filter.Since = since
	}

	page, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit entries", "error", err)
		writeInternalError(w, "failed to list audit entries")
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// atoiOr parses v, returning def when v is empty or not a number.
func atoiOr(v string, def int) int {
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return def
}
