package api

import (
	"net/http"
	"strconv"
	"time"

	"grimm.is/speedctl/internal/audit"
	"grimm.is/speedctl/internal/clock"
	"grimm.is/speedctl/internal/i18n"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// AuditResponse is the body of GET /api/audit.
type AuditResponse struct {
	Records []audit.Record `json:"records"`
	Total   int64          `json:"total"`
	Limit   int            `json:"limit"`
}

// handleAuditQuery handles GET /api/audit.
// Query params: operation, outcome, since (RFC3339 or a duration such as 24h), limit
func (s *Server) handleAuditQuery(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		WriteErrorCtx(w, r, http.StatusServiceUnavailable, i18n.MsgAuditDisabled)
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Operation: q.Get("operation"),
		Outcome:   q.Get("outcome"),
		Limit:     defaultAuditLimit,
	}

	if since := q.Get("since"); since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			filter.Since = t
		} else if d, err := time.ParseDuration(since); err == nil && d > 0 {
			filter.Since = clock.Now().Add(-d)
		} else {
			WriteErrorCtx(w, r, http.StatusBadRequest, i18n.MsgInvalidRequest, "since")
			return
		}
	}

	if limitStr := q.Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l <= 0 {
			WriteErrorCtx(w, r, http.StatusBadRequest, i18n.MsgInvalidRequest, "limit")
			return
		}
		filter.Limit = min(l, maxAuditLimit)
	}

	records, err := s.audit.Query(filter)
	if err != nil {
		s.logger.Error("Audit query failed", "error", err)
		WriteErrorCtx(w, r, http.StatusInternalServerError, i18n.MsgInternalError)
		return
	}
	if records == nil {
		records = []audit.Record{}
	}

	total, err := s.audit.Count()
	if err != nil {
		s.logger.Warn("Audit count failed", "error", err)
	}

	WriteJSON(w, http.StatusOK, AuditResponse{Records: records, Total: total, Limit: filter.Limit})
}
