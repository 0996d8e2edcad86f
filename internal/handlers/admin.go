package handlers

import (
	"net/http"
	"strconv"

	"ovpnadmin/internal/auth"
	"ovpnadmin/internal/models"

	"github.com/sirupsen/logrus"
)

type AdminHandler struct {
	audit *auth.AuditService
	log   logrus.FieldLogger
}

func NewAdminHandler(audit *auth.AuditService, log logrus.FieldLogger) *AdminHandler {
	return &AdminHandler{audit: audit, log: log}
}

type auditPage struct {
	Entries []models.AuditEntry `json:"entries"`
	Limit   int                 `json:"limit"`
	Offset  int                 `json:"offset"`
}

// Audit lists audit entries newest first. Unparsable paging parameters
// fall back to their defaults.
func (h *AdminHandler) Audit(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", auth.DefaultAuditPage)
	offset := queryInt(r, "offset", 0)

	entries, err := h.audit.List(r.Context(), limit, offset)
	if err != nil {
		h.log.WithError(err).Error("failed to list audit entries")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}

	writeJSON(w, http.StatusOK, auditPage{
		Entries: entries,
		Limit:   clamp(limit, 1, auth.MaxAuditPage),
		Offset:  max(offset, 0),
	})
}

func (h *AdminHandler) Ping(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("pong"))
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
