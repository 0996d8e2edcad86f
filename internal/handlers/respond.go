package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	"ovpnadmin/internal/middleware"
	"ovpnadmin/internal/models"
	"ovpnadmin/internal/services"
	"ovpnadmin/internal/vpncertd"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, errorBody{Error: code})
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// clientIP returns the peer address without its port. Forwarded addresses
// have already been applied for trusted proxies only.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// actorFrom describes the authenticated caller for service-level auditing.
func actorFrom(r *http.Request) services.Actor {
	actor := services.Actor{
		Username:  models.NoTarget,
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	}
	if id := middleware.GetIdentity(r); id != nil {
		actor.Username = id.Username
	}
	return actor
}

// serviceStatus maps client and CCD service errors to a status and code.
// Unrecognized errors from the certificate daemon path report 502.
func serviceStatus(err error, viaDaemon bool) (int, string) {
	switch {
	case errors.Is(err, services.ErrInvalidCN):
		return http.StatusUnprocessableEntity, "invalid_cn"
	case errors.Is(err, services.ErrClientNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, services.ErrInvalidArchive):
		return http.StatusBadRequest, "invalid_archive"
	case errors.Is(err, services.ErrCCDTooLarge):
		return http.StatusRequestEntityTooLarge, "ccd_too_large"
	case vpncertd.HasCode(err, "cn_exists_active"):
		return http.StatusConflict, "cn_exists_active"
	case viaDaemon:
		return http.StatusBadGateway, "daemon_error"
	}
	return http.StatusInternalServerError, "internal_error"
}
