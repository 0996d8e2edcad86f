package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

const healthTimeout = 3 * time.Second

type Pinger interface {
	PingContext(ctx context.Context) error
}

type DaemonHealth interface {
	Health(ctx context.Context) error
}

type HealthHandler struct {
	db     Pinger
	daemon DaemonHealth
	log    logrus.FieldLogger
}

func NewHealthHandler(db Pinger, daemon DaemonHealth, log logrus.FieldLogger) *HealthHandler {
	return &HealthHandler{db: db, daemon: daemon, log: log}
}

type healthResponse struct {
	Status   string `json:"status"`
	DB       string `json:"db"`
	Vpncertd string `json:"vpncertd"`
}

// Health reports 503 only when the database is down. An unreachable
// certificate daemon degrades the service but does not fail the check.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := healthResponse{Status: "ok", DB: "ok", Vpncertd: "ok"}
	status := http.StatusOK

	if err := h.db.PingContext(ctx); err != nil {
		h.log.WithError(err).Warn("health: database ping failed")
		resp.Status, resp.DB = "unavailable", "unavailable"
		status = http.StatusServiceUnavailable
	}
	if err := h.daemon.Health(ctx); err != nil {
		h.log.WithError(err).Warn("health: vpncertd check failed")
		resp.Vpncertd = "unavailable"
		if resp.Status == "ok" {
			resp.Status = "degraded"
		}
	}

	writeJSON(w, status, resp)
}
