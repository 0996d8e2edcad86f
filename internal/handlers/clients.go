package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"ovpnadmin/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

type ClientsHandler struct {
	clients *services.ClientService
	log     logrus.FieldLogger
}

func NewClientsHandler(clients *services.ClientService, log logrus.FieldLogger) *ClientsHandler {
	return &ClientsHandler{clients: clients, log: log}
}

type createClientRequest struct {
	CN         string `json:"cn"`
	Passphrase string `json:"passphrase"`
}

type bundleRequest struct {
	IncludeKey bool `json:"include_key"`
}

func (h *ClientsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createClientRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request")
		return
	}

	issued, err := h.clients.Create(r.Context(), actorFrom(r), req.CN, req.Passphrase)
	if err != nil {
		h.serviceError(w, err, "create client", req.CN)
		return
	}
	writeJSON(w, http.StatusCreated, issued)
}

func (h *ClientsHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	cn := chi.URLParam(r, "cn")
	if err := h.clients.Revoke(r.Context(), actorFrom(r), cn); err != nil {
		h.serviceError(w, err, "revoke client", cn)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Bundle streams the client's zipped profile. The request body is optional.
func (h *ClientsHandler) Bundle(w http.ResponseWriter, r *http.Request) {
	var req bundleRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "bad_request")
		return
	}

	cn := chi.URLParam(r, "cn")
	zip, err := h.clients.Bundle(r.Context(), actorFrom(r), cn, req.IncludeKey)
	if err != nil {
		h.serviceError(w, err, "build bundle", cn)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", cn+".zip"))
	w.Header().Set("Content-Length", strconv.Itoa(len(zip)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(zip)
}

func (h *ClientsHandler) serviceError(w http.ResponseWriter, err error, op, cn string) {
	status, code := serviceStatus(err, true)
	if status >= http.StatusInternalServerError {
		h.log.WithError(err).WithField("cn", cn).Errorf("%s failed", op)
	}
	writeError(w, status, code)
}
