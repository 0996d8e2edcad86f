package handlers

import (
	"errors"
	"net/http"

	"ovpnadmin/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

type CCDHandler struct {
	ccd *services.CCDService
	log logrus.FieldLogger
}

func NewCCDHandler(ccd *services.CCDService, log logrus.FieldLogger) *CCDHandler {
	return &CCDHandler{ccd: ccd, log: log}
}

type ccdDocument struct {
	CN      string `json:"cn"`
	Content string `json:"content"`
}

type importResult struct {
	Files int `json:"files"`
}

func (h *CCDHandler) Get(w http.ResponseWriter, r *http.Request) {
	cn := chi.URLParam(r, "cn")
	content, err := h.ccd.Read(cn)
	if err != nil {
		h.serviceError(w, err, "read ccd")
		return
	}
	writeJSON(w, http.StatusOK, ccdDocument{CN: cn, Content: content})
}

func (h *CCDHandler) Put(w http.ResponseWriter, r *http.Request) {
	var doc ccdDocument
	if err := decodeJSON(w, r, &doc); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request")
		return
	}

	if err := h.ccd.Write(r.Context(), actorFrom(r), chi.URLParam(r, "cn"), doc.Content); err != nil {
		h.serviceError(w, err, "write ccd")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CCDHandler) Export(w http.ResponseWriter, r *http.Request) {
	archive, err := h.ccd.Export()
	if err != nil {
		h.serviceError(w, err, "export ccd")
		return
	}

	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("Content-Disposition", "attachment; filename=ccd.tar.gz")
	_, _ = w.Write(archive)
}

// Import accepts a raw tar.gz body as produced by Export.
func (h *CCDHandler) Import(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, services.MaxArchiveSize)
	n, err := h.ccd.Import(r.Context(), actorFrom(r), body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "archive_too_large")
			return
		}
		h.serviceError(w, err, "import ccd")
		return
	}
	writeJSON(w, http.StatusOK, importResult{Files: n})
}

func (h *CCDHandler) serviceError(w http.ResponseWriter, err error, op string) {
	status, code := serviceStatus(err, false)
	if status >= http.StatusInternalServerError {
		h.log.WithError(err).Errorf("%s failed", op)
	}
	writeError(w, status, code)
}
