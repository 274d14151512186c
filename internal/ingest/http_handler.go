package ingest

import (
	"net/http"

	"bookcatalog/internal/httpx"
)

type HTTPHandler struct {
	svc *Service
}

func NewHTTPHandler(svc *Service) *HTTPHandler {
	return &HTTPHandler{svc: svc}
}

// Register mounts the job routes. protect is expected to check the internal secret.
func (h *HTTPHandler) Register(mux *http.ServeMux, protect func(http.Handler) http.Handler) {
	mux.Handle("POST /internal/jobs/warm", protect(http.HandlerFunc(h.Warm)))
}

// Warm handles POST /internal/jobs/warm
func (h *HTTPHandler) Warm(w http.ResponseWriter, r *http.Request) {
	run, err := h.svc.Run(r.Context())
	if err != nil {
		if run == nil {
			httpx.JSONError(w, r, http.StatusInternalServerError, "INGEST_FAILED", "could not start warm-up run", nil)
			return
		}
		httpx.JSONError(w, r, http.StatusBadGateway, "INGEST_FAILED", run.Error, nil)
		return
	}

	httpx.JSONSuccess(w, r, http.StatusOK, run, nil)
}
