package resolver

import (
	"errors"
	"net/http"
	"strconv"

	"bookcatalog/internal/book"
	"bookcatalog/internal/catalog"
	"bookcatalog/internal/httpx"
)

type HTTPHandler struct {
	svc *Service
}

func NewHTTPHandler(svc *Service) *HTTPHandler {
	return &HTTPHandler{svc: svc}
}

type resolveRequest struct {
	Key string `json:"key" validate:"required,max=64"`
}

type createRequest struct {
	Title           string   `json:"title" validate:"required,max=500"`
	Author          string   `json:"author" validate:"required,max=300"`
	ISBN            string   `json:"isbn" validate:"omitempty,isbn"`
	ExternalKey     string   `json:"external_key" validate:"omitempty,max=64"`
	CoverURL        *string  `json:"cover_url" validate:"omitempty,url"`
	Description     *string  `json:"description" validate:"omitempty,max=10000"`
	Genres          []string `json:"genres" validate:"max=10,dive,max=100"`
	Language        string   `json:"language" validate:"omitempty,max=16"`
	PublicationYear *int     `json:"publication_year" validate:"omitempty,gte=0,lte=3000"`
	Publisher       string   `json:"publisher" validate:"omitempty,max=300"`
}

// Register mounts the book routes. protect wraps routes that write.
func (h *HTTPHandler) Register(mux *http.ServeMux, protect func(http.Handler) http.Handler) {
	mux.Handle("POST /v1/books/resolve", protect(http.HandlerFunc(h.Resolve)))
	mux.Handle("POST /v1/books", protect(http.HandlerFunc(h.Create)))
	mux.HandleFunc("GET /v1/catalog/search", h.Search)
}

// Resolve handles POST /v1/books/resolve
func (h *HTTPHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.JSONError(w, r, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON body", nil)
		return
	}
	if details := httpx.ValidateStruct(req); details != nil {
		httpx.JSONError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request", details)
		return
	}

	res, err := h.svc.ResolveByKey(r.Context(), req.Key)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.JSONSuccess(w, r, http.StatusOK, res.Record, map[string]any{"created": res.Created})
}

// Create handles POST /v1/books
func (h *HTTPHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.JSONError(w, r, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON body", nil)
		return
	}
	if details := httpx.ValidateStruct(req); details != nil {
		httpx.JSONError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request", details)
		return
	}

	res, err := h.svc.CreateManual(r.Context(), ManualInput(req))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	httpx.JSONSuccess(w, r, status, res.Record, map[string]any{"created": res.Created})
}

// Search handles GET /v1/catalog/search?q=&limit=
func (h *HTTPHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		httpx.JSONError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "q is required",
			[]httpx.ErrorDetail{{Field: "q", Message: "q is required"}})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	cands, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.JSONSuccess(w, r, http.StatusOK, toCandidateViews(cands), map[string]any{"count": len(cands)})
}

type candidateView struct {
	ExternalKey     string   `json:"external_key"`
	Title           string   `json:"title"`
	Author          string   `json:"author"`
	ISBN            string   `json:"isbn,omitempty"`
	CoverURL        *string  `json:"cover_url,omitempty"`
	Genres          []string `json:"genres"`
	Language        string   `json:"language,omitempty"`
	PublicationYear *int     `json:"publication_year,omitempty"`
	Publisher       string   `json:"publisher,omitempty"`
}

// LocalID is left out: search results are not persisted, so it means nothing
// to the client.
func toCandidateViews(cands []book.Candidate) []candidateView {
	out := make([]candidateView, 0, len(cands))
	for _, c := range cands {
		out = append(out, candidateView{
			ExternalKey:     c.ExternalKey,
			Title:           c.Title,
			Author:          c.Author,
			ISBN:            c.ISBN,
			CoverURL:        c.CoverURL,
			Genres:          c.Genres,
			Language:        c.Language,
			PublicationYear: c.PublicationYear,
			Publisher:       c.Publisher,
		})
	}
	return out
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidKey):
		httpx.JSONError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
	case errors.Is(err, catalog.ErrNotFound):
		httpx.JSONError(w, r, http.StatusNotFound, "NOT_FOUND", "book not found in catalog", nil)
	case errors.Is(err, book.ErrPersistenceExhausted):
		httpx.JSONError(w, r, http.StatusServiceUnavailable, "PERSISTENCE_EXHAUSTED", "could not save the book, please retry", nil)
	case errors.Is(err, catalog.ErrTransient):
		httpx.JSONError(w, r, http.StatusBadGateway, "CATALOG_UNAVAILABLE", "catalog is unavailable, please retry", nil)
	default:
		httpx.JSONError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred", nil)
	}
}
