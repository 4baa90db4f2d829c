package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	httperrors "github.com/jw6ventures/casefile/internal/http/errors"
	"github.com/jw6ventures/casefile/internal/store"
)

const (
	defaultDocumentLimit = 100
	maxDocumentLimit     = 500
)

type DocumentView struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	FileName  string    `json:"fileName"`
	MimeType  string    `json:"mimeType"`
	SizeBytes int64     `json:"sizeBytes"`
	Checksum  string    `json:"checksum"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	limit := queryInt(r, "limit", defaultDocumentLimit)
	if limit <= 0 {
		limit = defaultDocumentLimit
	}
	limit = min(limit, maxDocumentLimit)

	docs, err := h.deps.Documents.ListByUser(r.Context(), userID, limit)
	if err != nil {
		httperrors.InternalError(w, r, err, "failed to list documents")
		return
	}
	views := make([]DocumentView, 0, len(docs))
	for _, d := range docs {
		views = append(views, DocumentView{
			ID:        d.ID,
			Title:     d.Title,
			FileName:  d.FileName,
			MimeType:  d.MimeType,
			SizeBytes: d.SizeBytes,
			Checksum:  d.Checksum,
			Source:    d.Source,
			CreatedAt: d.CreatedAt,
			UpdatedAt: d.UpdatedAt,
		})
	}
	writeJSON(w, r, http.StatusOK, views)
}

// DownloadDocument redirects to a short-lived presigned object URL.
func (h *Handler) DownloadDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	doc, err := h.deps.Documents.GetByID(r.Context(), userID, chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		httperrors.NotFound(w, r, "document not found")
		return
	}
	if err != nil {
		httperrors.InternalError(w, r, err, "failed to load document")
		return
	}
	target, err := h.deps.Presigner.PresignGet(r.Context(), doc.StorageKey, h.deps.DownloadTTL)
	if err != nil {
		httperrors.InternalError(w, r, err, "failed to sign download")
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, target, http.StatusFound)
}
