package api

import (
	"log/slog"
	"net/http"

	"github.com/docsage/docsage/internal/corpus"
)

// documentsHandler serves the corpus listing and deletion endpoints.
type documentsHandler struct {
	store  *corpus.Store
	logger *slog.Logger
}

// documentEntry is the wire form of one ingested document.
type documentEntry struct {
	Name       string `json:"name"`
	ChunkCount int64  `json:"chunkCount"`
}

// list serves GET /api/documents.
func (h *documentsHandler) list(w http.ResponseWriter, r *http.Request) {
	docs, err := h.store.ListDocuments(r.Context())
	if err != nil {
		h.logger.Error("listing documents", "error", err)
		writeMessage(w, http.StatusInternalServerError, "failed to list documents")
		return
	}

	entries := make([]documentEntry, 0, len(docs))
	for _, d := range docs {
		entries = append(entries, documentEntry{
			Name:       d.Name,
			ChunkCount: d.ChunkCount,
		})
	}

	writeJSON(w, http.StatusOK, map[string][]documentEntry{"documents": entries})
}

// remove serves DELETE /api/documents/{name}.
func (h *documentsHandler) remove(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		writeMessage(w, http.StatusBadRequest, "document name is required")
		return
	}

	deleted, err := h.store.DeleteDocument(r.Context(), name)
	if err != nil {
		h.logger.Error("deleting document", "name", name, "error", err)
		writeMessage(w, http.StatusInternalServerError, "failed to delete document")
		return
	}
	if deleted == 0 {
		writeMessage(w, http.StatusNotFound, "document not found")
		return
	}

	h.logger.Info("document deleted", "name", name, "chunks", deleted)
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}
