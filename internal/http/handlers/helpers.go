package handlers

import (
	"errors"
	"net/http"
	"strings"

	"grouporder-services/internal/docstore"
	"grouporder-services/pkg/response"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func readPathString(r *http.Request, key string) string {
	return strings.TrimSpace(chi.URLParam(r, key))
}

func (h *Handler) writeStoreError(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, docstore.ErrNotFound) {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", what+" not found")
		return
	}
	h.Logger.Error("document store request failed", zap.String("what", what), zap.Error(err))
	response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load "+what)
}
