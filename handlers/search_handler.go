package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/athenadocs/athena/services/rag_service"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 50
)

// Searcher is the retrieval surface the search handler needs.
// *rag_service.Engine implements it.
type Searcher interface {
	Search(ctx context.Context, query, titleFilter string, limit int) ([]rag_service.SearchResult, error)
}

type SearchHandler struct {
	engine Searcher
	logger *slog.Logger
}

func NewSearchHandler(engine Searcher, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{engine: engine, logger: logger}
}

// ServeHTTP handles GET /documents/search?query=...&title=...&limit=N.
func (h *SearchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		writeJSONError(w, "Missing query parameter 'query'", http.StatusBadRequest)
		return
	}

	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeJSONError(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
		if limit > maxSearchLimit {
			limit = maxSearchLimit
		}
	}

	results, err := h.engine.Search(r.Context(), query, r.URL.Query().Get("title"), limit)
	if err != nil {
		h.logger.Error("Search failed",
			slog.String("query", query),
			slog.String("error", err.Error()))
		writeJSONError(w, "Search failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"count":   len(results),
	})
}
