package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/athenadocs/athena/services/rag_service"
	"github.com/athenadocs/athena/storage"
)

// Answerer is the grounded-chat surface the chat handler needs.
// *rag_service.Engine implements it.
type Answerer interface {
	Answer(ctx context.Context, question, documentID string, onDelta func(string) error) ([]string, error)
}

type ChatHandler struct {
	engine Answerer
	store  DocumentStore
	logger *slog.Logger
}

func NewChatHandler(engine Answerer, store DocumentStore, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{engine: engine, store: store, logger: logger}
}

type chatRequest struct {
	Message string `json:"message"`
}

// Chat streams a grounded answer over the whole corpus.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "")
}

// ChatWithDocument streams a grounded answer scoped to one document.
func (h *ChatHandler) ChatWithDocument(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := h.store.GetDocument(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeJSONError(w, "Document not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to load document", slog.String("error", err.Error()))
		writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.serve(w, r, id)
}

func (h *ChatHandler) serve(w http.ResponseWriter, r *http.Request, documentID string) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		writeJSONError(w, "Request body must carry a non-empty 'message'", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	// Headers go out before the first delta; errors after that point can only
	// truncate the stream, not change the status code.
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")

	started := false
	titles, err := h.engine.Answer(r.Context(), req.Message, documentID, func(delta string) error {
		if !started {
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if _, err := w.Write([]byte(delta)); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		if !started {
			if errors.Is(err, rag_service.ErrNoRelevantDocuments) {
				writeJSONError(w, "No relevant documents found for this question", http.StatusNotFound)
				return
			}
			h.logger.Error("Chat failed", slog.String("error", err.Error()))
			writeJSONError(w, "Failed to generate answer", http.StatusInternalServerError)
			return
		}
		h.logger.Error("Chat stream interrupted",
			slog.Any("titles", titles),
			slog.String("error", err.Error()))
		return
	}

	h.logger.Info("Chat answer streamed",
		slog.String("document_id", documentID),
		slog.Any("titles", titles))
}
