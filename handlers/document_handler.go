package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/athenadocs/athena/chunker"
	"github.com/athenadocs/athena/document"
	"github.com/athenadocs/athena/files"
	"github.com/athenadocs/athena/storage"
)

// DocumentStore is the persistence surface the document handlers need.
// *storage.Store implements it.
type DocumentStore interface {
	CreateDocument(ctx context.Context, d *document.Document) error
	GetDocument(ctx context.Context, id string) (*document.Document, error)
	ListDocuments(ctx context.Context) ([]document.Document, error)
	UpdateDocumentMeta(ctx context.Context, id, title, description string) error
	SetFilePaths(ctx context.Context, id, file, ocrFile string) error
	ChunksByDocument(ctx context.Context, id string) ([]document.Chunk, error)
	DeleteDocument(ctx context.Context, id string) error
}

// FileStore is the artifact surface the document handlers need.
type FileStore interface {
	Save(docID string, kind files.Kind, ext string, r io.Reader) (string, error)
	Path(docID string, kind files.Kind) (string, error)
	Delete(docID string) error
	DeleteAll() error
}

// Pipeline is the orchestration surface the document handlers need.
type Pipeline interface {
	Dispatch(ctx context.Context, docID string, from document.Status) (string, error)
	Resume(ctx context.Context, docID string) (string, error)
	Revoke(handle string) bool
}

type DocumentHandler struct {
	store    DocumentStore
	files    FileStore
	pipeline Pipeline
	logger   *slog.Logger
}

func NewDocumentHandler(store DocumentStore, fileStore FileStore, pipeline Pipeline, logger *slog.Logger) *DocumentHandler {
	return &DocumentHandler{
		store:    store,
		files:    fileStore,
		pipeline: pipeline,
		logger:   logger,
	}
}

// uploadResult is the per-file outcome of a multi-file upload.
type uploadResult struct {
	Filename   string `json:"filename"`
	DocumentID string `json:"document_id,omitempty"`
	Status     string `json:"status,omitempty"`
	TaskHandle string `json:"task_handle,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Upload accepts one or more files under the multipart field "files", creates
// a document per file, and dispatches the full processing chain for each.
// Each file succeeds or fails independently: the response carries a per-file
// result and the overall status is 201 when all succeeded, 400 when all
// failed, and 207 for a mix.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(100 << 20); err != nil {
		writeJSONError(w, "Failed to parse multipart form", http.StatusBadRequest)
		return
	}

	fileHeaders := r.MultipartForm.File["files"]
	if len(fileHeaders) == 0 {
		writeJSONError(w, "No files provided under field 'files'", http.StatusBadRequest)
		return
	}
	converterSelector := r.FormValue("markdown_converter")

	results := make([]uploadResult, 0, len(fileHeaders))
	succeeded := 0
	for _, header := range fileHeaders {
		result := h.uploadOne(r.Context(), header.Filename, converterSelector, func() (io.ReadCloser, error) {
			return header.Open()
		})
		if result.Error == "" {
			succeeded++
		}
		results = append(results, result)
	}

	status := http.StatusCreated
	switch {
	case succeeded == 0:
		status = http.StatusBadRequest
	case succeeded < len(results):
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, map[string]any{"documents": results})
}

func (h *DocumentHandler) uploadOne(ctx context.Context, filename, converterSelector string,
	open func() (io.ReadCloser, error)) uploadResult {

	result := uploadResult{Filename: filename}

	src, err := open()
	if err != nil {
		result.Error = "Failed to read uploaded file"
		return result
	}
	defer src.Close()

	doc := &document.Document{
		ID:                uuid.NewString(),
		Title:             strings.TrimSuffix(filename, filepath.Ext(filename)),
		Status:            document.StatusPending,
		MarkdownConverter: converterSelector,
	}
	if err := h.store.CreateDocument(ctx, doc); err != nil {
		h.logger.Error("Failed to create document row",
			slog.String("filename", filename),
			slog.String("error", err.Error()))
		result.Error = "Failed to create document"
		return result
	}

	path, err := h.files.Save(doc.ID, files.KindOriginal, filepath.Ext(filename), src)
	if err != nil {
		h.logger.Error("Failed to store uploaded file",
			slog.String("document_id", doc.ID),
			slog.String("error", err.Error()))
		h.store.DeleteDocument(ctx, doc.ID)
		result.Error = "Failed to store file"
		return result
	}
	if err := h.store.SetFilePaths(ctx, doc.ID, path, ""); err != nil {
		result.Error = "Failed to record file path"
		return result
	}

	handle, err := h.pipeline.Dispatch(ctx, doc.ID, document.StatusPending)
	if err != nil {
		h.logger.Error("Failed to dispatch processing",
			slog.String("document_id", doc.ID),
			slog.String("error", err.Error()))
		result.Error = "Failed to start processing"
		return result
	}

	result.DocumentID = doc.ID
	result.Status = document.StatusPending.String()
	result.TaskHandle = handle
	return result
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	docs, err := h.store.ListDocuments(r.Context())
	if err != nil {
		h.logger.Error("Failed to list documents", slog.String("error", err.Error()))
		writeJSONError(w, "Failed to list documents", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs, "count": len(docs)})
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	doc, err := h.store.GetDocument(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// Update changes a document's title and description.
func (h *DocumentHandler) Update(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	id := mux.Vars(r)["id"]
	if err := h.store.UpdateDocumentMeta(r.Context(), id, body.Title, body.Description); err != nil {
		h.respondStoreError(w, err)
		return
	}

	doc, err := h.store.GetDocument(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) Chunks(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := h.store.GetDocument(r.Context(), id); err != nil {
		h.respondStoreError(w, err)
		return
	}

	chunks, err := h.store.ChunksByDocument(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to load chunks", slog.String("error", err.Error()))
		writeJSONError(w, "Failed to load chunks", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chunks": chunks, "count": len(chunks)})
}

// Markdown reconstructs the extracted text from the stored chunks and serves
// it as markdown.
func (h *DocumentHandler) Markdown(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	chunks, err := h.store.ChunksByDocument(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to load chunks", slog.String("error", err.Error()))
		writeJSONError(w, "Failed to load chunks", http.StatusInternalServerError)
		return
	}
	if len(chunks) == 0 {
		writeJSONError(w, "No extracted text for document", http.StatusNotFound)
		return
	}

	contents := make([]string, len(chunks))
	for i, c := range chunks {
		contents[i] = c.Content
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Write([]byte(chunker.Combine(contents)))
}

// File serves the original uploaded file.
func (h *DocumentHandler) File(w http.ResponseWriter, r *http.Request) {
	h.serveArtifact(w, r, files.KindOriginal)
}

// OCRFile serves the extracted-text artifact.
func (h *DocumentHandler) OCRFile(w http.ResponseWriter, r *http.Request) {
	h.serveArtifact(w, r, files.KindOCR)
}

func (h *DocumentHandler) serveArtifact(w http.ResponseWriter, r *http.Request, kind files.Kind) {
	id := mux.Vars(r)["id"]
	if _, err := h.store.GetDocument(r.Context(), id); err != nil {
		h.respondStoreError(w, err)
		return
	}

	path, err := h.files.Path(id, kind)
	if err != nil {
		writeJSONError(w, "File not found", http.StatusNotFound)
		return
	}
	http.ServeFile(w, r, path)
}

// Retry re-dispatches the remaining stages of a failed document.
func (h *DocumentHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	handle, err := h.pipeline.Resume(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			writeJSONError(w, "Document not found", http.StatusNotFound)
		case errors.Is(err, storage.ErrNotFailed):
			writeJSONError(w, "Document is not in a failed state", http.StatusBadRequest)
		default:
			h.logger.Error("Failed to retry document",
				slog.String("document_id", id),
				slog.String("error", err.Error()))
			writeJSONError(w, "Failed to retry document", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"document_id": id,
		"task_handle": handle,
	})
}

// Delete revokes any in-flight processing, removes stored files, and deletes
// the row. Chunks cascade with the row.
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	doc, err := h.store.GetDocument(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}

	if doc.TaskHandle != "" {
		h.pipeline.Revoke(doc.TaskHandle)
	}
	if err := h.files.Delete(id); err != nil {
		h.logger.Warn("Failed to delete document files",
			slog.String("document_id", id),
			slog.String("error", err.Error()))
	}
	if err := h.store.DeleteDocument(r.Context(), id); err != nil {
		h.respondStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// deleteResult is the per-document outcome of a bulk delete.
type deleteResult struct {
	DocumentID string `json:"document_id"`
	Error      string `json:"error,omitempty"`
}

// DeleteAll wipes every document, its files, and its chunks, revoking any
// in-flight runs first. Documents are deleted independently: one failure is
// reported in its result entry and does not abort the rest.
func (h *DocumentHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	docs, err := h.store.ListDocuments(r.Context())
	if err != nil {
		h.logger.Error("Failed to list documents", slog.String("error", err.Error()))
		writeJSONError(w, "Failed to list documents", http.StatusInternalServerError)
		return
	}

	results := make([]deleteResult, 0, len(docs))
	deleted := 0
	for _, doc := range docs {
		result := deleteResult{DocumentID: doc.ID}
		if doc.TaskHandle != "" {
			h.pipeline.Revoke(doc.TaskHandle)
		}
		if err := h.files.Delete(doc.ID); err != nil {
			h.logger.Warn("Failed to delete document files",
				slog.String("document_id", doc.ID),
				slog.String("error", err.Error()))
		}
		if err := h.store.DeleteDocument(r.Context(), doc.ID); err != nil {
			h.logger.Error("Failed to delete document",
				slog.String("document_id", doc.ID),
				slog.String("error", err.Error()))
			result.Error = "Failed to delete document"
		} else {
			deleted++
		}
		results = append(results, result)
	}

	if deleted == len(docs) {
		// Everything is gone; sweep any stray artifacts left on disk.
		if err := h.files.DeleteAll(); err != nil {
			h.logger.Warn("Failed to sweep media directory", slog.String("error", err.Error()))
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"deleted": deleted,
		"failed":  len(docs) - deleted,
		"results": results,
	})
}

func (h *DocumentHandler) respondStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		writeJSONError(w, "Document not found", http.StatusNotFound)
		return
	}
	h.logger.Error("Storage operation failed", slog.String("error", err.Error()))
	writeJSONError(w, "Internal server error", http.StatusInternalServerError)
}
