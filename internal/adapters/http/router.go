// Package httpadapter exposes the service over REST. Callers identify
// themselves with the X-User-ID header; absent, they act as the admin user.
package httpadapter

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/stars1210JasonHe/Meinrag/internal/core/domain"
	"github.com/stars1210JasonHe/Meinrag/internal/core/ports"
	"github.com/stars1210JasonHe/Meinrag/internal/core/usecase"
	"github.com/stars1210JasonHe/Meinrag/internal/observability/metrics"
	"github.com/stars1210JasonHe/Meinrag/internal/taxonomy"
)

const (
	userIDHeader  = "X-User-ID"
	defaultUserID = "admin"
	serviceName   = "api"
)

type Router struct {
	query    ports.QueryService
	docs     ports.DocumentService
	registry ports.DocumentRegistry
	users    ports.UserRegistry
	metrics  *metrics.HTTPServerMetrics
	logger   *slog.Logger

	maxUploadBytes int64
	rateLimitRPS   float64
	rateLimitBurst int
	maxConcurrent  int
}

func NewRouter(
	query ports.QueryService,
	docs ports.DocumentService,
	registry ports.DocumentRegistry,
	users ports.UserRegistry,
	serverMetrics *metrics.HTTPServerMetrics,
	logger *slog.Logger,
	maxUploadMB int,
	rateLimitRPS float64,
	rateLimitBurst int,
	maxConcurrent int,
) *Router {
	return &Router{
		query:          query,
		docs:           docs,
		registry:       registry,
		users:          users,
		metrics:        serverMetrics,
		logger:         logger,
		maxUploadBytes: int64(maxUploadMB) * 1024 * 1024,
		rateLimitRPS:   rateLimitRPS,
		rateLimitBurst: rateLimitBurst,
		maxConcurrent:  maxConcurrent,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.Handle("GET /metrics", rt.metrics.Handler())

	mux.HandleFunc("POST /v1/query", rt.answerQuery)

	mux.HandleFunc("POST /v1/documents", rt.uploadDocument)
	mux.HandleFunc("GET /v1/documents", rt.listDocuments)
	mux.HandleFunc("GET /v1/documents/{doc_id}", rt.getDocument)
	mux.HandleFunc("DELETE /v1/documents/{doc_id}", rt.deleteDocument)
	mux.HandleFunc("PATCH /v1/documents/{doc_id}/collections", rt.updateCollections)
	mux.HandleFunc("POST /v1/documents/{doc_id}/reclassify", rt.requestReclassify)

	mux.HandleFunc("GET /v1/collections", rt.listCollections)
	mux.HandleFunc("GET /v1/users", rt.listUsers)

	var handler http.Handler = mux
	handler = concurrencyLimitMiddleware(rt.maxConcurrent, rt.logger)(handler)
	handler = rateLimitMiddleware(newRateLimiter(rt.rateLimitRPS, rt.rateLimitBurst), rt.logger)(handler)
	handler = rt.metrics.Middleware(serviceName, handler)
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) answerQuery(w http.ResponseWriter, r *http.Request) {
	var req domain.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	req.UserID = resolveUserID(r)

	started := time.Now()
	answer, err := rt.query.Answer(r.Context(), req)
	if err != nil {
		rt.writeError(r, w, err)
		return
	}
	rt.metrics.RecordRAGObservation(serviceName, "/v1/query", len(answer.Sources), time.Since(started))

	writeJSON(w, http.StatusOK, queryResponse{
		Answer:    answer.Text,
		Question:  answer.Question,
		SessionID: answer.SessionID,
		Sources:   usecase.SourceRefs(answer.Sources),
	})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.maxUploadBytes+1024)
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read file"})
		return
	}

	req := domain.UploadRequest{
		UserID:      resolveUserID(r),
		Filename:    fileHeader.Filename,
		Content:     content,
		Collections: splitCSVField(r.FormValue("collections")),
		AutoSuggest: strings.EqualFold(r.FormValue("auto_suggest"), "true"),
	}

	result, err := rt.docs.Upload(r.Context(), req)
	if err != nil {
		rt.writeError(r, w, err)
		return
	}
	rt.metrics.RecordUpload(serviceName, result.Document.FileType, result.Document.ChunkCount)

	writeJSON(w, http.StatusCreated, uploadResponse{
		Document:             result.Document,
		SuggestedCollections: result.SuggestedCollections,
	})
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	userID := resolveUserID(r)

	var (
		docs []domain.Document
		err  error
	)
	if collection := r.URL.Query().Get("collection"); collection != "" {
		docs, err = rt.registry.ListByCollection(r.Context(), collection, userID)
	} else {
		docs, err = rt.registry.ListAll(r.Context(), userID)
	}
	if err != nil {
		rt.writeError(r, w, err)
		return
	}
	if docs == nil {
		docs = []domain.Document{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.registry.Get(r.Context(), r.PathValue("doc_id"))
	if err != nil {
		rt.writeError(r, w, err)
		return
	}
	if doc.UserID != resolveUserID(r) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "document not found"})
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) deleteDocument(w http.ResponseWriter, r *http.Request) {
	err := rt.docs.Delete(r.Context(), resolveUserID(r), r.PathValue("doc_id"))
	if err != nil {
		rt.writeError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (rt *Router) updateCollections(w http.ResponseWriter, r *http.Request) {
	docID := r.PathValue("doc_id")
	if err := rt.requireOwnership(r, docID); err != nil {
		rt.writeError(r, w, err)
		return
	}

	var req struct {
		Collections []string `json:"collections"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	if err := rt.docs.UpdateCollections(r.Context(), docID, req.Collections); err != nil {
		rt.writeError(r, w, err)
		return
	}
	doc, err := rt.registry.Get(r.Context(), docID)
	if err != nil {
		rt.writeError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) requestReclassify(w http.ResponseWriter, r *http.Request) {
	docID := r.PathValue("doc_id")
	if err := rt.requireOwnership(r, docID); err != nil {
		rt.writeError(r, w, err)
		return
	}

	if err := rt.docs.EnqueueReclassify(r.Context(), docID); err != nil {
		rt.writeError(r, w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "doc_id": docID})
}

// listCollections merges the static taxonomy's primary categories with the
// labels actually in use, so clients can offer known categories before any
// document carries them.
func (rt *Router) listCollections(w http.ResponseWriter, r *http.Request) {
	inUse, err := rt.registry.AllCollections(r.Context(), resolveUserID(r))
	if err != nil {
		rt.writeError(r, w, err)
		return
	}

	seen := make(map[string]struct{})
	collections := make([]string, 0, len(inUse))
	for _, label := range append(taxonomy.PrimaryCategories(), inUse...) {
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		collections = append(collections, label)
	}
	sort.Strings(collections)
	writeJSON(w, http.StatusOK, map[string]any{"collections": collections})
}

func (rt *Router) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := rt.users.ListAll(r.Context())
	if err != nil {
		rt.writeError(r, w, err)
		return
	}
	if users == nil {
		users = []domain.User{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (rt *Router) requireOwnership(r *http.Request, docID string) error {
	doc, err := rt.registry.Get(r.Context(), docID)
	if err != nil {
		return err
	}
	if doc.UserID != resolveUserID(r) {
		return domain.WrapError(domain.ErrNotFound, "authorize document access",
			errDocumentNotOwned)
	}
	return nil
}

// writeError maps the error kind to a status. Server-side failures are logged
// with full detail but reported to the caller as an opaque message, so
// upstream URLs and SQL text never leave the process.
func (rt *Router) writeError(r *http.Request, w http.ResponseWriter, err error) {
	status := mapErrorToHTTPStatus(err)
	message := err.Error()
	if status >= 500 {
		rt.logger.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
		message = "internal error"
		if status == http.StatusServiceUnavailable {
			message = "service temporarily unavailable"
		}
	}
	writeJSON(w, status, map[string]string{"error": message})
}

type queryResponse struct {
	Answer    string             `json:"answer"`
	Question  string             `json:"question"`
	SessionID string             `json:"session_id,omitempty"`
	Sources   []domain.SourceRef `json:"sources"`
}

type uploadResponse struct {
	Document             *domain.Document `json:"document"`
	SuggestedCollections []string         `json:"suggested_collections,omitempty"`
}

func resolveUserID(r *http.Request) string {
	userID := strings.TrimSpace(r.Header.Get(userIDHeader))
	if userID == "" {
		return defaultUserID
	}
	return userID
}

func splitCSVField(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
