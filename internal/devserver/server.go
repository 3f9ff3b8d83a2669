// Package devserver is a local stand-in for the Memphora memory API. It
// serves the endpoints the adapter calls, backed by SQLite, so the adapter
// can be exercised end to end without the hosted service.
package devserver

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/memphora/memphora-mcp/internal/contextstore"
	"github.com/memphora/memphora-mcp/internal/errortypes"
	"github.com/memphora/memphora-mcp/internal/memphora"
	"github.com/memphora/memphora-mcp/internal/summarizer"
	"github.com/memphora/memphora-mcp/internal/telemetry"
	"github.com/memphora/memphora-mcp/internal/vector"
)

const (
	// DefaultAddr is the listen address used when none is configured.
	DefaultAddr = "127.0.0.1:8765"

	maxRequestBytes = 1 << 20
	shutdownTimeout = 5 * time.Second
)

// Options configures a Server. Store is required; the other dependencies
// default to the in-package implementations.
type Options struct {
	// APIKey, when set, must be presented as a bearer token.
	APIKey string

	Store      contextstore.MemoryStore
	Embedder   vector.Embedder
	Summarizer summarizer.Summarizer
	Metrics    *telemetry.MetricsCollector
	Logger     *slog.Logger

	// Now is the clock; time.Now when nil.
	Now func() time.Time
}

// Server handles the memory API routes.
type Server struct {
	apiKey    string
	store     contextstore.MemoryStore
	embedder  vector.Embedder
	extractor *summarizer.FactExtractor
	metrics   *telemetry.MetricsCollector
	logger    *slog.Logger
	now       func() time.Time
	mux       *http.ServeMux
}

// New creates a Server.
func New(opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, errortypes.ConfigError(errors.New("memory store is nil"), "dev server initialization failed")
	}
	if opts.Embedder == nil {
		opts.Embedder = vector.NewHashingEmbedder(vector.DefaultEmbeddingDimensions)
	}
	if opts.Summarizer == nil {
		opts.Summarizer = summarizer.NewBasicSummarizer(summarizer.DefaultMaxSummaryLength)
	}
	if opts.Metrics == nil {
		opts.Metrics = telemetry.NewMetricsCollector()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	if err := opts.Embedder.Initialize(); err != nil {
		return nil, errortypes.InternalError(err, "failed to initialize embedder")
	}
	if err := opts.Summarizer.Initialize(); err != nil {
		return nil, errortypes.InternalError(err, "failed to initialize summarizer")
	}

	s := &Server{
		apiKey:    opts.APIKey,
		store:     opts.Store,
		embedder:  opts.Embedder,
		extractor: summarizer.NewFactExtractor(opts.Summarizer),
		metrics:   opts.Metrics,
		logger:    opts.Logger.With("component", "devserver"),
		now:       opts.Now,
		mux:       http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	p := memphora.APIBasePath
	s.mux.HandleFunc("GET "+p+"/health/live", s.handleHealth)
	s.mux.Handle("POST "+p+"/memories/search", s.authenticated(s.handleSearch))
	s.mux.Handle("POST "+p+"/memories", s.authenticated(s.handleStore))
	s.mux.Handle("GET "+p+"/memories", s.authenticated(s.handleList))
	s.mux.Handle("DELETE "+p+"/memories/{id}", s.authenticated(s.handleDelete))
	s.mux.Handle("POST "+p+"/conversations/extract", s.authenticated(s.handleExtract))
	s.mux.Handle("GET "+p+"/users/{user_id}/summary", s.authenticated(s.handleSummary))
}

// Handler returns the HTTP handler with request logging applied.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.mux)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errortypes.ConfigError(err, "failed to listen on "+addr)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Dev server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("Shutting down dev server")
		return srv.Shutdown(shutdownCtx)
	}
}

// authenticated rejects requests without the configured bearer token.
func (s *Server) authenticated(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.apiKey)) != 1 {
				s.metrics.IncrementCounter("devserver.unauthorized", 1)
				HandleUnauthorized(w, s.logger, "Invalid API key", errors.New("missing or invalid bearer token"))
				return
			}
		}
		next(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.metrics.IncrementCounter("devserver.requests", 1)
		s.metrics.RecordTimer("devserver.latency", time.Since(start))
		s.logger.Debug("Handled request",
			"method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}

// memoryJSON is the wire form of a stored memory.
type memoryJSON struct {
	ID         string                 `json:"id"`
	Content    string                 `json:"content"`
	Metadata   map[string]interface{} `json:"metadata"`
	Similarity *float64               `json:"similarity,omitempty"`
	CreatedAt  string                 `json:"created_at"`
}

func toJSON(rec contextstore.Record, similarity *float64) memoryJSON {
	md := rec.Metadata
	if md == nil {
		md = map[string]interface{}{}
	}
	return memoryJSON{
		ID:         rec.ID,
		Content:    rec.Content,
		Metadata:   md,
		Similarity: similarity,
		CreatedAt:  rec.CreatedAt.Format(time.RFC3339Nano),
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type searchRequest struct {
	UserID        string   `json:"user_id"`
	Query         string   `json:"query"`
	Limit         int      `json:"limit"`
	MinSimilarity *float64 `json:"min_similarity"`
}

// handleSearch responds with a bare array of ranked memories.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeBody(r, &req); err != nil {
		HandleError(w, s.logger, err)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		HandleBadRequest(w, s.logger, "query is required", nil)
		return
	}
	if req.Limit <= 0 {
		req.Limit = memphora.DefaultSearchLimit
	}
	minSim := memphora.DefaultMinSimilarity
	if req.MinSimilarity != nil {
		minSim = *req.MinSimilarity
	}

	q, err := s.embedder.CreateEmbedding(req.Query)
	if err != nil {
		HandleInternalError(w, s.logger, "failed to embed query", err)
		return
	}
	hits, err := s.store.Search(scope(req.UserID), q, req.Limit, minSim)
	if err != nil {
		HandleInternalError(w, s.logger, "search failed", err)
		return
	}

	out := make([]memoryJSON, 0, len(hits))
	for _, h := range hits {
		out = append(out, toJSON(h.Record, memphora.Float(h.Similarity)))
	}
	s.writeJSON(w, http.StatusOK, out)
}

type storeRequest struct {
	UserID   string                 `json:"user_id"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata"`
}

func (s *Server) handleStore(w http.ResponseWriter, r *http.Request) {
	var req storeRequest
	if err := decodeBody(r, &req); err != nil {
		HandleError(w, s.logger, err)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		HandleBadRequest(w, s.logger, "content is required", nil)
		return
	}

	rec, err := s.insert(scope(req.UserID), req.Content, req.Metadata)
	if err != nil {
		HandleInternalError(w, s.logger, "failed to store memory", err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toJSON(rec, nil))
}

// handleList responds with the wrapped shape.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit := memphora.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			HandleBadRequest(w, s.logger, "limit must be a positive integer", err)
			return
		}
		limit = n
	}

	recs, err := s.store.List(scope(r.URL.Query().Get("user_id")), limit)
	if err != nil {
		HandleInternalError(w, s.logger, "failed to list memories", err)
		return
	}

	out := make([]memoryJSON, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toJSON(rec, nil))
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"memories": out, "count": len(out)})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	deleted, err := s.store.Delete(scope(r.URL.Query().Get("user_id")), id)
	if err != nil {
		HandleInternalError(w, s.logger, "failed to delete memory", err)
		return
	}
	if !deleted {
		HandleError(w, s.logger, errortypes.NotFoundError("memory", id))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": true, "id": id})
}

type extractRequest struct {
	UserID       string             `json:"user_id"`
	Conversation []memphora.Message `json:"conversation"`
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := decodeBody(r, &req); err != nil {
		HandleError(w, s.logger, err)
		return
	}

	turns := make([]summarizer.Turn, 0, len(req.Conversation))
	for _, m := range req.Conversation {
		turns = append(turns, summarizer.Turn{Role: m.Role, Content: m.Content})
	}
	facts, err := s.extractor.Extract(turns)
	if err != nil {
		HandleInternalError(w, s.logger, "failed to extract memories", err)
		return
	}

	userID := scope(req.UserID)
	out := make([]memoryJSON, 0, len(facts))
	for _, fact := range facts {
		rec, err := s.insert(userID, fact, map[string]interface{}{"source": "conversation"})
		if err != nil {
			HandleInternalError(w, s.logger, "failed to store extracted memory", err)
			return
		}
		out = append(out, toJSON(rec, nil))
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"memories_extracted": len(out),
		"memories":           out,
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	stats, err := s.store.Stats(userID)
	if err != nil {
		HandleInternalError(w, s.logger, "failed to summarise memories", err)
		return
	}

	summary := map[string]interface{}{
		"user_id":        userID,
		"total_memories": stats.Total,
		"categories":     stats.Categories,
	}
	if stats.Total > 0 {
		summary["oldest_memory"] = stats.Oldest.Format(time.RFC3339Nano)
		summary["newest_memory"] = stats.Newest.Format(time.RFC3339Nano)
	}
	s.writeJSON(w, http.StatusOK, summary)
}

// insert embeds and stores content as given. Extracted facts arrive here
// already condensed by the extractor.
func (s *Server) insert(userID, content string, metadata map[string]interface{}) (contextstore.Record, error) {
	emb, err := s.embedder.CreateEmbedding(content)
	if err != nil {
		return contextstore.Record{}, fmt.Errorf("embed: %w", err)
	}
	data, err := vector.Float32SliceToBytes(emb)
	if err != nil {
		return contextstore.Record{}, err
	}

	rec := contextstore.Record{
		ID:        uuid.NewString(),
		UserID:    userID,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Insert(rec, data); err != nil {
		return contextstore.Record{}, err
	}
	s.metrics.IncrementCounter("devserver.memories.stored", 1)
	s.logger.Debug("Stored memory", "id", rec.ID, "user_id", userID)
	return rec, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}

func decodeBody(r *http.Request, v interface{}) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		return errortypes.ValidationError(err, "failed to read request body")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errortypes.ValidationError(err, "request body is not valid JSON")
	}
	return nil
}

func scope(userID string) string {
	if userID == "" {
		return memphora.DefaultUserID
	}
	return userID
}
