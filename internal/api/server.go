// Package api exposes the protocol-agnostic operation surface of spec
// §6.1 over plain JSON-over-HTTP: every handler does nothing but decode
// a request, route it through C12, call the matching C6/C7/C11
// operation, and encode the result. No third-party router appears
// anywhere in the reference corpus, so this is built on net/http's own
// ServeMux rather than importing one (see DESIGN.md).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/vectorizer-project/vectorizer/internal/collection"
	"github.com/vectorizer-project/vectorizer/internal/config"
	"github.com/vectorizer-project/vectorizer/internal/hnsw"
	"github.com/vectorizer-project/vectorizer/internal/router"
	"github.com/vectorizer-project/vectorizer/internal/search"
	"github.com/vectorizer-project/vectorizer/internal/store"
	"github.com/vectorizer-project/vectorizer/internal/verrors"
)

// Server wires C7 (collection registry), C11 (search pipeline) and C12
// (router) into HTTP handlers for the logical operation surface.
type Server struct {
	store    *store.Store
	pipeline *search.Pipeline
	router   *router.Router
	defaults config.CollectionDefaults
	mux      *http.ServeMux
}

// New builds a Server and registers its routes. defaults fills in
// whatever a create_collection request omits (spec §10.3).
func New(st *store.Store, pipeline *search.Pipeline, rt *router.Router, defaults config.CollectionDefaults) *Server {
	s := &Server{store: st, pipeline: pipeline, router: rt, defaults: defaults, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.HandleFunc("POST /collections", s.handleCreateCollection)
	s.mux.HandleFunc("GET /collections", s.handleListCollections)
	s.mux.HandleFunc("GET /collections/{name}", s.handleGetCollection)
	s.mux.HandleFunc("DELETE /collections/{name}", s.handleDeleteCollection)
	s.mux.HandleFunc("POST /collections/cleanup_empty", s.handleCleanupEmpty)

	s.mux.HandleFunc("POST /collections/{name}/points", s.handleInsert)
	s.mux.HandleFunc("POST /collections/{name}/points/batch", s.handleBatchInsert)
	s.mux.HandleFunc("GET /collections/{name}/points/{id}", s.handleGetPoint)
	s.mux.HandleFunc("PATCH /collections/{name}/points/{id}", s.handleUpdatePoint)
	s.mux.HandleFunc("DELETE /collections/{name}/points/{id}", s.handleDeletePoint)
	s.mux.HandleFunc("GET /collections/{name}/points", s.handleListPoints)

	s.mux.HandleFunc("POST /search", s.handleSearch)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createCollectionRequest struct {
	Name   string `json:"name"`
	Dim    int    `json:"dim"`
	Metric string `json:"metric"`
}

func (s *Server) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	var req createCollectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, err := s.route("create_collection", router.CollectionKey(req.Name)); err != nil {
		writeError(w, err)
		return
	}
	cfg := collection.Config{
		Name:   req.Name,
		Dim:    s.defaults.Dim,
		Metric: s.defaults.Metric,
		HNSW: hnsw.Config{
			M:              s.defaults.HNSWM,
			EfConstruction: s.defaults.EfConstruction,
			EfSearch:       s.defaults.EfSearch,
			Seed:           s.defaults.Seed,
			Metric:         s.defaults.Metric,
		},
		Quantization: s.defaults.Quantization,
		Storage:      s.defaults.Storage,
	}
	if req.Dim > 0 {
		cfg.Dim = req.Dim
		cfg.HNSW.Metric = cfg.Metric
	}
	if m, ok := parseMetric(req.Metric); ok {
		cfg.Metric = m
		cfg.HNSW.Metric = m
	}
	c, err := s.store.CreateCollection(cfg)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, statsToInfo(req.Name, c.Stats()))
}

func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	if _, err := s.route("list", ""); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.store.List())
}

func (s *Server) handleGetCollection(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if _, err := s.route("get", router.CollectionKey(name)); err != nil {
		writeError(w, err)
		return
	}
	c, err := s.store.Get(name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statsToInfo(name, c.Stats()))
}

func (s *Server) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if _, err := s.route("drop", router.CollectionKey(name)); err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.DropCollection(name); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCleanupEmpty(w http.ResponseWriter, r *http.Request) {
	dryRun := r.URL.Query().Get("dry_run") == "true"
	if _, err := s.route("cleanup_empty", ""); err != nil {
		writeError(w, err)
		return
	}
	report, err := s.store.CleanupEmpty(r.Context(), dryRun)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type pointRequest struct {
	ID      string         `json:"id"`
	Dense   []float32      `json:"dense"`
	Payload map[string]any `json:"payload"`
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req pointRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	c, err := s.resolveForWrite(name)
	if err != nil {
		writeError(w, err)
		return
	}
	v := collection.Vector{ID: req.ID, Dense: req.Dense, Payload: req.Payload}
	if err := c.Insert(r.Context(), v); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": req.ID})
}

func (s *Server) handleBatchInsert(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req struct {
		Items []pointRequest `json:"items"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := s.resolveForWrite(name)
	if err != nil {
		writeError(w, err)
		return
	}
	items := make([]collection.Vector, len(req.Items))
	for i, it := range req.Items {
		id := it.ID
		if id == "" {
			id = uuid.NewString()
		}
		items[i] = collection.Vector{ID: id, Dense: it.Dense, Payload: it.Payload}
	}
	statuses := c.BatchInsert(r.Context(), items)
	writeJSON(w, http.StatusOK, statusesToJSON(statuses))
}

func (s *Server) handleGetPoint(w http.ResponseWriter, r *http.Request) {
	name, id := r.PathValue("name"), r.PathValue("id")
	if _, err := s.route("get", router.PointKey(name, id)); err != nil {
		writeError(w, err)
		return
	}
	c, err := s.store.Get(name)
	if err != nil {
		writeError(w, err)
		return
	}
	v, err := c.Get(r.Context(), id, true, true)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleUpdatePoint(w http.ResponseWriter, r *http.Request) {
	name, id := r.PathValue("name"), r.PathValue("id")
	var req pointRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := s.resolveForWrite(name)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := c.Update(r.Context(), id, req.Dense, req.Payload); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeletePoint(w http.ResponseWriter, r *http.Request) {
	name, id := r.PathValue("name"), r.PathValue("id")
	c, err := s.resolveForWrite(name)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := c.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListPoints(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	limit, offset := intParam(r, "limit", 100), intParam(r, "offset", 0)
	if _, err := s.route("list", router.CollectionKey(name)); err != nil {
		writeError(w, err)
		return
	}
	c, err := s.store.Get(name)
	if err != nil {
		writeError(w, err)
		return
	}
	items, err := c.List(r.Context(), limit, offset, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

type searchRequest struct {
	Text        string   `json:"text"`
	Collections []string `json:"collections"`
	K           int      `json:"k"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Collections) == 0 {
		writeError(w, verrors.New(verrors.ErrCodeInvalidQuery, "search requires at least one collection", nil))
		return
	}
	for _, coll := range req.Collections {
		if _, err := s.route("search", router.CollectionKey(coll)); err != nil {
			writeError(w, err)
			return
		}
	}
	k := req.K
	if k <= 0 {
		k = 20
	}
	result, err := s.pipeline.Search(r.Context(), search.Query{
		Text:        req.Text,
		Collections: req.Collections,
		K:           k,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// route classifies operation and resolves it through C12, returning an
// error if the current topology refuses to serve this node for it
// (e.g. a write landing on a read-only replica).
func (s *Server) route(operation, key string) (router.Decision, error) {
	if s.router == nil {
		return router.Decision{Target: "local", Shard: -1}, nil
	}
	return s.router.Route(operation, key, "")
}

// resolveForWrite is the common path every point-mutation handler uses:
// classify, route, then fetch the live collection handle.
func (s *Server) resolveForWrite(name string) (*collection.Collection, error) {
	if _, err := s.route("insert", router.CollectionKey(name)); err != nil {
		return nil, err
	}
	return s.store.Get(name)
}

func parseMetric(s string) (config.Metric, bool) {
	switch config.Metric(s) {
	case config.MetricCosine, config.MetricEuclidean, config.MetricDotProduct:
		return config.Metric(s), true
	default:
		return "", false
	}
}

func statsToInfo(name string, stats collection.Stats) map[string]any {
	return map[string]any{
		"name":          name,
		"vector_count":  stats.VectorCount,
		"tombstones":    stats.Tombstones,
		"last_modified": stats.LastModified,
	}
}

func statusesToJSON(statuses []collection.ItemStatus) map[string]any {
	var succeeded []string
	type failure struct {
		ID     string `json:"id"`
		Detail string `json:"detail"`
	}
	var failed []failure
	for _, st := range statuses {
		if st.Err == nil {
			succeeded = append(succeeded, st.ID)
		} else {
			failed = append(failed, failure{ID: st.ID, Detail: st.Err.Error()})
		}
	}
	return map[string]any{"succeeded": succeeded, "failed": failed}
}

func intParam(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return def
	}
	return n
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil {
		return true
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		writeError(w, verrors.New(verrors.ErrCodeInvalidInput, "malformed JSON body", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("api: encode response failed", slog.String("error", err.Error()))
	}
}

type errorEnvelope struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

func writeError(w http.ResponseWriter, err error) {
	requestID := uuid.NewString()

	var verr *verrors.VectorizerError
	if errors.As(err, &verr) {
		writeJSON(w, statusForCategory(verr.Category), errorEnvelope{
			Kind:      string(verr.Category),
			Message:   verr.Message,
			RequestID: requestID,
		})
		return
	}
	writeJSON(w, http.StatusInternalServerError, errorEnvelope{
		Kind:      "Internal",
		Message:   err.Error(),
		RequestID: requestID,
	})
}

func statusForCategory(cat verrors.Category) int {
	switch cat {
	case verrors.CategoryValidation:
		return http.StatusBadRequest
	case verrors.CategoryNotFound:
		return http.StatusNotFound
	case verrors.CategoryConflict:
		return http.StatusConflict
	case verrors.CategoryQuota:
		return http.StatusTooManyRequests
	case verrors.CategoryTransient:
		return http.StatusServiceUnavailable
	case verrors.CategoryCancelled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// Serve runs the HTTP server until ctx is cancelled, then shuts down
// gracefully within a bounded timeout.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("api: listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("api: shutdown: %w", err)
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}
