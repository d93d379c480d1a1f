// Package server exposes the mirrored data over a read-only HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/elonfeng/hnmirror/internal/mirror"
	"github.com/elonfeng/hnmirror/pkg/feed"
	"github.com/elonfeng/hnmirror/pkg/trend"
)

const (
	defaultMoversLimit = 10
	maxMoversLimit     = 100
)

// Reader is the slice of the store the API reads from.
type Reader interface {
	LoadItem(ctx context.Context, id int64) (feed.Item, error)
	LoadItems(ctx context.Context, ids []int64) ([]feed.Item, error)
	LoadList(ctx context.Context, category feed.Category) (*feed.ListSnapshot, error)
	LoadItemRanks(ctx context.Context, id int64, category feed.Category) ([]feed.RankRecord, error)
	CountItemsByKind(ctx context.Context) (map[feed.Kind]int, error)
	LoadConfig(ctx context.Context, key string) ([]byte, bool, error)
}

// Server provides the HTTP API.
type Server struct {
	store   Reader
	movers  *trend.Engine
	metrics http.Handler
	addr    string
}

// Option configures a Server.
type Option func(*Server)

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// New creates a new HTTP server.
func New(s Reader, movers *trend.Engine, addr string, opts ...Option) *Server {
	if addr == "" {
		addr = ":8080"
	}
	srv := &Server{
		store:  s,
		movers: movers,
		addr:   addr,
	}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

// Handler returns the router with every route mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/lists/{category}", s.handleList)
		r.Get("/items/{id}", s.handleItem)
		r.Get("/items/{id}/ranks", s.handleItemRanks)
		r.Get("/movers/{category}", s.handleMovers)
		r.Get("/stats", s.handleStats)
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", s.addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	category, ok := categoryParam(w, r)
	if !ok {
		return
	}

	snap, err := s.store.LoadList(r.Context(), category)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if snap == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "list not mirrored yet"})
		return
	}

	items, err := s.store.LoadItems(r.Context(), snap.IDs)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	encoded, err := encodeItems(items)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"category":   snap.Category,
		"ids":        snap.IDs,
		"updated_at": snap.UpdatedAt,
		"items":      encoded,
		"count":      len(encoded),
	})
}

func (s *Server) handleItem(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	it, err := s.store.LoadItem(r.Context(), id)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if it == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "item not found"})
		return
	}

	data, err := feed.EncodeItem(it)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, json.RawMessage(data))
}

func (s *Server) handleItemRanks(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	category := feed.CategoryTop
	if v := r.URL.Query().Get("category"); v != "" {
		c, err := feed.ParseCategory(v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err)
			return
		}
		category = c
	}

	ranks, err := s.store.LoadItemRanks(r.Context(), id, category)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  ranks,
		"count": len(ranks),
	})
}

func (s *Server) handleMovers(w http.ResponseWriter, r *http.Request) {
	category, ok := categoryParam(w, r)
	if !ok {
		return
	}

	limit := defaultMoversLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxMoversLimit)
	}

	movers, err := s.movers.Movers(r.Context(), category, limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  movers,
		"count": len(movers),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	counts, err := s.store.CountItemsByKind(ctx)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	cursor, err := mirror.Cursor(ctx, s.store)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	lists := make(map[feed.Category]int)
	for _, c := range feed.AllCategories() {
		snap, err := s.store.LoadList(ctx, c)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, err)
			return
		}
		if snap != nil {
			lists[c] = len(snap.IDs)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items":           counts,
		"lists":           lists,
		"backfill_cursor": cursor,
	})
}

func categoryParam(w http.ResponseWriter, r *http.Request) (feed.Category, bool) {
	c, err := feed.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return "", false
	}
	return c, true
}

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid item id"})
		return 0, false
	}
	return id, true
}

func encodeItems(items []feed.Item) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(items))
	for _, it := range items {
		data, err := feed.EncodeItem(it)
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, nil
}

// writeError reports err to the client. Server-side causes are logged and
// replaced by the status text.
func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		msg = http.StatusText(status)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
