// Package api serves stored anomalies and process metrics over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vaibhaw-/anomr/internal/anomr/logger"
	"github.com/vaibhaw-/anomr/internal/anomr/metrics"
	"github.com/vaibhaw-/anomr/internal/anomr/model"
)

const (
	defaultLimit = 200
	maxLimit     = 1000
)

// AnomalyLister is the read side of the anomaly store.
type AnomalyLister interface {
	List(limit int) ([]model.Record, error)
	Count() (int, error)
}

type Deps struct {
	Store     AnomalyLister
	AuthToken string
}

type Config struct{ Addr string }

type Server struct {
	d Deps
	c Config
}

func NewServer(d Deps, c Config) *Server { return &Server{d: d, c: c} }

// Router returns the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) { metrics.Handler().ServeHTTP(w, r) })
	r.Get("/v1/anomalies", s.handleList)
	r.Get("/v1/anomalies/count", s.handleCount)
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.c.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.L().Infow("api listening", "addr", s.c.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.L().Infow("api shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) auth(r *http.Request) bool {
	if s.d.AuthToken == "" {
		return true
	}
	got := r.Header.Get("Authorization")
	return strings.HasPrefix(got, "Bearer ") && strings.TrimPrefix(got, "Bearer ") == s.d.AuthToken
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.L().Warnw("encode response", "err", err.Error())
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if !s.auth(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	limit := defaultLimit
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxLimit)
	}

	arr, err := s.d.Store.List(limit)
	if err != nil {
		logger.L().Errorw("list anomalies", "err", err.Error())
		http.Error(w, "store error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, arr)
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	if !s.auth(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	n, err := s.d.Store.Count()
	if err != nil {
		logger.L().Errorw("count anomalies", "err", err.Error())
		http.Error(w, "store error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]int{"count": n})
}
