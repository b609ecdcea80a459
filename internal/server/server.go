package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"lasttrips/internal/report"
)

// Server is the status server for a running evaluation.
type Server struct {
	mux    *http.ServeMux
	board  *report.Board
	logger *slog.Logger
	srv    *http.Server
}

// New creates a Server with all routes registered. metrics may be nil.
func New(addr string, board *report.Board, metrics http.Handler, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	s := &Server{mux: mux, board: board, logger: logger}

	mux.HandleFunc("GET /healthz", s.healthz)
	mux.HandleFunc("GET /report", s.report)
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/report", http.StatusSeeOther)
	})
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           withMiddleware(mux, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	go func() {
		s.logger.Info("status server starting", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status server failed", "error", err)
		}
	}()
}

// Shutdown stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok\n"))
}

func (s *Server) report(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := report.Report(s.board.Page()).Render(r.Context(), w); err != nil {
		s.logger.Error("render report", "error", err)
	}
}
