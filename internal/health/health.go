// Package health is the liveness HTTP endpoint spec.md's supplemented
// features call for (SPEC_FULL.md §3), reporting the last level indexed
// per contract. Grounded on original_source/src/health.rs's bare
// `warp::path::end()` 200-OK endpoint, extended with a JSON body the way
// the teacher's internal/api package reports status, and routed with the
// same gorilla/mux the teacher uses throughout internal/api.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Status is the mutex-guarded shared state the HTTP handler reads and the
// pipeline writes to as it finishes each block.
type Status struct {
	mu     sync.Mutex
	levels map[string]int32
}

func NewStatus() *Status {
	return &Status{levels: make(map[string]int32)}
}

// SetLevel records the last level successfully committed for contract.
func (s *Status) SetLevel(contract string, level int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.levels[contract] = level
}

// Snapshot returns a copy of the current per-contract levels.
func (s *Status) Snapshot() map[string]int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int32, len(s.levels))
	for k, v := range s.levels {
		out[k] = v
	}
	return out
}

// Server serves the liveness endpoint on its own *http.Server.
type Server struct {
	log    *zap.Logger
	status *Status
	srv    *http.Server
}

func NewServer(log *zap.Logger, addr string, status *Status) *Server {
	r := mux.NewRouter()
	s := &Server{log: log, status: status}
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	s.srv = &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	return s
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"levels": s.status.Snapshot(),
	})
}

// Run starts the server and blocks until ctx is cancelled, then shuts it
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("spawning the health api", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
