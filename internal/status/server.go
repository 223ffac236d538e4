package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/btouchard/keeptunnel/internal/lifecycle"
)

// Source supplies the loop state served by the status endpoint.
type Source interface {
	Snapshot() lifecycle.Snapshot
}

type sessionView struct {
	ID        string    `json:"id"`
	PublicURL string    `json:"public_url"`
	StartedAt time.Time `json:"started_at"`
	Age       string    `json:"age"`
}

type snapshotView struct {
	State   lifecycle.State `json:"state"`
	Cycle   int             `json:"cycle"`
	Session *sessionView    `json:"session"`
}

// NewRouter builds the read-only status routes.
func NewRouter(src Source, now func() time.Time) http.Handler {
	r := chi.NewRouter()
	r.Use(SecurityHeaders)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/session", func(w http.ResponseWriter, r *http.Request) {
		snap := src.Snapshot()

		view := snapshotView{State: snap.State, Cycle: snap.Cycle}
		if s := snap.Session; s != nil {
			view.Session = &sessionView{
				ID:        s.ID,
				PublicURL: s.PublicURL,
				StartedAt: s.StartedAt.UTC(),
				Age:       now().Sub(s.StartedAt).Truncate(time.Second).String(),
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(view); err != nil {
			slog.Warn("failed to write status response", "error", err)
		}
	})

	return r
}

// SecurityHeaders sets conservative response headers on every route.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// Serve listens on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("status listener: %w", err)
	}

	srv := &http.Server{
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("status endpoint ready", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("status server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
