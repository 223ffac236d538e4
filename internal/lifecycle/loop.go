package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/btouchard/keeptunnel/internal/tunnel"
)

const (
	separator     = "----------------------------"
	restartNotice = "\tRestarting server\n\n\n\n"

	// shutdownTimeout bounds the teardown run after the context is cancelled.
	shutdownTimeout = 5 * time.Second
)

var errNoActiveTunnel = errors.New("no active tunnel")

// Options configures a Loop. Zero values fall back to the defaults below.
type Options struct {
	Port          int
	MaxAge        time.Duration // default 7h
	CheckInterval time.Duration // default 10m
	Clock         Clock         // default SystemClock
	Out           io.Writer     // default os.Stdout
}

// Loop keeps one public tunnel to a local port alive, replacing it before it
// reaches MaxAge.
type Loop struct {
	provider tunnel.Provider
	port     int
	maxAge   time.Duration
	interval time.Duration
	clock    Clock
	out      io.Writer

	mu      sync.RWMutex
	state   State
	cycle   int
	session *Session
}

// New creates a Loop that opens tunnels through provider.
func New(provider tunnel.Provider, opts Options) *Loop {
	if opts.MaxAge <= 0 {
		opts.MaxAge = 7 * time.Hour
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = 10 * time.Minute
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	return &Loop{
		provider: provider,
		port:     opts.Port,
		maxAge:   opts.MaxAge,
		interval: opts.CheckInterval,
		clock:    opts.Clock,
		out:      opts.Out,
		state:    StateConnecting,
	}
}

// Run connects, announces, waits and recycles until ctx is cancelled.
// A failure to open a tunnel is returned as is: there is no retry, the
// caller is expected to exit and leave restarts to its supervisor.
// Cancellation triggers one bounded best-effort teardown and returns nil.
func (l *Loop) Run(ctx context.Context) error {
	defer l.setState(StateStopped)

	for {
		l.beginCycle()

		desc, err := l.provider.Connect(ctx, l.port)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("opening tunnel to port %d: %w", l.port, err)
		}

		l.announce(desc.PublicURL)

		sess := &Session{
			ID:        uuid.NewString(),
			PublicURL: desc.PublicURL,
			StartedAt: l.clock.Now(),
		}
		l.setSession(sess)
		l.setState(StateWaiting)

		slog.Info("tunnel up",
			"session_id", sess.ID,
			"public_url", sess.PublicURL,
			"port", l.port,
			"recycle_after", l.maxAge.String())

		expired := l.waitForRecycle(ctx, sess.StartedAt)

		l.setState(StateRecycling)
		if !expired {
			l.shutdown(sess)
			return nil
		}

		// Teardown errors never stop the loop.
		if err := l.teardown(ctx); err != nil {
			slog.Debug("teardown failed", "session_id", sess.ID, "error", err)
		}
		l.setSession(nil)

		_, _ = io.WriteString(l.out, restartNotice)
		slog.Info("tunnel recycled", "session_id", sess.ID, "age", l.clock.Now().Sub(sess.StartedAt).String())
	}
}

func (l *Loop) shutdown(sess *Session) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := l.teardown(ctx); err != nil {
		slog.Debug("teardown on shutdown failed", "session_id", sess.ID, "error", err)
	}
	l.setSession(nil)
}

// waitForRecycle sleeps one interval at a time until the session is at least
// maxAge old. It returns false if ctx is cancelled first.
func (l *Loop) waitForRecycle(ctx context.Context, startedAt time.Time) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case <-l.clock.After(l.interval):
		}

		if l.clock.Now().Sub(startedAt) >= l.maxAge {
			return true
		}
	}
}

// teardown closes the oldest active tunnel and stops the provider client.
func (l *Loop) teardown(ctx context.Context) error {
	tunnels, err := l.provider.List(ctx)
	if err != nil {
		return fmt.Errorf("listing tunnels: %w", err)
	}
	if len(tunnels) == 0 {
		return errNoActiveTunnel
	}

	if err := l.provider.Disconnect(ctx, tunnels[0].PublicURL); err != nil {
		return fmt.Errorf("disconnecting %s: %w", tunnels[0].PublicURL, err)
	}

	if err := l.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down client: %w", err)
	}

	return nil
}

func (l *Loop) announce(publicURL string) {
	_, _ = fmt.Fprintf(l.out, "\n\t%s\n\n\t%s\n\n\t%s\n", separator, publicURL, separator)
	l.setState(StateAnnounced)
}

// Snapshot returns the current state, cycle number and session.
func (l *Loop) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	snap := Snapshot{State: l.state, Cycle: l.cycle}
	if l.session != nil {
		s := *l.session
		snap.Session = &s
	}
	return snap
}

func (l *Loop) beginCycle() {
	l.mu.Lock()
	l.cycle++
	l.state = StateConnecting
	l.mu.Unlock()
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

func (l *Loop) setSession(s *Session) {
	l.mu.Lock()
	l.session = s
	l.mu.Unlock()
}
