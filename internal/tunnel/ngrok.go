package tunnel

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/samber/oops"
	ngroklib "golang.ngrok.com/ngrok"
	ngrokconfig "golang.ngrok.com/ngrok/config"
)

// Options configures an Ngrok provider.
type Options struct {
	AuthToken string
	Proto     string // "http" (default) or "tcp"
	Domain    string // fixed domain, http only
	Region    string
}

// Ngrok implements Provider on top of the ngrok agent SDK. The agent session
// is opened lazily by Connect and torn down by Shutdown.
type Ngrok struct {
	opts Options

	mu         sync.Mutex
	session    ngroklib.Session
	forwarders []ngroklib.Forwarder
}

// NewNgrok creates an ngrok provider. No network activity happens until Connect.
func NewNgrok(opts Options) *Ngrok {
	if opts.Proto == "" {
		opts.Proto = "http"
	}
	return &Ngrok{opts: opts}
}

// Connect opens a tunnel forwarding to localhost:port, starting the agent
// session first if needed.
func (n *Ngrok) Connect(ctx context.Context, port int) (Descriptor, error) {
	errb := oops.In("tunnel").With("port", port, "proto", n.opts.Proto)

	if n.opts.AuthToken == "" {
		return Descriptor{}, errb.Errorf("ngrok auth token is required (set tunnel.authtoken in config or NGROK_AUTHTOKEN env var)")
	}

	backend, err := backendURL(n.opts.Proto, port)
	if err != nil {
		return Descriptor{}, errb.Wrap(err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.session == nil {
		slog.Info("starting ngrok session", "region", n.opts.Region)

		connectOpts := []ngroklib.ConnectOption{ngroklib.WithAuthtoken(n.opts.AuthToken)}
		if n.opts.Region != "" {
			connectOpts = append(connectOpts, ngroklib.WithRegion(n.opts.Region))
		}

		sess, err := ngroklib.Connect(ctx, connectOpts...)
		if err != nil {
			return Descriptor{}, errb.Wrapf(err, "failed to start ngrok session")
		}
		n.session = sess
	}

	fwd, err := n.session.ListenAndForward(ctx, backend, n.tunnelConfig(backend))
	if err != nil {
		return Descriptor{}, errb.With("backend", backend.String()).Wrapf(err, "failed to create ngrok tunnel")
	}
	n.forwarders = append(n.forwarders, fwd)

	d := describe(fwd)
	slog.Info("ngrok tunnel established", "tunnel_id", d.ID, "public_url", d.PublicURL, "forwards_to", d.ForwardsTo)

	return d, nil
}

func (n *Ngrok) tunnelConfig(backend *url.URL) ngrokconfig.Tunnel {
	if n.opts.Proto == "tcp" {
		return ngrokconfig.TCPEndpoint(ngrokconfig.WithForwardsTo(backend.Host))
	}

	opts := []ngrokconfig.HTTPEndpointOption{ngrokconfig.WithForwardsTo(backend.Host)}
	if n.opts.Domain != "" {
		// Fixed domain (paid plans)
		opts = append(opts, ngrokconfig.WithDomain(n.opts.Domain))
	}
	return ngrokconfig.HTTPEndpoint(opts...)
}

// List returns descriptors for the open tunnels in the order they were created.
func (n *Ngrok) List(_ context.Context) ([]Descriptor, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.session == nil {
		return nil, oops.In("tunnel").Wrap(ErrClientNotRunning)
	}

	out := make([]Descriptor, 0, len(n.forwarders))
	for _, fwd := range n.forwarders {
		out = append(out, describe(fwd))
	}
	return out, nil
}

// Disconnect closes the tunnel whose public URL matches publicURL.
func (n *Ngrok) Disconnect(ctx context.Context, publicURL string) error {
	errb := oops.In("tunnel").With("public_url", publicURL)

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.session == nil {
		return errb.Wrap(ErrClientNotRunning)
	}

	for i, fwd := range n.forwarders {
		if normalizeURL(fwd.URL()) != publicURL {
			continue
		}

		slog.Info("closing ngrok tunnel", "tunnel_id", fwd.ID(), "public_url", publicURL)

		n.forwarders = append(n.forwarders[:i], n.forwarders[i+1:]...)
		if err := fwd.CloseWithContext(ctx); err != nil {
			return errb.Wrapf(err, "failed to close ngrok tunnel")
		}
		return nil
	}

	return errb.Wrap(ErrTunnelNotFound)
}

// Shutdown closes any remaining tunnels and the agent session. A later
// Connect starts a fresh session.
func (n *Ngrok) Shutdown(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.session == nil {
		return oops.In("tunnel").Wrap(ErrClientNotRunning)
	}

	slog.Info("stopping ngrok session", "open_tunnels", len(n.forwarders))

	var firstErr error
	for _, fwd := range n.forwarders {
		if err := fwd.CloseWithContext(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	n.forwarders = nil

	if err := n.session.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	n.session = nil

	if firstErr != nil {
		return oops.In("tunnel").Wrapf(firstErr, "failed to stop ngrok session")
	}
	return nil
}

func describe(fwd ngroklib.Forwarder) Descriptor {
	return Descriptor{
		ID:         fwd.ID(),
		PublicURL:  normalizeURL(fwd.URL()),
		Proto:      fwd.Proto(),
		ForwardsTo: fwd.ForwardsTo(),
	}
}

func backendURL(proto string, port int) (*url.URL, error) {
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	switch proto {
	case "http":
		return &url.URL{Scheme: "http", Host: fmt.Sprintf("localhost:%d", port)}, nil
	case "tcp":
		return &url.URL{Scheme: "tcp", Host: fmt.Sprintf("localhost:%d", port)}, nil
	default:
		return nil, fmt.Errorf("unsupported tunnel proto %q", proto)
	}
}

// normalizeURL makes sure the public URL carries a scheme.
func normalizeURL(addr string) string {
	if strings.Contains(addr, "://") {
		return addr
	}
	return "https://" + addr
}
