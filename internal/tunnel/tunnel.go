package tunnel

import (
	"context"
	"errors"
)

var (
	// ErrClientNotRunning is returned when the provider has no live agent session.
	ErrClientNotRunning = errors.New("tunnel client is not running")
	// ErrTunnelNotFound is returned by Disconnect for an unknown public URL.
	ErrTunnelNotFound = errors.New("tunnel not found")
)

// Descriptor is the full description of an open tunnel.
type Descriptor struct {
	ID         string
	PublicURL  string
	Proto      string
	ForwardsTo string
}

// Provider brokers public tunnels to local ports.
type Provider interface {
	// Connect opens a tunnel to the local port and returns its full descriptor.
	Connect(ctx context.Context, port int) (Descriptor, error)
	// List returns the active tunnels, oldest first.
	List(ctx context.Context) ([]Descriptor, error)
	// Disconnect closes the tunnel serving publicURL.
	Disconnect(ctx context.Context, publicURL string) error
	// Shutdown closes every tunnel and stops the client.
	Shutdown(ctx context.Context) error
}
