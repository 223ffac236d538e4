package tunnel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNgrok_DefaultsToHTTP(t *testing.T) {
	t.Parallel()

	tun := NewNgrok(Options{AuthToken: "test-token"})

	assert.Equal(t, "test-token", tun.opts.AuthToken)
	assert.Equal(t, "http", tun.opts.Proto)
	assert.Empty(t, tun.opts.Domain)
}

func TestNewNgrok_KeepsTCP(t *testing.T) {
	t.Parallel()

	tun := NewNgrok(Options{AuthToken: "test-token", Proto: "tcp", Region: "eu"})

	assert.Equal(t, "tcp", tun.opts.Proto)
	assert.Equal(t, "eu", tun.opts.Region)
}

func TestNgrok_Connect_RequiresAuthToken(t *testing.T) {
	t.Parallel()

	tun := NewNgrok(Options{})

	_, err := tun.Connect(context.Background(), 81)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth token is required")
}

func TestNgrok_Connect_RejectsInvalidPort(t *testing.T) {
	t.Parallel()

	tun := NewNgrok(Options{AuthToken: "test-token"})

	_, err := tun.Connect(context.Background(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port")
}

func TestNgrok_List_BeforeConnect(t *testing.T) {
	t.Parallel()

	tun := NewNgrok(Options{AuthToken: "test-token"})

	list, err := tun.List(context.Background())
	assert.ErrorIs(t, err, ErrClientNotRunning)
	assert.Empty(t, list)
}

func TestNgrok_Disconnect_BeforeConnect(t *testing.T) {
	t.Parallel()

	tun := NewNgrok(Options{AuthToken: "test-token"})

	err := tun.Disconnect(context.Background(), "https://abcd1234.example.tunnel")
	assert.ErrorIs(t, err, ErrClientNotRunning)
}

func TestNgrok_Shutdown_BeforeConnect(t *testing.T) {
	t.Parallel()

	tun := NewNgrok(Options{AuthToken: "test-token"})

	err := tun.Shutdown(context.Background())
	assert.ErrorIs(t, err, ErrClientNotRunning)
}

func TestBackendURL(t *testing.T) {
	t.Parallel()

	u, err := backendURL("http", 81)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:81", u.String())

	u, err = backendURL("tcp", 5432)
	require.NoError(t, err)
	assert.Equal(t, "tcp://localhost:5432", u.String())

	_, err = backendURL("udp", 81)
	assert.Error(t, err)

	_, err = backendURL("http", 70000)
	assert.Error(t, err)
}

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://abcd.ngrok.app", normalizeURL("abcd.ngrok.app"))
	assert.Equal(t, "https://abcd.ngrok.app", normalizeURL("https://abcd.ngrok.app"))
	assert.Equal(t, "tcp://0.tcp.ngrok.io:12345", normalizeURL("tcp://0.tcp.ngrok.io:12345"))
}

// Real ngrok sessions need a valid token and network access; they are not
// exercised here. The lifecycle package tests the loop against a fake Provider.
