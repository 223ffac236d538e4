package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCmd(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := execute(cmd)
	return stdout.String(), stderr.String(), err
}

func TestVersionCmd(t *testing.T) {
	t.Parallel()

	out, _, err := runCmd(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "keeptunnel dev\n", out)
}

func TestCheckCmd_ValidConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "keeptunnel.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tunnel:\n  port: 8080\n"), 0644))

	out, _, err := runCmd(t, "check", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "configuration is valid")
}

func TestCheckCmd_InvalidConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "keeptunnel.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tunnel:\n  proto: \"udp\"\n"), 0644))

	_, errOut, err := runCmd(t, "check", "--config", path)
	require.Error(t, err)
	assert.Contains(t, errOut, "configuration error")
	assert.Contains(t, errOut, "proto")
}

func TestRootCmd_UnknownCommandIsReported(t *testing.T) {
	t.Parallel()

	out, errOut, err := runCmd(t, "frobnicate")
	require.Error(t, err)
	assert.Empty(t, out)
	assert.Contains(t, errOut, "frobnicate")
	assert.Contains(t, errOut, "--help")
}

func TestRootCmd_UnknownFlagIsReported(t *testing.T) {
	t.Parallel()

	_, errOut, err := runCmd(t, "--bogus")
	require.Error(t, err)
	assert.Contains(t, errOut, "unknown flag: --bogus")
}

func TestRootCmd_MissingTokenIsFatal(t *testing.T) {
	t.Setenv("KEEPTUNNEL_NGROK_AUTHTOKEN", "")
	t.Setenv("NGROK_AUTHTOKEN", "")

	path := filepath.Join(t.TempDir(), "keeptunnel.yaml")
	content := "tunnel:\n  port: 8080\nlog:\n  level: \"error\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, errOut, err := runCmd(t, "--config", path)
	require.Error(t, err, "the loop must stop instead of retrying")
	assert.Contains(t, err.Error(), "opening tunnel to port 8080")
	assert.Contains(t, err.Error(), "auth token is required")
	assert.Contains(t, errOut, "auth token is required")
}
