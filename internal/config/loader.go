package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// searchPaths lists config files from lowest to highest precedence.
func searchPaths() []string {
	paths := []string{
		"/etc/keeptunnel/keeptunnel.yaml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "keeptunnel", "keeptunnel.yaml"))
	}

	paths = append(paths, "keeptunnel.yaml")

	if envPath := os.Getenv("KEEPTUNNEL_CONFIG"); envPath != "" {
		paths = append(paths, envPath)
	}

	return paths
}

// Load layers every config file found on the search path over Defaults,
// then applies the token environment variables. Missing files are skipped.
func Load() (*Config, error) {
	cfg := Defaults()

	for _, path := range searchPaths() {
		if err := loadFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config %s: %w", path, err)
		}
	}

	return finish(cfg)
}

// LoadFromFile is Load restricted to a single file, as given by --config.
func LoadFromFile(path string) (*Config, error) {
	cfg := Defaults()

	if err := loadFile(cfg, path); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}

	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// KEEPTUNNEL_NGROK_AUTHTOKEN wins over the YAML value; NGROK_AUTHTOKEN only fills a gap.
func applyEnvOverrides(cfg *Config) {
	if token := os.Getenv("KEEPTUNNEL_NGROK_AUTHTOKEN"); token != "" {
		cfg.Tunnel.AuthToken = token
		return
	}
	if cfg.Tunnel.AuthToken == "" {
		cfg.Tunnel.AuthToken = os.Getenv("NGROK_AUTHTOKEN")
	}
}

// loadFile merges one YAML file into cfg after ${VAR} expansion.
func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from trusted config search paths
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	slog.Debug("loading config file", "path", path)

	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	return nil
}

// ExpandHome resolves a leading ~ against $HOME; other paths pass through.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

func validate(cfg *Config) error {
	if cfg.Tunnel.Port < 1 || cfg.Tunnel.Port > 65535 {
		return fmt.Errorf("tunnel.port must be between 1 and 65535, got %d", cfg.Tunnel.Port)
	}

	switch cfg.Tunnel.Proto {
	case "http", "tcp":
	default:
		return fmt.Errorf("tunnel.proto must be http or tcp, got %q", cfg.Tunnel.Proto)
	}

	if cfg.Tunnel.Domain != "" && cfg.Tunnel.Proto != "http" {
		return fmt.Errorf("tunnel.domain is only supported for http tunnels")
	}

	if cfg.Cycle.CheckInterval <= 0 {
		return fmt.Errorf("cycle.check_interval must be positive")
	}

	if cfg.Cycle.MaxAge < cfg.Cycle.CheckInterval {
		return fmt.Errorf("cycle.max_age (%s) must not be shorter than cycle.check_interval (%s)",
			cfg.Cycle.MaxAge, cfg.Cycle.CheckInterval)
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", cfg.Log.Level)
	}

	if cfg.Status.Addr != "" {
		host, _, err := net.SplitHostPort(cfg.Status.Addr)
		if err != nil {
			return fmt.Errorf("status.addr: %w", err)
		}
		if ip := net.ParseIP(host); host != "localhost" && (ip == nil || !ip.IsLoopback()) {
			return fmt.Errorf("status.addr must be a loopback address, got %s", cfg.Status.Addr)
		}
	}

	cfg.Log.File = ExpandHome(cfg.Log.File)

	return nil
}
