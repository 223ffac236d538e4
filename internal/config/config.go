package config

import "time"

// Config is the root configuration for keeptunnel.
type Config struct {
	Tunnel TunnelConfig `yaml:"tunnel"`
	Cycle  CycleConfig  `yaml:"cycle"`
	Log    LogConfig    `yaml:"log"`
	Status StatusConfig `yaml:"status"`
}

type TunnelConfig struct {
	Port      int    `yaml:"port"`
	Proto     string `yaml:"proto"` // "http" or "tcp"
	AuthToken string `yaml:"authtoken"`
	Domain    string `yaml:"domain"`
	Region    string `yaml:"region"`
}

// CycleConfig controls how often a tunnel is recycled.
type CycleConfig struct {
	MaxAge        time.Duration `yaml:"max_age"`
	CheckInterval time.Duration `yaml:"check_interval"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// StatusConfig enables the local status endpoint when Addr is set.
type StatusConfig struct {
	Addr string `yaml:"addr"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Tunnel: TunnelConfig{
			Port:  81,
			Proto: "http",
		},
		Cycle: CycleConfig{
			MaxAge:        7 * time.Hour,
			CheckInterval: 10 * time.Minute,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
