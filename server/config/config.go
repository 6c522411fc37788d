// Package config loads server settings from an optional YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full server configuration.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `yaml:"addr"`
	// RedisAddr enables the pub/sub backplane when non-empty.
	RedisAddr string `yaml:"redis_addr"`
	// DatabaseURL enables the session metadata store when non-empty.
	DatabaseURL string `yaml:"database_url"`
	// SessionLinger is how long empty sessions survive before reaping.
	SessionLinger time.Duration `yaml:"session_linger"`
	// MDNS registers the server over mDNS so agents can discover it.
	MDNS bool `yaml:"mdns"`
	// MDNSPort is the port advertised over mDNS.
	MDNSPort int `yaml:"mdns_port"`
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		Addr:          ":8000",
		SessionLinger: 5 * time.Minute,
		MDNS:          false,
		MDNSPort:      8000,
	}
}

// Load reads path (if non-empty) over the defaults, then applies env
// overrides: SYNCOUT_ADDR, REDIS_ADDR, DATABASE_URL, SYNCOUT_SESSION_LINGER.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(buf, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	if v := os.Getenv("SYNCOUT_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("SYNCOUT_SESSION_LINGER"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse SYNCOUT_SESSION_LINGER: %w", err)
		}
		cfg.SessionLinger = d
	}
	return cfg, nil
}
