package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills every unset knob with its built-in default, so a
// minimal (or empty) file still yields a runnable configuration.
func (cfg *AppConfig) ApplyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	if len(cfg.Endpoints) == 0 {
		cfg.Endpoints = DefaultEndpoints()
	}
	for i := range cfg.Endpoints {
		if cfg.Endpoints[i].Timeout == 0 {
			cfg.Endpoints[i].Timeout = 15 * time.Second
		}
		if cfg.Endpoints[i].RateLimitPerMinute == 0 {
			cfg.Endpoints[i].RateLimitPerMinute = 60
		}
	}

	if cfg.Dispatch.CircuitFailureThreshold == 0 {
		cfg.Dispatch.CircuitFailureThreshold = 3
	}
	if cfg.Dispatch.CircuitCooldown == 0 {
		cfg.Dispatch.CircuitCooldown = 5 * time.Minute
	}
	if cfg.Dispatch.RateWindow == 0 {
		cfg.Dispatch.RateWindow = time.Minute
	}
	if cfg.Dispatch.MaxBodyBytes == 0 {
		cfg.Dispatch.MaxBodyBytes = 50 << 20
	}
	if cfg.Dispatch.ProbeInterval == 0 {
		cfg.Dispatch.ProbeInterval = 5 * time.Minute
	}
	if cfg.Dispatch.ProbeTarget == "" {
		cfg.Dispatch.ProbeTarget = "https://example.com/"
	}

	if cfg.Scheduler.MaxConcurrent == 0 {
		cfg.Scheduler.MaxConcurrent = 3
	}
	if cfg.Scheduler.MaxRetries == 0 {
		cfg.Scheduler.MaxRetries = 3
	}
	if cfg.Scheduler.RetryBaseDelay == 0 {
		cfg.Scheduler.RetryBaseDelay = time.Second
	}
	if cfg.Scheduler.Retention == 0 {
		cfg.Scheduler.Retention = 24 * time.Hour
	}
	if cfg.Scheduler.DownloadDir == "" {
		cfg.Scheduler.DownloadDir = "downloads"
	}

	if cfg.Network.CheckAddress == "" {
		cfg.Network.CheckAddress = "1.1.1.1:443"
	}
	if cfg.Network.CheckInterval == 0 {
		cfg.Network.CheckInterval = 30 * time.Second
	}
}
