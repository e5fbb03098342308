package config

import "time"

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig     `yaml:"server"`
	Logging   LoggingConfig    `yaml:"logging"`
	Endpoints []EndpointConfig `yaml:"endpoints"`
	Dispatch  DispatchConfig   `yaml:"dispatch"`
	Scheduler SchedulerConfig  `yaml:"scheduler"`
	Network   NetworkConfig    `yaml:"network"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// EndpointConfig holds settings for one forwarding endpoint. URL is a
// template; the {target} placeholder marks where the escaped target
// address is substituted.
type EndpointConfig struct {
	Name               string        `yaml:"name"`
	URL                string        `yaml:"url"`
	Timeout            time.Duration `yaml:"timeout"`
	RateLimitPerMinute int           `yaml:"rate_limit_per_minute"`
}

// DispatchConfig tunes endpoint selection, circuit breaking and response
// validation.
type DispatchConfig struct {
	CircuitFailureThreshold int           `yaml:"circuit_failure_threshold"`
	CircuitCooldown         time.Duration `yaml:"circuit_cooldown"`
	RateWindow              time.Duration `yaml:"rate_window"`
	MaxBodyBytes            int64         `yaml:"max_body_bytes"`
	ProbeInterval           time.Duration `yaml:"probe_interval"`
	ProbeTarget             string        `yaml:"probe_target"`
}

// SchedulerConfig tunes the transfer task queue.
type SchedulerConfig struct {
	MaxConcurrent  int           `yaml:"max_concurrent"`
	MaxRetries     int           `yaml:"max_retries"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	Retention      time.Duration `yaml:"retention"`
	DownloadDir    string        `yaml:"download_dir"`
}

// NetworkConfig tunes the connectivity probe consulted by the retry layer.
type NetworkConfig struct {
	CheckAddress  string        `yaml:"check_address"`
	CheckInterval time.Duration `yaml:"check_interval"`
}

// DefaultEndpoints returns the built-in public relay set used when the
// configuration names none.
func DefaultEndpoints() []EndpointConfig {
	return []EndpointConfig{
		{
			Name:               "allorigins",
			URL:                "https://api.allorigins.win/raw?url={target}",
			Timeout:            15 * time.Second,
			RateLimitPerMinute: 60,
		},
		{
			Name:               "corsproxy",
			URL:                "https://corsproxy.io/?{target}",
			Timeout:            12 * time.Second,
			RateLimitPerMinute: 60,
		},
		{
			Name:               "codetabs",
			URL:                "https://api.codetabs.com/v1/proxy?quest={target}",
			Timeout:            15 * time.Second,
			RateLimitPerMinute: 30,
		},
	}
}
