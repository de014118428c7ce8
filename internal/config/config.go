// Package config provides hierarchical configuration loading for code2api.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the code2api core service.
type Config struct {
	Server   Server   `yaml:"server"`
	Logging  Logging  `yaml:"logging"`
	NATS     NATS     `yaml:"nats"`
	LLM      LLM      `yaml:"llm"`
	Breaker  Breaker  `yaml:"breaker"`
	Rate     Rate     `yaml:"rate"`
	Retry    Retry    `yaml:"retry"`
	Window   Window   `yaml:"window"`
	Cache    Cache    `yaml:"cache"`
	Workflow Workflow `yaml:"workflow"`
	Otel     Otel     `yaml:"otel"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// NATS holds NATS JetStream configuration. An empty URL disables eventing.
type NATS struct {
	URL string `yaml:"url"`
}

// LLM holds the language-model endpoint configuration.
type LLM struct {
	URL         string        `yaml:"url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Breaker holds circuit breaker configuration for the LLM client.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Rate holds per-IP rate limiter configuration for the operational API.
// MaxClients caps tracked addresses; idle buckets are swept every
// SweepInterval once untouched for ClientIdleTTL.
type Rate struct {
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	MaxClients        int           `yaml:"max_clients"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
	ClientIdleTTL     time.Duration `yaml:"client_idle_ttl"`
}

// Retry holds retry/backoff configuration for external calls.
type Retry struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// Window holds provider rate-limit window gating configuration.
// A call is deferred when remaining requests or tokens drop to the threshold.
type Window struct {
	RequestThreshold int           `yaml:"request_threshold"`
	TokenThreshold   int           `yaml:"token_threshold"`
	ResetMargin      time.Duration `yaml:"reset_margin"`
}

// Cache holds two-tier response cache configuration.
type Cache struct {
	Dir           string        `yaml:"dir"`
	MemMaxEntries int           `yaml:"mem_max_entries"`
	MemTTL        time.Duration `yaml:"mem_ttl"`
	DiskTTL       time.Duration `yaml:"disk_ttl"`
	ParseMemMB    int64         `yaml:"parse_mem_mb"`
}

// Workflow holds pipeline execution configuration.
type Workflow struct {
	MaxConcurrent   int           `yaml:"max_concurrent"`
	PhaseTimeout    time.Duration `yaml:"phase_timeout"`
	RetainCompleted time.Duration `yaml:"retain_completed"`
}

// Otel holds OpenTelemetry export configuration.
// An empty endpoint disables trace and metric export.
type Otel struct {
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port: "8080",
		},
		Logging: Logging{
			Level:   "info",
			Service: "code2api",
		},
		LLM: LLM{
			URL:         "https://api.groq.com",
			Model:       "llama-3.3-70b-versatile",
			MaxTokens:   2048,
			Temperature: 0.1,
			Timeout:     120 * time.Second,
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Rate: Rate{
			RequestsPerSecond: 10,
			Burst:             20,
			MaxClients:        100000,
			SweepInterval:     time.Minute,
			ClientIdleTTL:     10 * time.Minute,
		},
		Retry: Retry{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			MaxDelay:    30 * time.Second,
		},
		Window: Window{
			RequestThreshold: 2,
			TokenThreshold:   500,
			ResetMargin:      250 * time.Millisecond,
		},
		Cache: Cache{
			Dir:           "cache",
			MemMaxEntries: 500,
			MemTTL:        2 * time.Hour,
			DiskTTL:       4 * time.Hour,
			ParseMemMB:    64,
		},
		Workflow: Workflow{
			MaxConcurrent:   4,
			PhaseTimeout:    5 * time.Minute,
			RetainCompleted: 24 * time.Hour,
		},
	}
}
