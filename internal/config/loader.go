package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "code2api.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "CODE2API_PORT")
	setString(&cfg.Server.CORSOrigin, "CODE2API_CORS_ORIGIN")
	setString(&cfg.Logging.Level, "CODE2API_LOG_LEVEL")
	setString(&cfg.Logging.Service, "CODE2API_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "CODE2API_LOG_ASYNC")
	setString(&cfg.NATS.URL, "NATS_URL")

	setString(&cfg.LLM.URL, "CODE2API_LLM_URL")
	setString(&cfg.LLM.APIKey, "GROQ_API_KEY")
	setString(&cfg.LLM.Model, "CODE2API_LLM_MODEL")
	setInt(&cfg.LLM.MaxTokens, "CODE2API_LLM_MAX_TOKENS")
	setFloat64(&cfg.LLM.Temperature, "CODE2API_LLM_TEMPERATURE")
	setDuration(&cfg.LLM.Timeout, "CODE2API_LLM_TIMEOUT")

	setInt(&cfg.Breaker.MaxFailures, "CODE2API_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "CODE2API_BREAKER_TIMEOUT")
	setFloat64(&cfg.Rate.RequestsPerSecond, "CODE2API_RATE_RPS")
	setInt(&cfg.Rate.Burst, "CODE2API_RATE_BURST")
	setInt(&cfg.Rate.MaxClients, "CODE2API_RATE_MAX_CLIENTS")
	setDuration(&cfg.Rate.SweepInterval, "CODE2API_RATE_SWEEP_INTERVAL")
	setDuration(&cfg.Rate.ClientIdleTTL, "CODE2API_RATE_CLIENT_IDLE_TTL")

	setInt(&cfg.Retry.MaxAttempts, "CODE2API_RETRY_MAX_ATTEMPTS")
	setDuration(&cfg.Retry.BaseDelay, "CODE2API_RETRY_BASE_DELAY")
	setDuration(&cfg.Retry.MaxDelay, "CODE2API_RETRY_MAX_DELAY")

	setInt(&cfg.Window.RequestThreshold, "CODE2API_WINDOW_REQUEST_THRESHOLD")
	setInt(&cfg.Window.TokenThreshold, "CODE2API_WINDOW_TOKEN_THRESHOLD")
	setDuration(&cfg.Window.ResetMargin, "CODE2API_WINDOW_RESET_MARGIN")

	setString(&cfg.Cache.Dir, "CODE2API_CACHE_DIR")
	setInt(&cfg.Cache.MemMaxEntries, "CODE2API_CACHE_MEM_MAX_ENTRIES")
	setDuration(&cfg.Cache.MemTTL, "CODE2API_CACHE_MEM_TTL")
	setDuration(&cfg.Cache.DiskTTL, "CODE2API_CACHE_DISK_TTL")
	setInt64(&cfg.Cache.ParseMemMB, "CODE2API_CACHE_PARSE_MEM_MB")

	setInt(&cfg.Workflow.MaxConcurrent, "CODE2API_WORKFLOW_MAX_CONCURRENT")
	setDuration(&cfg.Workflow.PhaseTimeout, "CODE2API_WORKFLOW_PHASE_TIMEOUT")
	setDuration(&cfg.Workflow.RetainCompleted, "CODE2API_WORKFLOW_RETAIN_COMPLETED")

	setString(&cfg.Otel.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.Otel.Insecure, "OTEL_EXPORTER_OTLP_INSECURE")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.LLM.URL == "" {
		return errors.New("llm.url is required")
	}
	if cfg.Retry.MaxAttempts < 1 {
		return errors.New("retry.max_attempts must be >= 1")
	}
	if cfg.Retry.BaseDelay <= 0 {
		return errors.New("retry.base_delay must be positive")
	}
	if cfg.Cache.MemMaxEntries < 1 {
		return errors.New("cache.mem_max_entries must be >= 1")
	}
	if cfg.Workflow.MaxConcurrent < 1 {
		return errors.New("workflow.max_concurrent must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
