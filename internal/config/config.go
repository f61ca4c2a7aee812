// Package config provides configuration management for the log ratio server.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tareqmamari/logs-ratio-server/internal/security"
)

// Config holds all configuration for the server
type Config struct {
	// Log analysis
	LogDir          string        `json:"log_dir"`
	LogLevels       []string      `json:"log_levels"` // ordered by classification priority
	ScanConcurrency int           `json:"scan_concurrency"`
	AnalysisCache   time.Duration `json:"analysis_cache_ttl"`
	AnalysisEntries int           `json:"analysis_cache_size"`

	// Predictor
	ModelPath   string  `json:"model_path"`
	RidgeLambda float64 `json:"ridge_lambda"`

	// Alert scheduling
	CheckInterval time.Duration `json:"check_interval"`
	AlertFactor   float64       `json:"alert_factor"`

	// Notification channels
	SMTPHost        string   `json:"smtp_host,omitempty"`
	SMTPPort        int      `json:"smtp_port,omitempty"`
	SMTPUsername    string   `json:"smtp_username,omitempty"`
	SMTPPassword    string   `json:"smtp_password,omitempty"` // Not stored in files, from env only
	SMTPFrom        string   `json:"smtp_from,omitempty"`
	AlertRecipients []string `json:"alert_recipients,omitempty"`
	WebhookURL      string   `json:"webhook_url,omitempty"`
	NATSURL         string   `json:"nats_url,omitempty"`
	NATSSubject     string   `json:"nats_subject,omitempty"`

	// Outbound HTTP
	Timeout        time.Duration `json:"timeout"`
	MaxRetries     int           `json:"max_retries"`
	RetryWaitMin   time.Duration `json:"retry_wait_min"`
	RetryWaitMax   time.Duration `json:"retry_wait_max"`
	RateLimit      int           `json:"rate_limit"`       // requests per second
	RateLimitBurst int           `json:"rate_limit_burst"` // burst size

	// Server
	Transport       string        `json:"transport"` // stdio or none
	HealthPort      int           `json:"health_port"`
	HealthBindAddr  string        `json:"health_bind_addr"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`

	// Observability
	EnableTracing   bool `json:"enable_tracing"`
	EnableAuditLog  bool `json:"enable_audit_log"`
	MetricsEndpoint bool `json:"metrics_endpoint"`

	// Logging
	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"` // json or console
}

// Load configuration from environment variables and config file
func Load() (*Config, error) {
	cfg := &Config{
		// Defaults
		LogDir:          "uploads",
		LogLevels:       []string{"DEBUG", "INFO", "WARN", "ERROR", "TRACE"},
		ScanConcurrency: 4,
		AnalysisCache:   30 * time.Second,
		AnalysisEntries: 64,
		ModelPath:       "model.json",
		RidgeLambda:     4.0,
		CheckInterval:   5 * time.Minute,
		AlertFactor:     1.2,
		SMTPPort:        587,
		NATSSubject:     "logs.alerts",
		Timeout:         30 * time.Second,
		MaxRetries:      3,
		RetryWaitMin:    1 * time.Second,
		RetryWaitMax:    30 * time.Second,
		RateLimit:       10,
		RateLimitBurst:  5,
		Transport:       "stdio",
		HealthBindAddr:  "127.0.0.1",
		ShutdownTimeout: 10 * time.Second,
		EnableTracing:   false,
		EnableAuditLog:  true,
		MetricsEndpoint: false,
		LogLevel:        "info",
		LogFormat:       "json",
	}

	// Try to load from config file if specified
	if configFile := os.Getenv("CONFIG_FILE"); configFile != "" {
		if err := loadFromFile(cfg, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Override with environment variables (these take precedence)
	loadFromEnv(cfg)

	return cfg, nil
}

func loadFromFile(cfg *Config, path string) error {
	cleanPath := filepath.Clean(path)

	// Prevent path traversal by checking for ".." components
	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("invalid file path: path traversal detected")
	}

	data, err := os.ReadFile(cleanPath) // #nosec G304 -- path is validated above
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return json.Unmarshal(data, cfg)
}

func loadFromEnv(cfg *Config) {
	setString(&cfg.LogDir, "LOGS_DIR")
	setString(&cfg.ModelPath, "LOGS_MODEL_PATH")
	setString(&cfg.SMTPHost, "LOGS_SMTP_HOST")
	setString(&cfg.SMTPUsername, "LOGS_SMTP_USERNAME")
	setString(&cfg.SMTPPassword, "LOGS_SMTP_PASSWORD")
	setString(&cfg.SMTPFrom, "LOGS_SMTP_FROM")
	setString(&cfg.WebhookURL, "LOGS_WEBHOOK_URL")
	setString(&cfg.NATSURL, "LOGS_NATS_URL")
	setString(&cfg.NATSSubject, "LOGS_NATS_SUBJECT")
	setString(&cfg.Transport, "LOGS_TRANSPORT")
	setString(&cfg.HealthBindAddr, "LOGS_HEALTH_BIND_ADDR")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.LogFormat, "LOG_FORMAT")

	setList(&cfg.LogLevels, "LOGS_LEVELS")
	setList(&cfg.AlertRecipients, "LOGS_ALERT_RECIPIENTS")

	setDuration(&cfg.CheckInterval, "LOGS_CHECK_INTERVAL")
	setDuration(&cfg.AnalysisCache, "LOGS_ANALYSIS_CACHE_TTL")
	setDuration(&cfg.Timeout, "LOGS_TIMEOUT")
	setDuration(&cfg.ShutdownTimeout, "LOGS_SHUTDOWN_TIMEOUT")

	setInt(&cfg.ScanConcurrency, "LOGS_SCAN_CONCURRENCY")
	setInt(&cfg.AnalysisEntries, "LOGS_ANALYSIS_CACHE_SIZE")
	setInt(&cfg.SMTPPort, "LOGS_SMTP_PORT")
	setInt(&cfg.MaxRetries, "LOGS_MAX_RETRIES")
	setInt(&cfg.RateLimit, "LOGS_RATE_LIMIT")
	setInt(&cfg.RateLimitBurst, "LOGS_RATE_LIMIT_BURST")
	setInt(&cfg.HealthPort, "LOGS_HEALTH_PORT")

	setFloat(&cfg.AlertFactor, "LOGS_ALERT_FACTOR")
	setFloat(&cfg.RidgeLambda, "LOGS_RIDGE_LAMBDA")

	setBool(&cfg.EnableTracing, "LOGS_ENABLE_TRACING")
	setBool(&cfg.EnableAuditLog, "LOGS_ENABLE_AUDIT_LOG")
	setBool(&cfg.MetricsEndpoint, "LOGS_METRICS_ENDPOINT")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setList(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var items []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	*dst = items
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "true" || v == "1"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.LogDir == "" {
		return errors.New("LOGS_DIR is required")
	}
	if c.ModelPath == "" {
		return errors.New("LOGS_MODEL_PATH is required")
	}
	if len(c.LogLevels) == 0 {
		return errors.New("at least one log level is required")
	}
	if c.CheckInterval <= 0 {
		return errors.New("check_interval must be positive")
	}
	if c.AlertFactor < 1 {
		return errors.New("alert_factor must be at least 1")
	}
	if c.RidgeLambda < 0 {
		return errors.New("ridge_lambda must be non-negative")
	}
	if c.ScanConcurrency <= 0 {
		return errors.New("scan_concurrency must be positive")
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return errors.New("max_retries must be non-negative")
	}
	if c.RateLimit <= 0 {
		return errors.New("rate_limit must be positive")
	}
	if c.SMTPHost != "" && len(c.AlertRecipients) == 0 {
		return errors.New("LOGS_ALERT_RECIPIENTS is required when SMTP is configured")
	}
	if c.Transport != "stdio" && c.Transport != "none" {
		return fmt.Errorf("invalid transport: %s", c.Transport)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}

	return nil
}

// Redact returns a copy of the config with sensitive data removed
func (c *Config) Redact() *Config {
	redacted := *c
	redacted.SMTPPassword = security.MaskSecret(redacted.SMTPPassword)
	redacted.WebhookURL = security.MaskURL(redacted.WebhookURL)
	redacted.NATSURL = security.MaskURL(redacted.NATSURL)
	return &redacted
}
