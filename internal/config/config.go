package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultTokenURL is the CEDA endpoint that issues download tokens.
const DefaultTokenURL = "https://services-beta.ceda.ac.uk/api/token/create/"

// Config holds all service settings, populated from environment variables.
type Config struct {
	LogLevel        string
	LogFormat       string
	HTTPAddr        string // empty disables the health/metrics server
	ShutdownTimeout time.Duration

	// Download configuration.
	DownloadDir      string
	KeepDownloads    bool
	DownloadTimeout  time.Duration
	DownloadAttempts int

	// CEDA token configuration.
	TokenEnabled  bool
	TokenURL      string
	TokenCache    string
	CEDAUsername  string
	CEDAPassword  string
	TokenCacheTTL time.Duration

	// Optional sinks.
	KafkaBrokers []string
	KafkaTopic   string
	LedgerPath   string
}

// KafkaEnabled reports whether records should also be published to Kafka.
func (c *Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parsePositiveDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	downloadTimeout, err := parsePositiveDuration("DOWNLOAD_TIMEOUT", "30m")
	if err != nil {
		return nil, err
	}

	attempts, err := parsePositiveInt("DOWNLOAD_ATTEMPTS", 3)
	if err != nil {
		return nil, err
	}

	tokenTTL, err := parsePositiveDuration("CEDA_TOKEN_MEMORY_TTL", "5m")
	if err != nil {
		return nil, err
	}

	tokenCache := os.Getenv("CEDA_TOKEN_CACHE")
	if tokenCache == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory for CEDA_TOKEN_CACHE: %w", err)
		}
		tokenCache = filepath.Join(home, ".cedatoken")
	}

	cfg := &Config{
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		HTTPAddr:        os.Getenv("HTTP_ADDR"),
		ShutdownTimeout: shutdownTimeout,

		DownloadDir:      envOrDefault("DOWNLOAD_DIR", "."),
		KeepDownloads:    os.Getenv("KEEP_DOWNLOADS") == "true",
		DownloadTimeout:  downloadTimeout,
		DownloadAttempts: attempts,

		TokenEnabled:  os.Getenv("CEDA_TOKEN_ENABLED") != "false",
		TokenURL:      envOrDefault("CEDA_TOKEN_URL", DefaultTokenURL),
		TokenCache:    tokenCache,
		CEDAUsername:  os.Getenv("CEDA_USERNAME"),
		CEDAPassword:  os.Getenv("CEDA_PASSWORD"),
		TokenCacheTTL: tokenTTL,

		KafkaBrokers: parseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   envOrDefault("KAFKA_TOPIC", "ukcp-rainfall-records"),
		LedgerPath:   os.Getenv("LEDGER_PATH"),
	}

	switch strings.ToLower(cfg.LogFormat) {
	case "json", "text":
	default:
		return nil, errors.New("LOG_FORMAT must be json or text")
	}
	if cfg.KafkaEnabled() && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	if cfg.CEDAPassword != "" && cfg.CEDAUsername == "" {
		return nil, errors.New("CEDA_PASSWORD is set but CEDA_USERNAME is not")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func parsePositiveDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}
