// Package config loads this client's runtime configuration from the
// environment, following the teacher's godotenv-then-os.Getenv convention.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything needed to dial the speech-dialog service and run
// one session against it.
type Config struct {
	Endpoint   string // wss:// URL of the speech-dialog service
	AppID      string // X-Api-App-Id header
	AppKey     string // X-Api-App-Key header
	AccessKey  string // X-Api-Access-Key header
	ResourceID string // X-Api-Resource-Id header

	RedisURL      string // optional session-registry mirror; empty disables it
	RedisPassword string
	RegistryTTL   time.Duration

	PCMDumpPath string

	DialTimeout time.Duration
}

// Load reads configuration from the environment, loading a .env file first
// if one is present (ignored if missing, matching the teacher's posture).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		RedisURL:      os.Getenv("VOICEDIALOG_REDIS_URL"),
		RedisPassword: os.Getenv("VOICEDIALOG_REDIS_PASSWORD"),
		RegistryTTL:   time.Hour,
		PCMDumpPath:   "./output.pcm",
		DialTimeout:   10 * time.Second,
	}

	cfg.Endpoint = os.Getenv("VOICEDIALOG_ENDPOINT")
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("config: VOICEDIALOG_ENDPOINT environment variable is required")
	}

	cfg.AppID = os.Getenv("VOICEDIALOG_APP_ID")
	if cfg.AppID == "" {
		return nil, fmt.Errorf("config: VOICEDIALOG_APP_ID environment variable is required")
	}

	cfg.AppKey = os.Getenv("VOICEDIALOG_APP_KEY")
	if cfg.AppKey == "" {
		return nil, fmt.Errorf("config: VOICEDIALOG_APP_KEY environment variable is required")
	}

	cfg.AccessKey = os.Getenv("VOICEDIALOG_ACCESS_KEY")
	if cfg.AccessKey == "" {
		return nil, fmt.Errorf("config: VOICEDIALOG_ACCESS_KEY environment variable is required")
	}

	cfg.ResourceID = os.Getenv("VOICEDIALOG_RESOURCE_ID")

	if path := os.Getenv("VOICEDIALOG_PCM_DUMP_PATH"); path != "" {
		cfg.PCMDumpPath = path
	}

	if ttl := os.Getenv("VOICEDIALOG_REGISTRY_TTL_SECONDS"); ttl != "" {
		secs, err := strconv.Atoi(ttl)
		if err != nil {
			return nil, fmt.Errorf("config: invalid VOICEDIALOG_REGISTRY_TTL_SECONDS: %w", err)
		}
		cfg.RegistryTTL = time.Duration(secs) * time.Second
	}

	if timeout := os.Getenv("VOICEDIALOG_DIAL_TIMEOUT_SECONDS"); timeout != "" {
		secs, err := strconv.Atoi(timeout)
		if err != nil {
			return nil, fmt.Errorf("config: invalid VOICEDIALOG_DIAL_TIMEOUT_SECONDS: %w", err)
		}
		cfg.DialTimeout = time.Duration(secs) * time.Second
	}

	return cfg, nil
}
