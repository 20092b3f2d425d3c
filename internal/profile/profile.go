package profile

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is configuration to start the client core.
type Profile struct {
	// Remote API configuration
	APIBaseURL string // Base URL of the remote chat API
	APIPrefix  string // Path prefix classified as API traffic (default: /api/)

	// Sync configuration
	SyncMaxRetries     int           // Retry budget for queued mutations (default: 3)
	SyncSettleDelay    time.Duration // Delay after an online signal before draining
	SyncAttemptTimeout time.Duration // Per-attempt network timeout during replay

	// Cache configuration
	CacheVersion string // Active cache generation name (bumped per deployment)

	// Other configurations
	Mode    string
	Data    string
	Driver  string
	DSN     string
	Addr    string
	Port    int
	Version string
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	p.APIBaseURL = getEnvOrDefault("PARLEY_API_BASE_URL", p.APIBaseURL)
	p.APIPrefix = getEnvOrDefault("PARLEY_API_PREFIX", "/api/")

	p.SyncMaxRetries = getEnvOrDefaultInt("PARLEY_SYNC_MAX_RETRIES", 3)
	p.SyncSettleDelay = time.Duration(getEnvOrDefaultInt("PARLEY_SYNC_SETTLE_DELAY_MS", 1000)) * time.Millisecond
	p.SyncAttemptTimeout = time.Duration(getEnvOrDefaultInt("PARLEY_SYNC_ATTEMPT_TIMEOUT_SECONDS", 30)) * time.Second

	p.CacheVersion = getEnvOrDefault("PARLEY_CACHE_VERSION", "v1")
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "parley")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
					return err
				}
			}
		} else {
			p.Data = "/var/opt/parley"
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", dataDir), slog.String("error", err.Error()))
		return err
	}
	p.Data = dataDir

	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("parley_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}

	if p.APIBaseURL != "" {
		u, err := url.Parse(p.APIBaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return errors.Errorf("invalid api base url: %s", p.APIBaseURL)
		}
	}

	if p.SyncMaxRetries < 0 {
		return errors.Errorf("sync max retries cannot be negative: %d", p.SyncMaxRetries)
	}
	if p.APIPrefix == "" {
		p.APIPrefix = "/api/"
	}
	if !strings.HasPrefix(p.APIPrefix, "/") {
		p.APIPrefix = "/" + p.APIPrefix
	}

	return nil
}
