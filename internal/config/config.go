// Package config loads process configuration from the environment and the
// store routing table from a JSON file. Everything is read once at startup
// and injected into the components that need it; no package reads
// configuration globals after init.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Defaults for the orchestration tunables.
const (
	DefaultDedupWindow   = 2 * time.Minute
	DefaultMinMediaBytes = 1024
	DefaultMaxTargets    = 4
	DefaultRunTimeout    = 4 * time.Minute
)

// Config holds all runtime configuration for the crosspost service.
type Config struct {
	// HTTP surface.
	Port          int
	WebhookSecret string // HMAC app secret for X-Hub-Signature-256; empty disables the check
	VerifyToken   string // Meta-style GET verification handshake token

	// Media handling.
	MediaDir      string // local static storage directory served under /media/
	PublicBaseURL string // public HTTPS base under which MediaDir is reachable
	MinMediaBytes int64  // below this the file is treated as placeholder/corrupt

	// Mirror upload (optional; enables the S3 locator strategy).
	MirrorBucket  string
	MirrorBaseURL string // public base URL of the mirror bucket

	// Dedup / audit store. An empty table name disables DynamoDB: dedup
	// falls back to a process-local store and audit records are dropped.
	DedupTable  string
	DedupWindow time.Duration

	// Identity. An empty prefix disables SSM; tokens then come from
	// CROSSPOST_STATIC_TOKENS.
	TokenParamPrefix string

	// Orchestration bounds.
	MaxTargets int
	RunTimeout time.Duration

	// Routing.
	RoutesFile string
}

// Load reads configuration from the environment. Missing optional values
// fall back to defaults; values that make the service unable to start at
// all (no public base URL) are reported as errors.
func Load() (*Config, error) {
	cfg := &Config{
		Port:             envInt("CROSSPOST_PORT", 8080),
		WebhookSecret:    os.Getenv("CROSSPOST_WEBHOOK_SECRET"),
		VerifyToken:      os.Getenv("CROSSPOST_VERIFY_TOKEN"),
		MediaDir:         envOr("CROSSPOST_MEDIA_DIR", "media"),
		PublicBaseURL:    os.Getenv("CROSSPOST_PUBLIC_BASE_URL"),
		MinMediaBytes:    int64(envInt("CROSSPOST_MIN_MEDIA_BYTES", DefaultMinMediaBytes)),
		MirrorBucket:     os.Getenv("CROSSPOST_MIRROR_BUCKET"),
		MirrorBaseURL:    os.Getenv("CROSSPOST_MIRROR_BASE_URL"),
		DedupTable:       os.Getenv("CROSSPOST_DEDUP_TABLE"),
		DedupWindow:      envDuration("CROSSPOST_DEDUP_WINDOW", DefaultDedupWindow),
		TokenParamPrefix: os.Getenv("CROSSPOST_TOKEN_PARAM_PREFIX"),
		MaxTargets:       envInt("CROSSPOST_MAX_TARGETS", DefaultMaxTargets),
		RunTimeout:       envDuration("CROSSPOST_RUN_TIMEOUT", DefaultRunTimeout),
		RoutesFile:       envOr("CROSSPOST_ROUTES_FILE", "routes.json"),
	}

	if cfg.PublicBaseURL == "" && cfg.MirrorBucket == "" {
		return nil, fmt.Errorf("either CROSSPOST_PUBLIC_BASE_URL or CROSSPOST_MIRROR_BUCKET must be set: published media must be publicly reachable")
	}
	if cfg.MinMediaBytes < 0 {
		return nil, fmt.Errorf("CROSSPOST_MIN_MEDIA_BYTES must not be negative")
	}
	if cfg.MaxTargets < 1 {
		return nil, fmt.Errorf("CROSSPOST_MAX_TARGETS must be at least 1")
	}

	return cfg, nil
}

// RouteEntry is one (platform, account) destination for a store.
type RouteEntry struct {
	Platform  string            `json:"platform"`
	AccountID string            `json:"account_id"`
	Hints     map[string]string `json:"hints,omitempty"`
}

// Routes maps store identifiers to their publish destinations. Loaded once
// at startup and handed to the router as a constructor argument.
type Routes struct {
	Stores map[string][]RouteEntry `json:"stores"`
}

// LoadRoutes reads and validates the routing table from path.
func LoadRoutes(path string) (*Routes, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read routes file %s: %w", path, err)
	}

	var routes Routes
	if err := json.Unmarshal(data, &routes); err != nil {
		return nil, fmt.Errorf("parse routes file %s: %w", path, err)
	}

	if len(routes.Stores) == 0 {
		return nil, fmt.Errorf("routes file %s: no stores configured", path)
	}
	for storeID, entries := range routes.Stores {
		if len(entries) == 0 {
			return nil, fmt.Errorf("routes file %s: store %q has no destinations", path, storeID)
		}
		for _, e := range entries {
			switch e.Platform {
			case "facebook", "instagram":
			default:
				return nil, fmt.Errorf("routes file %s: store %q: unknown platform %q", path, storeID, e.Platform)
			}
			if e.AccountID == "" {
				return nil, fmt.Errorf("routes file %s: store %q: missing account_id", path, storeID)
			}
		}
	}

	return &routes, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
