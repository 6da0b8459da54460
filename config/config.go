package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process settings read from the environment and an optional .env file
type Config struct {
	AppName string
	Debug   bool

	PolygonAPIKey   string
	PolygonBaseURL  string
	UpstreamTimeout time.Duration
	UpstreamRetries uint64
	QuoteCacheTTL   time.Duration
	QuoteWarmEvery  time.Duration
	RedisAddr       string

	StorageDriver  string
	DatabasePath   string
	ActivityLogDir string

	ListenAddr  string
	CORSOrigins []string

	JWTSecret      string
	AccessTokenTTL time.Duration
	AdminUsername  string
	AdminPassword  string
}

// Storage drivers
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Load reads .env (if present) and then the process environment.
// Variables already set in the environment win over the file.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return fromEnv(os.LookupEnv)
}

func fromEnv(lookup func(string) (string, bool)) (*Config, error) {
	r := reader{lookup: lookup}

	cfg := &Config{
		AppName:         r.str("APP_NAME", "Black-Scholes Dashboard"),
		Debug:           r.boolean("DEBUG", false),
		PolygonAPIKey:   r.str("POLYGON_API_KEY", ""),
		PolygonBaseURL:  strings.TrimRight(r.str("POLYGON_BASE_URL", "https://api.polygon.io"), "/"),
		UpstreamTimeout: r.duration("UPSTREAM_TIMEOUT", 10*time.Second),
		UpstreamRetries: r.uint("UPSTREAM_RETRIES", 0),
		QuoteCacheTTL:   r.duration("QUOTE_CACHE_TTL", 5*time.Minute),
		QuoteWarmEvery:  r.duration("QUOTE_WARM_INTERVAL", 0),
		RedisAddr:       r.str("REDIS_ADDR", ""),
		StorageDriver:   strings.ToLower(r.str("STORAGE_DRIVER", DriverSQLite)),
		DatabasePath:    r.str("DATABASE_PATH", "data/options.db"),
		ActivityLogDir:  r.str("ACTIVITY_LOG_DIR", "data/activity"),
		ListenAddr:      r.str("LISTEN_ADDR", ":8000"),
		CORSOrigins:     r.list("CORS_ORIGINS", []string{"http://localhost:8080"}),
		JWTSecret:       r.str("JWT_SECRET", ""),
		AccessTokenTTL:  r.duration("ACCESS_TOKEN_TTL", 30*time.Minute),
		AdminUsername:   r.str("ADMIN_USERNAME", ""),
		AdminPassword:   r.str("ADMIN_PASSWORD", ""),
	}

	if r.err != nil {
		return nil, r.err
	}
	if cfg.PolygonAPIKey == "" {
		return nil, errors.New("POLYGON_API_KEY is required")
	}
	if cfg.StorageDriver != DriverSQLite && cfg.StorageDriver != DriverMemory {
		return nil, fmt.Errorf("STORAGE_DRIVER must be %s or %s, got %q", DriverSQLite, DriverMemory, cfg.StorageDriver)
	}
	if cfg.UpstreamTimeout <= 0 {
		return nil, errors.New("UPSTREAM_TIMEOUT must be positive")
	}
	if (cfg.AdminUsername == "") != (cfg.AdminPassword == "") {
		return nil, errors.New("ADMIN_USERNAME and ADMIN_PASSWORD must be set together")
	}

	return cfg, nil
}

// reader keeps the first parse error so Load can report it after reading every key
type reader struct {
	lookup func(string) (string, bool)
	err    error
}

func (r *reader) raw(key string) (string, bool) {
	v, ok := r.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (r *reader) str(key, def string) string {
	if v, ok := r.raw(key); ok {
		return v
	}
	return def
}

func (r *reader) boolean(key string, def bool) bool {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return b
}

func (r *reader) uint(key string, def uint64) uint64 {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return n
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return d
}

func (r *reader) list(key string, def []string) []string {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	out := make([]string, 0)
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func (r *reader) fail(key, value string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
}
