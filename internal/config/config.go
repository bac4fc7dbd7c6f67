package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/joho/godotenv"
	"github.com/peterhellberg/duration"
)

const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

type Config struct {
	// Quiz backend
	ServerURL   string
	AuthToken   string
	HTTPTimeout time.Duration

	// Progress storage
	Store      string
	SQLitePath string
	RedisURL   string
	KeyPrefix  string

	// Attempt handling
	ConflictPolicy string
	TickInterval   time.Duration

	// Local API
	ListenAddr  string
	CORSOrigins []string
}

// Load reads configuration from the environment, after loading .env if
// one exists. Flags in the binaries override these values.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		glog.Warningf("ignoring unreadable .env file: %v", err)
	}

	return &Config{
		ServerURL:      getEnvOrDefault("QUIZ_SERVER_URL", "http://127.0.0.1:5000"),
		AuthToken:      getEnvOrDefault("QUIZ_AUTH_TOKEN", ""),
		HTTPTimeout:    getEnvAsDurationOrDefault("QUIZ_HTTP_TIMEOUT", 10*time.Second),
		Store:          strings.ToLower(getEnvOrDefault("QUIZ_STORE", StoreSQLite)),
		SQLitePath:     getEnvOrDefault("QUIZ_SQLITE_PATH", "quiz-progress.db"),
		RedisURL:       getEnvOrDefault("QUIZ_REDIS_URL", "redis://127.0.0.1:6379/0"),
		KeyPrefix:      getEnvOrDefault("QUIZ_KEY_PREFIX", "quiz_progress."),
		ConflictPolicy: getEnvOrDefault("QUIZ_CONFLICT_POLICY", "reject"),
		TickInterval:   getEnvAsDurationOrDefault("QUIZ_TICK_INTERVAL", time.Second),
		ListenAddr:     getEnvOrDefault("QUIZ_LISTEN_ADDR", "127.0.0.1:8090"),
		CORSOrigins:    getEnvAsListOrDefault("QUIZ_CORS_ORIGINS", []string{"http://localhost:5173"}),
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvAsDurationOrDefault accepts Go durations ("250ms", "10s") and
// ISO-8601 durations ("PT1.5S", "P1DT12H"). A bare integer is taken as
// seconds.
func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal
	}

	d, err := parseDuration(val)
	if err != nil || d <= 0 {
		glog.Warningf("invalid duration %q for %s, using %s", val, key, defaultVal)
		return defaultVal
	}
	return d
}

func parseDuration(val string) (time.Duration, error) {
	if seconds, err := strconv.Atoi(val); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d, nil
	}
	return duration.Parse(val)
}

func getEnvAsListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if strings.TrimSpace(val) == "" {
		return defaultVal
	}

	var items []string
	for _, item := range strings.Split(val, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	if len(items) == 0 {
		return defaultVal
	}
	return items
}
