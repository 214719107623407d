// Package config loads runtime settings from the environment (optionally
// seeded from a .env file) and holds the tunable constants of random mode.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Provider names accepted by MATCH_PROVIDER.
const (
	ProviderSimulated = "simulated"
	ProviderQueue     = "queue"
)

// Config is the process configuration.
type Config struct {
	HTTPAddr    string
	CORSOrigins []string
	JWTSecret   string

	PostgresDSN   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SessionBackend string
	SessionTTL     time.Duration

	MatchProvider string

	GeminiAPIKey       string
	ModerationModel    string
	ModerationTimeout  time.Duration
	ModerationFailOpen bool
	Blocklist          []string

	TelegramBotToken string
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Error loading .env file")
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		CORSOrigins:      splitList(getEnv("CORS_ORIGINS", "*")),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		PostgresDSN:      getEnv("POSTGRES_DSN", "host=localhost user=user password=password dbname=liveflowdb port=5432 sslmode=disable"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6380"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		SessionBackend:   getEnv("SESSION_BACKEND", "redis"),
		MatchProvider:    getEnv("MATCH_PROVIDER", ProviderSimulated),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		ModerationModel:  getEnv("MODERATION_MODEL", DefaultModerationModel),
		Blocklist:        DefaultBlocklist,
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
	}

	var err error
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.SessionTTL, err = getDuration("SESSION_TTL", DefaultSessionTTL); err != nil {
		return nil, err
	}
	if cfg.ModerationTimeout, err = getDuration("MODERATION_TIMEOUT", DefaultModerationTimeout); err != nil {
		return nil, err
	}
	if cfg.ModerationFailOpen, err = getBool("MODERATION_FAIL_OPEN", FailOpenDefault); err != nil {
		return nil, err
	}
	if raw := os.Getenv("MODERATION_BLOCKLIST"); raw != "" {
		cfg.Blocklist = splitList(raw)
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is not set")
	}
	switch cfg.MatchProvider {
	case ProviderSimulated, ProviderQueue:
	default:
		return nil, fmt.Errorf("unknown MATCH_PROVIDER %q", cfg.MatchProvider)
	}
	switch cfg.SessionBackend {
	case "redis", "memory":
	default:
		return nil, fmt.Errorf("unknown SESSION_BACKEND %q", cfg.SessionBackend)
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func getBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
