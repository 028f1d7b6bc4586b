package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Issuer         string // Issuer claim for session tokens (default: trustgate)
	SessionKeyFile string // Optional: path to PEM Ed25519 signing key; ephemeral when unset
	SessionTTL     time.Duration

	DatabaseFile  string // Path to SQLite database file (default: ./trustgate.db)
	PepperFile    string // Path to the password-hashing pepper file (default: ./pepper)
	MasterKeyPath string // Optional: path to the secret-encryption master key file

	AllowedOrigins    []string // CORS allow-list, comma separated in env
	MaxBodyBytes      int64    // Request payload ceiling (default: 1 MiB)
	TrustProxyHeaders bool     // Honour X-Forwarded-For/X-Real-IP (default: false)
	ThrottleRPS       float64  // Server-wide throughput ceiling (0 disables)
	ThrottleBurst     int

	BootstrapAdminEmail    string // Optional: seed an admin account on startup
	BootstrapAdminPassword string

	Env                 string // Environment (dev, staging, prod) (default: dev)
	LogLevel            string // Log level (debug, info, warn, error) (default: info)
	LogFormat           string // Log format (json, text) (default: json)
	Port                int    // HTTP server port (default: 8080)
	ShutdownGracePeriod time.Duration
}

func LoadConfig() Config {
	return Config{
		Issuer:         getEnvOrDefault("TRUSTGATE_ISSUER", "trustgate"),
		SessionKeyFile: os.Getenv("TRUSTGATE_SESSION_KEY_FILE"),
		SessionTTL:     getEnvDurationOrDefault("TRUSTGATE_SESSION_TTL", 30*time.Minute),

		DatabaseFile:  getEnvOrDefault("TRUSTGATE_DATABASE_FILE", "trustgate.db"),
		PepperFile:    getEnvOrDefault("TRUSTGATE_PEPPER_FILE", "pepper"),
		MasterKeyPath: os.Getenv("TRUSTGATE_MASTER_KEY_PATH"),

		AllowedOrigins:    splitAndTrim(os.Getenv("TRUSTGATE_ALLOWED_ORIGINS")),
		MaxBodyBytes:      int64(getEnvIntOrDefault("TRUSTGATE_MAX_BODY_BYTES", 1<<20)),
		TrustProxyHeaders: getEnvBoolOrDefault("TRUSTGATE_TRUST_PROXY_HEADERS", false),
		ThrottleRPS:       getEnvFloatOrDefault("TRUSTGATE_THROTTLE_RPS", 200),
		ThrottleBurst:     getEnvIntOrDefault("TRUSTGATE_THROTTLE_BURST", 50),

		BootstrapAdminEmail:    os.Getenv("TRUSTGATE_BOOTSTRAP_ADMIN_EMAIL"),
		BootstrapAdminPassword: os.Getenv("TRUSTGATE_BOOTSTRAP_ADMIN_PASSWORD"),

		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	return defaultValue
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
