package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

type Config struct {
	ServerPort    string
	SessionSecret string

	DBDSN          string
	StorageBackend string // postgres | redis | memory
	RedisAddr      string

	BackendURL  string
	HTTPTimeout time.Duration
	RefreshLead time.Duration

	GeocoderURL    string
	GeocoderAPIKey string
	SMTP           SMTPConfig

	BlockedCountries []string
	TabIdleTTL       time.Duration
	TranslationTTL   time.Duration

	LogLevel    string
	MetricsAddr string
}

func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:    getEnvOrDefault("SERVER_PORT", "8080"),
		SessionSecret: os.Getenv("SESSION_SECRET"),

		DBDSN:          os.Getenv("DB_DSN"),
		StorageBackend: getEnvOrDefault("STORAGE_BACKEND", "postgres"),
		RedisAddr:      getEnvOrDefault("REDIS_ADDR", "localhost:6379"),

		BackendURL:  strings.TrimRight(os.Getenv("BACKEND_URL"), "/"),
		HTTPTimeout: getDuration("HTTP_TIMEOUT", 30*time.Second),
		RefreshLead: getDuration("REFRESH_LEAD", time.Minute),

		GeocoderURL:    getEnvOrDefault("GEOCODER_URL", "https://revgeocode.search.hereapi.com/v1/revgeocode"),
		GeocoderAPIKey: os.Getenv("GEOCODER_API_KEY"),
		SMTP: SMTPConfig{
			Host: os.Getenv("SMTP_HOST"),
			Port: getInt("SMTP_PORT", 465),
			User: os.Getenv("SMTP_USER"),
			Pass: os.Getenv("SMTP_PASS"),
			From: os.Getenv("SMTP_FROM"),
		},

		BlockedCountries: splitList(getEnvOrDefault("BLOCKED_COUNTRIES", "SG,CN")),
		TabIdleTTL:       getDuration("TAB_IDLE_TTL", 30*time.Minute),
		TranslationTTL:   getDuration("TRANSLATION_TTL", 10*time.Minute),

		LogLevel:    getEnvOrDefault("LOG_LEVEL", "info"),
		MetricsAddr: getEnvOrDefault("METRICS_ADDR", ":9092"),
	}

	if cfg.SessionSecret == "" {
		log.Fatal("SESSION_SECRET is not set")
	}
	if cfg.BackendURL == "" {
		log.Fatal("BACKEND_URL is not set")
	}
	switch cfg.StorageBackend {
	case "postgres":
		if cfg.DBDSN == "" {
			log.Fatal("DB_DSN is not set")
		}
	case "redis", "memory":
	default:
		log.Fatalf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}

	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using %s", key, raw, defaultValue)
		return defaultValue
	}
	return d
}

func getInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using %d", key, raw, defaultValue)
		return defaultValue
	}
	return n
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.ToUpper(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
