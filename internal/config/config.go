package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr          string
	MongoURL      string
	MongoDatabase string
	CORSOrigin    string
	// Identity provider webhook signing secret (whsec_ prefixed)
	WebhookSecret    string
	WebhookTolerance time.Duration
	// Redis Configuration
	RedisURL        string
	ProfileCacheTTL time.Duration
}

func Load() Config {
	return Config{
		Addr:             getenv("API_ADDR", ":8686"),
		MongoURL:         getenv("MONGO_URL", "mongodb://localhost:27017"),
		MongoDatabase:    getenv("MONGO_DATABASE", "strand"),
		CORSOrigin:       getenv("STRAND_CORS_ORIGIN", "*"),
		WebhookSecret:    getenv("STRAND_WEBHOOK_SECRET", ""),
		WebhookTolerance: time.Duration(getenvInt("STRAND_WEBHOOK_TOLERANCE_SECONDS", 300)) * time.Second,
		// Redis - profile cache disabled when empty
		RedisURL:        getenv("REDIS_URL", ""),
		ProfileCacheTTL: time.Duration(getenvInt("STRAND_PROFILE_CACHE_TTL_SECONDS", 900)) * time.Second,
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
