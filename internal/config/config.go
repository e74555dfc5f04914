package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Claim modes for the job queue. Postgres supports row locking, so
// "lock" is the default; "optimistic" is the conditional-update
// fallback for backends without SKIP LOCKED.
const (
	ClaimModeLock       = "lock"
	ClaimModeOptimistic = "optimistic"
)

type Config struct {
	DatabaseURL string
	HTTPAddr    string

	WorkerConcurrency int
	MaxAttempts       int
	ClaimMode         string
	ShutdownTimeout   int // seconds

	FallbackSyncMinutes int
	FullSyncHours       int
	WatchRenewalHours   int
	FullSyncDays        int
	FullSyncMaxMessages int
	HistoryPageSize     int
	StaleWatermarkDays  int

	GoogleClientID     string
	GoogleClientSecret string
	PubSubTopic        string
	OpenRouterAPIKey   string
	RouteRulesPath     string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error in production)
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	googleClientID := os.Getenv("GOOGLE_CLIENT_ID")
	googleClientSecret := os.Getenv("GOOGLE_CLIENT_SECRET")
	if googleClientID == "" || googleClientSecret == "" {
		fmt.Println("Warning: GOOGLE_CLIENT_ID or GOOGLE_CLIENT_SECRET not set, Gmail API will not work")
	}

	openRouterAPIKey := os.Getenv("OPENROUTER_API_KEY")
	if openRouterAPIKey == "" {
		fmt.Println("Warning: OPENROUTER_API_KEY not set, classification and drafting will not work")
	}

	pubsubTopic := os.Getenv("PUBSUB_TOPIC")
	if pubsubTopic == "" {
		fmt.Println("Warning: PUBSUB_TOPIC not set, watch renewal will not work")
	}

	claimMode := os.Getenv("CLAIM_MODE")
	if claimMode == "" {
		claimMode = ClaimModeLock
	}
	if claimMode != ClaimModeLock && claimMode != ClaimModeOptimistic {
		return nil, fmt.Errorf("CLAIM_MODE must be %q or %q, got %q", ClaimModeLock, ClaimModeOptimistic, claimMode)
	}

	return &Config{
		DatabaseURL: dbURL,
		HTTPAddr:    getenvDefault("HTTP_ADDR", ":8080"),

		WorkerConcurrency: getenvInt("WORKER_CONCURRENCY", 3),
		MaxAttempts:       getenvInt("MAX_ATTEMPTS", 3),
		ClaimMode:         claimMode,
		ShutdownTimeout:   getenvInt("SHUTDOWN_TIMEOUT", 30),

		FallbackSyncMinutes: getenvInt("FALLBACK_SYNC_MINUTES", 15),
		FullSyncHours:       getenvInt("FULL_SYNC_HOURS", 1),
		WatchRenewalHours:   getenvInt("WATCH_RENEWAL_HOURS", 24),
		FullSyncDays:        getenvInt("FULL_SYNC_DAYS", 10),
		FullSyncMaxMessages: getenvInt("FULL_SYNC_MAX_MESSAGES", 50),
		HistoryPageSize:     getenvInt("HISTORY_PAGE_SIZE", 100),
		StaleWatermarkDays:  getenvInt("STALE_WATERMARK_DAYS", 30),

		GoogleClientID:     googleClientID,
		GoogleClientSecret: googleClientSecret,
		PubSubTopic:        pubsubTopic,
		OpenRouterAPIKey:   openRouterAPIKey,
		RouteRulesPath:     getenvDefault("ROUTE_RULES_PATH", "route_rules.json"),
	}, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		fmt.Printf("Warning: invalid %s=%q, using default %d\n", key, v, def)
		return def
	}
	return n
}
