package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	Port        string
	Env         string
	APIUrl      string
	FrontendURL string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	DBTimeZone string

	// Elevated database credential, used as a one-shot fallback when the
	// primary role is denied a write. Optional; reconciliation works without it.
	DBServiceUser     string
	DBServicePassword string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// JWT
	JWTSecret        string
	JWTTokenDuration time.Duration

	// Admin credential for issuing sync tokens
	AdminUsername     string
	AdminPasswordHash string

	// Spotify
	SpotifyClientID     string
	SpotifyClientSecret string

	// Ticketmaster
	TicketmasterAPIKey string

	// Setlist.fm
	SetlistFMAPIKey string

	// Sync behavior
	ArtistStaleness    time.Duration
	ShowStaleness      time.Duration
	VenueStaleness     time.Duration
	TrackStaleness     time.Duration
	SyncCooldown       time.Duration
	ExternalAPITimeout time.Duration

	// Voting
	AnonVoteDailyLimit int

	// Background workers
	BackgroundWorkers   int
	BackgroundQueueSize int

	// Security
	RateLimitRequests int
	RateLimitDuration time.Duration

	// CORS
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

func New() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		APIUrl:      getEnv("API_URL", "http://localhost:8080"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),

		// Database
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "theset"),
		DBPassword: getEnv("DB_PASSWORD", "password"),
		DBName:     getEnv("DB_NAME", "theset_db"),
		DBSSLMode:  getEnv("DB_SSL_MODE", "disable"),
		DBTimeZone: getEnv("DB_TIMEZONE", "UTC"),

		DBServiceUser:     getEnv("DB_SERVICE_USER", ""),
		DBServicePassword: getEnv("DB_SERVICE_PASSWORD", ""),

		// Redis
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// JWT
		JWTSecret:        getEnv("JWT_SECRET", "your-secret-key"),
		JWTTokenDuration: getEnvAsDuration("JWT_TOKEN_DURATION", "24h"),

		// Admin
		AdminUsername:     getEnv("ADMIN_USERNAME", "admin"),
		AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),

		// External APIs
		SpotifyClientID:     getEnv("SPOTIFY_CLIENT_ID", ""),
		SpotifyClientSecret: getEnv("SPOTIFY_CLIENT_SECRET", ""),
		TicketmasterAPIKey:  getEnv("TICKETMASTER_API_KEY", ""),
		SetlistFMAPIKey:     getEnv("SETLISTFM_API_KEY", ""),

		// Sync behavior
		ArtistStaleness:    getEnvAsDuration("ARTIST_STALENESS", "24h"),
		ShowStaleness:      getEnvAsDuration("SHOW_STALENESS", "24h"),
		VenueStaleness:     getEnvAsDuration("VENUE_STALENESS", "24h"),
		TrackStaleness:     getEnvAsDuration("TRACK_STALENESS", "168h"),
		SyncCooldown:       getEnvAsDuration("SYNC_COOLDOWN", "1h"),
		ExternalAPITimeout: getEnvAsDuration("EXTERNAL_API_TIMEOUT", "15s"),

		// Voting
		AnonVoteDailyLimit: getEnvAsInt("ANON_VOTE_DAILY_LIMIT", 10),

		// Background workers
		BackgroundWorkers:   getEnvAsInt("BACKGROUND_WORKERS", 4),
		BackgroundQueueSize: getEnvAsInt("BACKGROUND_QUEUE_SIZE", 256),

		// Security
		RateLimitRequests: getEnvAsInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitDuration: getEnvAsDuration("RATE_LIMIT_DURATION", "1m"),

		// CORS
		AllowedOrigins: getEnvAsSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000", "https://theset.live"}),
		AllowedMethods: getEnvAsSlice("ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		AllowedHeaders: getEnvAsSlice("ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
	}
}

// ValidateSync checks that everything the sync scripts need is present.
// The API server degrades gracefully without adapter keys; the sync runner
// must fail fast instead, since it has no user flow to degrade for.
func (c *Config) ValidateSync() error {
	var missing []string
	if c.DBHost == "" || c.DBName == "" || c.DBUser == "" {
		missing = append(missing, "DB_HOST/DB_NAME/DB_USER")
	}
	if c.SpotifyClientID == "" || c.SpotifyClientSecret == "" {
		missing = append(missing, "SPOTIFY_CLIENT_ID/SPOTIFY_CLIENT_SECRET")
	}
	if c.TicketmasterAPIKey == "" {
		missing = append(missing, "TICKETMASTER_API_KEY")
	}
	if c.SetlistFMAPIKey == "" {
		missing = append(missing, "SETLISTFM_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// HasElevatedDB reports whether a service-role credential is configured.
func (c *Config) HasElevatedDB() bool {
	return c.DBServiceUser != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	if duration, err := time.ParseDuration(defaultValue); err == nil {
		return duration
	}
	return time.Hour
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	return strings.Split(valueStr, ",")
}
