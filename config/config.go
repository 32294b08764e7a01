package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	OpsChannel         string

	// Reservation configuration
	ReservationTTL time.Duration
	SweepInterval  time.Duration

	// Ticket code configuration
	CodeSecret string

	// Check-in retry configuration
	CheckinRetryAttempts uint
	CheckinRetryDelay    time.Duration

	// Monitoring
	EnableMetrics bool
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
		OpsChannel:         getEnv("OPS_ALERT_CHANNEL", "ops-alerts"),

		// Reservations: cart abandonment window and sweep cadence
		ReservationTTL: getEnvAsDuration("RESERVATION_TTL", "15m"),
		SweepInterval:  getEnvAsDuration("SWEEP_INTERVAL", "1m"),

		// Ticket codes
		CodeSecret: getEnv("TICKET_CODE_SECRET", "dev-only-secret"),

		// Check-in
		CheckinRetryAttempts: uint(getEnvAsInt("CHECKIN_RETRY_ATTEMPTS", 3)),
		CheckinRetryDelay:    getEnvAsDuration("CHECKIN_RETRY_DELAY", "50ms"),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
	}
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

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
