package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	BookingAPIBaseURL          string
	BookingAPIKey              string
	BookingAPITimeout          time.Duration
	BookingAPIRetryMaxAttempts int
	BookingAPIRetryBaseDelay   time.Duration
	UseMockAPI                 bool

	RedisAddr          string
	RedisPassword      string
	RedisTLS           bool
	DraftTTL           time.Duration
	SessionIdleTimeout time.Duration

	DatabaseURL string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	AnalyticsSink     string
	AnalyticsHTTPURL  string
	AnalyticsQueueURL string
	AnalyticsBuffer   int

	AttachmentsBucket string

	SESFromEmail        string
	SESConfigurationSet string
	SendGridAPIKey      string
	EmailFromName       string

	SessionSigningSecret string
	SessionTokenTTL      time.Duration
	CORSAllowedOrigins   []string
	RateLimitRPS         float64
	RateLimitBurst       int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		BookingAPIBaseURL:          strings.TrimRight(getEnv("BOOKING_API_BASE_URL", ""), "/"),
		BookingAPIKey:              getEnv("BOOKING_API_KEY", ""),
		BookingAPITimeout:          getEnvAsDuration("BOOKING_API_TIMEOUT", 8*time.Second),
		BookingAPIRetryMaxAttempts: getEnvAsInt("BOOKING_API_RETRY_MAX_ATTEMPTS", 3),
		BookingAPIRetryBaseDelay:   getEnvAsDuration("BOOKING_API_RETRY_BASE_DELAY", 250*time.Millisecond),
		UseMockAPI:                 getEnvAsBool("USE_MOCK_API", false),

		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisTLS:           getEnvAsBool("REDIS_TLS", false),
		DraftTTL:           getEnvAsDuration("DRAFT_TTL", 72*time.Hour),
		SessionIdleTimeout: getEnvAsDuration("SESSION_IDLE_TIMEOUT", 2*time.Hour),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		AnalyticsSink:     strings.ToLower(strings.TrimSpace(getEnv("ANALYTICS_SINK", "log"))),
		AnalyticsHTTPURL:  getEnv("ANALYTICS_HTTP_URL", ""),
		AnalyticsQueueURL: getEnv("ANALYTICS_QUEUE_URL", ""),
		AnalyticsBuffer:   getEnvAsInt("ANALYTICS_BUFFER", 256),

		AttachmentsBucket: getEnv("ATTACHMENTS_BUCKET", ""),

		SESFromEmail:        getEnv("SES_FROM_EMAIL", ""),
		SESConfigurationSet: getEnv("SES_CONFIGURATION_SET", ""),
		SendGridAPIKey:      getEnv("SENDGRID_API_KEY", ""),
		EmailFromName:       getEnv("EMAIL_FROM_NAME", "Booking Confirmations"),

		SessionSigningSecret: getEnv("SESSION_SIGNING_SECRET", ""),
		SessionTokenTTL:      getEnvAsDuration("SESSION_TOKEN_TTL", 24*time.Hour),
		CORSAllowedOrigins:   getEnvAsList("CORS_ALLOWED_ORIGINS"),
		RateLimitRPS:         getEnvAsFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:       getEnvAsInt("RATE_LIMIT_BURST", 20),
	}
}

// Validate reports settings the API cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.BookingAPIBaseURL == "" && !c.UseMockAPI {
		errs = append(errs, errors.New("BOOKING_API_BASE_URL is required unless USE_MOCK_API=true"))
	}
	if c.SessionSigningSecret == "" && c.Env == "production" {
		errs = append(errs, errors.New("SESSION_SIGNING_SECRET is required in production"))
	}
	switch c.AnalyticsSink {
	case "log", "none":
	case "http":
		if c.AnalyticsHTTPURL == "" {
			errs = append(errs, errors.New("ANALYTICS_HTTP_URL is required for the http analytics sink"))
		}
	case "sqs":
		if c.AnalyticsQueueURL == "" {
			errs = append(errs, errors.New("ANALYTICS_QUEUE_URL is required for the sqs analytics sink"))
		}
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres analytics sink"))
		}
	default:
		errs = append(errs, errors.New("ANALYTICS_SINK must be one of log, http, sqs, postgres, none"))
	}
	return errors.Join(errs...)
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
