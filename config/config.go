package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/joho/godotenv"
)

// Provider names accepted in LLM_PROVIDER.
const (
	ProviderGemini = "gemini"
	ProviderStub   = "stub"
)

// Config holds all configuration for the pest diagnosis service
type Config struct {
	// Server configuration
	Port           string
	RequestTimeout time.Duration
	AllowedOrigins []string

	// Rate limiting
	RateLimitPerMinute int

	// Generation backend
	LLMProvider           string
	GeminiAPIURL          string
	GeminiAPIKey          string
	GeminiModel           string
	GeminiTimeout         time.Duration
	GeminiMaxRetries      int
	GeminiBreakerFailures int
	GeminiBreakerOpenFor  time.Duration

	// Diagnosis behaviour
	InvalidImageMarkers []string
	NormalizeCandidates bool
	MaxImageBytes       int
	MaxImageDimension   int
	MaxImagePixels      int

	// Events (disabled when AMQPURL is empty)
	AMQPURL      string
	AMQPExchange string

	// Logging
	LogLevel string
}

// Load reads an optional .env file and then the environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("config.dotenv_unreadable")
	}

	return &Config{
		Port:           getEnv("PORT", "8080"),
		RequestTimeout: getDurationEnv("REQUEST_TIMEOUT", 120*time.Second),
		AllowedOrigins: getStringSliceEnv("ALLOWED_ORIGINS", "*"),

		RateLimitPerMinute: getIntEnv("RATE_LIMIT_PER_MINUTE", 30),

		LLMProvider:           strings.ToLower(getEnv("LLM_PROVIDER", ProviderGemini)),
		GeminiAPIURL:          getEnv("GEMINI_API_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GeminiModel:           getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		GeminiTimeout:         getDurationEnv("GEMINI_TIMEOUT", 60*time.Second),
		GeminiMaxRetries:      getIntEnv("GEMINI_MAX_RETRIES", 2),
		GeminiBreakerFailures: getIntEnv("GEMINI_BREAKER_FAILURES", 5),
		GeminiBreakerOpenFor:  getDurationEnv("GEMINI_BREAKER_OPEN_FOR", 30*time.Second),

		InvalidImageMarkers: getStringSliceEnv("INVALID_IMAGE_MARKERS", "không hợp lệ,invalid"),
		NormalizeCandidates: getBoolEnv("NORMALIZE_CANDIDATES", true),
		MaxImageBytes:       getIntEnv("MAX_IMAGE_BYTES", 10<<20),
		MaxImageDimension:   getIntEnv("MAX_IMAGE_DIMENSION", 1024),
		MaxImagePixels:      getIntEnv("MAX_IMAGE_PIXELS", 40_000_000),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "pest-diagnosis"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// getStringSliceEnv splits a comma-separated variable, dropping blank entries.
func getStringSliceEnv(key, defaultValue string) []string {
	value := getEnv(key, defaultValue)
	out := []string{}
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv gets a duration environment variable or returns a default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getIntEnv gets an integer environment variable or returns a default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
