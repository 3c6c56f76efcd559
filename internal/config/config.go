package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

var ErrEmptyEnvironmentVariable = errors.New("empty environment variable")

// Audio formats the realtime session can be configured with.
const (
	AudioFormatG711Ulaw = "g711_ulaw"
	AudioFormatPCM16    = "pcm16"
)

// Config holds all application configuration
type Config struct {
	Database   DatabaseConfig
	Server     ServerConfig
	OpenAI     OpenAIConfig
	Scheduling SchedulingConfig
	Auth       AuthConfig
	Kafka      KafkaConfig
	Redis      RedisConfig
	Services   ServicesConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string
	Username string
	Password string
	Name     string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int
	// PublicHost is the externally reachable hostname used to build the
	// media-stream WebSocket URL handed to the telephony provider.
	PublicHost string
}

// OpenAIConfig holds realtime session and REST API configuration
type OpenAIConfig struct {
	APIKey        string
	RealtimeURL   string
	RealtimeModel string
	// AudioFormat is declared symmetrically for session input and output.
	// One of AudioFormatG711Ulaw or AudioFormatPCM16.
	AudioFormat string
}

// SchedulingConfig holds appointment scheduling configuration
type SchedulingConfig struct {
	// Timezone is the IANA zone name the business window is evaluated in.
	Timezone string
}

// AuthConfig holds authentication-related configuration
type AuthConfig struct {
	JWTSecret string
}

// KafkaConfig holds event streaming configuration. An empty broker list
// disables event publishing.
type KafkaConfig struct {
	Brokers string
	Topic   string
}

// RedisConfig holds Redis connection settings for the webhook rate limiter
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// ServicesConfig holds external service API keys and configuration
type ServicesConfig struct {
	ResendAPIKey       string
	DefaultEmailSender string
	WebAppURI          string
}

// Load reads and validates all required environment variables
func Load() (*Config, error) {
	// Load env.local in non-production environments
	if os.Getenv("GO_ENV") != "production" {
		if err := godotenv.Load("env.local"); err != nil {
			return nil, fmt.Errorf("failed to load env.local: %w", err)
		}
	}

	cfg := &Config{}

	// Database configuration
	var err error
	if cfg.Database.Host, err = requireEnv("DB_HOST"); err != nil {
		return nil, err
	}
	if cfg.Database.Username, err = requireEnv("DB_USERNAME"); err != nil {
		return nil, err
	}
	if cfg.Database.Password, err = requireEnv("DB_PASSWORD"); err != nil {
		return nil, err
	}
	if cfg.Database.Name, err = requireEnv("DB_NAME"); err != nil {
		return nil, err
	}

	// Server configuration
	serverPort, err := requireEnv("SERVER_PORT")
	if err != nil {
		return nil, err
	}
	cfg.Server.Port, err = strconv.Atoi(serverPort)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SERVER_PORT: %w", err)
	}
	if cfg.Server.PublicHost, err = requireEnv("PUBLIC_HOST"); err != nil {
		return nil, err
	}

	// OpenAI configuration
	if cfg.OpenAI.APIKey, err = requireEnv("OPENAI_API_KEY"); err != nil {
		return nil, err
	}
	cfg.OpenAI.RealtimeURL = getEnvWithDefault("OPENAI_REALTIME_URL", "wss://api.openai.com/v1/realtime")
	cfg.OpenAI.RealtimeModel = getEnvWithDefault("OPENAI_REALTIME_MODEL", "gpt-4o-realtime-preview")
	cfg.OpenAI.AudioFormat = getEnvWithDefault("OPENAI_AUDIO_FORMAT", AudioFormatG711Ulaw)
	if cfg.OpenAI.AudioFormat != AudioFormatG711Ulaw && cfg.OpenAI.AudioFormat != AudioFormatPCM16 {
		return nil, fmt.Errorf("unsupported OPENAI_AUDIO_FORMAT: %s", cfg.OpenAI.AudioFormat)
	}

	// Scheduling configuration
	cfg.Scheduling.Timezone = getEnvWithDefault("BUSINESS_TIMEZONE", "America/New_York")

	// Auth configuration
	if cfg.Auth.JWTSecret, err = requireEnv("JWT_SECRET"); err != nil {
		return nil, err
	}

	// Kafka configuration (optional)
	cfg.Kafka.Brokers = os.Getenv("KAFKA_BROKERS")
	cfg.Kafka.Topic = getEnvWithDefault("KAFKA_TOPIC", "frontdesk.call-events")

	// Redis configuration (optional)
	cfg.Redis.Enabled = getEnvWithDefault("REDIS_ENABLED", "false") == "true"
	if cfg.Redis.Enabled {
		if cfg.Redis.Host, err = requireEnv("REDIS_HOST"); err != nil {
			return nil, err
		}
		redisPort := getEnvWithDefault("REDIS_PORT", "6379")
		cfg.Redis.Port, err = strconv.Atoi(redisPort)
		if err != nil {
			return nil, fmt.Errorf("failed to parse REDIS_PORT: %w", err)
		}
		cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
		redisDB := getEnvWithDefault("REDIS_DB", "0")
		cfg.Redis.DB, err = strconv.Atoi(redisDB)
		if err != nil {
			return nil, fmt.Errorf("failed to parse REDIS_DB: %w", err)
		}
	}

	// Services configuration
	cfg.Services.ResendAPIKey = os.Getenv("RESEND_API_KEY")
	cfg.Services.DefaultEmailSender = getEnvWithDefault("DEFAULT_EMAIL_SENDER_ADDRESS", "frontdesk@notifications.local")
	if cfg.Services.WebAppURI, err = requireEnv("WEBAPP_URI"); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s",
		c.Username, c.Password, c.Host, c.Name)
}

// requireEnv retrieves an environment variable or returns an error if empty
func requireEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("%s is not set: %w", key, ErrEmptyEnvironmentVariable)
	}
	return value, nil
}

// getEnvWithDefault retrieves an environment variable or returns a default value
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
