package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration. It is assembled once at
// startup and passed by reference; business logic never reads the
// environment directly.
type Config struct {
	Server     ServerConfig     `json:"server"`
	Redis      RedisConfig      `json:"redis"`
	Zendesk    ZendeskConfig    `json:"zendesk"`
	Slack      SlackConfig      `json:"slack"`
	Bedrock    BedrockConfig    `json:"bedrock"`
	Storage    StorageConfig    `json:"storage"`
	Vector     VectorConfig     `json:"vector"`
	Resilience ResilienceConfig `json:"resilience"`
	Logging    LoggingConfig    `json:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	Environment    string        `json:"environment"`
	AllowedOrigins []string      `json:"allowed_origins"`
	ReadTimeout    time.Duration `json:"read_timeout"`
	WriteTimeout   time.Duration `json:"write_timeout"`
	IdleTimeout    time.Duration `json:"idle_timeout"`
	// RequestDeadline bounds one pipeline execution end to end.
	RequestDeadline time.Duration `json:"request_deadline"`
}

// RedisConfig contains Redis connection configuration
type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// ZendeskConfig contains ticket-system configuration
type ZendeskConfig struct {
	Domain        string `json:"domain"`
	Email         string `json:"email"`
	APIToken      string `json:"api_token"`
	WebhookSecret string `json:"webhook_secret"`
	// MarkerTag is the tag that makes a ticket eligible for SME matching.
	MarkerTag string `json:"marker_tag"`
}

// SlackConfig contains chat-system configuration
type SlackConfig struct {
	BotToken       string `json:"bot_token"`
	HandoffChannel string `json:"handoff_channel"`
	SecretName     string `json:"secret_name"`
}

// BedrockConfig contains agent and embedding model configuration
type BedrockConfig struct {
	Region           string        `json:"region"`
	AgentID          string        `json:"agent_id"`
	AgentAliasID     string        `json:"agent_alias_id"`
	EmbeddingModelID string        `json:"embedding_model_id"`
	RequestTimeout   time.Duration `json:"request_timeout"`
}

// StorageConfig contains object-storage configuration
type StorageConfig struct {
	TicketBucket string `json:"ticket_bucket"`
}

// VectorConfig contains vector-index configuration
type VectorConfig struct {
	Endpoint  string `json:"endpoint"`
	APIKey    string `json:"api_key"`
	IndexName string `json:"index_name"`
	Namespace string `json:"namespace"`
}

// ResilienceConfig contains retry and circuit-breaker tuning. These are
// deliberately configuration, not constants.
type ResilienceConfig struct {
	MaxAttempts       int           `json:"max_attempts"`
	BaseDelay         time.Duration `json:"base_delay"`
	BackoffMultiplier float64       `json:"backoff_multiplier"`
	MaxDelay          time.Duration `json:"max_delay"`
	FailureThreshold  int           `json:"failure_threshold"`
	Cooldown          time.Duration `json:"cooldown"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	Output string `json:"output"`
}

// Load loads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Host:            getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			Environment:     getEnvString("ENVIRONMENT", "development"),
			AllowedOrigins:  getEnvStringSlice("CORS_ALLOWED_ORIGINS", nil),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 120*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			RequestDeadline: getEnvDuration("SERVER_REQUEST_DEADLINE", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:     getEnvString("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnvString("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 10),
		},
		Zendesk: ZendeskConfig{
			Domain:        getEnvString("ZENDESK_DOMAIN", ""),
			Email:         getEnvString("ZENDESK_EMAIL", ""),
			APIToken:      getEnvString("ZENDESK_API_TOKEN", ""),
			WebhookSecret: getEnvString("ZENDESK_WEBHOOK_SECRET", ""),
			MarkerTag:     getEnvString("ZENDESK_SME_TAG", "need_sme"),
		},
		Slack: SlackConfig{
			BotToken:       getEnvString("SLACK_BOT_TOKEN", ""),
			HandoffChannel: getEnvString("SLACK_CHANNEL_HANDOFFS", "#sme-handoffs"),
			SecretName:     getEnvString("SLACK_SECRET_NAME", "slack/bot-credentials"),
		},
		Bedrock: BedrockConfig{
			Region:           getEnvString("AWS_REGION", "us-east-1"),
			AgentID:          getEnvString("BEDROCK_AGENT_ID", ""),
			AgentAliasID:     getEnvString("BEDROCK_AGENT_ALIAS_ID", ""),
			EmbeddingModelID: getEnvString("BEDROCK_EMBEDDING_MODEL_ID", "amazon.titan-embed-text-v2:0"),
			RequestTimeout:   getEnvDuration("BEDROCK_REQUEST_TIMEOUT", 60*time.Second),
		},
		Storage: StorageConfig{
			TicketBucket: getEnvString("S3_BUCKET_TICKETS", "zendesk-sme-tickets"),
		},
		Vector: VectorConfig{
			Endpoint:  getEnvString("PINECONE_ENDPOINT", ""),
			APIKey:    getEnvString("PINECONE_API_KEY", ""),
			IndexName: getEnvString("PINECONE_INDEX_NAME", "zendesk-sme-finder"),
			Namespace: getEnvString("PINECONE_NAMESPACE", "tickets"),
		},
		Resilience: ResilienceConfig{
			MaxAttempts:       getEnvInt("RETRY_MAX_ATTEMPTS", 5),
			BaseDelay:         getEnvDuration("RETRY_BASE_DELAY", 1*time.Second),
			BackoffMultiplier: getEnvFloat("RETRY_BACKOFF_MULTIPLIER", 2.0),
			MaxDelay:          getEnvDuration("RETRY_MAX_DELAY", 32*time.Second),
			FailureThreshold:  getEnvInt("CIRCUIT_FAILURE_THRESHOLD", 5),
			Cooldown:          getEnvDuration("CIRCUIT_COOLDOWN", 60*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnvString("LOG_LEVEL", "info"),
			Format: getEnvString("LOG_FORMAT", "json"),
			Output: getEnvString("LOG_OUTPUT", "stdout"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Zendesk.WebhookSecret == "" {
		return fmt.Errorf("zendesk webhook secret is required")
	}
	if c.Bedrock.AgentID == "" || c.Bedrock.AgentAliasID == "" {
		return fmt.Errorf("bedrock agent ID and alias ID are required")
	}
	if c.Resilience.MaxAttempts < 1 {
		return fmt.Errorf("retry max attempts must be at least 1")
	}
	if c.Resilience.BackoffMultiplier <= 1.0 {
		return fmt.Errorf("backoff multiplier must be greater than 1.0")
	}
	if c.Resilience.FailureThreshold < 1 {
		return fmt.Errorf("circuit failure threshold must be at least 1")
	}
	return nil
}

// BaseURL returns the ticket-system base URL without a path
func (z ZendeskConfig) BaseURL() string {
	return fmt.Sprintf("https://%s", z.Domain)
}

// TicketURL returns the agent-facing URL of a ticket
func (z ZendeskConfig) TicketURL(ticketID string) string {
	return fmt.Sprintf("https://%s/agent/tickets/%s", z.Domain, ticketID)
}

// RedisAddr returns the Redis address in host:port form
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
