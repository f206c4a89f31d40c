package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Hub      HubConfig      `mapstructure:"hub"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Agent    AgentConfig    `mapstructure:"agent"`
	Security SecurityConfig `mapstructure:"security"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type DatabaseConfig struct {
	Driver     string `mapstructure:"driver"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	Database   string `mapstructure:"database"`
	SSLMode    string `mapstructure:"ssl_mode"`
	MaxConns   int32  `mapstructure:"max_conns"`
	MinConns   int32  `mapstructure:"min_conns"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// KeyPrefix namespaces every key the hub writes
	KeyPrefix string `mapstructure:"key_prefix"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type AuthConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

type HubConfig struct {
	ClaimTTL       time.Duration `mapstructure:"claim_ttl"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	HistoryLimit   int           `mapstructure:"history_limit"`
}

type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

func (c KafkaConfig) Enabled() bool {
	return strings.TrimSpace(c.Brokers) != ""
}

type AgentConfig struct {
	ServerURL string          `mapstructure:"server_url"`
	WSURL     string          `mapstructure:"ws_url"`
	Email     string          `mapstructure:"email"`
	Password  string          `mapstructure:"password"`
	Reconnect ReconnectConfig `mapstructure:"reconnect"`
}

// WebSocketURL returns ws_url, or server_url with its scheme switched to ws
func (c AgentConfig) WebSocketURL() string {
	if c.WSURL != "" {
		return c.WSURL
	}
	switch {
	case strings.HasPrefix(c.ServerURL, "https://"):
		return "wss://" + strings.TrimPrefix(c.ServerURL, "https://")
	case strings.HasPrefix(c.ServerURL, "http://"):
		return "ws://" + strings.TrimPrefix(c.ServerURL, "http://")
	}
	return c.ServerURL
}

type ReconnectConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Initial  time.Duration `mapstructure:"initial"`
	Max      time.Duration `mapstructure:"max"`
	Attempts int           `mapstructure:"attempts"`
}

type SecurityConfig struct {
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	Burst             int `mapstructure:"burst"`
}

type LoggingConfig struct {
	Level  string        `mapstructure:"level"`
	Format string        `mapstructure:"format"`
	File   string        `mapstructure:"file"`
	MaxAge time.Duration `mapstructure:"max_age"`
}

// Load reads configuration from file and environment variables
func Load() (*Config, error) {
	v := viper.New()

	// Set config file path
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./configs/config.yaml"
	}

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and env vars
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	// Database
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "handoff")
	v.SetDefault("database.database", "handoff")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.sqlite_path", "handoff.db")

	// Redis
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "handoff:")

	// Auth
	v.SetDefault("auth.access_token_ttl", "12h")

	// Hub
	v.SetDefault("hub.claim_ttl", "12h")
	v.SetDefault("hub.write_timeout", "10s")
	v.SetDefault("hub.send_buffer", 64)
	v.SetDefault("hub.allowed_origins", []string{"*"})
	v.SetDefault("hub.history_limit", 200)

	// Kafka
	v.SetDefault("kafka.topic", "ticket-events")

	// Agent CLI
	v.SetDefault("agent.server_url", "http://localhost:8080")
	v.SetDefault("agent.reconnect.enabled", false)
	v.SetDefault("agent.reconnect.initial", "1s")
	v.SetDefault("agent.reconnect.max", "30s")
	v.SetDefault("agent.reconnect.attempts", 10)

	// Security
	v.SetDefault("security.rate_limit.requests_per_minute", 120)
	v.SetDefault("security.rate_limit.burst", 20)

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.max_age", "168h") // 7 days
}

func bindEnvVars(v *viper.Viper) {
	// Database
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.password", "POSTGRES_PASSWORD")
	v.BindEnv("database.sqlite_path", "SQLITE_PATH")

	// Redis
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Auth
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")

	// Kafka
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")

	// Agent CLI
	v.BindEnv("agent.server_url", "HANDOFF_SERVER_URL")
	v.BindEnv("agent.email", "HANDOFF_AGENT_EMAIL")
	v.BindEnv("agent.password", "HANDOFF_AGENT_PASSWORD")
}
