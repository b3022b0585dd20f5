package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete configuration for the CDR intelligence engine
type Config struct {
	Environment string           `mapstructure:"environment"`
	Debug       bool             `mapstructure:"debug"`
	Server      ServerConfig     `mapstructure:"server"`
	Database    DatabaseConfig   `mapstructure:"database"`
	Redis       RedisConfig      `mapstructure:"redis"`
	Kafka       KafkaConfig      `mapstructure:"kafka"`
	Search      SearchConfig     `mapstructure:"search"`
	Monitoring  MonitoringConfig `mapstructure:"monitoring"`
	Diagram     DiagramConfig    `mapstructure:"diagram"`
	Logging     LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	HTTPPort        int           `mapstructure:"http_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig contains database configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// ConnectionString builds a Postgres DSN from the database configuration
func (c DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Name, c.Username, c.Password, c.SSLMode)
}

// RedisConfig contains Redis configuration for the monitoring store
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// Addr returns the host:port address of the Redis server
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// KafkaConfig contains Kafka configuration
type KafkaConfig struct {
	Enabled bool         `mapstructure:"enabled"`
	Brokers []string     `mapstructure:"brokers"`
	GroupID string       `mapstructure:"group_id"`
	Topics  TopicsConfig `mapstructure:"topics"`
}

// TopicsConfig contains Kafka topic configuration
type TopicsConfig struct {
	// Input topics
	CdrIngested string `mapstructure:"cdr_ingested"`

	// Output topics
	FraudAlert string `mapstructure:"fraud_alert"`
}

// SearchConfig contains CDR search configuration
type SearchConfig struct {
	MaxConcurrentFetches int           `mapstructure:"max_concurrent_fetches"`
	FetchTimeout         time.Duration `mapstructure:"fetch_timeout"`
	MaxTrackedIdentifiers int          `mapstructure:"max_tracked_identifiers"`
	TopLocations         int           `mapstructure:"top_locations"`
}

// MonitoringConfig contains fraud monitoring configuration
type MonitoringConfig struct {
	RefreshInterval   time.Duration `mapstructure:"refresh_interval"`
	AlertHistoryLimit int           `mapstructure:"alert_history_limit"`
}

// DiagramConfig contains link diagram configuration
type DiagramConfig struct {
	AllowedPrefixes []string `mapstructure:"allowed_prefixes"`
	MaxRootNumbers  int      `mapstructure:"max_root_numbers"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/cdr-intel")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvPrefix("CDR_INTEL")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// General
	viper.SetDefault("environment", "development")
	viper.SetDefault("debug", false)

	// Server
	viper.SetDefault("server.http_port", 8091)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "60s")
	viper.SetDefault("server.shutdown_timeout", "15s")

	// Database
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "cdr_intel")
	viper.SetDefault("database.username", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("database.migrations_path", "file://migrations")

	// Redis
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 10)

	// Kafka
	viper.SetDefault("kafka.enabled", false)
	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.group_id", "cdr-intel")
	viper.SetDefault("kafka.topics.cdr_ingested", "cdr-ingested")
	viper.SetDefault("kafka.topics.fraud_alert", "fraud-alert")

	// Search
	viper.SetDefault("search.max_concurrent_fetches", 8)
	viper.SetDefault("search.fetch_timeout", "30s")
	viper.SetDefault("search.max_tracked_identifiers", 10)
	viper.SetDefault("search.top_locations", 10)

	// Monitoring
	viper.SetDefault("monitoring.refresh_interval", "10m")
	viper.SetDefault("monitoring.alert_history_limit", 40)

	// Diagram
	viper.SetDefault("diagram.allowed_prefixes", []string{"70", "75", "76", "77", "78"})
	viper.SetDefault("diagram.max_root_numbers", 5)

	// Logging
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
}
