package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the compliance engine.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Elasticsearch ElasticsearchConfig
	Kafka         KafkaConfig
	S3            S3Config
	Encryption    EncryptionConfig
	Auth          AuthConfig
	Risk          RiskConfig
	GST           GSTConfig
	Audit         AuditConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the database connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration for the velocity window store.
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
}

// Addr returns the Redis address.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ElasticsearchConfig holds Elasticsearch configuration.
type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

// KafkaConfig holds Kafka configuration.
type KafkaConfig struct {
	Brokers          []string `mapstructure:"brokers"`
	ConsumerGroup    string   `mapstructure:"consumer_group"`
	TransactionTopic string   `mapstructure:"transaction_topic"`
	ConsentTopic     string   `mapstructure:"consent_topic"`
	RegulatorTopic   string   `mapstructure:"regulator_topic"`
	AlertTopic       string   `mapstructure:"alert_topic"`
}

// S3Config holds object storage configuration for exports and archives.
type S3Config struct {
	Region        string `mapstructure:"region"`
	ExportBucket  string `mapstructure:"export_bucket"`
	ReportsBucket string `mapstructure:"reports_bucket"`
	Endpoint      string `mapstructure:"endpoint"` // for local testing with MinIO
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	PublicBaseURL string `mapstructure:"public_base_url"`
}

// EncryptionConfig holds audit-entry signing and sealing settings.
type EncryptionConfig struct {
	KeysBase64        []string `mapstructure:"keys"`
	CurrentKeyVersion int      `mapstructure:"current_key_version"`
	HMACSecret        string   `mapstructure:"hmac_secret"`
}

// AuthConfig holds authentication settings for the admin API.
type AuthConfig struct {
	JWTPublicKeyPath string `mapstructure:"jwt_public_key_path"`
	JWTIssuer        string `mapstructure:"jwt_issuer"`
}

// RiskConfig holds scoring thresholds and windows. The statutory dollar
// values are deployment configuration, not code.
type RiskConfig struct {
	ThresholdAmount      string        `mapstructure:"threshold_amount"`       // absolute reporting limit, e.g. "10000"
	StructuringMarginPct float64       `mapstructure:"structuring_margin_pct"` // band below the limit, e.g. 0.10
	VelocityWindow       time.Duration `mapstructure:"velocity_window"`
	VelocityMaxCount     int64         `mapstructure:"velocity_max_count"`
	VelocityMaxSum       string        `mapstructure:"velocity_max_sum"`
	ReviewThreshold      float64       `mapstructure:"review_threshold"`
	HighRiskThreshold    float64       `mapstructure:"high_risk_threshold"`
	ReportingThreshold   float64       `mapstructure:"reporting_threshold"`
	SubmitMaxRetries     int           `mapstructure:"submit_max_retries"`
	SubmitRetryBackoff   time.Duration `mapstructure:"submit_retry_backoff"`
}

// GSTConfig holds tax classification settings.
type GSTConfig struct {
	Rate string `mapstructure:"rate"` // e.g. "0.10"
}

// AuditConfig holds recorder retry settings.
type AuditConfig struct {
	WriteMaxRetries   int           `mapstructure:"write_max_retries"`
	WriteRetryBackoff time.Duration `mapstructure:"write_retry_backoff"`
}

// Load loads configuration from environment and config files.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("COMPLIANCE")
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8086)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "compliance_engine")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("database.conn_max_idle_time", "5m")

	// Redis
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 3)
	v.SetDefault("redis.dial_timeout", "5s")

	// Elasticsearch
	v.SetDefault("elasticsearch.addresses", []string{"http://localhost:9200"})
	v.SetDefault("elasticsearch.username", "elastic")
	v.SetDefault("elasticsearch.password", "changeme")
	v.SetDefault("elasticsearch.index", "compliance-audit")

	// Kafka
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.consumer_group", "compliance-engine")
	v.SetDefault("kafka.transaction_topic", "banking.transactions")
	v.SetDefault("kafka.consent_topic", "banking.consent.events")
	v.SetDefault("kafka.regulator_topic", "compliance.regulator.submissions")
	v.SetDefault("kafka.alert_topic", "compliance.operational.alerts")

	// S3
	v.SetDefault("s3.region", "ap-southeast-2")
	v.SetDefault("s3.export_bucket", "compliance-data-exports")
	v.SetDefault("s3.reports_bucket", "compliance-reports")
	v.SetDefault("s3.public_base_url", "")

	// Encryption
	v.SetDefault("encryption.current_key_version", 1)

	// Auth
	v.SetDefault("auth.jwt_public_key_path", "./keys/jwt_public.pem")
	v.SetDefault("auth.jwt_issuer", "banking-auth-service")

	// Risk
	v.SetDefault("risk.threshold_amount", "10000")
	v.SetDefault("risk.structuring_margin_pct", 0.10)
	v.SetDefault("risk.velocity_window", "24h")
	v.SetDefault("risk.velocity_max_count", 20)
	v.SetDefault("risk.velocity_max_sum", "50000")
	v.SetDefault("risk.review_threshold", 0.5)
	v.SetDefault("risk.high_risk_threshold", 0.75)
	v.SetDefault("risk.reporting_threshold", 0.9)
	v.SetDefault("risk.submit_max_retries", 5)
	v.SetDefault("risk.submit_retry_backoff", "2s")

	// GST
	v.SetDefault("gst.rate", "0.10")

	// Audit
	v.SetDefault("audit.write_max_retries", 3)
	v.SetDefault("audit.write_retry_backoff", "500ms")
}
