package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Server captures process level configuration. Every key can be set through the
// environment (upper snake case, e.g. PAYMENT_VERIFY_TIMEOUT) or a YAML file named
// by ADMISSIONS_CONFIG; the environment wins.
type Server struct {
	Addr        string `mapstructure:"addr"`
	LogLevel    string `mapstructure:"log_level"`
	Environment string `mapstructure:"environment"`

	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Payment  PaymentConfig  `mapstructure:"payment"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	Receipt  ReceiptConfig  `mapstructure:"receipt"`
	Auth     AuthConfig     `mapstructure:"auth"`
}

// PostgresConfig selects the system of record. An empty DSN runs on in-memory stores.
type PostgresConfig struct {
	DSN          string        `mapstructure:"dsn"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	ConnMaxIdle  time.Duration `mapstructure:"conn_max_idle"`
	TxTimeout    time.Duration `mapstructure:"tx_timeout"`
}

// RedisConfig configures the lock backend. An empty URL uses in-process locks.
type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// KafkaConfig configures the audit outbox relay. No brokers disables the relay.
type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	AuditTopic   string        `mapstructure:"audit_topic"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
}

// GatewayConfig holds payment gateway credentials. Simulate serves a local
// stand-in for the gateway API and is refused in production.
type GatewayConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	KeyID     string        `mapstructure:"key_id"`
	KeySecret string        `mapstructure:"key_secret"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Simulate  bool          `mapstructure:"simulate"`
}

// PaymentConfig tunes the payment core.
type PaymentConfig struct {
	Currency          string        `mapstructure:"currency"`
	MethodLabel       string        `mapstructure:"method_label"`
	VerifyTimeout     time.Duration `mapstructure:"verify_timeout"`
	LockTTL           time.Duration `mapstructure:"lock_ttl"`
	AsyncSideEffects  bool          `mapstructure:"async_side_effects"`
	SideEffectTimeout time.Duration `mapstructure:"side_effect_timeout"`
	SequenceNode      int64         `mapstructure:"sequence_node"`
}

// SMTPConfig configures outbound mail. An empty host logs messages instead of sending.
type SMTPConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	From         string `mapstructure:"from"`
	MaxRetries   uint64 `mapstructure:"max_retries"`
	DashboardURL string `mapstructure:"dashboard_url"`
}

// ReceiptConfig controls receipt rendering and archival. An empty bucket keeps
// archived receipts in memory.
type ReceiptConfig struct {
	IssuerName string `mapstructure:"issuer_name"`
	Bucket     string `mapstructure:"bucket"`
	Prefix     string `mapstructure:"prefix"`
	Region     string `mapstructure:"region"`
}

// AuthConfig configures identity tokens.
type AuthConfig struct {
	JWTSigningKey string        `mapstructure:"jwt_signing_key"`
	Issuer        string        `mapstructure:"issuer"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	BcryptCost    int           `mapstructure:"bcrypt_cost"`
}

var defaults = map[string]any{
	"addr":        ":8080",
	"log_level":   "info",
	"environment": "development",

	"postgres.max_open_conns": 20,
	"postgres.max_idle_conns": 5,
	"postgres.conn_max_idle":  5 * time.Minute,
	"postgres.tx_timeout":     5 * time.Second,
	"postgres.dsn":            "",

	"redis.url":            "",
	"redis.pool_size":      10,
	"redis.min_idle_conns": 2,
	"redis.dial_timeout":   5 * time.Second,
	"redis.read_timeout":   3 * time.Second,
	"redis.write_timeout":  3 * time.Second,

	"kafka.brokers":       []string{},
	"kafka.audit_topic":   "admissions.audit",
	"kafka.poll_interval": 2 * time.Second,
	"kafka.batch_size":    100,

	"gateway.base_url":   "https://api.razorpay.com/v1",
	"gateway.key_id":     "",
	"gateway.key_secret": "",
	"gateway.timeout":    10 * time.Second,
	"gateway.simulate":   false,

	"payment.currency":            "INR",
	"payment.method_label":        "Razorpay",
	"payment.verify_timeout":      15 * time.Second,
	"payment.lock_ttl":            30 * time.Second,
	"payment.async_side_effects":  false,
	"payment.side_effect_timeout": time.Minute,
	"payment.sequence_node":       1,

	"smtp.host":          "",
	"smtp.port":          587,
	"smtp.username":      "",
	"smtp.password":      "",
	"smtp.from":          "admissions@example.edu",
	"smtp.max_retries":   3,
	"smtp.dashboard_url": "http://localhost:3000/dashboard",

	"receipt.issuer_name": "SAVITRIBAI PHULE PUNE UNIVERSITY",
	"receipt.bucket":      "",
	"receipt.prefix":      "receipts/",
	"receipt.region":      "ap-south-1",

	// Use a default for development - should be overridden in production
	"auth.jwt_signing_key": "dev-secret-key-change-in-production",
	"auth.issuer":          "admissions",
	"auth.token_ttl":       7 * 24 * time.Hour,
	"auth.bcrypt_cost":     12,
}

// FromEnv builds a Server config from the optional config file and environment
// variables so main stays lean.
func FromEnv() (Server, error) {
	return load(os.Getenv("ADMISSIONS_CONFIG"))
}

func load(path string) (Server, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("smtp.max_retries", "SMTP_MAX_RETRIES", "NOTIFY_MAX_RETRIES")

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Server{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Server
	if err := v.Unmarshal(&cfg); err != nil {
		return Server{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

func (s Server) validate() error {
	if s.Payment.SequenceNode < 0 || s.Payment.SequenceNode > 1023 {
		return fmt.Errorf("payment.sequence_node must be within 0-1023, got %d", s.Payment.SequenceNode)
	}
	if s.Environment == "production" {
		if s.Gateway.Simulate {
			return fmt.Errorf("gateway.simulate is not allowed in production")
		}
		if s.Gateway.KeySecret == "" {
			return fmt.Errorf("gateway.key_secret is required in production")
		}
		if s.Auth.JWTSigningKey == defaults["auth.jwt_signing_key"] {
			return fmt.Errorf("auth.jwt_signing_key must be overridden in production")
		}
	}
	return nil
}
