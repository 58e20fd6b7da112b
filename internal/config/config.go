package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"pos-ledger/internal/domain/ledger"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Batch    BatchConfig    `mapstructure:"batch"`
	Credit   CreditConfig   `mapstructure:"credit"`
	Loyalty  LoyaltyConfig  `mapstructure:"loyalty"`

	// source is the config file viper read, empty when running on defaults.
	source string
}

type ServerConfig struct {
	Port           int             `mapstructure:"port"`
	ReadTimeout    time.Duration   `mapstructure:"readTimeout"`
	WriteTimeout   time.Duration   `mapstructure:"writeTimeout"`
	IdleTimeout    time.Duration   `mapstructure:"idleTimeout"`
	RequestTimeout time.Duration   `mapstructure:"requestTimeout"`
	RateLimit      RateLimitConfig `mapstructure:"rateLimit"`
	Auth           AuthConfig      `mapstructure:"auth"`
}

type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
	// Backend is "redis" for a limit shared across instances, "memory" otherwise.
	Backend string `mapstructure:"backend"`
}

type AuthConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	JWTSecret string        `mapstructure:"jwtSecret"`
	TokenTTL  time.Duration `mapstructure:"tokenTTL"`
}

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"maxConns"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type RabbitMQConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	ExchangeName string `mapstructure:"exchangeName"`
}

type LoggerConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

type MetricsConfig struct {
	Path string `mapstructure:"path"`
}

type BatchConfig struct {
	OverdueSweepSchedule string        `mapstructure:"overdueSweepSchedule"`
	OverdueSweepTimeout  time.Duration `mapstructure:"overdueSweepTimeout"`
	MaxRetries           int           `mapstructure:"maxRetries"`
	RetryBackoff         time.Duration `mapstructure:"retryBackoff"`
	// BlockAfterDays blocks customers with a credit this many days overdue; 0 disables.
	BlockAfterDays int `mapstructure:"blockAfterDays"`
}

type CreditConfig struct {
	DefaultTermDays int `mapstructure:"defaultTermDays"`
}

// LoyaltyConfig seeds the store's loyalty rules on first start. Amounts are
// strings so YAML floats never touch them.
type LoyaltyConfig struct {
	PointsPerUnit     string `mapstructure:"pointsPerUnit"`
	RedemptionValue   string `mapstructure:"redemptionValue"`
	MinimumRedemption int64  `mapstructure:"minimumRedemption"`
}

func (c LoyaltyConfig) Seed() (ledger.LoyaltyConfig, error) {
	perUnit, err := decimal.NewFromString(c.PointsPerUnit)
	if err != nil {
		return ledger.LoyaltyConfig{}, fmt.Errorf("loyalty.pointsPerUnit: %w", err)
	}
	value, err := decimal.NewFromString(c.RedemptionValue)
	if err != nil {
		return ledger.LoyaltyConfig{}, fmt.Errorf("loyalty.redemptionValue: %w", err)
	}
	seed := ledger.LoyaltyConfig{
		PointsPerUnit:     perUnit,
		RedemptionValue:   value,
		MinimumRedemption: c.MinimumRedemption,
	}
	return seed, seed.Validate()
}

// URL builds the AMQP dial string.
func (c RabbitMQConfig) URL() (string, error) {
	if c.Host == "" {
		return "", errors.New("rabbitmq host is not configured")
	}
	if (c.Username == "") != (c.Password == "") {
		return "", errors.New("rabbitmq username and password must be provided together")
	}
	port := c.Port
	if port == 0 {
		port = 5672
	}
	if c.Username != "" {
		return fmt.Sprintf("amqp://%s:%s@%s:%d/", c.Username, c.Password, c.Host, port), nil
	}
	return fmt.Sprintf("amqp://%s:%d/", c.Host, port), nil
}

func (c *Config) Source() string {
	return c.source
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverMemory:
	case DriverPostgres, DriverSQLite:
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for driver %q", c.Database.Driver)
		}
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}
	if c.Server.Auth.Enabled && c.Server.Auth.JWTSecret == "" {
		return errors.New("server.auth.jwtSecret is required when auth is enabled")
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.Backend == "redis" && c.Redis.Addr == "" {
		return errors.New("redis.addr is required for the redis rate limit backend")
	}
	if c.Credit.DefaultTermDays <= 0 {
		return errors.New("credit.defaultTermDays must be positive")
	}
	if c.Batch.MaxRetries < 0 || c.Batch.BlockAfterDays < 0 {
		return errors.New("batch.maxRetries and batch.blockAfterDays cannot be negative")
	}
	if _, err := c.Loyalty.Seed(); err != nil {
		return err
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 15*time.Second)
	v.SetDefault("server.writeTimeout", 15*time.Second)
	v.SetDefault("server.idleTimeout", 60*time.Second)
	v.SetDefault("server.requestTimeout", 30*time.Second)
	v.SetDefault("server.rateLimit.enabled", true)
	v.SetDefault("server.rateLimit.rps", 10)
	v.SetDefault("server.rateLimit.burst", 20)
	v.SetDefault("server.rateLimit.backend", "memory")
	v.SetDefault("server.auth.enabled", false)
	v.SetDefault("server.auth.jwtSecret", "")
	v.SetDefault("server.auth.tokenTTL", 24*time.Hour)
	v.SetDefault("database.driver", DriverMemory)
	v.SetDefault("database.url", "")
	v.SetDefault("database.maxConns", 10)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("rabbitmq.enabled", false)
	v.SetDefault("rabbitmq.host", "localhost")
	v.SetDefault("rabbitmq.port", 5672)
	v.SetDefault("rabbitmq.username", "guest")
	v.SetDefault("rabbitmq.password", "guest")
	v.SetDefault("rabbitmq.exchangeName", "pos-ledger")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "json")
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("batch.overdueSweepSchedule", "0 2 * * *")
	v.SetDefault("batch.overdueSweepTimeout", time.Hour)
	v.SetDefault("batch.maxRetries", 3)
	v.SetDefault("batch.retryBackoff", 30*time.Second)
	v.SetDefault("batch.blockAfterDays", 0)
	v.SetDefault("credit.defaultTermDays", 30)
	v.SetDefault("loyalty.pointsPerUnit", "1")
	v.SetDefault("loyalty.redemptionValue", "0.01")
	v.SetDefault("loyalty.minimumRedemption", 100)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			log.Println("Config file not found, using defaults and environment variables.")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.source = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}
