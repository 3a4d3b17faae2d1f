package config

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all configuration for our application
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Processor    ProcessorConfig    `mapstructure:"processor"`
	Notification NotificationConfig `mapstructure:"notification"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Business     BusinessConfig     `mapstructure:"business"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"SERVER_PORT"`
	Host         string        `mapstructure:"SERVER_HOST"`
	Env          string        `mapstructure:"ENV"`
	ReadTimeout  time.Duration `mapstructure:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `mapstructure:"SERVER_WRITE_TIMEOUT"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"DATABASE_URL"`
	MaxOpenConns    int           `mapstructure:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `mapstructure:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `mapstructure:"DATABASE_CONN_MAX_LIFETIME"`
}

type RedisConfig struct {
	Host     string `mapstructure:"REDIS_HOST"`
	Port     string `mapstructure:"REDIS_PORT"`
	Password string `mapstructure:"REDIS_PASSWORD"`
	DB       int    `mapstructure:"REDIS_DB"`
}

type ProcessorConfig struct {
	BaseURL       string        `mapstructure:"PROCESSOR_BASE_URL"`
	APIKey        string        `mapstructure:"PROCESSOR_API_KEY"`
	WebhookSecret string        `mapstructure:"PROCESSOR_WEBHOOK_SECRET"`
	Timeout       time.Duration `mapstructure:"PROCESSOR_TIMEOUT"`
}

type NotificationConfig struct {
	Enabled  bool   `mapstructure:"NOTIFICATION_ENABLED"`
	SMTPHost string `mapstructure:"NOTIFICATION_SMTP_HOST"`
	SMTPPort string `mapstructure:"NOTIFICATION_SMTP_PORT"`
	From     string `mapstructure:"NOTIFICATION_FROM"`
	OpsEmail string `mapstructure:"NOTIFICATION_OPS_EMAIL"`
}

type SchedulerConfig struct {
	DisbursementSpec string `mapstructure:"SCHEDULER_DISBURSEMENT_SPEC"`
	PayoutSpec       string `mapstructure:"SCHEDULER_PAYOUT_SPEC"`
	Timezone         string `mapstructure:"SCHEDULER_TIMEZONE"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"LOG_LEVEL"`
	Format string `mapstructure:"LOG_FORMAT"`
}

type BusinessConfig struct {
	DefaultCurrency string `mapstructure:"DEFAULT_CURRENCY"`
	PayoutFeeRate   string `mapstructure:"PAYOUT_FEE_RATE"`
	NumberRetries   int    `mapstructure:"NUMBER_RETRIES"`
}

// Load reads configuration from environment variables and files
func Load() (*Config, error) {
	// Set defaults
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("ENV", "development")
	viper.SetDefault("SERVER_READ_TIMEOUT", "15s")
	viper.SetDefault("SERVER_WRITE_TIMEOUT", "15s")
	viper.SetDefault("DATABASE_MAX_OPEN_CONNS", 25)
	viper.SetDefault("DATABASE_MAX_IDLE_CONNS", 5)
	viper.SetDefault("DATABASE_CONN_MAX_LIFETIME", "30m")
	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("PROCESSOR_TIMEOUT", "30s")
	viper.SetDefault("NOTIFICATION_ENABLED", false)
	viper.SetDefault("NOTIFICATION_SMTP_PORT", "587")
	viper.SetDefault("SCHEDULER_DISBURSEMENT_SPEC", "0 0 6 * * *")
	viper.SetDefault("SCHEDULER_PAYOUT_SPEC", "0 */30 * * * *")
	viper.SetDefault("SCHEDULER_TIMEZONE", "UTC")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "json")
	viper.SetDefault("DEFAULT_CURRENCY", "USD")
	viper.SetDefault("PAYOUT_FEE_RATE", "0.01")
	viper.SetDefault("NUMBER_RETRIES", 3)

	// Read from environment variables
	viper.AutomaticEnv()

	// Try to read from .env file (optional)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./deployments")

	// Don't fail if .env file doesn't exist
	_ = viper.ReadInConfig()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if len(c.Business.DefaultCurrency) != 3 {
		return fmt.Errorf("DEFAULT_CURRENCY must be a 3-letter code")
	}

	if _, err := decimal.NewFromString(c.Business.PayoutFeeRate); err != nil {
		return fmt.Errorf("PAYOUT_FEE_RATE must be a valid decimal: %w", err)
	}

	if c.Business.NumberRetries <= 0 {
		return fmt.Errorf("NUMBER_RETRIES must be greater than 0")
	}

	if c.Notification.Enabled && c.Notification.SMTPHost == "" {
		return fmt.Errorf("NOTIFICATION_SMTP_HOST is required when notifications are enabled")
	}

	return nil
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development" || c.Server.Env == "dev"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production" || c.Server.Env == "prod"
}

// GetPayoutFeeRate returns the payout fee rate as decimal
func (c *Config) GetPayoutFeeRate() decimal.Decimal {
	rate, _ := decimal.NewFromString(c.Business.PayoutFeeRate)
	return rate
}
