package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	DatabaseURL    string
	Port           string
	IsProduction   bool
	MigrationsPath string

	AMQPURL       string
	EventExchange string

	BalanceServiceURL string
	BalanceTimeout    time.Duration

	PublishConfirmTimeout time.Duration
	PublishMaxAttempts    int
	DispatchInterval      time.Duration
	DispatchBatchSize     int

	ConsumerMaxRedeliveries int
	ConsumerRetryDelay      time.Duration
}

// LoadConfig reads configuration from the environment, loading a .env file
// first when one exists.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("IS_PRODUCTION", false)
	v.SetDefault("MIGRATIONS_PATH", "file://migrations")
	v.SetDefault("EVENT_EXCHANGE", "bank.events")
	v.SetDefault("BALANCE_TIMEOUT", "5s")
	v.SetDefault("PUBLISH_CONFIRM_TIMEOUT", "5s")
	v.SetDefault("PUBLISH_MAX_ATTEMPTS", 3)
	v.SetDefault("DISPATCH_INTERVAL", "1s")
	v.SetDefault("DISPATCH_BATCH_SIZE", 100)
	v.SetDefault("CONSUMER_MAX_REDELIVERIES", 3)
	v.SetDefault("CONSUMER_RETRY_DELAY", "5s")

	cfg := &Config{
		DatabaseURL:    v.GetString("PGSQL_URL"),
		Port:           v.GetString("PORT"),
		IsProduction:   v.GetBool("IS_PRODUCTION"),
		MigrationsPath: v.GetString("MIGRATIONS_PATH"),

		AMQPURL:       v.GetString("AMQP_URL"),
		EventExchange: v.GetString("EVENT_EXCHANGE"),

		BalanceServiceURL: v.GetString("BALANCE_SERVICE_URL"),
		BalanceTimeout:    v.GetDuration("BALANCE_TIMEOUT"),

		PublishConfirmTimeout: v.GetDuration("PUBLISH_CONFIRM_TIMEOUT"),
		PublishMaxAttempts:    v.GetInt("PUBLISH_MAX_ATTEMPTS"),
		DispatchInterval:      v.GetDuration("DISPATCH_INTERVAL"),
		DispatchBatchSize:     v.GetInt("DISPATCH_BATCH_SIZE"),

		ConsumerMaxRedeliveries: v.GetInt("CONSUMER_MAX_REDELIVERIES"),
		ConsumerRetryDelay:      v.GetDuration("CONSUMER_RETRY_DELAY"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("PGSQL_URL environment variable is required")
	}
	if cfg.AMQPURL == "" {
		return nil, fmt.Errorf("AMQP_URL environment variable is required")
	}
	if cfg.BalanceServiceURL == "" {
		return nil, fmt.Errorf("BALANCE_SERVICE_URL environment variable is required")
	}

	return cfg, nil
}
