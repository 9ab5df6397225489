/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the deal-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                   string `mapstructure:"SERVER_PORT"`
	DatabaseURL                  string `mapstructure:"DATABASE_URL"`
	RedisURL                     string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix         string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL                  string `mapstructure:"RABBITMQ_URL"`
	DealEventExchange            string `mapstructure:"DEAL_EVENT_EXCHANGE"`
	LedgerGatewayURL             string `mapstructure:"LEDGER_GATEWAY_URL"`
	LedgerGatewayAPIKey          string `mapstructure:"LEDGER_GATEWAY_API_KEY"`
	JWKSURL                      string `mapstructure:"JWKS_URL"`
	ReconcileSchedule            string `mapstructure:"RECONCILE_SCHEDULE"`
	DealCreateRateLimitPerMinute int    `mapstructure:"DEAL_CREATE_RATE_LIMIT_PER_MINUTE"`
	DisputeRateLimitPerMinute    int    `mapstructure:"DISPUTE_RATE_LIMIT_PER_MINUTE"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("DEAL_EVENT_EXCHANGE", "deal_service.deal_events")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "etharis:rate_limit")
	viper.SetDefault("RECONCILE_SCHEDULE", "@every 5m")
	viper.SetDefault("DEAL_CREATE_RATE_LIMIT_PER_MINUTE", 30)
	viper.SetDefault("DISPUTE_RATE_LIMIT_PER_MINUTE", 10)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "DEAL_SERVICE_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("DEAL_EVENT_EXCHANGE")
	_ = viper.BindEnv("LEDGER_GATEWAY_URL")
	_ = viper.BindEnv("LEDGER_GATEWAY_API_KEY")
	_ = viper.BindEnv("JWKS_URL")
	_ = viper.BindEnv("RECONCILE_SCHEDULE")
	_ = viper.BindEnv("DEAL_CREATE_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("DISPUTE_RATE_LIMIT_PER_MINUTE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "etharis:rate_limit"
	}
	config.ReconcileSchedule = strings.TrimSpace(config.ReconcileSchedule)
	if config.ReconcileSchedule == "" {
		config.ReconcileSchedule = "@every 5m"
	}

	if config.DealCreateRateLimitPerMinute < 0 {
		log.Printf("level=warn component=config msg=\"negative create rate limit configured; disabling\" limit=%d", config.DealCreateRateLimitPerMinute)
		config.DealCreateRateLimitPerMinute = 0
	}
	if config.DisputeRateLimitPerMinute < 0 {
		log.Printf("level=warn component=config msg=\"negative dispute rate limit configured; disabling\" limit=%d", config.DisputeRateLimitPerMinute)
		config.DisputeRateLimitPerMinute = 0
	}

	return
}
