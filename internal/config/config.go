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

// Config holds all the configuration variables for the contract-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                    string `mapstructure:"SERVER_PORT"`
	DatabaseURL                   string `mapstructure:"DATABASE_URL"`
	RedisURL                      string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix          string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL                   string `mapstructure:"RABBITMQ_URL"`
	GatewayEventQueue             string `mapstructure:"GATEWAY_EVENT_QUEUE"`
	RatesAPIBaseURL               string `mapstructure:"RATES_API_BASE_URL"`
	JWTSecret                     string `mapstructure:"JWT_SECRET"`
	ExpirationSweepSchedule       string `mapstructure:"EXPIRATION_SWEEP_SCHEDULE"`
	ExpirationRetryBackoffSeconds int    `mapstructure:"EXPIRATION_RETRY_BACKOFF_SECONDS"`
	RateCacheTTLMinutes           int    `mapstructure:"RATE_CACHE_TTL_MINUTES"`
	PaymentRateLimitPerMinute     int    `mapstructure:"PAYMENT_RATE_LIMIT_PER_MINUTE"`
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
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "licensio:rate_limit")
	viper.SetDefault("GATEWAY_EVENT_QUEUE", "contract_service.gateway_settlements")
	viper.SetDefault("RATES_API_BASE_URL", "https://open.er-api.com/v6")
	viper.SetDefault("EXPIRATION_SWEEP_SCHEDULE", "0 * * * *")
	viper.SetDefault("EXPIRATION_RETRY_BACKOFF_SECONDS", 30)
	viper.SetDefault("RATE_CACHE_TTL_MINUTES", 15)
	viper.SetDefault("PAYMENT_RATE_LIMIT_PER_MINUTE", 60)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "CONTRACT_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("GATEWAY_EVENT_QUEUE")
	_ = viper.BindEnv("RATES_API_BASE_URL")
	_ = viper.BindEnv("JWT_SECRET", "JWT_SECRET", "CONTRACT_SERVICE_JWT_SECRET")
	_ = viper.BindEnv("EXPIRATION_SWEEP_SCHEDULE")
	_ = viper.BindEnv("EXPIRATION_RETRY_BACKOFF_SECONDS")
	_ = viper.BindEnv("RATE_CACHE_TTL_MINUTES")
	_ = viper.BindEnv("PAYMENT_RATE_LIMIT_PER_MINUTE")

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
	if strings.TrimSpace(config.JWTSecret) == "" {
		config.JWTSecret = strings.TrimSpace(os.Getenv("CONTRACT_SERVICE_JWT_SECRET"))
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "licensio:rate_limit"
	}
	config.RatesAPIBaseURL = strings.TrimSuffix(strings.TrimSpace(config.RatesAPIBaseURL), "/")

	if config.ExpirationRetryBackoffSeconds <= 0 {
		log.Printf("level=warn component=config msg=\"invalid sweep retry backoff; using default\" seconds=%d", config.ExpirationRetryBackoffSeconds)
		config.ExpirationRetryBackoffSeconds = 30
	}
	if config.RateCacheTTLMinutes <= 0 {
		log.Printf("level=warn component=config msg=\"invalid rate cache ttl; using default\" minutes=%d", config.RateCacheTTLMinutes)
		config.RateCacheTTLMinutes = 15
	}
	if config.PaymentRateLimitPerMinute <= 0 {
		config.PaymentRateLimitPerMinute = 60
	}

	return
}
