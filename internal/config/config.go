package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Upbit    Upbit    `mapstructure:"upbit"`
	Report   Report   `mapstructure:"report"`
	Logger   Logger   `mapstructure:"logger"`
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
}

// Upbit holds the configuration for the Upbit Open API.
type Upbit struct {
	AccessKey      string  `mapstructure:"access_key"`
	SecretKey      string  `mapstructure:"secret_key"`
	BaseURL        string  `mapstructure:"base_url"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	PageSize       int     `mapstructure:"page_size"`
}

// Report holds the configuration for PnL computation and output.
type Report struct {
	Markets     []string `mapstructure:"markets"`
	Granularity string   `mapstructure:"granularity"`
	// Timezone names the location used for bucket labels. Empty keeps each
	// order's own offset.
	Timezone string `mapstructure:"timezone"`
	Currency string `mapstructure:"currency"`
	Strict   bool   `mapstructure:"strict"`
	Parallel bool   `mapstructure:"parallel"`
}

// Server holds the configuration for the web server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ErrMissingCredentials is returned by Validate when API keys are absent.
var ErrMissingCredentials = errors.New("upbit access key and secret key must be set")

// LoadConfig reads configuration from file or environment variables.
// A missing config file is not an error; defaults and environment apply.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yml")

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	// Names used by the Upbit Open API docs
	_ = v.BindEnv("upbit.access_key", "UPBIT_OPEN_API_ACCESS_KEY", "UPBIT_ACCESS_KEY")
	_ = v.BindEnv("upbit.secret_key", "UPBIT_OPEN_API_SECRET_KEY", "UPBIT_SECRET_KEY")

	// Set default values
	v.SetDefault("upbit.base_url", "https://api.upbit.com")
	v.SetDefault("upbit.rate_limit", 5) // requests per second
	v.SetDefault("upbit.rate_limit_burst", 1)
	v.SetDefault("upbit.page_size", 100)
	v.SetDefault("report.markets", []string{"KRW-BTC", "KRW-ETH", "KRW-SOL", "KRW-XRP"})
	v.SetDefault("report.granularity", "day")
	v.SetDefault("report.timezone", "")
	v.SetDefault("report.currency", "KRW")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.dsn", "orders.db")

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, fmt.Errorf("failed to read config: %w", err)
		}
	}

	err = v.Unmarshal(&config)
	return
}

// Validate checks the settings needed to talk to the exchange.
func (u Upbit) Validate() error {
	if u.AccessKey == "" || u.SecretKey == "" {
		return ErrMissingCredentials
	}
	if u.PageSize <= 0 {
		return fmt.Errorf("upbit.page_size must be positive, got %d", u.PageSize)
	}
	return nil
}
