package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	Catalog     CatalogConfig     `mapstructure:"catalog"`
	Circulation CirculationConfig `mapstructure:"circulation"`
	Sweeper     SweeperConfig     `mapstructure:"sweeper"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

type CatalogConfig struct {
	GoogleBooksAPIKey   string `mapstructure:"google_books_api_key"`
	MetadataCacheTTLMin int    `mapstructure:"metadata_cache_ttl_minutes"`
}

type CirculationConfig struct {
	DefaultBorrowLimit int     `mapstructure:"default_borrow_limit"`
	DefaultLoanHours   float64 `mapstructure:"default_loan_hours"`
	MaxLoanHours       float64 `mapstructure:"max_loan_hours"`
	ReadyWindowHours   int     `mapstructure:"ready_window_hours"`
}

type SweeperConfig struct {
	IntervalMinutes int `mapstructure:"interval_minutes"`
}

func (s SweeperConfig) Interval() time.Duration {
	return time.Duration(s.IntervalMinutes) * time.Minute
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/shelfshare")

	viper.SetEnvPrefix("SHELFSHARE")
	viper.AutomaticEnv()

	// Set default values
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("catalog.metadata_cache_ttl_minutes", 60)
	viper.SetDefault("circulation.default_borrow_limit", 5)
	viper.SetDefault("circulation.default_loan_hours", 168)
	viper.SetDefault("circulation.max_loan_hours", 720)
	viper.SetDefault("circulation.ready_window_hours", 48)
	viper.SetDefault("sweeper.interval_minutes", 10)

	// Try to read config file
	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// Config file not found, use defaults and environment variables
			fmt.Printf("Config file not found, using defaults and environment variables\n")
		}
	}

	// Override with environment variables
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		viper.Set("database.url", dbURL)
	}

	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		viper.Set("redis.url", redisURL)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}
