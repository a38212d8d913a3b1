package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Database    DatabaseConfig
	Digitransit DigitransitConfig
	Collector   CollectorConfig
	Mirror      MirrorConfig
	Retention   RetentionConfig
	API         APIConfig
	Logging     LoggingConfig
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// DigitransitConfig for the upstream GraphQL API
type DigitransitConfig struct {
	URL          string
	APIKey       string
	FetchTimeout time.Duration
}

// CollectorConfig for the periodic vehicle collection cycle
type CollectorConfig struct {
	CollectionInterval   time.Duration
	RouteRefreshInterval time.Duration
}

// MirrorConfig for the optional external-mirror sync loop. An empty URL
// disables the loop.
type MirrorConfig struct {
	URL          string
	SyncInterval time.Duration
	FetchTimeout time.Duration
}

// RetentionConfig for the periodic cleanup of stale records
type RetentionConfig struct {
	CleanupInterval time.Duration
	RetentionDays   int
}

type APIConfig struct {
	Listen string
}

type LoggingConfig struct {
	Level    string
	FilePath string
}

func Load() (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "hsltracker"),
		},
		Digitransit: DigitransitConfig{
			URL:          getEnv("DIGITRANSIT_API_URL", "https://api.digitransit.fi/routing/v1/routers/hsl/index/graphql"),
			APIKey:       getEnv("DIGITRANSIT_API_KEY", ""),
			FetchTimeout: getDurationEnv("DIGITRANSIT_FETCH_TIMEOUT", 30*time.Second),
		},
		Collector: CollectorConfig{
			CollectionInterval:   getDurationEnv("VEHICLE_COLLECTION_INTERVAL", 60*time.Second),
			RouteRefreshInterval: getDurationEnv("ROUTE_REFRESH_INTERVAL", 30*time.Minute),
		},
		Mirror: MirrorConfig{
			URL:          getEnv("MIRROR_URL", ""),
			SyncInterval: getDurationEnv("MIRROR_SYNC_INTERVAL", 5*time.Second),
			FetchTimeout: getDurationEnv("MIRROR_FETCH_TIMEOUT", 15*time.Second),
		},
		Retention: RetentionConfig{
			CleanupInterval: getDurationEnv("CLEANUP_INTERVAL", 24*time.Hour),
			RetentionDays:   getIntEnv("DATA_RETENTION_DAYS", 30),
		},
		API: APIConfig{
			Listen: getEnv("API_LISTEN", ":8080"),
		},
		Logging: LoggingConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			FilePath: getEnv("LOG_FILE", "hsltracker.log"),
		},
	}

	return cfg, nil
}

// Validate checks that required database settings are present.
func (c *DatabaseConfig) Validate() error {
	if c.Host == "" || c.Port == "" || c.User == "" || c.DBName == "" {
		return fmt.Errorf("database host, port, user and name are required")
	}
	return nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.DBName)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
