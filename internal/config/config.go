package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// service config, read once at startup
type Config struct {
	Port        string
	FrontendURL string
	LogLevel    string

	DBDriver    string
	DatabaseURL string
	JWTSecret   string

	// empty disables room activity publishing
	RedisAddr         string
	RoomEventsChannel string

	WSSendBuffer      int
	WSWriteTimeout    time.Duration
	WSPingInterval    time.Duration
	WSMaxMessageBytes int64
}

// loads configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		Port:              getEnvOrDefault("PORT", "8080"),
		FrontendURL:       getEnvOrDefault("FRONTEND_URL", "http://localhost:3000"),
		LogLevel:          getEnvOrDefault("LOG_LEVEL", "info"),
		DBDriver:          getEnvOrDefault("DB_DRIVER", "sqlite"),
		DatabaseURL:       getEnvOrDefault("DATABASE_URL", "noteflare.db"),
		JWTSecret:         getEnvOrDefault("JWT_SECRET", "your-secret-key"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RoomEventsChannel: getEnvOrDefault("ROOM_EVENTS_CHANNEL", "noteflare:rooms"),
	}

	var err error
	if config.WSSendBuffer, err = getIntOrDefault("WS_SEND_BUFFER", 32); err != nil {
		return nil, err
	}
	if config.WSWriteTimeout, err = getDurationOrDefault("WS_WRITE_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if config.WSPingInterval, err = getDurationOrDefault("WS_PING_INTERVAL", 25*time.Second); err != nil {
		return nil, err
	}
	maxBytes, err := getIntOrDefault("WS_MAX_MESSAGE_BYTES", 1<<20)
	if err != nil {
		return nil, err
	}
	config.WSMaxMessageBytes = int64(maxBytes)

	if err := validateConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

func validateConfig(config *Config) error {
	if config.DBDriver != "sqlite" && config.DBDriver != "postgres" {
		return errors.New("unsupported DB_DRIVER: " + config.DBDriver + ". Currently supported: sqlite, postgres")
	}
	if config.WSSendBuffer <= 0 {
		return errors.New("WS_SEND_BUFFER must be positive")
	}
	if config.WSWriteTimeout <= 0 || config.WSPingInterval <= 0 {
		return errors.New("WS_WRITE_TIMEOUT and WS_PING_INTERVAL must be positive")
	}
	if config.WSMaxMessageBytes <= 0 {
		return errors.New("WS_MAX_MESSAGE_BYTES must be positive")
	}
	return nil
}

func (c *Config) Addr() string { return ":" + c.Port }

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getDurationOrDefault(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
