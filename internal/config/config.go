package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	DB struct {
		DSN string
	}
	API struct {
		Port     string
		BasePath string
	}
	Kafka struct {
		Broker string
		Topic  string
	}
	Scheduler struct {
		TickPeriod time.Duration
	}
	Fusion struct {
		RadiusMeters float64
	}
	Session struct {
		TTL      time.Duration
		Capacity int
	}
	Logging struct {
		Dir   string
		Level string
	}
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config

	cfg.DB.DSN = os.Getenv("DB_DSN")
	cfg.API.Port = os.Getenv("API_PORT")
	cfg.API.BasePath = os.Getenv("API_BASE_PATH")
	cfg.Kafka.Broker = os.Getenv("KAFKA_BROKER")
	cfg.Kafka.Topic = os.Getenv("KAFKA_TOPIC")
	cfg.Logging.Dir = os.Getenv("LOG_DIR")
	cfg.Logging.Level = os.Getenv("LOG_LEVEL")

	if s, err := strconv.Atoi(os.Getenv("SCHEDULER_TICK_SECONDS")); err == nil && s > 0 {
		cfg.Scheduler.TickPeriod = time.Duration(s) * time.Second
	}
	if m, err := strconv.ParseFloat(os.Getenv("GEOFENCE_RADIUS_METERS"), 64); err == nil && m > 0 {
		cfg.Fusion.RadiusMeters = m
	}
	if s, err := strconv.Atoi(os.Getenv("SESSION_TTL_SECONDS")); err == nil && s > 0 {
		cfg.Session.TTL = time.Duration(s) * time.Second
	}
	if c, err := strconv.Atoi(os.Getenv("SESSION_CAPACITY")); err == nil && c > 0 {
		cfg.Session.Capacity = c
	}

	// Validate required settings
	missing := []string{}
	if cfg.DB.DSN == "" {
		missing = append(missing, "DB_DSN")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configurations: %v", missing)
	}

	// Apply defaults
	if cfg.API.Port == "" {
		cfg.API.Port = ":8080"
	}
	if cfg.API.BasePath == "" {
		cfg.API.BasePath = "/api/v0"
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "health_events"
	}
	if cfg.Scheduler.TickPeriod == 0 {
		cfg.Scheduler.TickPeriod = 60 * time.Second
	}
	if cfg.Fusion.RadiusMeters == 0 {
		cfg.Fusion.RadiusMeters = 50
	}
	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = 4 * time.Hour
	}
	if cfg.Session.Capacity == 0 {
		cfg.Session.Capacity = 500
	}

	return cfg, nil
}
