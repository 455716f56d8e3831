package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	Proximity ProximityConfig
	Worker    WorkerConfig
	Hub       HubConfig
	API       APIConfig
	DB        DatabaseConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host string
	Port int
}

// ProximityConfig holds the spatial and temporal matching thresholds. These
// are deployment tunables, not business constants.
type ProximityConfig struct {
	DedupRadiusKm   float64
	DedupWindow     time.Duration
	ResolveRadiusKm float64
	AlertRadiusKm   float64
	NearbyRadiusKm  float64
}

type WorkerConfig struct {
	Count      int
	BufferSize int
}

type HubConfig struct {
	SendBufferSize int
}

type APIConfig struct {
	ListCap        int
	RateLimitRPS   int
	RateLimitBurst int
}

type DatabaseConfig struct {
	// DSN defaults to ":memory:"; hazard state does not survive a restart.
	DSN string
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "localhost"),
			Port: getEnvInt("SERVER_PORT", 8080),
		},
		Proximity: ProximityConfig{
			DedupRadiusKm:   getEnvFloat("DEDUP_RADIUS_KM", 0.1),
			DedupWindow:     getEnvDuration("DEDUP_WINDOW", 5*time.Minute),
			ResolveRadiusKm: getEnvFloat("RESOLVE_RADIUS_KM", 1.0),
			AlertRadiusKm:   getEnvFloat("ALERT_RADIUS_KM", 1.0),
			NearbyRadiusKm:  getEnvFloat("NEARBY_RADIUS_KM", 1.0),
		},
		Worker: WorkerConfig{
			Count:      getEnvInt("WORKER_COUNT", 2),
			BufferSize: getEnvInt("WORKER_BUFFER_SIZE", 64),
		},
		Hub: HubConfig{
			SendBufferSize: getEnvInt("HUB_SEND_BUFFER_SIZE", 32),
		},
		API: APIConfig{
			ListCap:        getEnvInt("API_LIST_CAP", 50),
			RateLimitRPS:   getEnvInt("API_RATE_LIMIT_RPS", 20),
			RateLimitBurst: getEnvInt("API_RATE_LIMIT_BURST", 40),
		},
		DB: DatabaseConfig{
			DSN: getEnv("DB_DSN", ":memory:"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	for name, v := range map[string]float64{
		"DEDUP_RADIUS_KM":   c.Proximity.DedupRadiusKm,
		"RESOLVE_RADIUS_KM": c.Proximity.ResolveRadiusKm,
		"ALERT_RADIUS_KM":   c.Proximity.AlertRadiusKm,
		"NEARBY_RADIUS_KM":  c.Proximity.NearbyRadiusKm,
	} {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %v", name, v)
		}
	}
	if c.Proximity.DedupWindow < time.Second {
		return fmt.Errorf("DEDUP_WINDOW must be at least 1 second")
	}

	if c.Worker.Count < 1 {
		return fmt.Errorf("WORKER_COUNT must be at least 1")
	}
	if c.API.ListCap < 1 {
		return fmt.Errorf("API_LIST_CAP must be at least 1")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
