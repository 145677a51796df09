package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Server holds the relay host settings
type Server struct {
	Host        string
	Port        string
	DatabaseURL string // SQLite path or postgres:// URL; empty disables persistence
	RedisURL    string // empty disables the cross-instance bridge
	RedisChan   string
	StaticDir   string
	PresetFile  string
	LogCapacity int
	SendBuffer  int
	QueueSize   int
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return s.Host + ":" + s.Port
}

// LoadServer reads the relay settings from the environment
func LoadServer() *Server {
	// Load .env file if it exists
	godotenv.Load()

	return &Server{
		Host:        getEnv("HOST", "localhost"),
		Port:        getEnv("PORT", "3000"),
		DatabaseURL: getEnv("DATABASE_URL", "relay.db"),
		RedisURL:    getEnv("REDIS_URL", ""),
		RedisChan:   getEnv("REDIS_CHANNEL", ""),
		StaticDir:   getEnv("STATIC_DIR", ""),
		PresetFile:  getEnv("PRESET_FILE", ""),
		LogCapacity: getEnvInt("LOG_CAPACITY", 1000),
		SendBuffer:  getEnvInt("SEND_BUFFER", 64),
		QueueSize:   getEnvInt("QUEUE_SIZE", 100),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// Client holds the headless simulation client settings
type Client struct {
	RelayURL     string        `yaml:"relay_url"`
	FPS          int           `yaml:"fps"`
	History      int           `yaml:"history"`
	ReconnectMin time.Duration `yaml:"reconnect_min"`
	ReconnectMax time.Duration `yaml:"reconnect_max"`
	ChartWidth   int           `yaml:"chart_width"`
	ChartHeight  int           `yaml:"chart_height"`
}

// DefaultClient returns the client settings used when no file is given
func DefaultClient() Client {
	return Client{
		RelayURL:     "ws://localhost:3000/ws",
		FPS:          60,
		History:      300,
		ReconnectMin: 250 * time.Millisecond,
		ReconnectMax: 10 * time.Second,
		ChartWidth:   60,
		ChartHeight:  10,
	}
}

// LoadClient reads client settings from a YAML file on top of the defaults
func LoadClient(path string) (Client, error) {
	cfg := DefaultClient()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read client config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse client config: %w", err)
	}
	return cfg, cfg.Validate()
}

// SaveClient writes client settings as YAML
func SaveClient(path string, cfg Client) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode client config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write client config: %w", err)
	}
	return nil
}

// Validate checks that the settings are usable
func (c Client) Validate() error {
	if c.FPS <= 0 {
		return fmt.Errorf("fps must be positive, got %d", c.FPS)
	}
	if c.ReconnectMin <= 0 || c.ReconnectMax < c.ReconnectMin {
		return fmt.Errorf("invalid reconnect range %s..%s", c.ReconnectMin, c.ReconnectMax)
	}
	return nil
}
