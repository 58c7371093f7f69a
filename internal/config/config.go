package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	StorageModeInMemory = "in-memory"
	StorageModeDisk     = "disk"
	StorageModeExternal = "external"

	DefaultDataPath = "/data/gateway.db"
)

// Config holds application configuration. It is loaded once at process
// start and treated as immutable for the process lifetime; in particular
// EncryptionSecret is the only source of the vault key.
type Config struct {
	// Port the HTTP server listens on.
	Port string `yaml:"port"`

	// DebugMode enables debug logging and permissive CORS.
	DebugMode bool `yaml:"debug"`

	// Storage configuration.
	StorageMode     string `yaml:"storage"`
	DataPath        string `yaml:"data_path"`
	DBConnectionURL string `yaml:"db_connection_url"`

	// EncryptionSecret is the process-wide secret the vault key is
	// derived from. Required.
	EncryptionSecret string `yaml:"encryption_secret"`

	// JWTSecret signs owner session tokens. Required.
	JWTSecret string `yaml:"jwt_secret"`

	// SessionTTL bounds how long an owner session token is valid.
	SessionTTL time.Duration `yaml:"session_ttl"`

	// Upstream provider configuration.
	UpstreamBaseURL string `yaml:"upstream_base_url"`
	UpstreamModel   string `yaml:"upstream_model"`
}

// Load loads configuration from environment variables, an optional YAML
// file, and command-line flags (flags win).
func Load() *Config {
	c := &Config{
		Port:             getEnvOrDefault("PORT", "8080"),
		DebugMode:        getBoolEnv("DEBUG_MODE", false),
		StorageMode:      getEnvOrDefault("STORAGE_MODE", StorageModeInMemory),
		DataPath:         getEnvOrDefault("DATA_PATH", DefaultDataPath),
		DBConnectionURL:  getEnvOrDefault("DB_CONNECTION_URL", ""),
		EncryptionSecret: getEnvOrDefault("ENCRYPTION_SECRET", ""),
		JWTSecret:        getEnvOrDefault("JWT_SECRET", ""),
		SessionTTL:       time.Hour,
		UpstreamBaseURL:  getEnvOrDefault("UPSTREAM_BASE_URL", ""),
		UpstreamModel:    getEnvOrDefault("UPSTREAM_MODEL", "gpt-4o-mini"),
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := c.loadFile(path); err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config file %s: %v\n", path, err)
			os.Exit(1)
		}
	}

	c.bindFlags(flag.CommandLine)

	return c
}

// Validate checks that required settings are present.
func (c *Config) Validate() error {
	if c.EncryptionSecret == "" {
		return fmt.Errorf("ENCRYPTION_SECRET is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	return nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// bindFlags will parse the given flagset and bind values to selected config options
func (c *Config) bindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Port, "port", c.Port, "Port to listen on")
	fs.BoolVar(&c.DebugMode, "debug", c.DebugMode, "Enable debug mode")
	fs.StringVar(&c.StorageMode, "storage", c.StorageMode, "Storage mode: in-memory, disk, or external")
	fs.StringVar(&c.DataPath, "data-path", c.DataPath, "SQLite file path for --storage=disk")
	fs.StringVar(&c.DBConnectionURL, "db-connection-url", c.DBConnectionURL, "PostgreSQL URL for --storage=external")
	fs.StringVar(&c.UpstreamBaseURL, "upstream-base-url", c.UpstreamBaseURL, "Override the upstream provider base URL")
	fs.StringVar(&c.UpstreamModel, "upstream-model", c.UpstreamModel, "Model requested from the upstream provider")
}

// getEnvOrDefault gets environment variable or returns default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
