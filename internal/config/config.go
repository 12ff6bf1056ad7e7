// Package config loads server settings with defaults, environment overrides
// and an optional JSON file, in that precedence order.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Database *DatabaseConfig `json:"database"`
	HTTP     *HTTPConfig     `json:"http"`
	Auth     *AuthConfig     `json:"auth"`
	Storage  *StorageConfig  `json:"storage"`
	Logging  *LoggingConfig  `json:"logging"`
}

type DatabaseConfig struct {
	Path    string        `json:"path"`
	Timeout time.Duration `json:"timeout"`
}

type HTTPConfig struct {
	Port         int           `json:"port"`
	Host         string        `json:"host"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

type AuthConfig struct {
	// JWTSecret signs admin tokens. Must be set for production; the default
	// exists only so local development works out of the box.
	JWTSecret string        `json:"jwt_secret"`
	TokenTTL  time.Duration `json:"token_ttl"`
	// BootstrapPassword seeds the first admin account when the admins table
	// is empty at startup. Ignored afterwards.
	BootstrapPassword string `json:"bootstrap_password"`
}

type StorageConfig struct {
	// Root holds the uploads, questions and results areas.
	Root string `json:"root"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"` // "json" or "console"
}

func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Path:    "./data/examboard.db",
			Timeout: 30 * time.Second,
		},
		HTTP: &HTTPConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Auth: &AuthConfig{
			JWTSecret:         "dev-secret-change-me",
			TokenTTL:          12 * time.Hour,
			BootstrapPassword: "admin",
		},
		Storage: &StorageConfig{
			Root: "./data/files",
		},
		Logging: &LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func (c *Config) Validate() error {
	if c.Database == nil || c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}
	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}
	if c.Auth == nil || c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret cannot be empty")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("token TTL must be positive")
	}
	if c.Storage == nil || c.Storage.Root == "" {
		return fmt.Errorf("storage root cannot be empty")
	}
	if c.Logging == nil || c.Logging.Level == "" {
		return fmt.Errorf("logging level cannot be empty")
	}
	return nil
}

// LoadFromEnv applies EXAMBOARD_* environment overrides onto the defaults.
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if port := os.Getenv("EXAMBOARD_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.HTTP.Port = p
		}
	}
	if host := os.Getenv("EXAMBOARD_HTTP_HOST"); host != "" {
		config.HTTP.Host = host
	}
	if dbPath := os.Getenv("EXAMBOARD_DATABASE_PATH"); dbPath != "" {
		config.Database.Path = dbPath
	}
	if timeout := os.Getenv("EXAMBOARD_DATABASE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Database.Timeout = d
		}
	}
	if secret := os.Getenv("EXAMBOARD_JWT_SECRET"); secret != "" {
		config.Auth.JWTSecret = secret
	}
	if ttl := os.Getenv("EXAMBOARD_TOKEN_TTL"); ttl != "" {
		if d, err := time.ParseDuration(ttl); err == nil {
			config.Auth.TokenTTL = d
		}
	}
	if password := os.Getenv("EXAMBOARD_BOOTSTRAP_PASSWORD"); password != "" {
		config.Auth.BootstrapPassword = password
	}
	if root := os.Getenv("EXAMBOARD_STORAGE_ROOT"); root != "" {
		config.Storage.Root = root
	}
	if level := os.Getenv("EXAMBOARD_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("EXAMBOARD_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}

	return config
}

// configFile mirrors Config with string durations for JSON parsing.
type configFile struct {
	Database *struct {
		Path    string `json:"path"`
		Timeout string `json:"timeout"`
	} `json:"database"`
	HTTP *struct {
		Port         int    `json:"port"`
		Host         string `json:"host"`
		ReadTimeout  string `json:"read_timeout"`
		WriteTimeout string `json:"write_timeout"`
	} `json:"http"`
	Auth *struct {
		JWTSecret         string `json:"jwt_secret"`
		TokenTTL          string `json:"token_ttl"`
		BootstrapPassword string `json:"bootstrap_password"`
	} `json:"auth"`
	Storage *struct {
		Root string `json:"root"`
	} `json:"storage"`
	Logging *struct {
		Level  string `json:"level"`
		Format string `json:"format"`
	} `json:"logging"`
}

// LoadFromFile parses a JSON config file on top of the environment-derived
// settings.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	var file configFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	config := LoadFromEnv()

	if file.Database != nil {
		if file.Database.Path != "" {
			config.Database.Path = file.Database.Path
		}
		if file.Database.Timeout != "" {
			if d, err := time.ParseDuration(file.Database.Timeout); err == nil {
				config.Database.Timeout = d
			}
		}
	}
	if file.HTTP != nil {
		if file.HTTP.Port > 0 {
			config.HTTP.Port = file.HTTP.Port
		}
		if file.HTTP.Host != "" {
			config.HTTP.Host = file.HTTP.Host
		}
		if file.HTTP.ReadTimeout != "" {
			if d, err := time.ParseDuration(file.HTTP.ReadTimeout); err == nil {
				config.HTTP.ReadTimeout = d
			}
		}
		if file.HTTP.WriteTimeout != "" {
			if d, err := time.ParseDuration(file.HTTP.WriteTimeout); err == nil {
				config.HTTP.WriteTimeout = d
			}
		}
	}
	if file.Auth != nil {
		if file.Auth.JWTSecret != "" {
			config.Auth.JWTSecret = file.Auth.JWTSecret
		}
		if file.Auth.TokenTTL != "" {
			if d, err := time.ParseDuration(file.Auth.TokenTTL); err == nil {
				config.Auth.TokenTTL = d
			}
		}
		if file.Auth.BootstrapPassword != "" {
			config.Auth.BootstrapPassword = file.Auth.BootstrapPassword
		}
	}
	if file.Storage != nil && file.Storage.Root != "" {
		config.Storage.Root = file.Storage.Root
	}
	if file.Logging != nil {
		if file.Logging.Level != "" {
			config.Logging.Level = file.Logging.Level
		}
		if file.Logging.Format != "" {
			config.Logging.Format = file.Logging.Format
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return config, nil
}

// Load resolves configuration with precedence: file > environment > defaults.
// A missing or unreadable file falls back to environment and defaults.
func Load(path string) *Config {
	config := LoadFromEnv()
	if path != "" {
		if fileConfig, err := LoadFromFile(path); err == nil {
			config = fileConfig
		}
	}
	return config
}
