// Package config loads server settings from defaults, an optional YAML file,
// an optional .env file and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DevInviteSecret is the default signing secret. Servers should override it.
const DevInviteSecret = "kriskindle-dev-secret-change-me"

// Config is the server configuration.
type Config struct {
	Port         int           `yaml:"port" validate:"min=1,max=65535"`
	DBDriver     string        `yaml:"db_driver" validate:"oneof=sqlite postgres"`
	DBPath       string        `yaml:"db_path" validate:"required_if=DBDriver sqlite"`
	DatabaseURL  string        `yaml:"database_url" validate:"required_if=DBDriver postgres"`
	InviteSecret string        `yaml:"invite_secret" validate:"required,min=16"`
	LogLevel     string        `yaml:"log_level" validate:"oneof=debug info warn error"`
	StoreTimeout time.Duration `yaml:"store_timeout" validate:"gt=0"`
	JoinRetries  int           `yaml:"join_retries" validate:"min=1,max=100"`
	RateLimit    RateLimit     `yaml:"rate_limit"`
}

// RateLimit bounds requests per peer. RPS 0 disables limiting.
type RateLimit struct {
	RPS   float64 `yaml:"rps" validate:"gte=0"`
	Burst int     `yaml:"burst" validate:"min=1"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:         8080,
		DBDriver:     "sqlite",
		DBPath:       "./data/kriskindle.db",
		InviteSecret: DevInviteSecret,
		LogLevel:     "info",
		StoreTimeout: 5 * time.Second,
		JoinRetries:  8,
		RateLimit:    RateLimit{RPS: 20, Burst: 40},
	}
}

var validate = validator.New()

// Load reads .env from the working directory, then the YAML file named by
// KRISKINDLE_CONFIG, then the environment.
func Load() (Config, error) {
	return LoadFrom(".env")
}

// LoadFrom is Load with an explicit .env path. A missing .env or YAML file
// is not an error.
func LoadFrom(envFile string) (Config, error) {
	cfg := Default()

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if path := os.Getenv("KRISKINDLE_CONFIG"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := loadEnv(&cfg); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	return validate.Struct(c)
}

// Addr is the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func loadEnv(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		cfg.Port = i
	}
	if v := os.Getenv("DB_DRIVER"); v != "" {
		cfg.DBDriver = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("INVITE_SECRET"); v != "" {
		cfg.InviteSecret = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("STORE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("STORE_TIMEOUT: %w", err)
		}
		cfg.StoreTimeout = d
	}
	if v := os.Getenv("JOIN_RETRIES"); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("JOIN_RETRIES: %w", err)
		}
		cfg.JoinRetries = i
	}
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("RATE_LIMIT_RPS: %w", err)
		}
		cfg.RateLimit.RPS = f
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RATE_LIMIT_BURST: %w", err)
		}
		cfg.RateLimit.Burst = i
	}
	return nil
}
