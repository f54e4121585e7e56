package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/basic-auth/internal/credentials"
	"github.com/eugenenazirov/basic-auth/internal/storage"
)

const (
	defaultPort           = "8080"
	defaultRealm          = "basic-auth"
	defaultLogLevel       = "info"
	defaultRateLimitRPS   = 25.0
	defaultRateLimitBurst = 50

	// DefaultConfigFile is read when no config file is given and it exists
	// in the working directory.
	DefaultConfigFile = "config.yaml"
	// DefaultEnvFile is loaded into the environment when present.
	DefaultEnvFile = ".env"
)

// Config aggregates runtime configuration resolved from multiple sources.
// Precedence: CLI flags > YAML config > Environment variables > Defaults
type Config struct {
	Port                 string
	Realm                string
	LogLevel             string
	Database             DatabaseConfig
	API                  APIConfig
	PasswordHashCost     int
	ShutdownGracePeriod  time.Duration
	ReadHeaderTimeout    time.Duration
	WriteTimeout         time.Duration
	IdleTimeout          time.Duration
	EnableRequestLogging bool
	RateLimitRPS         float64
	RateLimitBurst       int
}

// DatabaseConfig selects the credentials storage.
type DatabaseConfig struct {
	Driver string
	DSN    string
}

// APIConfig holds the media type parameters the REST API requires.
// Empty values are not checked.
type APIConfig struct {
	Profile string
	Version string
}

// yamlConfig represents the YAML configuration file structure.
type yamlConfig struct {
	Port                 string        `yaml:"port"`
	Realm                string        `yaml:"realm"`
	LogLevel             string        `yaml:"log_level"`
	DB                   yamlDB        `yaml:"db"`
	API                  yamlAPI       `yaml:"api"`
	PasswordHashCost     int           `yaml:"password_hash_cost"`
	ShutdownGracePeriod  string        `yaml:"shutdown_grace_period"`
	ReadHeaderTimeout    string        `yaml:"read_header_timeout"`
	WriteTimeout         string        `yaml:"write_timeout"`
	IdleTimeout          string        `yaml:"idle_timeout"`
	EnableRequestLogging *bool         `yaml:"enable_request_logging"`
	RateLimit            yamlRateLimit `yaml:"rate_limit"`
}

type yamlDB struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type yamlAPI struct {
	Profile string `yaml:"profile"`
	Version string `yaml:"version"`
}

// yamlRateLimit represents the rate limit section in YAML.
type yamlRateLimit struct {
	RPS   *float64 `yaml:"rps"`
	Burst *int     `yaml:"burst"`
}

// CLIOverrides holds command-line flag overrides.
type CLIOverrides struct {
	ConfigFile     string
	EnvFile        string
	Port           *string
	Realm          *string
	LogLevel       *string
	DBDriver       *string
	DBDSN          *string
	RateLimitRPS   *float64
	RateLimitBurst *int
}

// Load extracts configuration from multiple sources with precedence:
// CLI flags > YAML config > Environment variables > Defaults
func Load(overrides *CLIOverrides) (Config, error) {
	if overrides == nil {
		overrides = &CLIOverrides{}
	}

	if err := loadEnvFile(overrides.EnvFile); err != nil {
		return Config{}, err
	}

	cfg := defaultConfig()

	// Apply environment variables
	applyEnvConfig(&cfg)

	// YAML file overrides the environment
	configFile := overrides.ConfigFile
	if configFile == "" && fileExists(DefaultConfigFile) {
		configFile = DefaultConfigFile
	}
	if configFile != "" {
		yamlCfg, err := loadFromFile(configFile)
		if err != nil {
			return Config{}, fmt.Errorf("load YAML config: %w", err)
		}
		if err := applyYAMLConfig(&cfg, yamlCfg); err != nil {
			return Config{}, fmt.Errorf("apply YAML config: %w", err)
		}
	}

	// Apply CLI overrides (highest precedence)
	applyCLIOverrides(&cfg, overrides)

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = storage.DriverFromDSN(cfg.Database.DSN)
		if cfg.Database.Driver == "" {
			return Config{}, fmt.Errorf("cannot infer database driver from DSN, set db.driver explicitly")
		}
	}

	// Validate final configuration
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// defaultConfig returns a Config with default values.
func defaultConfig() Config {
	return Config{
		Port:                 defaultPort,
		Realm:                defaultRealm,
		LogLevel:             defaultLogLevel,
		PasswordHashCost:     credentials.DefaultHashCost,
		ShutdownGracePeriod:  10 * time.Second,
		ReadHeaderTimeout:    5 * time.Second,
		WriteTimeout:         15 * time.Second,
		IdleTimeout:          60 * time.Second,
		EnableRequestLogging: true,
		RateLimitRPS:         defaultRateLimitRPS,
		RateLimitBurst:       defaultRateLimitBurst,
	}
}

// loadEnvFile loads a dotenv file without overriding variables already set.
// A missing default file is not an error.
func loadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(path string) (*yamlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	return &yamlCfg, nil
}

// applyYAMLConfig applies YAML configuration to the Config struct.
func applyYAMLConfig(cfg *Config, yamlCfg *yamlConfig) error {
	if yamlCfg.Port != "" {
		cfg.Port = yamlCfg.Port
	}
	if yamlCfg.Realm != "" {
		cfg.Realm = yamlCfg.Realm
	}
	if yamlCfg.LogLevel != "" {
		cfg.LogLevel = yamlCfg.LogLevel
	}
	if yamlCfg.DB.DSN != "" {
		cfg.Database.DSN = yamlCfg.DB.DSN
		cfg.Database.Driver = yamlCfg.DB.Driver
	} else if yamlCfg.DB.Driver != "" {
		cfg.Database.Driver = yamlCfg.DB.Driver
	}
	if yamlCfg.API.Profile != "" {
		cfg.API.Profile = yamlCfg.API.Profile
	}
	if yamlCfg.API.Version != "" {
		cfg.API.Version = yamlCfg.API.Version
	}
	if yamlCfg.PasswordHashCost != 0 {
		cfg.PasswordHashCost = yamlCfg.PasswordHashCost
	}

	durations := []struct {
		raw    string
		target *time.Duration
		key    string
	}{
		{yamlCfg.ShutdownGracePeriod, &cfg.ShutdownGracePeriod, "shutdown_grace_period"},
		{yamlCfg.ReadHeaderTimeout, &cfg.ReadHeaderTimeout, "read_header_timeout"},
		{yamlCfg.WriteTimeout, &cfg.WriteTimeout, "write_timeout"},
		{yamlCfg.IdleTimeout, &cfg.IdleTimeout, "idle_timeout"},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		value, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		*d.target = value
	}

	if yamlCfg.EnableRequestLogging != nil {
		cfg.EnableRequestLogging = *yamlCfg.EnableRequestLogging
	}

	if yamlCfg.RateLimit.RPS != nil {
		cfg.RateLimitRPS = *yamlCfg.RateLimit.RPS
	}

	if yamlCfg.RateLimit.Burst != nil {
		cfg.RateLimitBurst = *yamlCfg.RateLimit.Burst
	}
	return nil
}

// applyEnvConfig applies environment variable configuration.
func applyEnvConfig(cfg *Config) {
	if port := env("PORT"); port != "" {
		cfg.Port = port
	}

	if realm := env("REALM"); realm != "" {
		cfg.Realm = realm
	}

	if level := env("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if dsn := env("DB_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}

	if driver := env("DB_DRIVER"); driver != "" {
		cfg.Database.Driver = driver
	}

	if profile := env("API_PROFILE"); profile != "" {
		cfg.API.Profile = profile
	}

	if version := env("API_VERSION"); version != "" {
		cfg.API.Version = version
	}

	if cost := env("PASSWORD_HASH_COST"); cost != "" {
		if value, err := strconv.Atoi(cost); err == nil {
			cfg.PasswordHashCost = value
		}
	}

	if rps := env("RATE_LIMIT_RPS"); rps != "" {
		if value, err := strconv.ParseFloat(rps, 64); err == nil && value >= 0 {
			cfg.RateLimitRPS = value
		}
	}

	if burst := env("RATE_LIMIT_BURST"); burst != "" {
		if value, err := strconv.Atoi(burst); err == nil && value >= 0 {
			cfg.RateLimitBurst = value
		}
	}
}

// applyCLIOverrides applies command-line flag overrides.
func applyCLIOverrides(cfg *Config, overrides *CLIOverrides) {
	if overrides.Port != nil && *overrides.Port != "" {
		cfg.Port = *overrides.Port
	}

	if overrides.Realm != nil && *overrides.Realm != "" {
		cfg.Realm = *overrides.Realm
	}

	if overrides.LogLevel != nil && *overrides.LogLevel != "" {
		cfg.LogLevel = *overrides.LogLevel
	}

	if overrides.DBDSN != nil && *overrides.DBDSN != "" {
		cfg.Database.DSN = *overrides.DBDSN
		cfg.Database.Driver = ""
	}

	if overrides.DBDriver != nil && *overrides.DBDriver != "" {
		cfg.Database.Driver = *overrides.DBDriver
	}

	if overrides.RateLimitRPS != nil && *overrides.RateLimitRPS >= 0 {
		cfg.RateLimitRPS = *overrides.RateLimitRPS
	}

	if overrides.RateLimitBurst != nil && *overrides.RateLimitBurst >= 0 {
		cfg.RateLimitBurst = *overrides.RateLimitBurst
	}
}

// validateConfig validates the final configuration.
func validateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Port) == "" {
		return fmt.Errorf("port cannot be empty")
	}
	if strings.TrimSpace(cfg.Realm) == "" {
		return fmt.Errorf("realm cannot be empty")
	}
	if _, err := zapcore.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q", cfg.LogLevel)
	}
	if !storage.IsSupportedDriver(cfg.Database.Driver) {
		return fmt.Errorf("unsupported database driver %q (want one of %s)",
			cfg.Database.Driver, strings.Join(storage.Drivers(), ", "))
	}
	if cfg.Database.Driver != storage.DriverMemory && cfg.Database.DSN == "" {
		return fmt.Errorf("database driver %q requires a DSN", cfg.Database.Driver)
	}
	if cfg.PasswordHashCost < bcrypt.MinCost || cfg.PasswordHashCost > bcrypt.MaxCost {
		return fmt.Errorf("password hash cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if cfg.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be >= 0")
	}
	return nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
