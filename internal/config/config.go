package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gopkg.in/yaml.v3"
)

// Environment variable names recognized by the loader.
const (
	EnvConfigPath    = "CONFIG_PATH"
	EnvDBConnection  = "DB_CONNECTION"
	EnvJWTSecret     = "JWT_SECRET"
	EnvJWTExpiry     = "JWT_EXPIRY"
	EnvAdminUsername = "ADMIN_USERNAME"
	EnvAdminPassword = "ADMIN_PASSWORD"
)

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// JWTConfig holds JWT secret and expiry settings.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// BootstrapAdmin holds first-run console operator credentials.
type BootstrapAdmin struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// RateLimitConfig holds rate limit settings. A zero per-second value
// disables that limit. Redis fields are optional; the in-memory limiter is
// used when RedisAddr is empty.
type RateLimitConfig struct {
	LoginPerSecond  int    `yaml:"login-per-second"`
	LookupPerSecond int    `yaml:"lookup-per-second"`
	RedisAddr       string `yaml:"redis-addr"`
	RedisPassword   string `yaml:"redis-password"`
	RedisDB         int    `yaml:"redis-db"`
	RedisPrefix     string `yaml:"redis-prefix"`
}

// fileConfig maps the YAML config file layout.
type fileConfig struct {
	DatabaseDSN string `yaml:"database-dsn"`
	Database    struct {
		DSN string `yaml:"dsn"`
	} `yaml:"database"`
	JWT       JWTConfig       `yaml:"jwt"`
	Server    ServerConfig    `yaml:"server"`
	Admin     BootstrapAdmin  `yaml:"admin"`
	RateLimit RateLimitConfig `yaml:"rate-limit"`
}

// readFileConfig parses the YAML config file; a missing file yields zero values.
func readFileConfig(configPath string) (fileConfig, error) {
	var cfg fileConfig
	data, errRead := os.ReadFile(configPath)
	if errRead != nil {
		if os.IsNotExist(errRead) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config file: %w", errRead)
	}
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return cfg, fmt.Errorf("parse config file: %w", errUnmarshal)
	}
	return cfg, nil
}

// LoadDatabaseDSN reads the database DSN from the environment or the YAML
// config file. PostgreSQL DSNs are validated before use.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, validateDSN(dsn)
	}

	cfg, errRead := readFileConfig(configPath)
	if errRead != nil {
		return "", errRead
	}

	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, validateDSN(dsn)
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, validateDSN(dsn)
	}
	return "", ErrMissingDatabaseDSN
}

// validateDSN rejects malformed PostgreSQL URLs early. SQLite DSNs are
// plain paths and pass through.
func validateDSN(dsn string) error {
	lowered := strings.ToLower(dsn)
	if !strings.HasPrefix(lowered, "postgres://") && !strings.HasPrefix(lowered, "postgresql://") {
		return nil
	}
	if _, errParse := pgconn.ParseConfig(dsn); errParse != nil {
		return fmt.Errorf("invalid postgres dsn: %w", errParse)
	}
	return nil
}

// defaultJWTExpiry is used when the config omits or invalidates JWT expiry.
const defaultJWTExpiry = 30 * 24 * time.Hour

// LoadJWTConfig loads JWT settings from the YAML config file with
// environment overrides.
func LoadJWTConfig(configPath string) (JWTConfig, error) {
	result := JWTConfig{Expiry: defaultJWTExpiry}

	cfg, errRead := readFileConfig(configPath)
	if errRead == nil && (cfg.JWT.Secret != "" || cfg.JWT.Expiry != 0) {
		result = cfg.JWT
	}

	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		result.Secret = secret
	}
	if expiryRaw := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); expiryRaw != "" {
		if expiry, errParse := time.ParseDuration(expiryRaw); errParse == nil && expiry > 0 {
			result.Expiry = expiry
		}
	}

	if result.Expiry <= 0 {
		result.Expiry = defaultJWTExpiry
	}
	return result, nil
}

// LoadServerConfig loads HTTP server settings, falling back to the default
// port when unset.
func LoadServerConfig(configPath string, defaultPort int) (ServerConfig, error) {
	cfg, errRead := readFileConfig(configPath)
	if errRead != nil {
		return ServerConfig{}, errRead
	}
	result := cfg.Server
	if result.Port <= 0 || result.Port > 65535 {
		result.Port = defaultPort
	}
	return result, nil
}

// LoadBootstrapAdmin loads first-run admin credentials from the YAML config
// file with environment overrides. Both fields empty means no bootstrap.
func LoadBootstrapAdmin(configPath string) (BootstrapAdmin, error) {
	cfg, errRead := readFileConfig(configPath)
	if errRead != nil {
		return BootstrapAdmin{}, errRead
	}
	result := cfg.Admin
	if username := strings.TrimSpace(os.Getenv(EnvAdminUsername)); username != "" {
		result.Username = username
	}
	if password := strings.TrimSpace(os.Getenv(EnvAdminPassword)); password != "" {
		result.Password = password
	}
	return result, nil
}

// LoadRateLimitConfig loads login rate limit settings.
func LoadRateLimitConfig(configPath string) (RateLimitConfig, error) {
	cfg, errRead := readFileConfig(configPath)
	if errRead != nil {
		return RateLimitConfig{}, errRead
	}
	return cfg.RateLimit, nil
}
