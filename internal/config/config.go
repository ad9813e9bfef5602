package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath   = "CONFIG_PATH"
	EnvDBConnection = "DB_CONNECTION"
	EnvJWTSecret    = "JWT_SECRET"
	EnvJWTExpiry    = "JWT_EXPIRY"
	EnvAdminEmails  = "CREDITS_ADMIN_EMAILS"
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

// LoadDatabaseDSN reads the database DSN from the YAML config file.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}

	// fileConfig maps the YAML fields needed for DSN resolution.
	type fileConfig struct {
		DatabaseDSN string `yaml:"database-dsn"`
		Database    struct {
			DSN string `yaml:"dsn"`
		} `yaml:"database"`
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("read config file: %w", err)
	}

	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return "", fmt.Errorf("parse config file: %w", errUnmarshal)
	}

	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// defaultJWTExpiry is used when the config omits or invalidates JWT expiry.
const defaultJWTExpiry = 30 * 24 * time.Hour

// LoadJWTConfig loads JWT settings from the YAML config file.
func LoadJWTConfig(configPath string) (JWTConfig, error) {
	// fileConfig maps the YAML fields needed for JWT settings.
	type fileConfig struct {
		JWT JWTConfig `yaml:"jwt"`
	}

	result := JWTConfig{Expiry: defaultJWTExpiry}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.JWT
		}
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

// Default credit grant sizes applied when the config omits them.
const (
	DefaultSignupCredits = 100
	DefaultDailyGrant    = 25
	DefaultMaxCredits    = 100
)

// CreditsConfig holds credit grant sizes and the admin email allowlist.
type CreditsConfig struct {
	SignupCredits int64    `yaml:"signup-credits"`
	DailyGrant    int64    `yaml:"daily-grant"`
	MaxCredits    int64    `yaml:"max-credits"`
	AdminEmails   []string `yaml:"admin-emails"`
}

// LoadCreditsConfig loads credit settings from the YAML config file.
func LoadCreditsConfig(configPath string) (CreditsConfig, error) {
	// fileConfig maps the YAML fields needed for credit settings.
	type fileConfig struct {
		Credits CreditsConfig `yaml:"credits"`
	}

	var result CreditsConfig

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return CreditsConfig{}, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
		result = cfg.Credits
	}

	if result.SignupCredits <= 0 {
		result.SignupCredits = DefaultSignupCredits
	}
	if result.DailyGrant <= 0 {
		result.DailyGrant = DefaultDailyGrant
	}
	if result.MaxCredits <= 0 {
		result.MaxCredits = DefaultMaxCredits
	}

	if rawEmails := strings.TrimSpace(os.Getenv(EnvAdminEmails)); rawEmails != "" {
		emails := make([]string, 0)
		for _, email := range strings.Split(rawEmails, ",") {
			if trimmed := strings.TrimSpace(email); trimmed != "" {
				emails = append(emails, trimmed)
			}
		}
		result.AdminEmails = emails
	}

	return result, nil
}

const (
	EnvAdminUsername = "ADMIN_USERNAME"
	EnvAdminPassword = "ADMIN_PASSWORD"
)

// BootstrapAdminConfig holds the operator account seeded on first boot.
type BootstrapAdminConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// LoadBootstrapAdmin loads the bootstrap operator credentials.
func LoadBootstrapAdmin(configPath string) BootstrapAdminConfig {
	// fileConfig maps the YAML fields needed for the bootstrap admin.
	type fileConfig struct {
		Admin BootstrapAdminConfig `yaml:"admin"`
	}

	var result BootstrapAdminConfig

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.Admin
		}
	}

	if username := strings.TrimSpace(os.Getenv(EnvAdminUsername)); username != "" {
		result.Username = username
	}
	if password := strings.TrimSpace(os.Getenv(EnvAdminPassword)); password != "" {
		result.Password = password
	}

	result.Username = strings.TrimSpace(result.Username)
	return result
}
