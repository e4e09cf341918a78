package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/crypto/bcrypt"
)

// Config holds the application configuration.
type Config struct {
	ServerPort     int
	AppEnv         string
	LogLevel       string
	DatabaseURL    string // SQLite path by default, postgres:// URLs select PostgreSQL
	RedisAddr      string // Empty disables the todo cache
	PublicBaseURL  string // Used to build links sent by email
	AllowedOrigins []string

	SecretKey               string
	Algorithm               string
	AccessTokenExpire       time.Duration
	ConfirmationTokenExpire time.Duration
	BcryptCost              int

	MailgunAPIKey  string
	MailgunDomain  string
	MailgunBaseURL string
}

// fileConfig mirrors the keys accepted in the optional TOML config file.
type fileConfig struct {
	Port                           *int     `toml:"port"`
	AppEnv                         *string  `toml:"app_env"`
	LogLevel                       *string  `toml:"log_level"`
	DatabaseURL                    *string  `toml:"database_url"`
	RedisAddr                      *string  `toml:"redis_addr"`
	PublicBaseURL                  *string  `toml:"public_base_url"`
	AllowedOrigins                 []string `toml:"allowed_origins"`
	SecretKey                      *string  `toml:"secret_key"`
	Algorithm                      *string  `toml:"algorithm"`
	AccessTokenExpireMinutes       *int     `toml:"access_token_expire_minutes"`
	ConfirmationTokenExpireMinutes *int     `toml:"confirmation_token_expire_minutes"`
	BcryptCost                     *int     `toml:"bcrypt_cost"`
	MailgunAPIKey                  *string  `toml:"mailgun_api_key"`
	MailgunDomain                  *string  `toml:"mailgun_domain"`
	MailgunBaseURL                 *string  `toml:"mailgun_base_url"`
}

// Defaults returns the development configuration used before any overrides.
func Defaults() *Config {
	return &Config{
		ServerPort:              8080,
		AppEnv:                  "development",
		LogLevel:                "info",
		DatabaseURL:             "./todo.db",
		PublicBaseURL:           "http://localhost:8080",
		AllowedOrigins:          []string{"http://localhost:3000"},
		Algorithm:               "HS256",
		AccessTokenExpire:       30 * time.Minute,
		ConfirmationTokenExpire: 24 * time.Hour,
		BcryptCost:              bcrypt.DefaultCost,
		MailgunBaseURL:          "https://api.mailgun.net/v3",
	}
}

// Load builds the configuration from defaults, then the TOML file named by
// CONFIG_FILE (if any), then environment variables.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsProduction reports whether the app runs with APP_ENV=production.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if c.SecretKey == "" {
		return fmt.Errorf("SECRET_KEY must be set")
	}
	switch c.Algorithm {
	case "HS256", "HS384", "HS512":
	default:
		return fmt.Errorf("unsupported signing algorithm %q", c.Algorithm)
	}
	if c.AccessTokenExpire <= 0 {
		return fmt.Errorf("access token lifetime must be positive")
	}
	if c.ConfirmationTokenExpire <= 0 {
		return fmt.Errorf("confirmation token lifetime must be positive")
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt cost %d out of range", c.BcryptCost)
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("invalid port %d", c.ServerPort)
	}
	return nil
}

func (c *Config) applyFile(path string) error {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	setInt(&c.ServerPort, fc.Port)
	setString(&c.AppEnv, fc.AppEnv)
	setString(&c.LogLevel, fc.LogLevel)
	setString(&c.DatabaseURL, fc.DatabaseURL)
	setString(&c.RedisAddr, fc.RedisAddr)
	setString(&c.PublicBaseURL, fc.PublicBaseURL)
	if len(fc.AllowedOrigins) > 0 {
		c.AllowedOrigins = fc.AllowedOrigins
	}
	setString(&c.SecretKey, fc.SecretKey)
	setString(&c.Algorithm, fc.Algorithm)
	if fc.AccessTokenExpireMinutes != nil {
		c.AccessTokenExpire = time.Duration(*fc.AccessTokenExpireMinutes) * time.Minute
	}
	if fc.ConfirmationTokenExpireMinutes != nil {
		c.ConfirmationTokenExpire = time.Duration(*fc.ConfirmationTokenExpireMinutes) * time.Minute
	}
	setInt(&c.BcryptCost, fc.BcryptCost)
	setString(&c.MailgunAPIKey, fc.MailgunAPIKey)
	setString(&c.MailgunDomain, fc.MailgunDomain)
	setString(&c.MailgunBaseURL, fc.MailgunBaseURL)
	return nil
}

func (c *Config) applyEnv() error {
	var err error
	if c.ServerPort, err = getEnvInt("PORT", c.ServerPort); err != nil {
		return err
	}
	c.AppEnv = getEnv("APP_ENV", c.AppEnv)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.PublicBaseURL = strings.TrimRight(getEnv("PUBLIC_BASE_URL", c.PublicBaseURL), "/")
	if origins := getEnv("ALLOWED_ORIGINS", ""); origins != "" {
		c.AllowedOrigins = splitList(origins)
	}

	c.SecretKey = getEnv("SECRET_KEY", c.SecretKey)
	c.Algorithm = getEnv("ALGORITHM", c.Algorithm)

	accessMinutes, err := getEnvInt("ACCESS_TOKEN_EXPIRE_MINUTES", int(c.AccessTokenExpire/time.Minute))
	if err != nil {
		return err
	}
	c.AccessTokenExpire = time.Duration(accessMinutes) * time.Minute

	confirmMinutes, err := getEnvInt("CONFIRMATION_TOKEN_EXPIRE_MINUTES", int(c.ConfirmationTokenExpire/time.Minute))
	if err != nil {
		return err
	}
	c.ConfirmationTokenExpire = time.Duration(confirmMinutes) * time.Minute

	if c.BcryptCost, err = getEnvInt("BCRYPT_COST", c.BcryptCost); err != nil {
		return err
	}

	c.MailgunAPIKey = getEnv("MAILGUN_API_KEY", c.MailgunAPIKey)
	c.MailgunDomain = getEnv("MAILGUN_DOMAIN", c.MailgunDomain)
	c.MailgunBaseURL = getEnv("MAILGUN_BASE_URL", c.MailgunBaseURL)
	return nil
}

// Helper to get an environment variable with a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
