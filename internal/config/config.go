package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// ConfigPath is the default location of the YAML config file.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port      string `yaml:"port"`
	LogLevel  string `yaml:"logLevel"`
	APIPrefix string `yaml:"apiPrefix"`

	DatabaseURL   string `yaml:"databaseURL"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	JWTSecret      string `yaml:"jwtSecret"`
	CookieSecret   string `yaml:"cookieSecret"`
	CookieName     string `yaml:"cookieName"`
	CookieDomain   string `yaml:"cookieDomain"`
	CookieSecure   bool   `yaml:"cookieSecure"`
	CookieSameSite string `yaml:"cookieSameSite"`
	SessionTTL     string `yaml:"sessionTTL"`

	CORSOrigins    []string `yaml:"corsOrigins"`
	TrustedProxies []string `yaml:"trustedProxies"`

	OpenAIAPIKey  string `yaml:"openAIAPIKey"`
	OpenAIBaseURL string `yaml:"openAIBaseURL"`
	OpenAIModel   string `yaml:"openAIModel"`

	CompletionTimeout string `yaml:"completionTimeout"`
	StoreTimeout      string `yaml:"storeTimeout"`
	LockTTL           string `yaml:"lockTTL"`

	LegacyErrorBodies bool `yaml:"legacyErrorBodies"`
}

// envOverrides lists the environment variables that override the file.
// Empty values leave the file setting in place.
type envOverrides struct {
	Port              string `env:"PORT"`
	LogLevel          string `env:"LOG_LEVEL"`
	APIPrefix         string `env:"API_PREFIX"`
	DatabaseURL       string `env:"DATABASE_URL"`
	RedisAddr         string `env:"REDIS_ADDR"`
	RedisPassword     string `env:"REDIS_PASSWORD"`
	JWTSecret         string `env:"JWT_SECRET"`
	CookieSecret      string `env:"COOKIE_SECRET"`
	CookieName        string `env:"COOKIE_NAME"`
	CookieDomain      string `env:"COOKIE_DOMAIN"`
	CookieSecure      string `env:"COOKIE_SECURE"`
	CookieSameSite    string `env:"COOKIE_SAMESITE"`
	SessionTTL        string `env:"SESSION_TTL"`
	CORSOrigins       string `env:"CORS_ORIGINS"`
	TrustedProxies    string `env:"TRUSTED_PROXIES"`
	OpenAIAPIKey      string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL     string `env:"OPENAI_BASE_URL"`
	OpenAIModel       string `env:"OPENAI_MODEL"`
	CompletionTimeout string `env:"COMPLETION_TIMEOUT"`
	StoreTimeout      string `env:"STORE_TIMEOUT"`
	LockTTL           string `env:"LOCK_TTL"`
	LegacyErrorBodies string `env:"LEGACY_ERROR_BODIES"`
}

// Durations holds the parsed duration settings.
type Durations struct {
	Session    time.Duration
	Completion time.Duration
	Store      time.Duration
	Lock       time.Duration
}

const (
	defaultSessionTTL        = 7 * 24 * time.Hour
	defaultCompletionTimeout = 60 * time.Second
	defaultStoreTimeout      = 5 * time.Second
)

// Load reads config from path (defaults to config.yaml), applies environment
// overrides and validates the result. A missing file is allowed when the
// environment supplies every required value.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) error {
	var env envOverrides
	if err := envdecode.Decode(&env); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return fmt.Errorf("decode env: %w", err)
	}
	setString(&cfg.Port, env.Port)
	setString(&cfg.LogLevel, env.LogLevel)
	setString(&cfg.APIPrefix, env.APIPrefix)
	setString(&cfg.DatabaseURL, env.DatabaseURL)
	setString(&cfg.RedisAddr, env.RedisAddr)
	setString(&cfg.RedisPassword, env.RedisPassword)
	setString(&cfg.JWTSecret, env.JWTSecret)
	setString(&cfg.CookieSecret, env.CookieSecret)
	setString(&cfg.CookieName, env.CookieName)
	setString(&cfg.CookieDomain, env.CookieDomain)
	setString(&cfg.CookieSameSite, env.CookieSameSite)
	setString(&cfg.SessionTTL, env.SessionTTL)
	setString(&cfg.OpenAIAPIKey, env.OpenAIAPIKey)
	setString(&cfg.OpenAIBaseURL, env.OpenAIBaseURL)
	setString(&cfg.OpenAIModel, env.OpenAIModel)
	setString(&cfg.CompletionTimeout, env.CompletionTimeout)
	setString(&cfg.StoreTimeout, env.StoreTimeout)
	setString(&cfg.LockTTL, env.LockTTL)
	if v := strings.TrimSpace(env.CORSOrigins); v != "" {
		cfg.CORSOrigins = splitCSV(v)
	}
	if v := strings.TrimSpace(env.TrustedProxies); v != "" {
		cfg.TrustedProxies = splitCSV(v)
	}
	if err := setBool(&cfg.CookieSecure, "COOKIE_SECURE", env.CookieSecure); err != nil {
		return err
	}
	return setBool(&cfg.LegacyErrorBodies, "LEGACY_ERROR_BODIES", env.LegacyErrorBodies)
}

func applyDefaults(cfg *FileConfig) {
	if cfg.Port == "" {
		cfg.Port = "5000"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
}

func validateConfig(cfg FileConfig) error {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return errors.New("config: jwtSecret is required (set in config.yaml or JWT_SECRET)")
	}
	if strings.TrimSpace(cfg.CookieSecret) == "" {
		return errors.New("config: cookieSecret is required (set in config.yaml or COOKIE_SECRET)")
	}
	if cfg.JWTSecret == cfg.CookieSecret {
		return errors.New("config: jwtSecret and cookieSecret must differ")
	}
	if strings.TrimSpace(cfg.OpenAIAPIKey) == "" && strings.TrimSpace(cfg.OpenAIBaseURL) == "" {
		return errors.New("config: openAIAPIKey is required unless openAIBaseURL points at a local server")
	}
	d, err := cfg.ParseDurations()
	if err != nil {
		return err
	}
	if strings.TrimSpace(cfg.RedisAddr) != "" && d.Lock <= d.Completion+2*d.Store {
		return fmt.Errorf("config: lockTTL (%s) must exceed completionTimeout plus two storeTimeouts (%s)", d.Lock, d.Completion+2*d.Store)
	}
	return nil
}

// ParseDurations parses the duration settings, filling defaults for empty ones.
func (c FileConfig) ParseDurations() (Durations, error) {
	var (
		d   Durations
		err error
	)
	if d.Session, err = ParseDuration("sessionTTL", c.SessionTTL, defaultSessionTTL); err != nil {
		return d, err
	}
	if d.Completion, err = ParseDuration("completionTimeout", c.CompletionTimeout, defaultCompletionTimeout); err != nil {
		return d, err
	}
	if d.Store, err = ParseDuration("storeTimeout", c.StoreTimeout, defaultStoreTimeout); err != nil {
		return d, err
	}
	if d.Lock, err = ParseDuration("lockTTL", c.LockTTL, d.Completion+2*d.Store+10*time.Second); err != nil {
		return d, err
	}
	return d, nil
}

// ParseDuration parses an optional positive duration string.
func ParseDuration(field, value string, fallback time.Duration) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	dur, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", field, err)
	}
	if dur <= 0 {
		return 0, fmt.Errorf("invalid %s duration: must be positive", field)
	}
	return dur, nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, name, v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", name, err)
	}
	*dst = b
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
