package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix            = "UNFOLD"
	defaultHTTPAddress   = "0.0.0.0:8080"
	defaultDatabasePath  = "unfold.db"
	defaultLogLevel      = "info"
	defaultIssuer        = "tauth"
	defaultSessionTTL    = 30
	defaultEventsDriver  = EventsDriverNone
	defaultEventsChannel = "unfold.version_published"
)

// Supported event publisher drivers.
const (
	EventsDriverNone  = "none"
	EventsDriverRedis = "redis"
	EventsDriverAMQP  = "amqp"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress       string
	DatabasePath      string
	LogLevel          string
	CuratorSigningKey string
	CuratorIssuer     string
	InternalAPIKey    string
	SessionTTL        time.Duration
	AllowedOrigins    []string
	EventsDriver      string
	EventsRedisAddr   string
	EventsRedisPass   string
	EventsRedisDB     int
	EventsAMQPURL     string
	EventsChannel     string
}

// LoadEnvFile loads KEY=VALUE pairs from a dotenv file into the process environment.
// A missing file is not an error; variables already set in the environment win.
func LoadEnvFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", []string{})
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.issuer", defaultIssuer)
	configViper.SetDefault("session.ttl_days", defaultSessionTTL)
	configViper.SetDefault("events.driver", defaultEventsDriver)
	configViper.SetDefault("events.redis_db", 0)
	configViper.SetDefault("events.channel", defaultEventsChannel)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:       configViper.GetString("http.address"),
		AllowedOrigins:    configViper.GetStringSlice("http.allowed_origins"),
		DatabasePath:      configViper.GetString("database.path"),
		LogLevel:          configViper.GetString("log.level"),
		CuratorSigningKey: configViper.GetString("auth.signing_secret"),
		CuratorIssuer:     configViper.GetString("auth.issuer"),
		InternalAPIKey:    configViper.GetString("internal.api_key"),
		SessionTTL:        time.Duration(configViper.GetInt("session.ttl_days")) * 24 * time.Hour,
		EventsDriver:      strings.ToLower(strings.TrimSpace(configViper.GetString("events.driver"))),
		EventsRedisAddr:   configViper.GetString("events.redis_addr"),
		EventsRedisPass:   configViper.GetString("events.redis_password"),
		EventsRedisDB:     configViper.GetInt("events.redis_db"),
		EventsAMQPURL:     configViper.GetString("events.amqp_url"),
		EventsChannel:     configViper.GetString("events.channel"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.CuratorSigningKey) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.CuratorIssuer) == "" {
		return fmt.Errorf("auth.issuer is required")
	}
	if strings.TrimSpace(c.InternalAPIKey) == "" {
		return fmt.Errorf("internal.api_key is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session.ttl_days must be positive")
	}
	switch c.EventsDriver {
	case EventsDriverNone:
	case EventsDriverRedis:
		if strings.TrimSpace(c.EventsRedisAddr) == "" {
			return fmt.Errorf("events.redis_addr is required for the redis driver")
		}
	case EventsDriverAMQP:
		if strings.TrimSpace(c.EventsAMQPURL) == "" {
			return fmt.Errorf("events.amqp_url is required for the amqp driver")
		}
	default:
		return fmt.Errorf("events.driver %q is not supported", c.EventsDriver)
	}
	if c.EventsDriver != EventsDriverNone && strings.TrimSpace(c.EventsChannel) == "" {
		return fmt.Errorf("events.channel is required")
	}
	return nil
}
