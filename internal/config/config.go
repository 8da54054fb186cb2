package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration, loaded from the environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Mpesa    MpesaConfig
	MikroTik MikroTikConfig
	Worker   WorkerConfig
}

type ServerConfig struct {
	Port   string
	AppURL string
}

type DatabaseConfig struct {
	URL string
}

type RedisConfig struct {
	URL string
}

type JWTConfig struct {
	Secret   string
	TokenTTL time.Duration
}

// MpesaConfig carries the Daraja merchant credentials. Environment is
// either "sandbox" or "production" and selects the API host.
type MpesaConfig struct {
	ConsumerKey    string
	ConsumerSecret string
	Shortcode      string
	Environment    string
	CallbackURL    string
	Timeout        time.Duration
}

// MikroTikConfig describes the single managed router. MaxAttempts is
// the per-command connection budget: 2 means one reconnect-and-retry
// after a failed call.
type MikroTikConfig struct {
	Host        string
	Username    string
	Password    string
	Port        int
	UseTLS      bool
	Timeout     time.Duration
	MaxAttempts int
}

type WorkerConfig struct {
	Interval     time.Duration
	PendingTxTTL time.Duration
}

// Load reads configuration from environment variables. Call after
// godotenv has populated the process environment.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:   getEnv("PORT", "8080"),
			AppURL: getEnv("APP_URL", "http://localhost:8080"),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		JWT: JWTConfig{
			Secret:   getEnv("JWT_SECRET", ""),
			TokenTTL: getEnvDuration("JWT_TOKEN_TTL", 24*time.Hour),
		},
		Mpesa: MpesaConfig{
			ConsumerKey:    getEnv("MPESA_CONSUMER_KEY", ""),
			ConsumerSecret: getEnv("MPESA_CONSUMER_SECRET", ""),
			Shortcode:      getEnv("MPESA_PAYBILL", ""),
			Environment:    getEnv("MPESA_ENVIRONMENT", "sandbox"),
			CallbackURL:    getEnv("MPESA_CALLBACK_URL", ""),
			Timeout:        getEnvDuration("MPESA_TIMEOUT", 30*time.Second),
		},
		MikroTik: MikroTikConfig{
			Host:        getEnv("MIKROTIK_HOST", "192.168.88.1"),
			Username:    getEnv("MIKROTIK_USERNAME", "admin"),
			Password:    getEnv("MIKROTIK_PASSWORD", ""),
			Port:        getEnvInt("MIKROTIK_PORT", 8728),
			UseTLS:      getEnv("MIKROTIK_USE_TLS", "false") == "true",
			Timeout:     getEnvDuration("MIKROTIK_TIMEOUT", 10*time.Second),
			MaxAttempts: getEnvInt("MIKROTIK_MAX_ATTEMPTS", 2),
		},
		Worker: WorkerConfig{
			Interval:     getEnvDuration("WORKER_INTERVAL", 5*time.Minute),
			PendingTxTTL: getEnvDuration("PENDING_TX_TTL", 2*time.Hour),
		},
	}
}

// Validate checks the settings the server cannot run without.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL must be set")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET must be set")
	}
	if c.Mpesa.ConsumerKey == "" || c.Mpesa.ConsumerSecret == "" || c.Mpesa.Shortcode == "" {
		return fmt.Errorf("MPESA_CONSUMER_KEY, MPESA_CONSUMER_SECRET and MPESA_PAYBILL must be set")
	}
	if c.Mpesa.CallbackURL == "" {
		return fmt.Errorf("MPESA_CALLBACK_URL must be set")
	}
	if c.MikroTik.MaxAttempts < 1 {
		return fmt.Errorf("MIKROTIK_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

// Address returns the router API endpoint in host:port form.
func (c *MikroTikConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
