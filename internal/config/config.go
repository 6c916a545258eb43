package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	DBUser    string
	DBPass    string
	DBHost    string
	DBPort    string
	DBName    string
	SSLMode   string
	RedisHost string
	RedisPort string
	NatsHost  string
	NatsPort  string
}

// New loads and validates configuration from environment variables.
// Postgres is required. Redis and NATS are optional: when their hosts are
// unset the respective Addr() accessor returns an error and the engine
// runs without that piece (no balance cache / no event bus).
func New() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBUser:    os.Getenv("MYTHORIA_POSTGRES_USER"),
		DBPass:    os.Getenv("MYTHORIA_POSTGRES_PASSWORD"),
		DBHost:    os.Getenv("MYTHORIA_POSTGRES_HOST"),
		DBPort:    os.Getenv("MYTHORIA_POSTGRES_PORT"),
		DBName:    os.Getenv("MYTHORIA_POSTGRES_DB"),
		SSLMode:   os.Getenv("MYTHORIA_POSTGRES_SSLMODE"),
		RedisHost: os.Getenv("MYTHORIA_REDIS_HOST"),
		RedisPort: os.Getenv("MYTHORIA_REDIS_PORT"),
		NatsHost:  os.Getenv("MYTHORIA_NATS_HOST"),
		NatsPort:  os.Getenv("MYTHORIA_NATS_PORT"),
	}

	if cfg.DBUser == "" || cfg.DBHost == "" || cfg.DBName == "" || cfg.SSLMode == "" {
		return nil, fmt.Errorf("missing required env for database: MYTHORIA_POSTGRES_USER/HOST/DB/SSLMODE")
	}
	if cfg.DBPort == "" {
		cfg.DBPort = "5432"
	}

	// Redis and NATS come in host+port pairs; half a pair is a mistake.
	if (cfg.RedisHost == "") != (cfg.RedisPort == "") {
		return nil, fmt.Errorf("MYTHORIA_REDIS_HOST and MYTHORIA_REDIS_PORT must be set together")
	}
	if (cfg.NatsHost == "") != (cfg.NatsPort == "") {
		return nil, fmt.Errorf("MYTHORIA_NATS_HOST and MYTHORIA_NATS_PORT must be set together")
	}

	return cfg, nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName, c.SSLMode)
}

// RedisAddr returns the Redis address if the balance cache is enabled.
func (c *Config) RedisAddr() (string, error) {
	if c.RedisHost == "" {
		return "", fmt.Errorf("redis balance cache is disabled (MYTHORIA_REDIS_HOST not set)")
	}
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort), nil
}

// NatsAddr returns the NATS URL if the event bus is enabled.
func (c *Config) NatsAddr() (string, error) {
	if c.NatsHost == "" {
		return "", fmt.Errorf("nats event bus is disabled (MYTHORIA_NATS_HOST not set)")
	}
	return fmt.Sprintf("nats://%s:%s", c.NatsHost, c.NatsPort), nil
}
