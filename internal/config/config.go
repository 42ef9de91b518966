// Package config loads runtime configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
)

type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	Server   ServerConfig
	Postgres PostgresConfig
	AMQP     AMQPConfig
	Dispatch DispatchConfig
}

type ServerConfig struct {
	Host string `env:"SERVER_HOST,notEmpty"`
	Port int    `env:"SERVER_PORT,notEmpty"`
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type PostgresConfig struct {
	Host     string `env:"POSTGRES_HOST,notEmpty"`
	Port     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	User     string `env:"POSTGRES_USER,notEmpty"`
	Password string `env:"POSTGRES_PASSWORD,notEmpty"`
	Database string `env:"POSTGRES_DB,notEmpty"`
}

// URL renders a postgres:// connection string usable by both pgx and the
// migrator.
func (c PostgresConfig) URL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.Database,
	}
	q := u.Query()
	q.Set("sslmode", "disable")
	u.RawQuery = q.Encode()
	return u.String()
}

type AMQPConfig struct {
	Host             string `env:"AMQP_HOST,notEmpty"`
	Port             int    `env:"AMQP_PORT" envDefault:"5672"`
	User             string `env:"AMQP_USER,notEmpty"`
	Password         string `env:"AMQP_PASSWORD,notEmpty"`
	Exchange         string `env:"AMQP_EXCHANGE" envDefault:"hookline"`
	SentMessageQueue string `env:"AMQP_SENT_MESSAGE_QUEUE" envDefault:"sent_message"`
}

func (c AMQPConfig) ServerURL() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
	}
	return u.String()
}

type DispatchConfig struct {
	Concurrency            int `env:"DISPATCH_CONCURRENCY" envDefault:"10"`
	DeliveryTimeoutSeconds int `env:"DELIVERY_TIMEOUT_SECONDS" envDefault:"30"`
	RetryMaxAttempts       int `env:"RETRY_MAX_ATTEMPTS" envDefault:"5"`
	RetryBaseDelaySeconds  int `env:"RETRY_BASE_DELAY_SECONDS" envDefault:"2"`
	RetryMultiplier        int `env:"RETRY_MULTIPLIER" envDefault:"2"`
	BreakerThreshold       int `env:"BREAKER_THRESHOLD" envDefault:"3"`
}

type ParseOption func(*parseOptions)

type parseOptions struct {
	envFile string
}

// WithEnvFile loads the given dotenv file before reading the environment.
// A missing file is not an error.
func WithEnvFile(path string) ParseOption {
	return func(o *parseOptions) {
		o.envFile = path
	}
}

func Parse(opts ...ParseOption) (*Config, error) {
	o := &parseOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.envFile != "" {
		_ = godotenv.Load(o.envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("SERVER_PORT must be within (0, 65535]")
	}
	if c.Dispatch.Concurrency < 1 {
		return errors.New("DISPATCH_CONCURRENCY must be >= 1")
	}
	if c.Dispatch.RetryMaxAttempts < 1 {
		return errors.New("RETRY_MAX_ATTEMPTS must be >= 1")
	}
	if c.Dispatch.BreakerThreshold < 1 {
		return errors.New("BREAKER_THRESHOLD must be >= 1")
	}
	return nil
}
