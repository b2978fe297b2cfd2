package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Settings holds the process configuration read from the environment.
type Settings struct {
	ServerPort  string `env:"SERVER_PORT" envDefault:"8080"`
	GinMode     string `env:"GIN_MODE"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	DebugSQL    bool   `env:"DEBUG_SQL"`

	DBDriver       string `env:"DB_DRIVER" envDefault:"sqlite"`
	DBHost         string `env:"DB_HOST" envDefault:"127.0.0.1"`
	DBPort         string `env:"DB_PORT"`
	DBDatabase     string `env:"DB_DATABASE" envDefault:"manuscript_review"`
	DBUsername     string `env:"DB_USERNAME"`
	DBPassword     string `env:"DB_PASSWORD"`
	DBPath         string `env:"DB_PATH" envDefault:"data/review.db"`
	DBMaxOpenConns int    `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`

	JWTSecret         string `env:"JWT_SECRET"`
	AdminPasswordHash string `env:"ADMIN_PASSWORD_HASH"`
	AllowedOrigins    string `env:"ALLOWED_ORIGINS" envDefault:"*"`
	LogsToken         string `env:"LOGS_TOKEN"`

	SweepInterval      time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
	WorkerConcurrency  int           `env:"WORKER_CONCURRENCY" envDefault:"4"`
	WorkerPollInterval time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"5s"`
}

// Load parses Settings from the environment.
func Load() (*Settings, error) {
	var s Settings
	if err := env.Parse(&s); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if s.DBMaxOpenConns <= 0 {
		s.DBMaxOpenConns = 1
	}
	if s.WorkerConcurrency <= 0 {
		s.WorkerConcurrency = 1
	}
	return &s, nil
}

// IsProduction reports whether ENVIRONMENT is production.
func (s *Settings) IsProduction() bool {
	return s != nil && s.Environment == "production"
}
