// Package config loads process configuration from the environment, after
// an optional .env file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/FocuswithJustin/JuniperBot/core/passage"
	"github.com/FocuswithJustin/JuniperBot/core/render"
	"github.com/FocuswithJustin/JuniperBot/internal/logging"
)

// DefaultEnvFile is read by Load when it exists.
const DefaultEnvFile = ".env"

// Config is the full process configuration.
type Config struct {
	CorpusPath         string        `env:"JUNIPERBOT_CORPUS"           envDefault:"enoch_texts.json"`
	Book               string        `env:"JUNIPERBOT_BOOK"             envDefault:"1 Enoch"`
	DefaultTranslation string        `env:"JUNIPERBOT_TRANSLATION"`
	ChunkSize          int           `env:"JUNIPERBOT_CHUNK_SIZE"       envDefault:"1800"`
	MaxRangeVerses     int           `env:"JUNIPERBOT_MAX_RANGE_VERSES" envDefault:"500"`
	IdleTimeout        time.Duration `env:"JUNIPERBOT_IDLE_TIMEOUT"     envDefault:"120s"`
	MaxSessions        int           `env:"JUNIPERBOT_MAX_SESSIONS"     envDefault:"1024"`

	Port           int      `env:"JUNIPERBOT_PORT"             envDefault:"8081"`
	APIKeys        []string `env:"JUNIPERBOT_API_KEYS"         envSeparator:","`
	RateLimit      int      `env:"JUNIPERBOT_RATE_LIMIT"       envDefault:"60"`
	RateBurst      int      `env:"JUNIPERBOT_RATE_BURST"       envDefault:"10"`
	AllowedOrigins []string `env:"JUNIPERBOT_ALLOWED_ORIGINS"  envSeparator:","`

	LogLevel  string `env:"JUNIPERBOT_LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"JUNIPERBOT_LOG_FORMAT" envDefault:"json"`
}

// Load reads envFile (DefaultEnvFile when empty) if it exists, then parses
// the environment. Variables already set take precedence over the file.
func Load(envFile string) (Config, error) {
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("load env file %s: %w", envFile, err)
	}
	return Parse()
}

// Parse reads the configuration from the current environment.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks the values that defaults cannot repair.
func (c Config) Validate() error {
	switch {
	case c.CorpusPath == "":
		return fmt.Errorf("corpus path is required")
	case c.ChunkSize < 1 || c.ChunkSize > render.PlainLimit:
		return fmt.Errorf("chunk size %d outside 1..%d", c.ChunkSize, render.PlainLimit)
	case c.MaxRangeVerses < 1:
		return fmt.Errorf("max range verses must be positive, got %d", c.MaxRangeVerses)
	case c.IdleTimeout <= 0:
		return fmt.Errorf("idle timeout must be positive, got %s", c.IdleTimeout)
	case c.MaxSessions < 1:
		return fmt.Errorf("max sessions must be positive, got %d", c.MaxSessions)
	case c.Port < 0 || c.Port > 65535:
		return fmt.Errorf("port %d out of range", c.Port)
	case c.RateLimit < 0 || c.RateBurst < 0:
		return fmt.Errorf("rate limit settings must not be negative")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if _, err := logging.ParseFormat(c.LogFormat); err != nil {
		return err
	}
	return nil
}

// Passage returns the pipeline settings.
func (c Config) Passage() passage.Config {
	return passage.Config{
		Book:               c.Book,
		DefaultTranslation: c.DefaultTranslation,
		ChunkSize:          c.ChunkSize,
		MaxRangeVerses:     c.MaxRangeVerses,
	}
}

// InitLogging installs the configured logger.
func (c Config) InitLogging() error {
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(c.LogFormat)
	if err != nil {
		return err
	}
	logging.InitLogger(level, format)
	return nil
}
