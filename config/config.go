// Package config assembles the api server configuration from flags and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
)

const EnvPrefix = "FACILITY"

var (
	ErrMissingDatabaseURL = errors.New("config: database url is required")
	ErrMissingJWTSecret   = errors.New("config: jwt secret is required")
)

// Config holds everything cmd/api needs to start.
type Config struct {
	DatabaseURL     string
	HTTPAddr        string
	JWTSecret       string
	CampusLayout    string // YAML path; empty selects the embedded layout
	MaxConns        int
	ShutdownTimeout time.Duration
	TokenTTL        time.Duration
}

// Defaults reads defaults from the environment. DATABASE_URL is honoured
// when FACILITY_DATABASE_URL is unset.
func Defaults(env Loader) Config {
	return Config{
		DatabaseURL:     env.String("DATABASE_URL", os.Getenv("DATABASE_URL")),
		HTTPAddr:        env.String("HTTP_ADDR", ":8080"),
		JWTSecret:       env.String("JWT_SECRET", ""),
		CampusLayout:    env.String("CAMPUS_LAYOUT", ""),
		MaxConns:        env.Int("MAX_CONNS", 10),
		ShutdownTimeout: env.Duration("SHUTDOWN_TIMEOUT", 10*time.Second),
		TokenTTL:        env.Duration("TOKEN_TTL", 24*time.Hour),
	}
}

// AddFlags binds cfg fields to fs, using the current values as defaults.
func (cfg *Config) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "PostgreSQL connection string.")
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "Address the HTTP server listens on.")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", cfg.JWTSecret, "HMAC secret used to sign access tokens.")
	fs.StringVar(&cfg.CampusLayout, "campus-layout", cfg.CampusLayout,
		"Path to a YAML building layout. Defaults to the built-in campus.")
	fs.IntVar(&cfg.MaxConns, "max-conns", cfg.MaxConns, "Maximum database pool connections.")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout,
		"Grace period for in-flight requests on shutdown.")
	fs.DurationVar(&cfg.TokenTTL, "token-ttl", cfg.TokenTTL, "Lifetime of issued access tokens.")
}

// Validate checks required fields and ranges.
func (cfg Config) Validate() error {
	if cfg.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	if cfg.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	if cfg.MaxConns < 1 {
		return fmt.Errorf("config: invalid value %d for flag %q: must be >= 1", cfg.MaxConns, "max-conns")
	}
	if cfg.TokenTTL <= 0 {
		return fmt.Errorf("config: invalid value %s for flag %q: must be positive", cfg.TokenTTL, "token-ttl")
	}
	return nil
}

// Load parses args (without the program name) over environment defaults.
func Load(args []string) (Config, error) {
	return load(NewLoader(EnvPrefix), args)
}

func load(env Loader, args []string) (Config, error) {
	cfg := Defaults(env)
	fs := pflag.NewFlagSet("facilityflow", pflag.ContinueOnError)
	cfg.AddFlags(fs)
	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("config: parse flags: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
