// Package config loads server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr      string `env:"HOLOCRON_ADDR" envDefault:":8080"`
	RPCSocket string `env:"HOLOCRON_RPC_SOCKET" envDefault:"/tmp/holocron.sock"`
	// DBPath empty keeps users and sessions in memory.
	DBPath string `env:"HOLOCRON_DB_PATH" envDefault:"holocron.db"`

	SWAPIBaseURL     string        `env:"HOLOCRON_SWAPI_BASE_URL" envDefault:"https://swapi.dev/api"`
	HTTPTimeout      time.Duration `env:"HOLOCRON_HTTP_TIMEOUT" envDefault:"15s"`
	FetchConcurrency int           `env:"HOLOCRON_FETCH_CONCURRENCY" envDefault:"5"`
	SearchDebounce   time.Duration `env:"HOLOCRON_SEARCH_DEBOUNCE" envDefault:"500ms"`

	AuthLatency    time.Duration `env:"HOLOCRON_AUTH_LATENCY" envDefault:"600ms"`
	RefreshLatency time.Duration `env:"HOLOCRON_REFRESH_LATENCY" envDefault:"400ms"`
	TokenTTL       time.Duration `env:"HOLOCRON_TOKEN_TTL" envDefault:"300s"`
	// TokenSecret empty means a random secret per process.
	TokenSecret string `env:"HOLOCRON_TOKEN_SECRET"`

	DemoEmail    string `env:"HOLOCRON_DEMO_EMAIL" envDefault:"demo@starwars.dev"`
	DemoPassword string `env:"HOLOCRON_DEMO_PASSWORD" envDefault:"password123"`
	DemoName     string `env:"HOLOCRON_DEMO_NAME" envDefault:"Demo User"`

	LogLevel     string `env:"HOLOCRON_LOG_LEVEL" envDefault:"info"`
	OTELEndpoint string `env:"HOLOCRON_OTEL_ENDPOINT"`
}

// Load reads the given dotenv files (default ".env") when present, then the
// process environment. Variables already set win over file values.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Addr) == "" {
		errs = append(errs, errors.New("HOLOCRON_ADDR is required"))
	}
	if strings.TrimSpace(c.SWAPIBaseURL) == "" {
		errs = append(errs, errors.New("HOLOCRON_SWAPI_BASE_URL is required"))
	}
	if c.FetchConcurrency < 1 {
		errs = append(errs, errors.New("HOLOCRON_FETCH_CONCURRENCY must be at least 1"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("HOLOCRON_TOKEN_TTL must be positive"))
	}
	if c.AuthLatency < 0 || c.RefreshLatency < 0 || c.SearchDebounce < 0 {
		errs = append(errs, errors.New("latency and debounce durations must not be negative"))
	}
	return errors.Join(errs...)
}
