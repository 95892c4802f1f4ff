package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/DoyleJ11/battlezone/internal/wallet"
)

// BuildMode is baked in at link time:
//
//	go build -ldflags "-X github.com/DoyleJ11/battlezone/internal/config.BuildMode=admin"
var BuildMode = ModePlayer

const (
	ModePlayer = "player"
	ModeAdmin  = "admin"
)

const (
	RealtimeLocal    = "local"
	RealtimePostgres = "postgres"
)

type Config struct {
	Addr string `env:"ADDR" envDefault:":8080"`
	// Mode overrides BuildMode when set.
	Mode string `env:"APP_MODE"`

	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"battlezone.db"`
	// RealtimeSource picks where profile changes come from: the in-process
	// feed, or PostgreSQL LISTEN/NOTIFY.
	RealtimeSource string `env:"REALTIME_SOURCE" envDefault:"local"`

	MergePolicy     string          `env:"MERGE_POLICY" envDefault:"authoritative"`
	StartingBalance decimal.Decimal `env:"STARTING_BALANCE" envDefault:"450"`
	SeedDemo        bool            `env:"SEED_DEMO" envDefault:"true"`

	// AuthSecret signs session tokens. When empty a random key is used and
	// tokens stop working after a restart.
	AuthSecret string `env:"AUTH_SECRET"`

	AIAPIKey  string `env:"AI_API_KEY"`
	AIBaseURL string `env:"AI_BASE_URL"`
	AIModel   string `env:"AI_MODEL" envDefault:"gpt-4o-mini"`

	LogDev bool `env:"LOG_DEV" envDefault:"false"`
}

// Load reads an optional .env file, then the environment.
func Load(dotenv string) (Config, error) {
	if dotenv != "" {
		if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", dotenv, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Mode == "" {
		cfg.Mode = BuildMode
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.Mode {
	case ModePlayer, ModeAdmin:
	default:
		return fmt.Errorf("invalid mode %q (want %s or %s)", c.Mode, ModePlayer, ModeAdmin)
	}
	switch c.RealtimeSource {
	case RealtimeLocal:
	case RealtimePostgres:
		if c.DatabaseURL == "" {
			return errors.New("REALTIME_SOURCE=postgres needs DATABASE_URL")
		}
	default:
		return fmt.Errorf("invalid realtime source %q", c.RealtimeSource)
	}
	if _, err := wallet.ParseMergePolicy(c.MergePolicy); err != nil {
		return err
	}
	if c.StartingBalance.IsNegative() {
		return errors.New("starting balance must not be negative")
	}
	return nil
}

func (c Config) Admin() bool { return c.Mode == ModeAdmin }

// Policy is the parsed merge policy. Call after Validate.
func (c Config) Policy() wallet.MergePolicy {
	p, _ := wallet.ParseMergePolicy(c.MergePolicy)
	return p
}
