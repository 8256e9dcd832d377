package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the process configuration, parsed from the environment.
type Config struct {
	DBSource string `env:"DATABASE_URL,required"`
	Port     string `env:"SERVER_PORT" envDefault:"8080"`
	Env      string `env:"ENVIRONMENT" envDefault:"development"`

	// Economy knobs.
	PullCooldown   time.Duration `env:"PULL_COOLDOWN" envDefault:"5h"`
	DuplicateCoins int64         `env:"DUPLICATE_COINS" envDefault:"5"`
	PackPrice      int64         `env:"PACK_PRICE" envDefault:"10"`

	// Seeder only.
	CardsJSON string `env:"CARDS_JSON" envDefault:"cards.json"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.PullCooldown <= 0 {
		return nil, fmt.Errorf("PULL_COOLDOWN must be positive, got %s", cfg.PullCooldown)
	}
	if cfg.PackPrice <= 0 {
		return nil, fmt.Errorf("PACK_PRICE must be positive, got %d", cfg.PackPrice)
	}
	// Zero disables the duplicate reward; negative would make every
	// duplicate draw trip the balance CHECK at settlement time.
	if cfg.DuplicateCoins < 0 {
		return nil, fmt.Errorf("DUPLICATE_COINS must not be negative, got %d", cfg.DuplicateCoins)
	}
	return &cfg, nil
}
