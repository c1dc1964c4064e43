package dbmigrate

import (
	"fmt"

	"github.com/Carnacky79/energy-optimizer-v2/internal/config"
)

const DefaultMigrationsDir = "migrations"

// Команды goose, которые разрешено запускать из CLI и при старте
var allowedCommands = map[string]bool{
	"up":      true,
	"down":    true,
	"status":  true,
	"version": true,
	"redo":    true,
}

// ValidateCommand rejects goose commands the tooling does not expose.
func ValidateCommand(command string) error {
	if !allowedCommands[command] {
		return fmt.Errorf("unsupported command %q (allowed: up, down, status, version, redo)", command)
	}
	return nil
}

// Target is the database chosen for DDL.
type Target struct {
	URL     string
	Source  string // env var name the URL came from
	Warning string
}

// SelectTarget picks the database URL for migrations: DIRECT > DATABASE_URL > POOLED.
// Strict mode (production startup) accepts only DATABASE_URL_DIRECT outside the local env.
func SelectTarget(cfg *config.Config, strict bool) (Target, error) {
	if cfg.DatabaseURLDirect != "" {
		return Target{URL: cfg.DatabaseURLDirect, Source: "DATABASE_URL_DIRECT"}, nil
	}
	if strict && cfg.Env != "local" {
		return Target{}, fmt.Errorf("DATABASE_URL_DIRECT is required for DDL/migrations in %s", cfg.Env)
	}
	if cfg.DatabaseURLRaw != "" {
		return Target{URL: cfg.DatabaseURLRaw, Source: "DATABASE_URL"}, nil
	}
	if cfg.DatabaseURLPooled != "" {
		return Target{
			URL:     cfg.DatabaseURLPooled,
			Source:  "DATABASE_URL_POOLED",
			Warning: "using pooled connection for DDL is not recommended; set DATABASE_URL_DIRECT",
		}, nil
	}
	return Target{}, fmt.Errorf("no database URL configured (set DATABASE_URL_DIRECT or DATABASE_URL)")
}
