package dbmigrate

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/pressly/goose/v3"

	"github.com/Carnacky79/energy-optimizer-v2/migrations"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Run executes a goose command. An empty migrationsDir uses the SQL files embedded in the binary.
func Run(command string, dbURL string, migrationsDir string) error {
	if dbURL == "" {
		return fmt.Errorf("database URL is empty")
	}

	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	dir := ResolveMigrationsDir(migrationsDir)
	if dir == "." {
		goose.SetBaseFS(migrations.FS)
		defer goose.SetBaseFS(nil)
	}

	if err := goose.Run(command, db, dir); err != nil {
		return fmt.Errorf("goose %s failed: %w", command, err)
	}

	return nil
}

// ResolveMigrationsDir returns "." (embedded FS) unless an existing directory is given.
func ResolveMigrationsDir(migrationsDir string) string {
	if migrationsDir == "" {
		return "."
	}
	if info, err := os.Stat(migrationsDir); err != nil || !info.IsDir() {
		return "."
	}
	return migrationsDir
}
