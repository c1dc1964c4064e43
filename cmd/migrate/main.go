package main

import (
	"log"
	"os"

	_ "github.com/joho/godotenv/autoload"

	"github.com/Carnacky79/energy-optimizer-v2/internal/config"
	"github.com/Carnacky79/energy-optimizer-v2/internal/dbmigrate"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("usage: go run ./cmd/migrate [up|down|status|version|redo] [dir]")
	}

	command := os.Args[1]
	if err := dbmigrate.ValidateCommand(command); err != nil {
		log.Fatal(err)
	}

	// без аргумента берём ./migrations, если его нет: встроенные SQL
	dir := dbmigrate.DefaultMigrationsDir
	if len(os.Args) > 2 {
		dir = os.Args[2]
	}

	cfg := config.Load()
	target, err := dbmigrate.SelectTarget(cfg, false)
	if err != nil {
		log.Fatal(err)
	}
	if target.Warning != "" {
		log.Printf("WARN migrate: %s", target.Warning)
	}
	log.Printf("INFO migrate: command=%s using=%s dir=%s", command, target.Source, dbmigrate.ResolveMigrationsDir(dir))

	if err := dbmigrate.Run(command, target.URL, dir); err != nil {
		log.Fatalf("FATAL migrate: %v", err)
	}

	log.Printf("INFO migrate: %s completed successfully", command)
}
