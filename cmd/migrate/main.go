package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/Rrens/agent-handoff/internal/config"
	"github.com/Rrens/agent-handoff/internal/repository/postgres"
)

func main() {
	steps := flag.Int("steps", 1, "migrations to roll back with down")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: migrate [-steps n] up|down|version")
	}
	flag.Parse()

	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fail("Failed to load config: %v", err)
	}
	if cfg.Database.Driver != config.DriverPostgres {
		fail("migrations apply to postgres only; driver is %q (sqlite applies its schema on open)", cfg.Database.Driver)
	}

	fmt.Printf("Migrating database at %s:%d...\n", cfg.Database.Host, cfg.Database.Port)
	dsn := cfg.Database.DSN()

	switch flag.Arg(0) {
	case "up", "":
		if err := postgres.RunMigrations(dsn); err != nil {
			fail("Migration failed: %v", err)
		}
		fmt.Println("Migrations applied")
	case "down":
		if err := postgres.RollbackMigrations(dsn, *steps); err != nil {
			fail("Rollback failed: %v", err)
		}
		fmt.Printf("Rolled back %d migration(s)\n", *steps)
	case "version":
		version, dirty, err := postgres.MigrationVersion(dsn)
		if err != nil {
			fail("Failed to read version: %v", err)
		}
		fmt.Printf("version %d (dirty: %t)\n", version, dirty)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
