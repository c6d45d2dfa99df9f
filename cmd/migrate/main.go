// Command migrate applies schema migrations for the exam portal database.
//
// Usage:
//
//	migrate [-path dir] up            apply all pending migrations
//	migrate [-path dir] down 1        roll back the last migration
//	migrate [-path dir] version       print the current schema version
//	migrate [-path dir] force <ver>   override a dirty version marker
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/certeva/certexam-backend/internal/config"
)

func main() {
	dir := flag.String("path", "migrations", "directory containing migration files")
	flag.Parse()

	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	m, err := migrate.New("file://"+*dir, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("opening migrations: %v", err)
	}
	defer m.Close()

	if flag.NArg() == 0 {
		usage()
		return
	}

	if err := run(m, flag.Args()); err != nil {
		log.Fatal(err)
	}
}

func run(m *migrate.Migrate, args []string) error {
	switch args[0] {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("up: %w", err)
		}
		fmt.Println("schema is up to date")
		return nil

	case "down":
		steps := 1
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n < 1 {
				return fmt.Errorf("down: invalid step count %q", args[1])
			}
			steps = n
		}
		if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("down: %w", err)
		}
		fmt.Printf("rolled back %d migration(s)\n", steps)
		return nil

	case "version":
		v, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Println("no migrations applied yet")
			return nil
		}
		if err != nil {
			return fmt.Errorf("version: %w", err)
		}
		fmt.Printf("version %d (dirty: %t)\n", v, dirty)
		return nil

	case "force":
		if len(args) < 2 {
			return errors.New("force: version argument required")
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("force: invalid version %q", args[1])
		}
		if err := m.Force(v); err != nil {
			return fmt.Errorf("force: %w", err)
		}
		fmt.Printf("forced version to %d\n", v)
		return nil

	default:
		usage()
		return nil
	}
}

func usage() {
	fmt.Println("usage: migrate [-path dir] <up|down [n]|version|force <version>>")
	flag.PrintDefaults()
}
