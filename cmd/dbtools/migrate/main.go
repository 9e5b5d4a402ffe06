// cmd/dbtools/migrate/main.go
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"

	"github.com/codr1/TennisBuddy/internal/config"
	"github.com/codr1/TennisBuddy/internal/db"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "Path to config file, used when -db is not set")
		dbPath     = flag.String("db", "", "Path to SQLite database")
		command    = flag.String("command", "", "Command to run (up, down, version, force)")
		version    = flag.Int("version", -1, "Version for the force command")
	)
	flag.Parse()

	if *command == "" {
		flag.Usage()
		os.Exit(1)
	}

	if *dbPath == "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		*dbPath = cfg.Database.Filename
	}

	if err := os.MkdirAll(filepath.Dir(*dbPath), 0755); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	m, err := db.OpenMigrator(*dbPath)
	if err != nil {
		log.Fatalf("Migration init failed: %v", err)
	}
	defer m.Close()

	if err := runCommand(m, *command, *version, os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func runCommand(m *migrate.Migrate, command string, version int, out io.Writer) error {
	switch command {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migration up failed: %w", err)
		}
	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migration down failed: %w", err)
		}
	case "force":
		if version < 0 {
			return errors.New("force requires -version")
		}
		if err := m.Force(version); err != nil {
			return fmt.Errorf("migration force failed: %w", err)
		}
	case "version":
		v, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Fprintln(out, "Version: none")
			return nil
		}
		if err != nil {
			return fmt.Errorf("get version failed: %w", err)
		}
		fmt.Fprintf(out, "Version: %d, Dirty: %v\n", v, dirty)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
	return nil
}
