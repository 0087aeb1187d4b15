package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"

	"podcast-be/pkg/database"
)

const usage = "Usage: go run ./cmd/migrate [up|down|version|force N|status]"

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	m, err := database.NewMigrator(dbURL)
	if err != nil {
		log.Fatalf("Failed to create migrator: %v", err)
	}
	defer m.Close()

	switch command := os.Args[1]; command {
	case "up":
		if err := ignoreNoChange(m.Up()); err != nil {
			log.Fatalf("Failed to apply migrations: %v", err)
		}
		fmt.Println("✅ Migrations applied")
		printVersion(m)

	case "down":
		if err := ignoreNoChange(m.Steps(-1)); err != nil {
			log.Fatalf("Failed to roll back migration: %v", err)
		}
		fmt.Println("✅ Rolled back one migration")
		printVersion(m)

	case "version":
		printVersion(m)

	case "force":
		if len(os.Args) < 3 {
			fmt.Println(usage)
			os.Exit(1)
		}
		v, err := strconv.Atoi(os.Args[2])
		if err != nil {
			log.Fatalf("Invalid version %q: %v", os.Args[2], err)
		}
		if err := m.Force(v); err != nil {
			log.Fatalf("Failed to force version: %v", err)
		}
		fmt.Printf("✅ Forced version %d\n", v)

	case "status":
		printVersion(m)
		if err := printUserCount(context.Background(), dbURL); err != nil {
			log.Fatalf("Failed to read users: %v", err)
		}

	default:
		fmt.Printf("Unknown command: %s\n", command)
		fmt.Println(usage)
		os.Exit(1)
	}
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		fmt.Println("No change")
		return nil
	}
	return err
}

func printVersion(m *migrate.Migrate) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		fmt.Println("Schema version: none")
		return
	}
	if err != nil {
		log.Fatalf("Failed to read schema version: %v", err)
	}
	fmt.Printf("Schema version: %d (dirty: %t)\n", v, dirty)
}

func printUserCount(ctx context.Context, dbURL string) error {
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	var total, completed int64
	err = conn.QueryRow(ctx, `SELECT count(*), count(*) FILTER (WHERE profile_completed) FROM users`).Scan(&total, &completed)
	if err != nil {
		return err
	}
	fmt.Printf("Users: %d (%d with completed profile)\n", total, completed)
	return nil
}
