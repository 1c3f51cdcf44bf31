// cmd/migrate applies the embedded goose migrations against the configured
// database.
//
// Usage:
//
//	go run ./cmd/migrate [up|down|status]
//	DATABASE_URL=postgres://... go run ./cmd/migrate
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmerrifield20/fellows/internal/config"
	"github.com/jmerrifield20/fellows/internal/migrations"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	command := "up"
	if len(args) > 0 {
		command = args[0]
	}

	cfg, err := config.Load(os.Getenv("FELLOWS_CONFIG"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}

	switch command {
	case "up":
		if err := migrations.Up(ctx, db); err != nil {
			return err
		}
		fmt.Println("database is up to date")
	case "down":
		if err := migrations.Down(ctx, db); err != nil {
			return err
		}
		fmt.Println("rolled back one migration")
	case "status":
		return migrations.Status(ctx, db)
	default:
		return fmt.Errorf("unknown command %q (want up, down or status)", command)
	}
	return nil
}
