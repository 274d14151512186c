package main

import (
	"context"
	"flag"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"bookcatalog/internal/config"
	"bookcatalog/internal/platform/logger"
)

func main() {
	var (
		command = flag.String("command", "up", "Migration command: up, down, status, version, create")
		name    = flag.String("name", "", "Name for 'create' command")
	)
	flag.Parse()

	config.LoadEnvFiles()

	log, err := logger.New(config.String("LOG_MODE", "dev"))
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	dir := migrationsDir()
	if *command == "create" {
		if *name == "" {
			log.Fatal("name is required for 'create' command")
		}
		if err := goose.Create(nil, dir, *name, "sql"); err != nil {
			log.Fatal("failed to create migration", "error", err)
		}
		log.Info("migration created", "name", *name, "dir", dir)
		return
	}

	dsn := databaseDSN()
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		log.Fatal("failed to connect to database", "dsn", config.RedactDSN(dsn), "error", err)
	}
	defer pool.Close()

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatal("failed to set dialect", "error", err)
	}

	switch *command {
	case "up":
		if err := goose.Up(db, dir); err != nil {
			log.Fatal("failed to run migrations", "error", err)
		}
		log.Info("migrations applied", "dir", dir)
	case "down":
		if err := goose.Down(db, dir); err != nil {
			log.Fatal("failed to roll back migration", "error", err)
		}
		log.Info("migration rolled back", "dir", dir)
	case "status":
		if err := goose.Status(db, dir); err != nil {
			log.Fatal("failed to check migration status", "error", err)
		}
	case "version":
		if err := goose.Version(db, dir); err != nil {
			log.Fatal("failed to read migration version", "error", err)
		}
	default:
		log.Fatal("unknown command, use: up, down, status, version, create", "command", *command)
	}
}
