// Command migrate applies the SQL migrations under db/migrations.
package main

import (
	"database/sql"
	"errors"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/agribeta/agribeta/libs/config"
	"github.com/agribeta/agribeta/libs/runtime"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

func main() {
	up := flag.Bool("up", false, "apply all pending migrations")
	down := flag.Bool("down", false, "roll back all migrations")
	steps := flag.Int("steps", 0, "apply (+n) or roll back (-n) n migrations")
	flag.Parse()

	_ = config.LoadDotEnv()
	logger := runtime.NewLogger("migrate")

	dsn, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		fatal(logger, "config", err)
	}
	source := config.String("MIGRATIONS_DIR", "file://db/migrations")

	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		fatal(logger, "open database", err)
	}
	defer sqlDB.Close()
	if err := sqlDB.Ping(); err != nil {
		fatal(logger, "ping database", err)
	}

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		fatal(logger, "migrate driver", err)
	}
	m, err := migrate.NewWithDatabaseInstance(source, "postgres", driver)
	if err != nil {
		fatal(logger, "migrate init", err)
	}

	started := time.Now()
	switch {
	case *up:
		err = m.Up()
	case *down:
		err = m.Down()
	case *steps != 0:
		err = m.Steps(*steps)
	default:
		version, dirty, verr := m.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			logger.Info("no migrations applied")
			return
		}
		if verr != nil {
			fatal(logger, "read version", verr)
		}
		logger.Info("current version", "version", version, "dirty", dirty)
		return
	}
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("no change")
		return
	}
	if err != nil {
		fatal(logger, "migrate", err)
	}

	version, dirty, _ := m.Version()
	logger.Info("migrations applied", "version", version, "dirty", dirty, "took", time.Since(started).String())
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "err", err)
	os.Exit(1)
}
