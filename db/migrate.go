package db

import (
	"database/sql"
	"embed"
	"errors"
	"net/http"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/httpfs"
	"github.com/ninja-software/terror/v2"
)

//go:embed migrations
var Migrations embed.FS

// Migrate brings the schema up to date. conn is a lib/pq (or pgx stdlib) handle.
func Migrate(conn *sql.DB) error {
	source, err := httpfs.New(http.FS(Migrations), "migrations")
	if err != nil {
		return terror.Error(err, "Failed to read migrations.")
	}
	defer source.Close()

	driver, err := postgres.WithInstance(conn, &postgres.Config{})
	if err != nil {
		return terror.Error(err, "Failed to prepare migrations.")
	}
	mig, err := migrate.NewWithInstance("httpfs", source, "postgres", driver)
	if err != nil {
		return terror.Error(err, "Failed to prepare migrations.")
	}
	err = mig.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return terror.Error(err, "Failed to run migrations.")
	}
	return nil
}
