package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"docxingest/internal/config"
)

//go:embed postgres/*.sql sqlite/*.sql
var files embed.FS

// New opens a migrate instance against the configured SQL database.
func New(cfg *config.DBConfig) (*migrate.Migrate, error) {
	src, err := iofs.New(files, cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("migrations.New: %w", err)
	}

	var url string
	switch cfg.Driver {
	case "postgres":
		url = cfg.DSN()
	case "sqlite":
		url = "sqlite://" + cfg.SQLitePath
	default:
		return nil, fmt.Errorf("migrations.New: unsupported driver %q", cfg.Driver)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return nil, fmt.Errorf("migrations.New: %w", err)
	}
	return m, nil
}

// Up applies every pending migration to an already open database.
// The handle stays open; callers own it.
func Up(db *sql.DB, driver string) error {
	src, err := iofs.New(files, driver)
	if err != nil {
		return fmt.Errorf("migrations.Up: %w", err)
	}

	var drv database.Driver
	switch driver {
	case "postgres":
		drv, err = postgres.WithInstance(db, &postgres.Config{})
	case "sqlite":
		drv, err = sqlite.WithInstance(db, &sqlite.Config{})
	default:
		return fmt.Errorf("migrations.Up: unsupported driver %q", driver)
	}
	if err != nil {
		return fmt.Errorf("migrations.Up: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, driver, drv)
	if err != nil {
		return fmt.Errorf("migrations.Up: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrations.Up: %w", err)
	}
	return nil
}
