package sqlstore

import (
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"docxingest/internal/config"
)

// NewDB opens the configured SQL database. sqlite uses the pure-Go modernc
// driver; postgres goes through pgx.
func NewDB(cfg *config.DBConfig) (*sqlx.DB, error) {
	var (
		db  *sqlx.DB
		err error
	)
	switch cfg.Driver {
	case "postgres":
		db, err = sqlx.Connect("pgx", cfg.DSN())
	case "sqlite":
		db, err = sqlx.Connect("sqlite", cfg.SQLiteDSN())
	default:
		return nil, fmt.Errorf("sqlstore.NewDB: unsupported driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", cfg.Driver, err)
	}
	db.SetMaxOpenConns(cfg.MaxOpen)
	db.SetMaxIdleConns(cfg.MaxIdle)
	return db, nil
}
