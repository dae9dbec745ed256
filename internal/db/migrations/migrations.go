// Package migrations embeds the goose schema migrations for each supported
// database driver.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed postgres/*.sql
var postgresFS embed.FS

//go:embed sqlite/*.sql
var sqliteFS embed.FS

// Supported drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// FS returns the migration files for driver
func FS(driver string) (fs.FS, error) {
	switch driver {
	case DriverPostgres:
		return fs.Sub(postgresFS, "postgres")
	case DriverSQLite:
		return fs.Sub(sqliteFS, "sqlite")
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// NewProvider creates a goose provider bound to db and driver's migrations
func NewProvider(db *sql.DB, driver string) (*goose.Provider, error) {
	fsys, err := FS(driver)
	if err != nil {
		return nil, err
	}

	dialect := goose.DialectPostgres
	if driver == DriverSQLite {
		dialect = goose.DialectSQLite3
	}

	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("create migration provider: %w", err)
	}
	return provider, nil
}
