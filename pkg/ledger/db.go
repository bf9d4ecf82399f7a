// Package ledger records the history of pipeline stage runs in SQLite or
// Postgres.
package ledger

import (
	"context"
	"database/sql"
	"embed"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const (
	schemaVersion = 1

	driverSQLite   = "sqlite"
	driverPostgres = "postgres"
)

var (
	//go:embed sql/*
	f embed.FS

	errDBNotInitialized = errors.New("ledger not initialized")

	// ErrRunNotFound is returned by GetRun for an unknown ID.
	ErrRunNotFound = errors.New("run not found")

	insertVersion = `INSERT INTO schema_version (version) VALUES (?) ON CONFLICT (version) DO NOTHING`
)

// Store is an open ledger.
type Store struct {
	db     *sql.DB
	driver string
}

// Driver returns the database/sql driver name for dsn. Postgres URLs use
// lib/pq; anything else is treated as a SQLite file path.
func Driver(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return driverPostgres
	}
	return driverSQLite
}

// GetDB opens the database behind dsn without touching its schema.
func GetDB(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("ledger dsn not specified")
	}

	driver := Driver(dsn)
	if driver == driverSQLite && dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.Wrapf(err, "error creating ledger dir: %s", dir)
			}
		}
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s ledger", driver)
	}
	return conn, nil
}

// Init opens the ledger at dsn and applies the schema. It is safe to call
// on an existing ledger.
func Init(ctx context.Context, dsn string) (*Store, error) {
	db, err := GetDB(dsn)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, driver: Driver(dsn)}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errDBNotInitialized
	}

	slog.Debug("applying ledger schema", "driver", s.driver)
	b, err := f.ReadFile("sql/ddl.sql")
	if err != nil {
		return errors.Wrap(err, "failed to read the schema creation file")
	}
	if _, err := s.db.ExecContext(ctx, string(b)); err != nil {
		return errors.Wrap(err, "failed to create ledger schema")
	}
	if _, err := s.db.ExecContext(ctx, s.rebind(insertVersion), schemaVersion); err != nil {
		return errors.Wrap(err, "failed to record ledger schema version")
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Version returns the highest applied schema version.
func (s *Store) Version(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, errDBNotInitialized
	}
	var v int
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&v); err != nil {
		return 0, errors.Wrap(err, "failed to read ledger schema version")
	}
	return v, nil
}

// rebind rewrites ? placeholders into the driver's positional form.
func (s *Store) rebind(q string) string {
	if s.driver != driverPostgres {
		return q
	}

	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$")
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
