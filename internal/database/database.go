package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"sync"

	"github.com/isdelr/todo-auth-be/internal/database/migrations"
	"github.com/isdelr/todo-auth-be/internal/logger"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"github.com/pressly/goose/v3"
	"modernc.org/sqlite" // SQLite driver
	sqlite3 "modernc.org/sqlite/lib"
)

// Supported SQL dialects.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// DB wraps a connection pool together with the dialect its queries target.
type DB struct {
	*sql.DB
	Dialect string
}

// New opens a connection pool for url. URLs starting with postgres:// or
// postgresql:// use PostgreSQL, anything else is treated as a SQLite path.
func New(url string) (*DB, error) {
	if isPostgres(url) {
		conn, err := sql.Open("pgx", url)
		if err != nil {
			return nil, fmt.Errorf("db open error: %w", err)
		}
		if err = conn.Ping(); err != nil {
			conn.Close()
			return nil, fmt.Errorf("db ping error: %w", err)
		}
		return &DB{DB: conn, Dialect: DialectPostgres}, nil
	}

	conn, err := sql.Open("sqlite", sqliteDSN(url))
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	// SQLite serialises writers; a single connection avoids SQLITE_BUSY.
	conn.SetMaxOpenConns(1)
	if err = conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return &DB{DB: conn, Dialect: DialectSQLite}, nil
}

func isPostgres(url string) bool {
	return strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://")
}

func sqliteDSN(url string) string {
	dsn := strings.TrimPrefix(url, "sqlite://")
	if strings.Contains(dsn, "_pragma=foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// goose keeps its base FS and dialect in package globals.
var migrateMu sync.Mutex

// Migrate applies the embedded migrations for the database dialect.
func Migrate(ctx context.Context, db *DB) error {
	dir, gooseDialect := "sqlite", "sqlite3"
	if db.Dialect == DialectPostgres {
		dir, gooseDialect = "postgres", "postgres"
	}

	sub, err := fs.Sub(migrations.Migrations, dir)
	if err != nil {
		return err
	}

	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(sub)
	goose.SetLogger(logger.GooseLogger{})
	if err := goose.SetDialect(gooseDialect); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db.DB, "."); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}
	return nil
}

// Rebind converts '?' placeholders to the dialect's bind syntax.
func (db *DB) Rebind(query string) string {
	if db.Dialect != DialectPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// IsUniqueViolation reports whether err comes from a UNIQUE constraint.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
