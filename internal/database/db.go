package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// DB is a connection pool paired with the SQL dialect spoken on it.
// Repositories use the dialect to rebind placeholders and pick lock clauses.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// Options selects a driver and carries the connection parts each one needs.
type Options struct {
	Driver string // mysql, postgres or sqlite
	User   string
	Pass   string
	Host   string
	Port   string
	Name   string
	URL    string // postgres only; wins over the parts above
	Path   string // sqlite only
}

// Open connects with the driver named in opts and applies the embedded
// schema migrations for that dialect.
func Open(opts Options) (*DB, error) {
	var (
		sqlDB *sql.DB
		err   error
	)
	d := Dialect(strings.ToLower(opts.Driver))
	switch d {
	case MySQL:
		sqlDB, err = OpenMySQL(opts.User, opts.Pass, opts.Host, opts.Port, opts.Name)
	case Postgres:
		dsn := opts.URL
		if dsn == "" {
			dsn = postgresURL(opts)
		}
		sqlDB, err = OpenPostgres(dsn)
	case SQLite:
		sqlDB, err = OpenSQLite(opts.Path)
	default:
		return nil, fmt.Errorf("unsupported driver %q", opts.Driver)
	}
	if err != nil {
		return nil, err
	}
	db := &DB{DB: sqlDB, Dialect: d}
	if err := Migrate(db); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}

// OpenMySQL connects to MySQL and verifies the connection.
func OpenMySQL(user, pass, host, port, name string) (*sql.DB, error) {
	auth := user
	if pass != "" {
		auth = fmt.Sprintf("%s:%s", user, pass)
	}
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	dsn := fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, host, port, name)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	configurePool(db)
	if err := ping(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// OpenPostgres connects through the pgx database/sql driver.
func OpenPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	configurePool(db)
	if err := ping(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// OpenSQLite opens (and creates) a SQLite file.  Every transaction starts
// with BEGIN IMMEDIATE so a booking holds the write lock from its first
// read; concurrent bookers wait on busy_timeout instead of failing.
func OpenSQLite(path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	dsn := cleanPath + "?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := ping(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return db, nil
}

func postgresURL(opts Options) string {
	u := url.URL{
		Scheme:   "postgres",
		Host:     opts.Host + ":" + opts.Port,
		Path:     "/" + opts.Name,
		RawQuery: "sslmode=disable",
	}
	if opts.Pass != "" {
		u.User = url.UserPassword(opts.User, opts.Pass)
	} else {
		u.User = url.User(opts.User)
	}
	return u.String()
}

func configurePool(db *sql.DB) {
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)
}

func ping(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}
