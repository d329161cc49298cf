package database

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

func openTempDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(Options{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "reg.db")})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRebind(t *testing.T) {
	t.Parallel()

	q := "SELECT a FROM t WHERE x = ? AND y = ?"
	if got := Postgres.Rebind(q); got != "SELECT a FROM t WHERE x = $1 AND y = $2" {
		t.Fatalf("Rebind = %q", got)
	}
	if got := MySQL.Rebind(q); got != q {
		t.Fatalf("mysql Rebind changed query: %q", got)
	}
	if got := SQLite.Rebind(q); got != q {
		t.Fatalf("sqlite Rebind changed query: %q", got)
	}
}

func TestForUpdateAndReturning(t *testing.T) {
	t.Parallel()

	if SQLite.ForUpdate() != "" {
		t.Fatalf("sqlite ForUpdate = %q, want empty", SQLite.ForUpdate())
	}
	if MySQL.ForUpdate() != " FOR UPDATE" || Postgres.ForUpdate() != " FOR UPDATE" {
		t.Fatal("expected FOR UPDATE for mysql and postgres")
	}
	if !Postgres.Returning() || MySQL.Returning() || SQLite.Returning() {
		t.Fatal("only postgres should use RETURNING")
	}
	if SQLite.TxOptions() != nil {
		t.Fatal("sqlite tx options should be nil")
	}
}

func TestTimeArg(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 10, 18, 9, 30, 0, 5000, time.FixedZone("CEST", 2*3600))
	if got := SQLite.TimeArg(ts); got != "2026-10-18 07:30:00.000005" {
		t.Fatalf("sqlite TimeArg = %v", got)
	}
	got, ok := MySQL.TimeArg(ts).(time.Time)
	if !ok || got.Location() != time.UTC || !got.Equal(ts) {
		t.Fatalf("mysql TimeArg = %v", got)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "mysql duplicate", err: fmt.Errorf("insert: %w", &mysql.MySQLError{Number: 1062}), want: true},
		{name: "mysql other", err: &mysql.MySQLError{Number: 1452}, want: false},
		{name: "postgres unique", err: &pgconn.PgError{Code: "23505"}, want: true},
		{name: "postgres fk", err: &pgconn.PgError{Code: "23503"}, want: false},
		{name: "sqlite message", err: errors.New("constraint failed: UNIQUE constraint failed: registrations.request_key (2067)"), want: true},
		{name: "plain", err: errors.New("boom"), want: false},
	}
	for _, tc := range tests {
		if got := SQLite.IsUniqueViolation(tc.err); got != tc.want {
			t.Fatalf("%s: IsUniqueViolation = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestExtractUpMigration(t *testing.T) {
	t.Parallel()

	content := "-- +migrate Up\nCREATE TABLE a (id INT);\n-- +migrate Down\nDROP TABLE a;"
	got := ExtractUpMigration(content)
	if got != "\nCREATE TABLE a (id INT);\n" {
		t.Fatalf("up = %q", got)
	}
	if ExtractUpMigration("SELECT 1") != "SELECT 1" {
		t.Fatal("content without markers should be returned as is")
	}
}

func TestSplitStatements(t *testing.T) {
	t.Parallel()

	got := SplitStatements("CREATE TABLE a (id INT);\n\n  ;CREATE INDEX i ON a (id);\n")
	if len(got) != 2 || got[0] != "CREATE TABLE a (id INT)" || got[1] != "CREATE INDEX i ON a (id)" {
		t.Fatalf("statements = %#v", got)
	}
}

func TestOpenSQLiteAppliesMigrationsOnce(t *testing.T) {
	t.Parallel()

	db := openTempDB(t)
	if err := Migrate(db); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if n != 1 {
		t.Fatalf("applied migrations = %d, want 1", n)
	}
	if _, err := db.Exec(`INSERT INTO slots (category, event_date, start_time, end_time, capacity) VALUES ('hyrox', '2026-10-18', '09:00', '09:30', 4)`); err != nil {
		t.Fatalf("insert slot: %v", err)
	}
}

func TestApplyMigrationsFromMapFS(t *testing.T) {
	t.Parallel()

	db := openTempDB(t)
	fsys := fstest.MapFS{
		"extra/0002_note.sql": {Data: []byte("-- +migrate Up\nCREATE TABLE notes (id INTEGER PRIMARY KEY);\nCREATE TABLE notes (id INTEGER PRIMARY KEY);\n-- +migrate Down\nDROP TABLE notes;")},
		"extra/README.md":     {Data: []byte("ignored")},
	}
	if err := ApplyMigrations(db, fsys, "extra"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO notes (id) VALUES (1)`); err != nil {
		t.Fatalf("notes table missing: %v", err)
	}
}

func TestOpenUnsupportedDriver(t *testing.T) {
	t.Parallel()

	if _, err := Open(Options{Driver: "oracle"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestPostgresURL(t *testing.T) {
	t.Parallel()

	got := postgresURL(Options{User: "app", Pass: "p@ss", Host: "db", Port: "5432", Name: "hyrox"})
	if got != "postgres://app:p%40ss@db:5432/hyrox?sslmode=disable" {
		t.Fatalf("url = %q", got)
	}
}
