package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

// ErrNotFound is returned when a ticket does not exist.
var ErrNotFound = errors.New("not found")

// Driver selects the SQL backend.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// ParseDriver maps a configuration value to a Driver.
func ParseDriver(s string) (Driver, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sqlite", "sqlite3":
		return DriverSQLite, nil
	case "postgres", "postgresql", "pgx":
		return DriverPostgres, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", s)
	}
}

// Store is the SQL-backed ticket repository.
type Store struct {
	db      *sql.DB
	driver  Driver
	now     func() time.Time
	newCode func() (string, error)
}

// New opens the database and ensures the schema exists. For sqlite the dsn
// is a file path or ":memory:".
func New(ctx context.Context, driver Driver, dsn string) (*Store, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite"
		if dsn == "" {
			dsn = "exitticket.db"
		}
		if dsn != ":memory:" && !strings.Contains(dsn, "?") {
			dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
		drvName = "pgx"
		if dsn == "" {
			dsn = "postgres://localhost:5432/exitticket?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == DriverSQLite {
		// One connection keeps ":memory:" databases shared and serialises writers.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db, driver: driver, now: time.Now, newCode: newTicketCode}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Driver reports the backend in use.
func (s *Store) Driver() Driver {
	return s.driver
}

func (s *Store) migrate(ctx context.Context) error {
	schema := schemaSQLite
	if s.driver == DriverPostgres {
		schema = schemaPostgres
	}
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind rewrites '?' placeholders to '$n' for postgres.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
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

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS exit_tickets (
	ticket_id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	teacher_name TEXT NOT NULL,
	subject TEXT NOT NULL,
	lecture_topics TEXT NOT NULL,
	questions_json TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'active',
	total_questions INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_exit_tickets_teacher ON exit_tickets(teacher_name, created_at);

CREATE TABLE IF NOT EXISTS student_responses (
	id TEXT PRIMARY KEY,
	ticket_id TEXT NOT NULL REFERENCES exit_tickets(ticket_id) ON DELETE CASCADE,
	student_name TEXT NOT NULL,
	responses_json TEXT NOT NULL,
	flags_json TEXT NOT NULL,
	correct_count INTEGER NOT NULL DEFAULT 0,
	total_questions INTEGER NOT NULL DEFAULT 0,
	percentage REAL NOT NULL DEFAULT 0,
	completed_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_student_responses_ticket ON student_responses(ticket_id, completed_at);

CREATE TABLE IF NOT EXISTS question_log (
	id TEXT PRIMARY KEY,
	question_json TEXT NOT NULL,
	subject TEXT NOT NULL DEFAULT '',
	topic TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS imported_files (
	path TEXT PRIMARY KEY,
	sha256 TEXT NOT NULL,
	imported_at INTEGER NOT NULL
)
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS exit_tickets (
	ticket_id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	teacher_name TEXT NOT NULL,
	subject TEXT NOT NULL,
	lecture_topics TEXT NOT NULL,
	questions_json TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'active',
	total_questions INTEGER NOT NULL,
	created_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_exit_tickets_teacher ON exit_tickets(teacher_name, created_at);

CREATE TABLE IF NOT EXISTS student_responses (
	id TEXT PRIMARY KEY,
	ticket_id TEXT NOT NULL REFERENCES exit_tickets(ticket_id) ON DELETE CASCADE,
	student_name TEXT NOT NULL,
	responses_json TEXT NOT NULL,
	flags_json TEXT NOT NULL,
	correct_count INTEGER NOT NULL DEFAULT 0,
	total_questions INTEGER NOT NULL DEFAULT 0,
	percentage DOUBLE PRECISION NOT NULL DEFAULT 0,
	completed_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_student_responses_ticket ON student_responses(ticket_id, completed_at);

CREATE TABLE IF NOT EXISTS question_log (
	id TEXT PRIMARY KEY,
	question_json TEXT NOT NULL,
	subject TEXT NOT NULL DEFAULT '',
	topic TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL,
	created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS imported_files (
	path TEXT PRIMARY KEY,
	sha256 TEXT NOT NULL,
	imported_at BIGINT NOT NULL
)
`
