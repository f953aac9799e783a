package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Reference sets the name resolver checks against. Both tables carry a
// "name" column with the canonical spelling.
const (
	Players = "players"
	Teams   = "teams"
)

// Row is one result row keyed by column name.
type Row map[string]any

// QueryError carries the engine's error text for a failed statement.
type QueryError struct {
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	return e.Err.Error()
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// Store is the relational store the agent queries. A connection is taken
// from the pool for each statement and handed back when it completes.
type Store struct {
	db      *sql.DB
	dialect dialect
}

// Open connects to the database and verifies the connection.
// driver is "sqlite3" or "postgres".
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, d.dsn(dsn))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	s := &Store{db: db, dialect: d}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}
	return s, nil
}

// NewFromDB wraps an existing handle. Mostly used by tests.
func NewFromDB(db *sql.DB, driver string) (*Store, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, dialect: d}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DB exposes the underlying handle for seeding and migrations.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Query runs an arbitrary statement and returns every row. Engine failures
// come back as *QueryError; context expiry is returned unwrapped so callers
// can tell a timeout from a bad statement.
func (s *Store) Query(ctx context.Context, query string) ([]Row, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, s.queryErr(ctx, query, err)
	}
	defer rows.Close()

	out, err := scanRows(rows)
	if err != nil {
		return nil, s.queryErr(ctx, query, err)
	}
	return out, nil
}

func (s *Store) queryErr(ctx context.Context, query string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return &QueryError{Query: query, Err: err}
}

// NameExists reports whether set contains name, ignoring case.
func (s *Store) NameExists(ctx context.Context, set, name string) (bool, error) {
	if err := checkSet(set); err != nil {
		return false, err
	}
	var found string
	err := s.db.QueryRowContext(ctx, s.dialect.nameLookup(set), name).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup %s: %w", set, err)
	}
	return true, nil
}

// Names returns every canonical name in set.
func (s *Store) Names(ctx context.Context, set string) ([]string, error) {
	if err := checkSet(set); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM "+set)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", set, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n sql.NullString
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		if n.Valid && n.String != "" {
			names = append(names, n.String)
		}
	}
	return names, rows.Err()
}

func checkSet(set string) error {
	if set != Players && set != Teams {
		return fmt.Errorf("unknown reference set %q", set)
	}
	return nil
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := []Row{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			// drivers hand text back as []byte; keep rows JSON friendly
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
