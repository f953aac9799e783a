package storage

import (
	"context"
	"fmt"
	"strings"
)

type dialect struct {
	name string
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case "sqlite3", "postgres":
		return dialect{name: driver}, nil
	}
	return dialect{}, fmt.Errorf("unsupported driver %q", driver)
}

func (d dialect) dsn(dsn string) string {
	if d.name == "sqlite3" && !strings.Contains(dsn, "?") && !strings.Contains(dsn, ":memory:") {
		return dsn + "?_timeout=5000"
	}
	return dsn
}

// nameLookup returns a case-insensitive exact-match query for set.
func (d dialect) nameLookup(set string) string {
	if d.name == "postgres" {
		return "SELECT name FROM " + set + " WHERE LOWER(name) = LOWER($1) LIMIT 1"
	}
	return "SELECT name FROM " + set + " WHERE name = ? COLLATE NOCASE LIMIT 1"
}

// DescribeSchema renders the compact schema description fed to the query
// prompts, one table per line:
//
//	players: id INTEGER PK, name TEXT, team_id INTEGER
func (s *Store) DescribeSchema(ctx context.Context) (string, error) {
	if s.dialect.name == "postgres" {
		return s.describePostgres(ctx)
	}
	return s.describeSQLite(ctx)
}

type column struct {
	name, typ string
	pk        bool
}

func (c column) String() string {
	out := c.name + " " + c.typ
	if c.pk {
		out += " PK"
	}
	return strings.TrimSpace(out)
}

func renderSchema(tables []string, cols map[string][]column) string {
	var b strings.Builder
	for _, t := range tables {
		parts := make([]string, len(cols[t]))
		for i, c := range cols[t] {
			parts[i] = c.String()
		}
		fmt.Fprintf(&b, "%s: %s\n", t, strings.Join(parts, ", "))
	}
	return b.String()
}

func (s *Store) describeSQLite(ctx context.Context) (string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return "", fmt.Errorf("list tables: %w", err)
	}
	var tables []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			rows.Close()
			return "", err
		}
		tables = append(tables, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return "", err
	}

	cols := make(map[string][]column, len(tables))
	for _, t := range tables {
		info, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", t))
		if err != nil {
			return "", fmt.Errorf("table_info %s: %w", t, err)
		}
		for info.Next() {
			var (
				cid, notNull, pk int
				name, typ        string
				dflt             any
			)
			if err := info.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
				info.Close()
				return "", err
			}
			cols[t] = append(cols[t], column{name: name, typ: typ, pk: pk > 0})
		}
		info.Close()
		if err := info.Err(); err != nil {
			return "", err
		}
	}
	return renderSchema(tables, cols), nil
}

func (s *Store) describePostgres(ctx context.Context) (string, error) {
	pks := map[string]bool{}
	pkRows, err := s.db.QueryContext(ctx, `
		SELECT kcu.table_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = 'public'`)
	if err != nil {
		return "", fmt.Errorf("list primary keys: %w", err)
	}
	for pkRows.Next() {
		var t, c string
		if err := pkRows.Scan(&t, &c); err != nil {
			pkRows.Close()
			return "", err
		}
		pks[t+"."+c] = true
	}
	pkRows.Close()

	rows, err := s.db.QueryContext(ctx, `
		SELECT table_name, column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = 'public'
		ORDER BY table_name, ordinal_position`)
	if err != nil {
		return "", fmt.Errorf("list columns: %w", err)
	}
	defer rows.Close()

	var tables []string
	cols := map[string][]column{}
	for rows.Next() {
		var t, c, typ string
		if err := rows.Scan(&t, &c, &typ); err != nil {
			return "", err
		}
		if _, seen := cols[t]; !seen {
			tables = append(tables, t)
		}
		cols[t] = append(cols[t], column{name: c, typ: strings.ToUpper(typ), pk: pks[t+"."+c]})
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return renderSchema(tables, cols), nil
}
