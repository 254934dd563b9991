// Package sqlite exposes SQL query tools over a local SQLite database.
// A missing database file is created and seeded with sample data so the
// adapter is usable out of the box.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Driver is the database/sql driver name registered by modernc.org/sqlite.
const Driver = "sqlite"

// DefaultPath is where the adapter keeps its database when none is configured.
const DefaultPath = "./database.db"

// Service runs SQL tools against one SQLite database.
type Service struct {
	db *sqlx.DB
}

// Open connects to the database at path. When the file does not exist yet,
// the schema migrations run and seed it with sample data.
func Open(ctx context.Context, path string) (*Service, error) {
	_, statErr := os.Stat(path)
	seed := os.IsNotExist(statErr)

	db, err := sqlx.Open(Driver, path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", path, err)
	}

	if seed {
		slog.Info("database not found, initializing with sample data", slog.String("path", path))
		if err := Migrate(ctx, db.DB, false); err != nil {
			db.Close()
			return nil, err
		}
	}
	return &Service{db: db}, nil
}

// Close releases the database connection.
func (s *Service) Close() error { return s.db.Close() }

// Query executes one SQL statement. SELECT statements return their rows as an
// aligned text table; other statements report the affected row count.
// Statement errors are part of the result text rather than the error return,
// which is reserved for connection-level failures: the caller's client reads
// the result as tool output either way.
func (s *Service) Query(ctx context.Context, query string) (string, error) {
	slog.Info("executing sql query", slog.String("query", query))

	if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "SELECT") {
		return s.selectText(ctx, query), nil
	}

	res, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return "Error: " + err.Error(), nil
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return "Error: " + err.Error(), nil
	}
	return fmt.Sprintf("Query executed successfully. Rows affected: %d", affected), nil
}

// selectText renders a SELECT result as header, separator, and rows joined
// with " | ".
func (s *Service) selectText(ctx context.Context, query string) string {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return "Error: " + err.Error()
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return "Error: " + err.Error()
	}

	width := 3 * (len(cols) - 1)
	for _, c := range cols {
		width += len(c)
	}

	var b strings.Builder
	b.WriteString(strings.Join(cols, " | "))
	b.WriteByte('\n')
	b.WriteString(strings.Repeat("-", width))

	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return "Error: " + err.Error()
		}
		cells := make([]string, len(cols))
		for i, v := range values {
			cells[i] = formatValue(v)
		}
		b.WriteByte('\n')
		b.WriteString(strings.Join(cells, " | "))
	}
	if err := rows.Err(); err != nil {
		return "Error: " + err.Error()
	}
	return b.String()
}

// Schema lists every user table with its columns and declared types.
func (s *Service) Schema(ctx context.Context) (string, error) {
	slog.Info("getting database schema")

	var tables []string
	err := s.db.SelectContext(ctx, &tables,
		`SELECT name FROM sqlite_master
		 WHERE type = 'table' AND name NOT LIKE 'goose_%' AND name NOT LIKE 'sqlite_%'
		 ORDER BY name`)
	if err != nil {
		return "Error: " + err.Error(), nil
	}

	var lines []string
	for _, table := range tables {
		rows, err := s.db.QueryContext(ctx, "PRAGMA table_info("+table+")")
		if err != nil {
			return "Error: " + err.Error(), nil
		}

		lines = append(lines, "Table: "+table, "Columns:")
		for rows.Next() {
			var (
				cid     int
				name    string
				ctype   string
				notnull int
				dflt    any
				pk      int
			)
			if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
				rows.Close()
				return "Error: " + err.Error(), nil
			}
			lines = append(lines, fmt.Sprintf("  - %s (%s)", name, ctype))
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return "Error: " + err.Error(), nil
		}
		rows.Close()
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n"), nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}
