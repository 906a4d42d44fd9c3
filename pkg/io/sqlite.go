package io

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"creditrule/pkg/table"
)

// SQLiteStore keeps every dataset in its own table of a single SQLite file. All
// columns are TEXT and missing values are NULL.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func quote(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

// Save replaces the named table with the contents of t.
func (s *SQLiteStore) Save(name string, t table.Table) error {
	columns := t.Columns()
	quoted := make([]string, len(columns))
	definitions := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = quote(col)
		definitions[i] = quote(col) + " TEXT"
		placeholders[i] = "?"
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DROP TABLE IF EXISTS " + quote(name)); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", name, err)
	}
	if _, err := tx.Exec(fmt.Sprintf("CREATE TABLE %s (%s)", quote(name), strings.Join(definitions, ", "))); err != nil {
		return fmt.Errorf("failed to create table %s: %w", name, err)
	}
	stmt, err := tx.Prepare(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(name), strings.Join(quoted, ", "), strings.Join(placeholders, ", ")))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]interface{}, len(columns))
	for r := 0; r < t.Rows(); r++ {
		for i, col := range columns {
			c := t.Cell(r, col)
			if c.IsMissing() {
				args[i] = nil
			} else {
				args[i] = c.String()
			}
		}
		if _, err := stmt.Exec(args...); err != nil {
			return fmt.Errorf("failed to insert row %d: %w", r, err)
		}
	}
	return tx.Commit()
}

// Load reads the named table in insertion order.
func (s *SQLiteStore) Load(name string) (table.Table, error) {
	rows, err := s.db.Query("SELECT * FROM " + quote(name) + " ORDER BY rowid")
	if err != nil {
		return table.Table{}, fmt.Errorf("failed to query table %s: %w", name, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return table.Table{}, fmt.Errorf("failed to read columns of %s: %w", name, err)
	}
	data := make(map[string][]table.Cell, len(columns))
	for _, col := range columns {
		data[col] = nil
	}

	values := make([]sql.NullString, len(columns))
	targets := make([]interface{}, len(columns))
	for i := range values {
		targets[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(targets...); err != nil {
			return table.Table{}, fmt.Errorf("failed to scan %s: %w", name, err)
		}
		for i, col := range columns {
			cell := table.Null()
			if values[i].Valid {
				cell = table.Str(values[i].String)
			}
			data[col] = append(data[col], cell)
		}
	}
	if err := rows.Err(); err != nil {
		return table.Table{}, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return table.New(columns, data)
}
