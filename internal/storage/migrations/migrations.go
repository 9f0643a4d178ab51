// Package migrations brings the journal schema up to date from the embedded
// numbered SQL scripts.
package migrations

import (
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
)

type script struct {
	version int
	name    string
	sql     string
}

// Run applies, in version order, every script not yet recorded in
// _migrations. Each script runs in its own transaction.
func Run(db *sql.DB) error {
	if err := ensureMigrationsTable(db); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	todo, err := pendingScripts(db)
	if err != nil {
		return err
	}
	for _, s := range todo {
		if err := apply(db, s); err != nil {
			return fmt.Errorf("migration %s: %w", s.name, err)
		}
	}
	return nil
}

// Version returns the highest applied version, or 0.
func Version(db *sql.DB) (int, error) {
	var v int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM _migrations").Scan(&v)
	return v, err
}

// Pending lists the versions Run would apply, ascending.
func Pending(db *sql.DB) ([]int, error) {
	todo, err := pendingScripts(db)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(todo))
	for i, s := range todo {
		out[i] = s.version
	}
	return out, nil
}

func ensureMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS _migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	return err
}

func pendingScripts(db *sql.DB) ([]script, error) {
	all, err := loadScripts()
	if err != nil {
		return nil, fmt.Errorf("load scripts: %w", err)
	}

	rows, err := db.Query("SELECT version FROM _migrations")
	if err != nil {
		return nil, fmt.Errorf("read applied versions: %w", err)
	}
	defer rows.Close()

	done := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		done[v] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var todo []script
	for _, s := range all {
		if !done[s.version] {
			todo = append(todo, s)
		}
	}
	return todo, nil
}

// loadScripts reads scripts/NNN_name.sql from FS, sorted by version. Files
// without a numeric prefix are skipped.
func loadScripts() ([]script, error) {
	entries, err := fs.ReadDir(FS, "scripts")
	if err != nil {
		return nil, err
	}

	var out []script
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".sql" {
			continue
		}
		v, err := parseVersion(e.Name())
		if err != nil {
			continue
		}
		body, err := fs.ReadFile(FS, path.Join("scripts", e.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, script{version: v, name: e.Name(), sql: string(body)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

func parseVersion(filename string) (int, error) {
	prefix, _, ok := strings.Cut(filename, "_")
	if !ok {
		return 0, fmt.Errorf("invalid migration filename: %s", filename)
	}
	return strconv.Atoi(prefix)
}

func apply(db *sql.DB, s script) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(s.sql); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO _migrations (version, name) VALUES (?, ?)", s.version, s.name); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	return tx.Commit()
}
