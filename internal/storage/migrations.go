package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"path"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type migration struct {
	Name string
	SQL  string
}

// RunMigrations applies every embedded migration that is not yet recorded in
// the _migrations table. Files apply in lexical order, so each carries a
// numeric prefix. It returns the number of migrations applied.
func RunMigrations(ctx context.Context, db *DB) (int, error) {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS _migrations (
			name TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL
		)
	`); err != nil {
		return 0, fmt.Errorf("creating migrations table: %w", err)
	}

	done, err := appliedMigrations(ctx, db)
	if err != nil {
		return 0, fmt.Errorf("listing applied migrations: %w", err)
	}

	pending, err := loadMigrations()
	if err != nil {
		return 0, fmt.Errorf("reading migration files: %w", err)
	}

	count := 0
	for _, m := range pending {
		if done[m.Name] {
			continue
		}
		log.Printf("Applying migration %s", m.Name)
		err := db.Transaction(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
				return fmt.Errorf("executing SQL: %w", err)
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO _migrations (name, applied_at) VALUES (?, CURRENT_TIMESTAMP)", m.Name)
			return err
		})
		if err != nil {
			return count, fmt.Errorf("applying migration %s: %w", m.Name, err)
		}
		count++
	}

	return count, nil
}

func appliedMigrations(ctx context.Context, db *DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT name FROM _migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		done[name] = true
	}
	return done, rows.Err()
}

func loadMigrations() ([]migration, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, err
	}

	var out []migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		content, err := migrationsFS.ReadFile(path.Join("migrations", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}
		out = append(out, migration{Name: e.Name(), SQL: string(content)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
