package repository

import (
	"context"
	"embed"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
)

//go:embed all:sql/migrations
var migrationsFS embed.FS

type migration struct {
	version int
	name    string
}

// Migrate applies every embedded migration not yet recorded in
// schema_migrations, in version order, each in its own transaction.
// It returns the versions it applied.
func (s *SQLStore) Migrate(ctx context.Context) ([]int, error) {
	const op = "repository.Migrate"

	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY
	)`); err != nil {
		return nil, WrapKind(op, ErrInvalidArgument, fmt.Errorf("creating schema_migrations: %w", err))
	}

	all, err := listMigrations()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	applied := make(map[int]bool)
	rows, err := s.db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("%s: querying schema_migrations: %w", op, err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return nil, fmt.Errorf("%s: scanning migration version: %w", op, err)
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("%s: iterating migration versions: %w", op, err)
	}
	rows.Close()

	var done []int
	for _, m := range all {
		if applied[m.version] {
			continue
		}
		body, err := migrationsFS.ReadFile(path.Join("sql/migrations", m.name))
		if err != nil {
			return done, fmt.Errorf("%s: reading %s: %w", op, m.name, err)
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return done, fmt.Errorf("%s: begin %d: %w", op, m.version, err)
		}
		if _, err := tx.ExecContext(ctx, string(body)); err != nil {
			_ = tx.Rollback()
			return done, fmt.Errorf("%s: executing %s: %w", op, m.name, err)
		}
		if _, err := tx.ExecContext(ctx, s.rebind("INSERT INTO schema_migrations (version) VALUES (?)"), m.version); err != nil {
			_ = tx.Rollback()
			return done, fmt.Errorf("%s: recording %d: %w", op, m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return done, fmt.Errorf("%s: commit %d: %w", op, m.version, err)
		}
		done = append(done, m.version)
	}
	return done, nil
}

// listMigrations parses NNN_name.sql files and sorts them by version.
func listMigrations() ([]migration, error) {
	entries, err := migrationsFS.ReadDir("sql/migrations")
	if err != nil {
		return nil, fmt.Errorf("reading migrations dir: %w", err)
	}
	var out []migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		parts := strings.SplitN(e.Name(), "_", 2)
		if len(parts) < 2 {
			continue
		}
		v, err := strconv.Atoi(parts[0])
		if err != nil {
			continue
		}
		out = append(out, migration{version: v, name: e.Name()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}
