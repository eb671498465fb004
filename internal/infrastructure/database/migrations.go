package database

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

// MigrationsFS holds the schema files applied by Migrate. It is set by the
// migrations package from its embedded files. Only *.up.sql files are read;
// rollback is a manual operation.
var MigrationsFS fs.FS

// MigrationsDir is the directory inside MigrationsFS holding the files.
var MigrationsDir = "."

// upSuffix marks a schema file, named VERSION_NAME.up.sql where VERSION is
// YYYYMMDD_HHMMSS.
const upSuffix = ".up.sql"

// Migration is one schema step.
type Migration struct {
	Version string
	Name    string
	SQL     string
}

// MigrationStatus summarises the schema state of the store.
type MigrationStatus struct {
	Applied int    `json:"applied"`
	Pending int    `json:"pending"`
	Current string `json:"current,omitempty"`
}

// Migrate applies every pending migration in version order. Each migration
// runs in its own transaction; on failure the earlier ones stay applied and
// a later call resumes at the failed one.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: Naming the migration that failed
func (db *DB) Migrate(ctx context.Context) error {
	pending, _, err := db.plan(ctx)
	if err != nil {
		return err
	}

	for _, m := range pending {
		if err := db.apply(ctx, m); err != nil {
			return fmt.Errorf("applying migration %s (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

// Status reports how many migrations are applied and pending, and the
// newest applied version.
func (db *DB) Status(ctx context.Context) (MigrationStatus, error) {
	pending, applied, err := db.plan(ctx)
	if err != nil {
		return MigrationStatus{}, err
	}

	st := MigrationStatus{Applied: len(applied), Pending: len(pending)}
	if len(applied) > 0 {
		st.Current = applied[len(applied)-1]
	}
	return st, nil
}

// plan returns the migrations still to apply and the versions already
// applied, both oldest first.
func (db *DB) plan(ctx context.Context) (pending []Migration, applied []string, err error) {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)`); err != nil {
		return nil, nil, fmt.Errorf("creating migrations table: %w", err)
	}

	applied, err = db.appliedVersions(ctx)
	if err != nil {
		return nil, nil, err
	}
	done := make(map[string]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	all, err := loadMigrations(MigrationsFS, MigrationsDir)
	if err != nil {
		return nil, nil, fmt.Errorf("loading migrations: %w", err)
	}
	for _, m := range all {
		if !done[m.Version] {
			pending = append(pending, m)
		}
	}
	return pending, applied, nil
}

func (db *DB) appliedVersions(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("querying migrations: %w", err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning migration row: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating migrations: %w", err)
	}
	return versions, nil
}

func (db *DB) apply(ctx context.Context, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op after commit

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("executing SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
		m.Version, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("recording migration: %w", err)
	}
	return tx.Commit()
}

// loadMigrations reads the *.up.sql files of dir in fsys, oldest first.
// A nil fsys has no migrations.
func loadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	if fsys == nil {
		return nil, nil
	}

	files, err := fs.Glob(fsys, path.Join(dir, "*"+upSuffix))
	if err != nil {
		return nil, err
	}

	out := make([]Migration, 0, len(files))
	for _, f := range files {
		version, name, err := parseMigrationName(path.Base(f))
		if err != nil {
			return nil, err
		}
		body, err := fs.ReadFile(fsys, f)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f, err)
		}
		out = append(out, Migration{Version: version, Name: name, SQL: string(body)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// parseMigrationName splits "20261001_090000_command_audit.up.sql" into
// "20261001_090000" and "command_audit".
func parseMigrationName(file string) (version, name string, err error) {
	parts := strings.SplitN(strings.TrimSuffix(file, upSuffix), "_", 3)
	if len(parts) != 3 || len(parts[0]) != 8 || len(parts[1]) != 6 || parts[2] == "" {
		return "", "", fmt.Errorf("malformed migration filename %q", file)
	}
	return parts[0] + "_" + parts[1], parts[2], nil
}
