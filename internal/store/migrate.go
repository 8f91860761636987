package store

import (
	"context"
	"crypto/sha256"
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsTableSQL = `
CREATE TABLE IF NOT EXISTS _schema_migrations (
    migration_id TEXT PRIMARY KEY,
    checksum     TEXT NOT NULL,
    applied_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    execution_ms BIGINT NOT NULL
)`

type migration struct {
	ID       string
	Checksum string
	SQL      string
}

// MigrationStatus describes one embedded migration.
type MigrationStatus struct {
	ID          string     `json:"id"`
	Checksum    string     `json:"checksum"`
	Applied     bool       `json:"applied"`
	AppliedAt   *time.Time `json:"applied_at,omitempty"`
	ExecutionMs int64      `json:"execution_ms,omitempty"`
}

// parseMigrations reads the .sql files of dir in file name order.
func parseMigrations(fsys fs.FS, dir string) ([]migration, error) {
	var out []migration
	err := fs.WalkDir(fsys, dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".sql") {
			return nil
		}
		content, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		out = append(out, migration{
			ID:       filepath.Base(path),
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
			SQL:      string(content),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Migrate applies every pending embedded migration, each in its own
// transaction. An applied migration whose file changed is an error.
func (s *Store) Migrate(ctx context.Context) ([]string, error) {
	if _, err := s.Pool.Exec(ctx, migrationsTableSQL); err != nil {
		return nil, fmt.Errorf("create migrations table: %w", err)
	}
	migrations, err := parseMigrations(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("parse migrations: %w", err)
	}
	applied, err := s.appliedChecksums(ctx)
	if err != nil {
		return nil, err
	}

	var ran []string
	for _, m := range migrations {
		if sum, ok := applied[m.ID]; ok {
			if sum != m.Checksum {
				return ran, fmt.Errorf("migration %s was modified after being applied", m.ID)
			}
			continue
		}

		start := time.Now()
		err := s.WithTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.SQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx,
				`INSERT INTO _schema_migrations (migration_id, checksum, execution_ms) VALUES ($1, $2, $3)`,
				m.ID, m.Checksum, time.Since(start).Milliseconds())
			return err
		})
		if err != nil {
			return ran, fmt.Errorf("apply migration %s: %w", m.ID, err)
		}
		ran = append(ran, m.ID)
	}
	return ran, nil
}

// MigrationStatus lists every embedded migration and whether it ran.
func (s *Store) MigrationStatus(ctx context.Context) ([]MigrationStatus, error) {
	if _, err := s.Pool.Exec(ctx, migrationsTableSQL); err != nil {
		return nil, fmt.Errorf("create migrations table: %w", err)
	}
	migrations, err := parseMigrations(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("parse migrations: %w", err)
	}

	rows, err := s.Pool.Query(ctx, `SELECT migration_id, checksum, applied_at, execution_ms FROM _schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]MigrationStatus)
	for rows.Next() {
		var st MigrationStatus
		var at time.Time
		if err := rows.Scan(&st.ID, &st.Checksum, &at, &st.ExecutionMs); err != nil {
			return nil, err
		}
		st.AppliedAt = &at
		st.Applied = true
		applied[st.ID] = st
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]MigrationStatus, 0, len(migrations))
	for _, m := range migrations {
		if st, ok := applied[m.ID]; ok {
			out = append(out, st)
			continue
		}
		out = append(out, MigrationStatus{ID: m.ID, Checksum: m.Checksum})
	}
	return out, nil
}

func (s *Store) appliedChecksums(ctx context.Context) (map[string]string, error) {
	rows, err := s.Pool.Query(ctx, `SELECT migration_id, checksum FROM _schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]string)
	for rows.Next() {
		var id, sum string
		if err := rows.Scan(&id, &sum); err != nil {
			return nil, err
		}
		applied[id] = sum
	}
	return applied, rows.Err()
}
