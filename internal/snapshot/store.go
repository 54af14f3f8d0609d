// Package snapshot persists manager state in a SQLite file so a restarted
// daemon comes back with its binding and warm set.
package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"warmsetd/internal/cache"
	"warmsetd/internal/manager"
	"warmsetd/pkg/types"
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS manager_state (
  id INTEGER PRIMARY KEY CHECK (id = 1),
  manifest_json TEXT,
  binding_json TEXT,
  hits INTEGER NOT NULL DEFAULT 0,
  misses INTEGER NOT NULL DEFAULT 0,
  last_activity INTEGER NOT NULL DEFAULT 0,
  saved_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS cache_entries (
  chunk_id TEXT PRIMARY KEY,
  data BLOB NOT NULL,
  last_accessed INTEGER NOT NULL,
  access_count INTEGER NOT NULL,
  size_bytes INTEGER NOT NULL
);
`)
	return err
}

// Save replaces the stored snapshot with st in one transaction.
func (s *Store) Save(ctx context.Context, st manager.PersistedState) error {
	manifest, err := marshalOptional(st.Manifest)
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	binding, err := marshalOptional(st.Binding)
	if err != nil {
		return fmt.Errorf("encoding binding: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM cache_entries;"); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO manager_state(id, manifest_json, binding_json, hits, misses, last_activity, saved_at)
VALUES(1, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  manifest_json=excluded.manifest_json,
  binding_json=excluded.binding_json,
  hits=excluded.hits,
  misses=excluded.misses,
  last_activity=excluded.last_activity,
  saved_at=excluded.saved_at;
`, manifest, binding, int64(st.Hits), int64(st.Misses), st.LastActivity, s.now().Unix())
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO cache_entries(chunk_id, data, last_accessed, access_count, size_bytes)
VALUES(?, ?, ?, ?, ?);
`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, e := range st.Entries {
		data := e.Data
		if data == nil {
			data = []byte{}
		}
		if _, err := stmt.ExecContext(ctx, e.Key, data, e.LastAccessed, int64(e.AccessCount), e.SizeBytes); err != nil {
			return fmt.Errorf("saving chunk %s: %w", e.Key, err)
		}
	}
	return tx.Commit()
}

// Load returns the stored snapshot. ok is false when nothing was saved yet.
func (s *Store) Load(ctx context.Context) (st manager.PersistedState, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `
SELECT manifest_json, binding_json, hits, misses, last_activity
FROM manager_state WHERE id=1;
`)
	var manifest, binding sql.NullString
	var hits, misses int64
	err = row.Scan(&manifest, &binding, &hits, &misses, &st.LastActivity)
	if err == sql.ErrNoRows {
		return manager.PersistedState{}, false, nil
	}
	if err != nil {
		return manager.PersistedState{}, false, err
	}
	st.Hits, st.Misses = uint64(hits), uint64(misses)
	if manifest.Valid {
		var mf types.ModelManifest
		if err := json.Unmarshal([]byte(manifest.String), &mf); err != nil {
			return manager.PersistedState{}, false, fmt.Errorf("decoding manifest: %w", err)
		}
		st.Manifest = &mf
	}
	if binding.Valid {
		var b types.ModelBinding
		if err := json.Unmarshal([]byte(binding.String), &b); err != nil {
			return manager.PersistedState{}, false, fmt.Errorf("decoding binding: %w", err)
		}
		st.Binding = &b
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT chunk_id, data, last_accessed, access_count, size_bytes
FROM cache_entries ORDER BY last_accessed ASC;
`)
	if err != nil {
		return manager.PersistedState{}, false, err
	}
	defer rows.Close()
	for rows.Next() {
		var e cache.Entry
		var count int64
		if err := rows.Scan(&e.Key, &e.Data, &e.LastAccessed, &count, &e.SizeBytes); err != nil {
			return manager.PersistedState{}, false, err
		}
		e.AccessCount = uint64(count)
		st.Entries = append(st.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return manager.PersistedState{}, false, err
	}
	return st, true, nil
}

// Persist saves the current state of m.
func (s *Store) Persist(ctx context.Context, m *manager.Manager) error {
	return s.Save(ctx, m.ExportState())
}

// Restore loads the stored snapshot into m. It reports whether one existed.
func (s *Store) Restore(ctx context.Context, m *manager.Manager) (bool, error) {
	st, ok, err := s.Load(ctx)
	if err != nil || !ok {
		return false, err
	}
	m.ImportState(st)
	return true, nil
}

// SavedAt reports when the last snapshot was written.
func (s *Store) SavedAt(ctx context.Context) (time.Time, bool, error) {
	var unix int64
	err := s.db.QueryRowContext(ctx, "SELECT saved_at FROM manager_state WHERE id=1;").Scan(&unix)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.Unix(unix, 0), true, nil
}

func marshalOptional[T any](v *T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
