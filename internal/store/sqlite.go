package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// sidecarSchema is the file-level dedupe metadata table owned by this tool.
// The tracks and track_ids tables belong to the surrounding library and are
// never created here; their absence simply means no identifiers get attached.
const sidecarSchema = `
CREATE TABLE IF NOT EXISTS file_dedupe (
	path TEXT PRIMARY KEY,
	size_bytes INTEGER NOT NULL,
	sha256 TEXT NOT NULL,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// SqliteSyncer persists per-file hash metadata into a SQLite library store.
type SqliteSyncer struct {
	db *sqlx.DB
}

var _ Syncer = (*SqliteSyncer)(nil)

// OpenSqlite opens (or creates) the store at path and ensures the sidecar
// table exists.
func OpenSqlite(path string, opts ...DBOption) (*SqliteSyncer, error) {
	opts = append([]DBOption{WithPath(path)}, opts...)
	db, err := openDB(opts...)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(sidecarSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create file_dedupe table: %w", err)
	}
	return &SqliteSyncer{db: db}, nil
}

func (s *SqliteSyncer) Close() error {
	return s.db.Close()
}

// UpsertFileMeta writes the (path, size, digest) row and looks up whether a
// library track exists at that path. A missing tracks table counts as "no
// record", not an error, so the sidecar works against a bare store.
func (s *SqliteSyncer) UpsertFileMeta(ctx context.Context, path string, size int64, digest string) (int64, bool, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO file_dedupe (path, size_bytes, sha256, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(path) DO UPDATE SET
			size_bytes=excluded.size_bytes,
			sha256=excluded.sha256,
			updated_at=CURRENT_TIMESTAMP`,
		path, size, digest)
	if err != nil {
		return 0, false, fmt.Errorf("upsert file meta %q: %w", path, err)
	}

	var id int64
	err = s.db.GetContext(ctx, &id, `SELECT id FROM tracks WHERE path = ? LIMIT 1`, path)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, false, nil
	case err != nil:
		// No tracks table at all: nothing to attach identifiers to.
		return 0, false, nil
	}
	return id, true, nil
}

// AttachIdentifier upserts an external identifier row for a library record.
func (s *SqliteSyncer) AttachIdentifier(ctx context.Context, recordID int64, kind, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO track_ids (track_id, kind, value)
		VALUES (?, ?, ?)
		ON CONFLICT(track_id, kind) DO UPDATE SET value=excluded.value`,
		recordID, kind, value)
	if err != nil {
		return fmt.Errorf("attach identifier %s for record %d: %w", kind, recordID, err)
	}
	return nil
}
