package store

import (
	"context"
	"database/sql"
	"errors"
)

// SetImportedFileHash records the sha256 of an imported file.
func (s *Store) SetImportedFileHash(ctx context.Context, path, hash string) error {
	return s.setImportedFileHash(ctx, s.db, path, hash)
}

func (s *Store) setImportedFileHash(ctx context.Context, ex execer, path, hash string) error {
	_, err := ex.ExecContext(ctx, s.rebind(
		`INSERT INTO imported_files (path, sha256, imported_at) VALUES (?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET sha256 = excluded.sha256, imported_at = excluded.imported_at`),
		path, hash, s.now().UnixNano(),
	)
	return err
}

// GetImportedFileHash returns the recorded sha256 of a file.
// Returns empty string and nil error if the file was never imported.
func (s *Store) GetImportedFileHash(ctx context.Context, path string) (string, error) {
	var hash string
	err := s.queryRow(ctx, `SELECT sha256 FROM imported_files WHERE path = ?`, path).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return hash, err
}
