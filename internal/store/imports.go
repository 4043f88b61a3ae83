package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/examprep/internal/model"
)

// GetImportedFileHash returns the hash recorded for an import key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetImportedFileHash(key string) (string, error) {
	var hash string
	err := s.db.QueryRow(`SELECT hash FROM imported_files WHERE key = ?`, key).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return hash, err
}

// SetImportedFileHash upserts the hash recorded for an import key.
func (s *Store) SetImportedFileHash(key, hash string) error {
	_, err := s.db.Exec(
		`INSERT INTO imported_files (key, hash) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET hash = ?`,
		key, hash, hash,
	)
	return err
}

// ExpireExamSets persists the expired status for available exam sets whose
// deadline has passed. It returns the number of rows changed.
func (s *Store) ExpireExamSets(now time.Time) (int64, error) {
	candidates, err := s.queryExamSets(`WHERE e.status = ? AND e.deadline IS NOT NULL`, model.StatusAvailable)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, e := range candidates {
		if e.EffectiveStatus(now) != model.StatusExpired {
			continue
		}
		res, err := s.db.Exec(`UPDATE exam_sets SET status = ? WHERE id = ? AND status = ?`,
			model.StatusExpired, e.ID, model.StatusAvailable)
		if err != nil {
			return n, fmt.Errorf("expire exam set %d: %w", e.ID, err)
		}
		changed, err := res.RowsAffected()
		if err != nil {
			return n, err
		}
		n += changed
	}
	if n > 0 {
		slog.Info("expired exam sets", "count", n)
	}
	return n, nil
}
