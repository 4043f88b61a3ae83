package store

import (
	"time"

	"github.com/pavelanni/examprep/internal/model"
)

// RecordPracticeResult counts one practice answer for a knowledge component
// and recomputes its mastery as correct/attempts. Unknown components are
// created with the given name and tag.
func (s *Store) RecordPracticeResult(kcID, name, tag string, correct bool) (model.KCProgress, error) {
	inc := 0
	if correct {
		inc = 1
	}
	now := time.Now()
	_, err := s.db.Exec(
		`INSERT INTO kc_progress (kc_id, name, tag, mastery, attempts, correct, updated_at)
		 VALUES (?, ?, ?, ?, 1, ?, ?)
		 ON CONFLICT(kc_id) DO UPDATE SET
			attempts = attempts + 1,
			correct = correct + ?,
			mastery = CAST(correct + ? AS REAL) / (attempts + 1),
			updated_at = ?`,
		kcID, name, tag, float64(inc), inc, now,
		inc, inc, now,
	)
	if err != nil {
		return model.KCProgress{}, err
	}
	return s.GetKCProgress(kcID)
}

// GetKCProgress returns one knowledge component record.
func (s *Store) GetKCProgress(kcID string) (model.KCProgress, error) {
	var p model.KCProgress
	err := s.db.QueryRow(
		`SELECT id, kc_id, name, tag, mastery, attempts, correct, updated_at FROM kc_progress WHERE kc_id = ?`, kcID,
	).Scan(&p.ID, &p.KCID, &p.Name, &p.Tag, &p.Mastery, &p.Attempts, &p.Correct, &p.UpdatedAt)
	return p, notFound(err)
}

// ListKCProgress returns all knowledge component records in insertion order.
func (s *Store) ListKCProgress() ([]model.KCProgress, error) {
	rows, err := s.db.Query(
		`SELECT id, kc_id, name, tag, mastery, attempts, correct, updated_at FROM kc_progress ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.KCProgress
	for rows.Next() {
		var p model.KCProgress
		if err := rows.Scan(&p.ID, &p.KCID, &p.Name, &p.Tag, &p.Mastery, &p.Attempts, &p.Correct, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
