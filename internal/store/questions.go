package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pavelanni/examprep/internal/model"
	"github.com/pavelanni/examprep/internal/question"
)

// Each row of the questions table holds one top-level question together with
// its sub-question tree as JSON. position orders the top-level questions and is
// the first segment of every question path.

func listQuestionsTx(q interface {
	Query(string, ...any) (*sql.Rows, error)
}, examSetID int64) ([]question.Question, error) {
	rows, err := q.Query(`SELECT body FROM questions WHERE exam_set_id = ? ORDER BY position, id`, examSetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []question.Question
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var qq question.Question
		if err := json.Unmarshal([]byte(body), &qq); err != nil {
			return nil, fmt.Errorf("decode stored question: %w", err)
		}
		out = append(out, qq)
	}
	return out, rows.Err()
}

func writeQuestionsTx(tx *sql.Tx, examSetID int64, qs []question.Question) error {
	if _, err := tx.Exec(`DELETE FROM questions WHERE exam_set_id = ?`, examSetID); err != nil {
		return fmt.Errorf("clear questions: %w", err)
	}
	for i, qq := range qs {
		body, err := json.Marshal(qq)
		if err != nil {
			return fmt.Errorf("encode question %d: %w", i, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO questions (exam_set_id, position, body) VALUES (?, ?, ?)`,
			examSetID, i, string(body),
		); err != nil {
			return fmt.Errorf("insert question %d: %w", i, err)
		}
	}
	return nil
}

func validateAll(qs []question.Question) error {
	for i := range qs {
		if err := qs[i].Validate(); err != nil {
			return fmt.Errorf("question %d: %w", i, err)
		}
	}
	return nil
}

// ListQuestions returns the question forest of an exam set in order.
func (s *Store) ListQuestions(examSetID int64) ([]question.Question, error) {
	return listQuestionsTx(s.db, examSetID)
}

// GetExamSetDetail returns an exam set together with its questions.
func (s *Store) GetExamSetDetail(id int64) (model.ExamSetDetail, error) {
	e, err := s.GetExamSet(id)
	if err != nil {
		return model.ExamSetDetail{}, err
	}
	qs, err := s.ListQuestions(id)
	if err != nil {
		return model.ExamSetDetail{}, err
	}
	if qs == nil {
		qs = []question.Question{}
	}
	return model.ExamSetDetail{ExamSet: e, Questions: qs}, nil
}

// AppendQuestions adds questions after the existing ones.
func (s *Store) AppendQuestions(examSetID int64, qs []question.Question) error {
	if err := validateAll(qs); err != nil {
		return err
	}
	if _, err := s.GetExamSet(examSetID); err != nil {
		return err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var next int
	if err := tx.QueryRow(
		`SELECT COALESCE(MAX(position) + 1, 0) FROM questions WHERE exam_set_id = ?`, examSetID,
	).Scan(&next); err != nil {
		return err
	}
	for i, qq := range qs {
		body, err := json.Marshal(qq)
		if err != nil {
			return fmt.Errorf("encode question %d: %w", i, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO questions (exam_set_id, position, body) VALUES (?, ?, ?)`,
			examSetID, next+i, string(body),
		); err != nil {
			return fmt.Errorf("insert question %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("appended questions", "exam_set_id", examSetID, "count", len(qs))
	return nil
}

// ReplaceQuestions swaps the whole question forest of an exam set.
func (s *Store) ReplaceQuestions(examSetID int64, qs []question.Question) error {
	if err := validateAll(qs); err != nil {
		return err
	}
	if _, err := s.GetExamSet(examSetID); err != nil {
		return err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := writeQuestionsTx(tx, examSetID, qs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("replaced questions", "exam_set_id", examSetID, "count", len(qs))
	return nil
}

// GetQuestion resolves a path inside an exam set's question forest.
func (s *Store) GetQuestion(examSetID int64, p question.Path) (question.Question, error) {
	qs, err := s.ListQuestions(examSetID)
	if err != nil {
		return question.Question{}, err
	}
	node, ok := question.Resolve(qs, p)
	if !ok {
		return question.Question{}, fmt.Errorf("exam set %d path %s: %w", examSetID, p, question.ErrPathNotFound)
	}
	return *node, nil
}

// UpdateQuestion applies fn to the node at p and saves the forest. The read,
// modification and write happen in one transaction.
func (s *Store) UpdateQuestion(examSetID int64, p question.Path, fn func(*question.Question) error) (question.Question, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return question.Question{}, err
	}
	defer tx.Rollback()

	qs, err := listQuestionsTx(tx, examSetID)
	if err != nil {
		return question.Question{}, err
	}
	node, ok := question.Resolve(qs, p)
	if !ok {
		return question.Question{}, fmt.Errorf("exam set %d path %s: %w", examSetID, p, question.ErrPathNotFound)
	}
	if err := fn(node); err != nil {
		return question.Question{}, err
	}
	if err := validateAll(qs); err != nil {
		return question.Question{}, err
	}
	updated := *node
	if err := writeQuestionsTx(tx, examSetID, qs); err != nil {
		return question.Question{}, err
	}
	if err := tx.Commit(); err != nil {
		return question.Question{}, err
	}
	slog.Info("updated question", "exam_set_id", examSetID, "path", p.String())
	return updated, nil
}

// DeleteQuestion removes the node at p; later siblings shift down.
func (s *Store) DeleteQuestion(examSetID int64, p question.Path) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	qs, err := listQuestionsTx(tx, examSetID)
	if err != nil {
		return err
	}
	qs, err = question.Remove(qs, p)
	if err != nil {
		return fmt.Errorf("exam set %d: %w", examSetID, err)
	}
	if err := writeQuestionsTx(tx, examSetID, qs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("deleted question", "exam_set_id", examSetID, "path", p.String())
	return nil
}
