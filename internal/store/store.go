package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/examprep/internal/model"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a catalog row does not exist.
var ErrNotFound = errors.New("not found")

// ErrNotAssignable is returned when a non-CHAPTER exam set is linked to a sub-chapter.
var ErrNotAssignable = errors.New("only CHAPTER exam sets can belong to a sub-chapter")

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chapters (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		sort_order INTEGER NOT NULL DEFAULT 0,
		grade INTEGER
	);

	CREATE TABLE IF NOT EXISTS sub_chapters (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chapter_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		sort_order INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (chapter_id) REFERENCES chapters(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS exam_sets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		year INTEGER NOT NULL DEFAULT 0,
		subject TEXT NOT NULL DEFAULT '',
		grade INTEGER NOT NULL DEFAULT 0,
		duration INTEGER NOT NULL DEFAULT 0,
		difficulty TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'draft',
		description TEXT NOT NULL DEFAULT '',
		class TEXT,
		deadline DATETIME,
		sub_chapter_id INTEGER,
		FOREIGN KEY (sub_chapter_id) REFERENCES sub_chapters(id) ON DELETE SET NULL
	);

	CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		exam_set_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		body TEXT NOT NULL,
		FOREIGN KEY (exam_set_id) REFERENCES exam_sets(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_questions_exam_set ON questions(exam_set_id, position);

	CREATE TABLE IF NOT EXISTS kc_progress (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kc_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		tag TEXT NOT NULL DEFAULT '',
		mastery REAL NOT NULL DEFAULT 0,
		attempts INTEGER NOT NULL DEFAULT 0,
		correct INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS imported_files (
		key TEXT PRIMARY KEY,
		hash TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateChapter inserts a chapter.
func (s *Store) CreateChapter(c model.Chapter) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO chapters (name, sort_order, grade) VALUES (?, ?, ?)`,
		c.Name, c.SortOrder, c.Grade,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	slog.Info("created chapter", "id", id, "name", c.Name)
	return id, nil
}

// GetChapter returns a chapter by ID without its sub-chapters.
func (s *Store) GetChapter(id int64) (model.Chapter, error) {
	var c model.Chapter
	err := s.db.QueryRow(
		`SELECT id, name, sort_order, grade FROM chapters WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.SortOrder, &c.Grade)
	return c, notFound(err)
}

// ListChapters returns chapters ordered by sort order. A zero grade lists all.
func (s *Store) ListChapters(grade int) ([]model.Chapter, error) {
	query := `SELECT id, name, sort_order, grade FROM chapters`
	var args []any
	if grade > 0 {
		query += ` WHERE grade = ?`
		args = append(args, grade)
	}
	query += ` ORDER BY sort_order, id`
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var chapters []model.Chapter
	for rows.Next() {
		var c model.Chapter
		if err := rows.Scan(&c.ID, &c.Name, &c.SortOrder, &c.Grade); err != nil {
			return nil, err
		}
		chapters = append(chapters, c)
	}
	return chapters, rows.Err()
}

// UpdateChapter overwrites a chapter's fields.
func (s *Store) UpdateChapter(c model.Chapter) error {
	res, err := s.db.Exec(
		`UPDATE chapters SET name = ?, sort_order = ?, grade = ? WHERE id = ?`,
		c.Name, c.SortOrder, c.Grade, c.ID,
	)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// DeleteChapter removes a chapter and its sub-chapters. Exam sets that were
// linked to those sub-chapters stay in place, unassigned.
func (s *Store) DeleteChapter(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`UPDATE exam_sets SET sub_chapter_id = NULL
		 WHERE sub_chapter_id IN (SELECT id FROM sub_chapters WHERE chapter_id = ?)`, id,
	); err != nil {
		return fmt.Errorf("unassign exam sets: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM sub_chapters WHERE chapter_id = ?`, id); err != nil {
		return fmt.Errorf("delete sub-chapters: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM chapters WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete chapter: %w", err)
	}
	if err := checkAffected(res); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("deleted chapter", "id", id)
	return nil
}

// CreateSubChapter inserts a sub-chapter under an existing chapter.
func (s *Store) CreateSubChapter(sc model.SubChapter) (int64, error) {
	if _, err := s.GetChapter(sc.ChapterID); err != nil {
		return 0, fmt.Errorf("chapter %d: %w", sc.ChapterID, err)
	}
	res, err := s.db.Exec(
		`INSERT INTO sub_chapters (chapter_id, name, sort_order) VALUES (?, ?, ?)`,
		sc.ChapterID, sc.Name, sc.SortOrder,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	slog.Info("created sub-chapter", "id", id, "chapter_id", sc.ChapterID, "name", sc.Name)
	return id, nil
}

// GetSubChapter returns a sub-chapter by ID.
func (s *Store) GetSubChapter(id int64) (model.SubChapter, error) {
	var sc model.SubChapter
	err := s.db.QueryRow(
		`SELECT id, chapter_id, name, sort_order FROM sub_chapters WHERE id = ?`, id,
	).Scan(&sc.ID, &sc.ChapterID, &sc.Name, &sc.SortOrder)
	return sc, notFound(err)
}

// ListSubChapters returns the sub-chapters of a chapter in sort order.
func (s *Store) ListSubChapters(chapterID int64) ([]model.SubChapter, error) {
	rows, err := s.db.Query(
		`SELECT id, chapter_id, name, sort_order FROM sub_chapters
		 WHERE chapter_id = ? ORDER BY sort_order, id`, chapterID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var subs []model.SubChapter
	for rows.Next() {
		var sc model.SubChapter
		if err := rows.Scan(&sc.ID, &sc.ChapterID, &sc.Name, &sc.SortOrder); err != nil {
			return nil, err
		}
		subs = append(subs, sc)
	}
	return subs, rows.Err()
}

// UpdateSubChapter overwrites a sub-chapter's name and sort order.
func (s *Store) UpdateSubChapter(sc model.SubChapter) error {
	res, err := s.db.Exec(
		`UPDATE sub_chapters SET name = ?, sort_order = ? WHERE id = ?`,
		sc.Name, sc.SortOrder, sc.ID,
	)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// DeleteSubChapter removes a sub-chapter; its exam sets become unassigned.
func (s *Store) DeleteSubChapter(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE exam_sets SET sub_chapter_id = NULL WHERE sub_chapter_id = ?`, id); err != nil {
		return fmt.Errorf("unassign exam sets: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM sub_chapters WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete sub-chapter: %w", err)
	}
	if err := checkAffected(res); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("deleted sub-chapter", "id", id)
	return nil
}

const examSetColumns = `e.id, e.name, e.type, e.year, e.subject, e.grade, e.duration, e.difficulty,
	e.status, e.description, e.class, e.deadline, e.sub_chapter_id,
	(SELECT COUNT(*) FROM questions q WHERE q.exam_set_id = e.id)`

type scanner interface {
	Scan(dest ...any) error
}

func scanExamSet(sc scanner) (model.ExamSet, error) {
	var e model.ExamSet
	err := sc.Scan(&e.ID, &e.Name, &e.Type, &e.Year, &e.Subject, &e.Grade, &e.Duration, &e.Difficulty,
		&e.Status, &e.Description, &e.Class, &e.Deadline, &e.SubChapterID, &e.QuestionCount)
	return e, err
}

func (s *Store) queryExamSets(where string, args ...any) ([]model.ExamSet, error) {
	rows, err := s.db.Query(`SELECT `+examSetColumns+` FROM exam_sets e `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sets []model.ExamSet
	for rows.Next() {
		e, err := scanExamSet(rows)
		if err != nil {
			return nil, err
		}
		sets = append(sets, e)
	}
	return sets, rows.Err()
}

func (s *Store) checkAssignment(e model.ExamSet) error {
	if e.SubChapterID == nil {
		return nil
	}
	if !e.Assignable() {
		return ErrNotAssignable
	}
	if _, err := s.GetSubChapter(*e.SubChapterID); err != nil {
		return fmt.Errorf("sub-chapter %d: %w", *e.SubChapterID, err)
	}
	return nil
}

// CreateExamSet inserts an exam set. New exam sets default to draft.
func (s *Store) CreateExamSet(e model.ExamSet) (int64, error) {
	if err := s.checkAssignment(e); err != nil {
		return 0, err
	}
	if e.Status == "" {
		e.Status = model.StatusDraft
	}
	res, err := s.db.Exec(
		`INSERT INTO exam_sets (name, type, year, subject, grade, duration, difficulty, status, description, class, deadline, sub_chapter_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Name, e.Type, e.Year, e.Subject, e.Grade, e.Duration, e.Difficulty, e.Status, e.Description,
		e.Class, e.Deadline, e.SubChapterID,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	slog.Info("created exam set", "id", id, "name", e.Name, "type", e.Type)
	return id, nil
}

// GetExamSet returns an exam set by ID.
func (s *Store) GetExamSet(id int64) (model.ExamSet, error) {
	e, err := scanExamSet(s.db.QueryRow(`SELECT `+examSetColumns+` FROM exam_sets e WHERE e.id = ?`, id))
	return e, notFound(err)
}

// ListExamSets returns exam sets matching the filter.
func (s *Store) ListExamSets(f model.ExamSetFilter) ([]model.ExamSet, error) {
	var conds []string
	var args []any
	if f.Grade > 0 {
		conds = append(conds, `e.grade = ?`)
		args = append(args, f.Grade)
	}
	if f.Type != "" {
		conds = append(conds, `e.type = ?`)
		args = append(args, f.Type)
	}
	where := ""
	if len(conds) > 0 {
		where = `WHERE ` + strings.Join(conds, ` AND `)
	}
	return s.queryExamSets(where+` ORDER BY e.id`, args...)
}

// ListUnassignedExamSets returns CHAPTER exam sets without a sub-chapter.
func (s *Store) ListUnassignedExamSets() ([]model.ExamSet, error) {
	return s.queryExamSets(`WHERE e.type = ? AND e.sub_chapter_id IS NULL ORDER BY e.id`, model.ExamTypeChapter)
}

// ListExamSetsBySubChapter returns the exam sets linked to a sub-chapter.
func (s *Store) ListExamSetsBySubChapter(subChapterID int64) ([]model.ExamSet, error) {
	return s.queryExamSets(`WHERE e.sub_chapter_id = ? ORDER BY e.id`, subChapterID)
}

// UpdateExamSet overwrites an exam set's metadata. Last write wins; an empty
// Status keeps the stored one.
func (s *Store) UpdateExamSet(e model.ExamSet) error {
	if err := s.checkAssignment(e); err != nil {
		return err
	}
	res, err := s.db.Exec(
		`UPDATE exam_sets SET name = ?, type = ?, year = ?, subject = ?, grade = ?, duration = ?, difficulty = ?,
		 status = COALESCE(NULLIF(?, ''), status), description = ?, class = ?, deadline = ?, sub_chapter_id = ?
		 WHERE id = ?`,
		e.Name, e.Type, e.Year, e.Subject, e.Grade, e.Duration, e.Difficulty, e.Status, e.Description,
		e.Class, e.Deadline, e.SubChapterID, e.ID,
	)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// AssignExamSet links a CHAPTER exam set to a sub-chapter.
func (s *Store) AssignExamSet(examSetID, subChapterID int64) error {
	e, err := s.GetExamSet(examSetID)
	if err != nil {
		return err
	}
	e.SubChapterID = &subChapterID
	if err := s.checkAssignment(e); err != nil {
		return err
	}
	_, err = s.db.Exec(`UPDATE exam_sets SET sub_chapter_id = ? WHERE id = ?`, subChapterID, examSetID)
	if err != nil {
		return err
	}
	slog.Info("assigned exam set", "id", examSetID, "sub_chapter_id", subChapterID)
	return nil
}

// DeleteExamSet removes an exam set and its questions.
func (s *Store) DeleteExamSet(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM questions WHERE exam_set_id = ?`, id); err != nil {
		return fmt.Errorf("delete questions: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM exam_sets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete exam set: %w", err)
	}
	if err := checkAffected(res); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("deleted exam set", "id", id)
	return nil
}

// CatalogTree builds the chapter → sub-chapter → exam set hierarchy.
func (s *Store) CatalogTree(grade int) ([]model.Chapter, error) {
	chapters, err := s.ListChapters(grade)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	for i := range chapters {
		subs, err := s.ListSubChapters(chapters[i].ID)
		if err != nil {
			return nil, fmt.Errorf("list sub-chapters of %d: %w", chapters[i].ID, err)
		}
		for j := range subs {
			sets, err := s.ListExamSetsBySubChapter(subs[j].ID)
			if err != nil {
				return nil, fmt.Errorf("list exam sets of sub-chapter %d: %w", subs[j].ID, err)
			}
			subs[j].ExamSets = sets
		}
		chapters[i].SubChapters = subs
	}
	return chapters, nil
}
