package model

import (
	"context"
	"time"

	"github.com/pavelanni/examprep/internal/question"
)

// ExamType classifies an exam set.
type ExamType string

const (
	// ExamTypeHSA is a high-school aptitude mock exam.
	ExamTypeHSA ExamType = "HSA"
	// ExamTypeTSA is a thinking-skills mock exam.
	ExamTypeTSA ExamType = "TSA"
	// ExamTypeChapter is a chapter exercise set linked into the chapter tree.
	ExamTypeChapter ExamType = "CHAPTER"
)

// ExamStatus is the publication state of an exam set.
type ExamStatus string

const (
	StatusAvailable ExamStatus = "available"
	StatusDraft     ExamStatus = "draft"
	StatusArchived  ExamStatus = "archived"
	StatusExpired   ExamStatus = "expired"
)

// Chapter is the top level of the catalog.
type Chapter struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name" validate:"required,max=255"`
	SortOrder   int          `json:"sortOrder"`
	Grade       *int         `json:"grade,omitempty" validate:"omitempty,min=1,max=12"`
	SubChapters []SubChapter `json:"subChapters,omitempty"`
}

// SubChapter groups exam sets inside a chapter.
type SubChapter struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name" validate:"required,max=255"`
	SortOrder int       `json:"sortOrder"`
	ChapterID int64     `json:"chapterId"`
	ExamSets  []ExamSet `json:"examSets,omitempty"`
}

// ExamSet is a named collection of questions with exam metadata.
type ExamSet struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name" validate:"required,max=255"`
	Type          ExamType   `json:"type" validate:"required,oneof=HSA TSA CHAPTER"`
	Year          int        `json:"year" validate:"omitempty,min=1900,max=2100"`
	Subject       string     `json:"subject"`
	Grade         int        `json:"grade" validate:"omitempty,min=1,max=12"`
	Duration      int        `json:"duration" validate:"min=0"`
	Difficulty    string     `json:"difficulty"`
	Status        ExamStatus `json:"status" validate:"omitempty,oneof=available draft archived expired"`
	Description   string     `json:"description"`
	Class         *string    `json:"class,omitempty"`
	Deadline      *time.Time `json:"deadline,omitempty"`
	SubChapterID  *int64     `json:"subChapterId,omitempty"`
	QuestionCount int        `json:"questionCount"`
}

// EffectiveStatus is the single place where expiry is derived: an available
// exam set whose deadline has passed reports expired.
func (e ExamSet) EffectiveStatus(now time.Time) ExamStatus {
	if e.Status == StatusAvailable && e.Deadline != nil && e.Deadline.Before(now) {
		return StatusExpired
	}
	return e.Status
}

// WithEffectiveStatus returns a copy with Status replaced by EffectiveStatus.
func (e ExamSet) WithEffectiveStatus(now time.Time) ExamSet {
	e.Status = e.EffectiveStatus(now)
	return e
}

// Assignable reports whether the exam set may be linked to a sub-chapter.
func (e ExamSet) Assignable() bool {
	return e.Type == ExamTypeChapter
}

// ExamSetFilter narrows exam set listings. Zero values mean no filtering.
type ExamSetFilter struct {
	Grade int
	Type  ExamType
}

// ExamSetDetail is an exam set together with its question tree.
type ExamSetDetail struct {
	ExamSet
	Questions []question.Question `json:"questions"`
}

// KCProgress is a learner's mastery record for one knowledge component.
type KCProgress struct {
	ID        int64     `json:"id"`
	KCID      string    `json:"kcId" validate:"required"`
	Name      string    `json:"name"`
	Tag       string    `json:"tag"`
	Mastery   float64   `json:"mastery"`
	Attempts  int       `json:"attempts"`
	Correct   int       `json:"correct"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Config holds runtime parameters set via CLI flags.
type Config struct {
	BasePath         string        // URL prefix for sub-path deployments (e.g. "/vi")
	UploadDir        string        // directory for uploaded question images
	UploadURL        string        // URL prefix under which UploadDir is served
	AttemptRetention time.Duration // how long finished exam attempts are kept
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}
