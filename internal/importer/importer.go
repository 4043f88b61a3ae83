// Package importer parses bulk question-import files, matches attached images
// to the questions that declare them and turns the result into question trees.
package importer

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/examprep/internal/question"
)

const (
	// MaxFileSize is the largest accepted image, in bytes.
	MaxFileSize = 10 << 20
	// MaxFiles is the largest number of images per import.
	MaxFiles = 10
)

var (
	ErrInvalidJSON   = errors.New("invalid import JSON")
	ErrEmpty         = errors.New("import contains no questions")
	ErrTooManyFiles  = errors.New("too many image files")
	ErrFileTooLarge  = errors.New("image file too large")
	ErrUnknownImage  = errors.New("image does not belong to any question")
	ErrImageNotNamed = errors.New("question does not declare an image filename")
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// FileError names the attachment that broke a limit.
type FileError struct {
	Name string
	Err  error
}

func (e *FileError) Error() string { return fmt.Sprintf("%v: %s", e.Err, e.Name) }

func (e *FileError) Unwrap() error { return e.Err }

// ValidationError reports the first problem found in one import element.
type ValidationError struct {
	Index int
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("question %d: missing or invalid %q", e.Index, e.Field)
	}
	return fmt.Sprintf("question %d: %v", e.Index, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Item is one element of an import file. The question type may be given as
// questionType or question_type.
type Item struct {
	ID            question.ID     `json:"id" validate:"required"`
	Section       string          `json:"section"`
	Content       string          `json:"content" validate:"required"`
	Image         string          `json:"image,omitempty"`
	Images        []string        `json:"images,omitempty"`
	QuestionType  question.Kind   `json:"questionType" validate:"required"`
	Options       []string        `json:"options,omitempty"`
	CorrectAnswer question.Answer `json:"correctAnswer"`
	Explanation   string          `json:"explanation"`
	SubQuestions  []Item          `json:"subQuestions,omitempty"`
}

// UnmarshalJSON prefers question_type over questionType.
func (it *Item) UnmarshalJSON(data []byte) error {
	type plain Item
	aux := struct {
		*plain
		LegacyType question.Kind `json:"question_type"`
	}{plain: (*plain)(it)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.LegacyType != "" {
		it.QuestionType = aux.LegacyType
	}
	if it.CorrectAnswer == nil {
		it.CorrectAnswer = question.Answer{}
	}
	return nil
}

// Question converts the item and its children into a question tree.
func (it Item) Question() question.Question {
	q := question.Question{
		ID:            it.ID,
		Section:       it.Section,
		Content:       it.Content,
		Images:        it.images(),
		Type:          it.QuestionType,
		Options:       it.Options,
		CorrectAnswer: it.CorrectAnswer,
		Explanation:   it.Explanation,
	}
	for _, sub := range it.SubQuestions {
		q.SubQuestions = append(q.SubQuestions, sub.Question())
	}
	return q
}

// images merges the declared image filename into the images array. A name
// already listed keeps its slot; otherwise it takes the first empty slot, or
// is appended.
func (it Item) images() []string {
	out := append([]string{}, it.Images...)
	if it.Image == "" {
		return out
	}
	base := filepath.Base(it.Image)
	for _, img := range out {
		if filepath.Base(img) == base {
			return out
		}
	}
	for i, img := range out {
		if img == "" {
			out[i] = it.Image
			return out
		}
	}
	return append(out, it.Image)
}

// Parse decodes and validates an import file. Only id, content and the
// question type are required; the nesting rule is checked for every node.
func Parse(data []byte) ([]Item, error) {
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if len(items) == 0 {
		return nil, ErrEmpty
	}
	for i := range items {
		if err := validate.Struct(items[i]); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) && len(verrs) > 0 {
				return nil, &ValidationError{Index: i, Field: verrs[0].Field(), Err: err}
			}
			return nil, &ValidationError{Index: i, Err: err}
		}
		q := items[i].Question()
		if err := q.Validate(); err != nil {
			return nil, &ValidationError{Index: i, Err: err}
		}
	}
	return items, nil
}

// Questions converts parsed items into question trees.
func Questions(items []Item) []question.Question {
	out := make([]question.Question, len(items))
	for i, it := range items {
		out[i] = it.Question()
	}
	return out
}

// Attachment is an image selected for the question with the given client id.
type Attachment struct {
	ClientID string
	Filename string
	Data     []byte
}

// CheckLimits enforces the per-import file count and per-file size limits.
func CheckLimits(files []Attachment) error {
	if len(files) > MaxFiles {
		return fmt.Errorf("%w: %d > %d", ErrTooManyFiles, len(files), MaxFiles)
	}
	for _, f := range files {
		if len(f.Data) > MaxFileSize {
			return &FileError{Name: f.Filename, Err: ErrFileTooLarge}
		}
	}
	return nil
}

func findItem(items []Item, id string) *Item {
	for i := range items {
		if string(items[i].ID) == id {
			return &items[i]
		}
		if it := findItem(items[i].SubQuestions, id); it != nil {
			return it
		}
	}
	return nil
}

// MatchAttachments renames each attachment to the image filename declared by
// the question with the same client id.
func MatchAttachments(items []Item, files []Attachment) ([]Attachment, error) {
	if err := CheckLimits(files); err != nil {
		return nil, err
	}
	out := make([]Attachment, len(files))
	for i, f := range files {
		it := findItem(items, f.ClientID)
		if it == nil {
			return nil, fmt.Errorf("%w: %s (question %q)", ErrUnknownImage, f.Filename, f.ClientID)
		}
		name := it.Image
		if name == "" {
			return nil, fmt.Errorf("%w: question %q", ErrImageNotNamed, f.ClientID)
		}
		f.Filename = filepath.Base(name)
		out[i] = f
	}
	return out, nil
}

// Saver stores an image and returns the URL it is served from.
type Saver interface {
	Save(name string, data []byte) (string, error)
}

// Build converts items into question trees, saving every attachment and
// replacing references to its filename with the saved URL. Without
// attachments it is the same as Questions.
func Build(items []Item, files []Attachment, saver Saver) ([]question.Question, error) {
	matched, err := MatchAttachments(items, files)
	if err != nil {
		return nil, err
	}
	qs := Questions(items)
	if len(matched) == 0 {
		return qs, nil
	}

	urls := make(map[string]string, len(matched))
	for _, f := range matched {
		url, err := saver.Save(f.Filename, f.Data)
		if err != nil {
			return nil, fmt.Errorf("save image %s: %w", f.Filename, err)
		}
		urls[f.Filename] = url
	}
	question.Walk(qs, func(_ question.Path, q *question.Question) {
		for i, img := range q.Images {
			if url, ok := urls[filepath.Base(img)]; ok {
				q.Images[i] = url
			}
		}
	})
	return qs, nil
}
