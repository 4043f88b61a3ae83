// Package question holds the question tree shared by the catalog, the import
// workflow and the editor: kinds, answer normalization, path addressing and
// image placeholder binding.
package question

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Kind is the closed set of question types.
type Kind string

const (
	KindSingleChoice   Kind = "single_choice"
	KindMultipleChoice Kind = "multiple_choice"
	KindTrueFalse      Kind = "true_false"
	KindShortAnswer    Kind = "short_answer"
	KindGroup          Kind = "group_question"
)

// Kinds lists every valid kind in display order.
var Kinds = []Kind{KindSingleChoice, KindMultipleChoice, KindTrueFalse, KindShortAnswer, KindGroup}

var (
	ErrUnknownKind = errors.New("unknown question type")
	ErrNesting     = errors.New("only group_question may have sub-questions")
	ErrMultiAnswer = errors.New("question type allows only one correct answer")
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindSingleChoice, KindMultipleChoice, KindTrueFalse, KindShortAnswer, KindGroup:
		return true
	}
	return false
}

// IsGroup reports whether questions of this kind carry sub-questions.
func (k Kind) IsGroup() bool {
	return k == KindGroup
}

// AcceptsMultiple reports whether more than one answer may be correct.
func (k Kind) AcceptsMultiple() bool {
	switch k {
	case KindMultipleChoice:
		return true
	case KindSingleChoice, KindTrueFalse, KindShortAnswer, KindGroup:
		return false
	}
	return false
}

// HasOptions reports whether the kind is answered by picking options.
func (k Kind) HasOptions() bool {
	switch k {
	case KindSingleChoice, KindMultipleChoice, KindTrueFalse:
		return true
	case KindShortAnswer, KindGroup:
		return false
	}
	return false
}

// Answer is a normalized correct answer. JSON input may be a bare string or an
// array; output is always an array.
type Answer []string

// NormalizeAnswer converts a decoded JSON value into an Answer.
func NormalizeAnswer(v any) Answer {
	switch t := v.(type) {
	case nil:
		return Answer{}
	case string:
		if t == "" {
			return Answer{}
		}
		return Answer{t}
	case []string:
		return append(Answer{}, t...)
	case []any:
		out := make(Answer, 0, len(t))
		for _, e := range t {
			switch ev := e.(type) {
			case string:
				out = append(out, ev)
			case float64:
				out = append(out, strconv.FormatFloat(ev, 'f', -1, 64))
			case bool:
				out = append(out, strconv.FormatBool(ev))
			}
		}
		return out
	case bool:
		return Answer{strconv.FormatBool(t)}
	case float64:
		return Answer{strconv.FormatFloat(t, 'f', -1, 64)}
	}
	return Answer{}
}

// UnmarshalJSON accepts a string, an array, or null.
func (a *Answer) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("correctAnswer: %w", err)
	}
	*a = NormalizeAnswer(v)
	return nil
}

// MarshalJSON always writes an array, never null.
func (a Answer) MarshalJSON() ([]byte, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(a))
}

// Contains reports whether s is one of the accepted answers.
func (a Answer) Contains(s string) bool {
	for _, v := range a {
		if v == s {
			return true
		}
	}
	return false
}

// ID is a client-provided question identifier. Import files use both numbers
// and strings, so both are accepted and kept as text.
type ID string

// UnmarshalJSON accepts a JSON string or number.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Question is one node of a question tree. Only group questions have children.
type Question struct {
	ID            ID         `json:"id"`
	Section       string     `json:"section"`
	Content       string     `json:"content"`
	Images        []string   `json:"images"`
	Type          Kind       `json:"questionType"`
	Options       []string   `json:"options,omitempty"`
	CorrectAnswer Answer     `json:"correctAnswer"`
	Explanation   string     `json:"explanation"`
	SubQuestions  []Question `json:"subQuestions,omitempty"`
}

// UnmarshalJSON reads the sub-question type from question_type first and falls
// back to questionType; older payloads use the snake_case name.
func (q *Question) UnmarshalJSON(data []byte) error {
	type plain Question
	aux := struct {
		*plain
		LegacyType Kind `json:"question_type"`
	}{plain: (*plain)(q)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.LegacyType != "" {
		q.Type = aux.LegacyType
	}
	if q.CorrectAnswer == nil {
		q.CorrectAnswer = Answer{}
	}
	return nil
}

// Validate checks the kind of every node, the nesting rule and that
// single-pick kinds name at most one correct answer.
func (q *Question) Validate() error {
	return validateAt(q, nil)
}

func validateAt(q *Question, at Path) error {
	if !q.Type.Valid() {
		return fmt.Errorf("question %s (%q): %w %q", at.orRoot(), q.ID, ErrUnknownKind, q.Type)
	}
	if !q.Type.IsGroup() && len(q.SubQuestions) > 0 {
		return fmt.Errorf("question %s (%q): %w", at.orRoot(), q.ID, ErrNesting)
	}
	if q.Type.HasOptions() && !q.Type.AcceptsMultiple() && len(q.CorrectAnswer) > 1 {
		return fmt.Errorf("question %s (%q): %w", at.orRoot(), q.ID, ErrMultiAnswer)
	}
	for i := range q.SubQuestions {
		if err := validateAt(&q.SubQuestions[i], at.Child(i)); err != nil {
			return err
		}
	}
	return nil
}

// IsCorrectOption reports whether the option at idx is a correct choice. An
// answer may name the option text or its letter label (A, B, ...).
func (q *Question) IsCorrectOption(idx int) bool {
	if idx < 0 || idx >= len(q.Options) {
		return false
	}
	if q.CorrectAnswer.Contains(q.Options[idx]) {
		return true
	}
	return q.CorrectAnswer.Contains(OptionLabel(idx))
}

// OptionLabel returns the letter label for an option index.
func OptionLabel(idx int) string {
	if idx < 26 {
		return string(rune('A' + idx))
	}
	return strconv.Itoa(idx + 1)
}

// QuickEdit holds the flat fields the quick editor may change. Nil fields are
// left untouched. Sub-questions are never edited this way.
type QuickEdit struct {
	Content       *string  `json:"content,omitempty"`
	Options       []string `json:"options,omitempty"`
	CorrectAnswer *Answer  `json:"correctAnswer,omitempty"`
	Explanation   *string  `json:"explanation,omitempty"`
	Images        []string `json:"images,omitempty"`
}

// Apply writes the edit onto q.
func (e QuickEdit) Apply(q *Question) {
	if e.Content != nil {
		q.Content = *e.Content
	}
	if e.Options != nil {
		q.Options = e.Options
	}
	if e.CorrectAnswer != nil {
		q.CorrectAnswer = *e.CorrectAnswer
	}
	if e.Explanation != nil {
		q.Explanation = *e.Explanation
	}
	if e.Images != nil {
		q.Images = e.Images
	}
}

// MarshalNode renders a node and its subtree as indented JSON for full editing.
func MarshalNode(q Question) ([]byte, error) {
	return json.MarshalIndent(q, "", "  ")
}

// ParseNode rebuilds a node (and its subtree) from edited JSON text.
func ParseNode(data []byte) (Question, error) {
	var q Question
	if err := json.Unmarshal(data, &q); err != nil {
		return Question{}, fmt.Errorf("parse question JSON: %w", err)
	}
	normalizeTree(&q)
	if err := q.Validate(); err != nil {
		return Question{}, err
	}
	return q, nil
}

func normalizeTree(q *Question) {
	if q.CorrectAnswer == nil {
		q.CorrectAnswer = Answer{}
	}
	if q.Images == nil {
		q.Images = []string{}
	}
	for i := range q.SubQuestions {
		normalizeTree(&q.SubQuestions[i])
	}
}

// Count returns the number of nodes in the forest, groups included.
func Count(roots []Question) int {
	n := 0
	Walk(roots, func(Path, *Question) { n++ })
	return n
}

// Walk visits every node depth-first in document order.
func Walk(roots []Question, fn func(Path, *Question)) {
	for i := range roots {
		walk(&roots[i], Path{i}, fn)
	}
}

func walk(q *Question, at Path, fn func(Path, *Question)) {
	fn(at, q)
	for i := range q.SubQuestions {
		walk(&q.SubQuestions[i], at.Child(i), fn)
	}
}
