package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/examprep/internal/question"
)

//go:embed templates/*.txt
var FS embed.FS

var (
	studentAnswerRegex      = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

const maxAttemptRunes = 4000

// Language selects the tutor prompt language.
type Language string

const (
	LangVietnamese Language = "vi"
	LangEnglish    Language = "en"
)

var validLanguages = map[Language]bool{
	LangVietnamese: true,
	LangEnglish:    true,
}

var (
	loadOnce      sync.Once
	loadErr       error
	hintTemplates map[Language]*template.Template
	explTemplates map[Language]*template.Template
)

// IsValidLanguage checks if a prompt language is supported.
func IsValidLanguage(l string) bool {
	return validLanguages[Language(l)]
}

var funcs = template.FuncMap{"label": question.OptionLabel}

// HintData holds template data for hint prompts.
type HintData struct {
	ExamType string
	Topic    string
	Question string
	Options  []string
	Attempt  string
}

// ExplainData holds template data for explanation prompts.
type ExplainData struct {
	Question  string
	Options   []string
	Correct   string
	Reference string
	Attempt   string
}

// Load parses the prompt templates from fsys, usually FS.
// It uses sync.Once to ensure templates are loaded only once.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		hintTemplates = make(map[Language]*template.Template)
		explTemplates = make(map[Language]*template.Template)
		for l := range validLanguages {
			h, err := parse(fsys, "templates/hint_"+string(l)+".txt")
			if err != nil {
				loadErr = err
				return
			}
			hintTemplates[l] = h
			e, err := parse(fsys, "templates/explain_"+string(l)+".txt")
			if err != nil {
				loadErr = err
				return
			}
			explTemplates[l] = e
		}
	})
	return loadErr
}

func parse(fsys fs.FS, name string) (*template.Template, error) {
	content, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, errors.New("failed to read prompt file " + name + ": " + err.Error())
	}
	t, err := template.New(name).Funcs(funcs).Parse(string(content))
	if err != nil {
		return nil, errors.New("failed to parse prompt template " + name + ": " + err.Error())
	}
	return t, nil
}

func lookup(set map[Language]*template.Template, lang Language) (*template.Template, error) {
	if set == nil {
		return nil, errors.New("templates not initialized: call Load first")
	}
	t, ok := set[lang]
	if !ok {
		if loadErr != nil {
			return nil, fmt.Errorf("templates load failed: %w", loadErr)
		}
		return nil, errors.New("invalid prompt language: " + string(lang))
	}
	return t, nil
}

// BuildHintPrompt renders the hint prompt for a question and the student's
// work so far.
func BuildHintPrompt(lang Language, data HintData) (string, error) {
	t, err := lookup(hintTemplates, lang)
	if err != nil {
		return "", err
	}
	data.Attempt = sanitizeAnswer(data.Attempt)
	if data.ExamType == "" {
		data.ExamType = "THPT"
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// BuildExplainPrompt renders the step-by-step explanation prompt.
func BuildExplainPrompt(lang Language, data ExplainData) (string, error) {
	t, err := lookup(explTemplates, lang)
	if err != nil {
		return "", err
	}
	data.Attempt = sanitizeAnswer(data.Attempt)
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func sanitizeAnswer(answer string) string {
	answer = studentAnswerRegex.ReplaceAllString(answer, "")
	answer = systemInstructionsRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}

	if utf8.RuneCountInString(answer) > maxAttemptRunes {
		runes := []rune(answer)
		answer = string(runes[:maxAttemptRunes]) + "\n\n[Answer truncated due to length]"
	}

	return answer
}
