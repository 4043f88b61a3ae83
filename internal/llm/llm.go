// Package llm is the practice tutor: it asks an OpenAI-compatible model for
// hints and worked explanations.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/examprep/internal/llm/prompts"
	"github.com/pavelanni/examprep/internal/question"
)

// ErrEmptyHint is returned when the model answers without a hint.
var ErrEmptyHint = errors.New("LLM returned an empty hint")

// Hint is the tutor's nudge for a practice question.
type Hint struct {
	Hint          string `json:"hint"`
	Encouragement string `json:"encouragement"`
}

// HintRequest describes the question the student is stuck on.
type HintRequest struct {
	ExamType string            `json:"examType"`
	Topic    string            `json:"topic"`
	Question question.Question `json:"question"`
	Attempt  string            `json:"attempt"`
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api   *openai.Client
	model string
	lang  prompts.Language
}

// New creates a new LLM client. Unknown languages fall back to Vietnamese.
func New(baseURL, apiKey, modelName, lang string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	l := prompts.LangVietnamese
	if prompts.IsValidLanguage(lang) {
		l = prompts.Language(lang)
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
		lang:  l,
	}
}

// Ping checks that the endpoint answers and serves the configured model.
func (c *Client) Ping(ctx context.Context) error {
	list, err := c.api.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("list LLM models: %w", err)
	}
	for _, m := range list.Models {
		if m.ID == c.model {
			return nil
		}
	}
	slog.Warn("configured LLM model not listed by endpoint", "model", c.model, "available", len(list.Models))
	return nil
}

// Hint asks the tutor for a hint that does not reveal the answer.
func (c *Client) Hint(ctx context.Context, req HintRequest) (*Hint, error) {
	prompt, err := prompts.BuildHintPrompt(c.lang, prompts.HintData{
		ExamType: req.ExamType,
		Topic:    req.Topic,
		Question: plainContent(req.Question),
		Options:  req.Question.Options,
		Attempt:  req.Attempt,
	})
	if err != nil {
		return nil, fmt.Errorf("build hint prompt: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.4,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM hint response", "raw", raw)

	h, err := parseHint(raw)
	if err != nil {
		return nil, err
	}
	if leaksAnswer(h.Hint, req.Question) {
		slog.Warn("LLM hint revealed the answer, dropping it", "question_id", req.Question.ID)
		return nil, ErrEmptyHint
	}
	return h, nil
}

// Explain asks for a worked explanation of a question the student finished.
func (c *Client) Explain(ctx context.Context, q question.Question, attempt string) (string, error) {
	prompt, err := prompts.BuildExplainPrompt(c.lang, prompts.ExplainData{
		Question:  plainContent(q),
		Options:   q.Options,
		Correct:   strings.Join(q.CorrectAnswer, ", "),
		Reference: q.Explanation,
		Attempt:   attempt,
	})
	if err != nil {
		return "", fmt.Errorf("build explain prompt: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("LLM explain call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices for explanation")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func parseHint(raw string) (*Hint, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var h Hint
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		return nil, fmt.Errorf("parse LLM response: %w (raw: %s)", err, raw)
	}
	h.Hint = strings.TrimSpace(h.Hint)
	if h.Hint == "" {
		return nil, ErrEmptyHint
	}
	return &h, nil
}

// plainContent replaces image placeholders with a marker the model can read.
func plainContent(q question.Question) string {
	return question.RenderContent(q.Content, q.Images, func(i int, _ string) string {
		return fmt.Sprintf("[image %d]", i+1)
	})
}

// leaksAnswer reports whether a hint spells out a non-trivial correct answer
// of a short-answer question verbatim.
func leaksAnswer(hint string, q question.Question) bool {
	if q.Type != question.KindShortAnswer {
		return false
	}
	h := strings.ToLower(hint)
	for _, a := range q.CorrectAnswer {
		a = strings.ToLower(strings.TrimSpace(a))
		if len([]rune(a)) >= 3 && strings.Contains(h, a) {
			return true
		}
	}
	return false
}
