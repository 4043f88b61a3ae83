// Package client is a typed client for the examprep REST API.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/pavelanni/examprep/internal/importer"
	"github.com/pavelanni/examprep/internal/model"
	"github.com/pavelanni/examprep/internal/question"
)

// APIError is a non-2xx response. Message is the server's error text.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: %s", http.StatusText(e.Status))
	}
	return fmt.Sprintf("api: %d: %s", e.Status, e.Message)
}

// NotFound reports whether err is a 404 from the API.
func NotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

type errorBody struct {
	Error string `json:"error"`
}

// ImportResult is the outcome of an import request.
type ImportResult struct {
	Message   string `json:"message"`
	Count     int    `json:"count"`
	Duplicate bool   `json:"duplicate"`
}

// Client talks to one examprep server.
type Client struct {
	r *resty.Client
}

// New creates a client for the server at baseURL. lang selects the language
// of server messages; empty keeps the server default.
func New(baseURL, lang string) *Client {
	r := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetTimeout(60 * time.Second).
		SetError(&errorBody{})
	if lang != "" {
		r.SetQueryParam("lang", lang)
	}
	return &Client{r: r}
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	if !resp.IsError() {
		return nil
	}
	apiErr := &APIError{Status: resp.StatusCode()}
	if body, ok := resp.Error().(*errorBody); ok && body != nil {
		apiErr.Message = body.Error
	}
	return apiErr
}

func (c *Client) req(ctx context.Context) *resty.Request {
	return c.r.R().SetContext(ctx)
}

// Catalog returns the chapter tree, optionally for one grade.
func (c *Client) Catalog(ctx context.Context, grade int) ([]model.Chapter, error) {
	var out []model.Chapter
	req := c.req(ctx).SetResult(&out)
	if grade > 0 {
		req.SetQueryParam("grade", strconv.Itoa(grade))
	}
	return out, check(req.Get("/api/catalog"))
}

// ListChapters returns chapters, optionally for one grade.
func (c *Client) ListChapters(ctx context.Context, grade int) ([]model.Chapter, error) {
	var out []model.Chapter
	req := c.req(ctx).SetResult(&out)
	if grade > 0 {
		req.SetQueryParam("grade", strconv.Itoa(grade))
	}
	return out, check(req.Get("/api/chapters"))
}

// CreateChapter creates a chapter and returns it.
func (c *Client) CreateChapter(ctx context.Context, ch model.Chapter) (model.Chapter, error) {
	var out model.Chapter
	return out, check(c.req(ctx).SetBody(ch).SetResult(&out).Post("/api/chapters"))
}

// CreateSubChapter creates a sub-chapter under chapterID.
func (c *Client) CreateSubChapter(ctx context.Context, chapterID int64, sc model.SubChapter) (model.SubChapter, error) {
	var out model.SubChapter
	return out, check(c.req(ctx).
		SetBody(sc).
		SetResult(&out).
		SetPathParam("id", strconv.FormatInt(chapterID, 10)).
		Post("/api/chapters/{id}/subchapters"))
}

// ListExamSets returns exam sets matching f.
func (c *Client) ListExamSets(ctx context.Context, f model.ExamSetFilter) ([]model.ExamSet, error) {
	var out []model.ExamSet
	req := c.req(ctx).SetResult(&out)
	if f.Grade > 0 {
		req.SetQueryParam("grade", strconv.Itoa(f.Grade))
	}
	if f.Type != "" {
		req.SetQueryParam("type", string(f.Type))
	}
	return out, check(req.Get("/api/examsets"))
}

// CreateExamSet creates an exam set and returns it.
func (c *Client) CreateExamSet(ctx context.Context, e model.ExamSet) (model.ExamSet, error) {
	var out model.ExamSet
	return out, check(c.req(ctx).SetBody(e).SetResult(&out).Post("/api/examsets"))
}

// GetExamSet returns an exam set with its questions.
func (c *Client) GetExamSet(ctx context.Context, id int64) (model.ExamSetDetail, error) {
	var out model.ExamSetDetail
	return out, check(c.req(ctx).
		SetResult(&out).
		SetPathParam("id", strconv.FormatInt(id, 10)).
		Get("/api/examsets/{id}"))
}

// AssignExamSet links a CHAPTER exam set to a sub-chapter.
func (c *Client) AssignExamSet(ctx context.Context, subChapterID, examSetID int64) (model.ExamSet, error) {
	var out model.ExamSet
	return out, check(c.req(ctx).
		SetResult(&out).
		SetPathParams(map[string]string{
			"id":        strconv.FormatInt(subChapterID, 10),
			"examSetID": strconv.FormatInt(examSetID, 10),
		}).
		Post("/api/subchapters/{id}/examsets/{examSetID}"))
}

// GetQuestion returns the node at path inside an exam set.
func (c *Client) GetQuestion(ctx context.Context, examSetID int64, path question.Path) (question.Question, error) {
	var out question.Question
	return out, check(c.req(ctx).
		SetResult(&out).
		SetPathParams(map[string]string{
			"id":   strconv.FormatInt(examSetID, 10),
			"path": path.String(),
		}).
		Get("/api/examsets/{id}/questions/{path}"))
}

// ImportQuestions uploads an import file to an exam set. With images the
// request is sent as multipart, otherwise as plain JSON.
func (c *Client) ImportQuestions(ctx context.Context, examSetID int64, data []byte, images []importer.Attachment) (ImportResult, error) {
	var out ImportResult
	req := c.req(ctx).
		SetResult(&out).
		SetPathParam("id", strconv.FormatInt(examSetID, 10))
	if len(images) == 0 {
		req.SetHeader("Content-Type", "application/json").SetBody(data)
	} else {
		req.SetMultipartField("questions", "questions.json", "application/json", bytes.NewReader(data))
		for _, img := range images {
			req.SetFileReader("image_"+img.ClientID, img.Filename, bytes.NewReader(img.Data))
		}
	}
	return out, check(req.Post("/api/examsets/{id}/import"))
}

// PreviewImport renders an import file as HTML without storing it.
func (c *Client) PreviewImport(ctx context.Context, data []byte) (string, error) {
	resp, err := c.req(ctx).
		SetHeader("Accept", "text/html").
		SetHeader("Content-Type", "application/json").
		SetBody(data).
		Post("/api/import/preview")
	if err := check(resp, err); err != nil {
		return "", err
	}
	return resp.String(), nil
}
