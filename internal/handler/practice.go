package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/pavelanni/examprep/internal/i18n"
	"github.com/pavelanni/examprep/internal/llm"
	"github.com/pavelanni/examprep/internal/practice"
	"github.com/pavelanni/examprep/internal/question"
)

type categoryLabel struct {
	Category practice.Category `json:"category"`
	Label    string            `json:"label"`
	Count    int               `json:"count"`
}

type dashboardResponse struct {
	practice.Dashboard
	Labels []categoryLabel `json:"labels"`
}

func categoryMessageID(c practice.Category) string {
	if c == practice.CategoryAll {
		return "CategoryAll"
	}
	return "Category" + strings.ToUpper(string(c[:1])) + string(c[1:])
}

func (h *Handler) handlePracticeDashboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	c := practice.Category(q.Get("category"))
	prev := practice.Category(q.Get("prevCategory"))
	if !c.Valid() || !prev.Valid() {
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "InvalidCategory"))
		return
	}
	page, err := queryInt(r, "page")
	if err != nil {
		h.fail(w, r, "practice", err)
		return
	}
	if !q.Has("prevCategory") {
		prev = c
	}

	records, err := h.store.ListKCProgress()
	if err != nil {
		h.fail(w, r, "practice", err)
		return
	}
	d := practice.BuildDashboard(records, practice.Query{Category: c, PrevCategory: prev, Page: page})

	labels := make([]categoryLabel, 0, len(practice.Categories)+1)
	labels = append(labels, categoryLabel{practice.CategoryAll, appI18n.T(r.Context(), "CategoryAll"), len(records)})
	for _, cat := range practice.Categories {
		labels = append(labels, categoryLabel{cat, appI18n.T(r.Context(), categoryMessageID(cat)), d.Counts[cat]})
	}
	writeJSON(w, http.StatusOK, dashboardResponse{Dashboard: d, Labels: labels})
}

type practiceResult struct {
	Name    string `json:"name" validate:"required"`
	Tag     string `json:"tag"`
	Correct bool   `json:"correct"`
}

func (h *Handler) handleRecordPractice(w http.ResponseWriter, r *http.Request) {
	kcID := chi.URLParam(r, "kcID")
	var req practiceResult
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, "practice", err)
		return
	}
	p, err := h.store.RecordPracticeResult(kcID, req.Name, req.Tag, req.Correct)
	if err != nil {
		h.fail(w, r, "practice", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// tutorRequest names the question either inline or by exam set and path.
type tutorRequest struct {
	ExamType  string             `json:"examType"`
	Topic     string             `json:"topic"`
	Question  *question.Question `json:"question"`
	ExamSetID int64              `json:"examSetId"`
	Path      string             `json:"path"`
	Attempt   string             `json:"attempt"`
}

func (h *Handler) resolveTutorQuestion(req tutorRequest) (question.Question, error) {
	if req.Question != nil {
		return *req.Question, nil
	}
	if req.ExamSetID == 0 || req.Path == "" {
		return question.Question{}, fmt.Errorf("%w: question or examSetId and path required", errInput)
	}
	p, err := question.ParsePath(req.Path)
	if err != nil {
		return question.Question{}, fmt.Errorf("%w: %v", errInput, err)
	}
	return h.store.GetQuestion(req.ExamSetID, p)
}

func (h *Handler) tutorUnavailable(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		slog.Error("tutor request failed", "path", r.URL.Path, "error", err)
	}
	writeError(w, http.StatusServiceUnavailable, appI18n.T(r.Context(), "TutorUnavailable"))
}

func (h *Handler) handleHint(w http.ResponseWriter, r *http.Request) {
	if h.tutor == nil {
		h.tutorUnavailable(w, r, nil)
		return
	}
	var req tutorRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, "question", err)
		return
	}
	q, err := h.resolveTutorQuestion(req)
	if err != nil {
		h.fail(w, r, "question", err)
		return
	}
	hint, err := h.tutor.Hint(r.Context(), llm.HintRequest{
		ExamType: req.ExamType,
		Topic:    req.Topic,
		Question: q,
		Attempt:  req.Attempt,
	})
	if err != nil {
		h.tutorUnavailable(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hint)
}

func (h *Handler) handleExplain(w http.ResponseWriter, r *http.Request) {
	if h.tutor == nil {
		h.tutorUnavailable(w, r, nil)
		return
	}
	var req tutorRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, "question", err)
		return
	}
	q, err := h.resolveTutorQuestion(req)
	if err != nil {
		h.fail(w, r, "question", err)
		return
	}
	text, err := h.tutor.Explain(r.Context(), q, req.Attempt)
	if err != nil {
		h.tutorUnavailable(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"explanation": text})
}
