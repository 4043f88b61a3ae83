package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/examprep/internal/exam"
	appI18n "github.com/pavelanni/examprep/internal/i18n"
)

type attemptResponse struct {
	exam.View
	Warning string `json:"warning,omitempty"`
}

type answerRequest struct {
	Option string `json:"option" validate:"required"`
}

func (h *Handler) handleListExams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.exams.Exams())
}

// handleCreateAttempt opens an attempt. Attempts live only in memory, so the
// response warns that reloading the server loses them.
func (h *Handler) handleCreateAttempt(w http.ResponseWriter, r *http.Request) {
	a, err := h.exams.Create(chi.URLParam(r, "examID"))
	if err != nil {
		h.fail(w, r, "exam", err)
		return
	}
	writeJSON(w, http.StatusCreated, attemptResponse{
		View:    a.Snapshot(),
		Warning: appI18n.T(r.Context(), "ReloadWarning"),
	})
}

func (h *Handler) handleGetAttempt(w http.ResponseWriter, r *http.Request) {
	a, err := h.exams.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "attempt", err)
		return
	}
	writeJSON(w, http.StatusOK, a.Snapshot())
}

func (h *Handler) handleStartAttempt(w http.ResponseWriter, r *http.Request) {
	a, err := h.exams.Start(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "attempt", err)
		return
	}
	writeJSON(w, http.StatusOK, a.Snapshot())
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	a, err := h.exams.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "attempt", err)
		return
	}
	qid, err := strconv.Atoi(chi.URLParam(r, "questionID"))
	if err != nil {
		h.fail(w, r, "question", fmt.Errorf("%w: question id %q", errInput, chi.URLParam(r, "questionID")))
		return
	}
	var req answerRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, "attempt", err)
		return
	}
	if err := a.Answer(qid, req.Option); err != nil {
		h.fail(w, r, "attempt", err)
		return
	}
	writeJSON(w, http.StatusOK, a.Snapshot())
}

// handleGoto moves the cursor. index is a zero-based position, "next" or "prev".
func (h *Handler) handleGoto(w http.ResponseWriter, r *http.Request) {
	a, err := h.exams.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "attempt", err)
		return
	}
	switch idx := chi.URLParam(r, "index"); idx {
	case "next":
		err = a.Next()
	case "prev":
		err = a.Prev()
	default:
		i, convErr := strconv.Atoi(idx)
		if convErr != nil {
			err = fmt.Errorf("%w: index %q", errInput, idx)
			break
		}
		err = a.Goto(i)
	}
	if err != nil {
		h.fail(w, r, "attempt", err)
		return
	}
	writeJSON(w, http.StatusOK, a.Snapshot())
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	a, err := h.exams.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "attempt", err)
		return
	}
	if _, err := a.Submit(); err != nil {
		h.fail(w, r, "attempt", err)
		return
	}
	writeJSON(w, http.StatusOK, a.Snapshot())
}
