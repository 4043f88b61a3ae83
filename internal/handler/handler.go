package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/examprep/internal/cache"
	"github.com/pavelanni/examprep/internal/exam"
	appI18n "github.com/pavelanni/examprep/internal/i18n"
	"github.com/pavelanni/examprep/internal/importer"
	"github.com/pavelanni/examprep/internal/llm"
	"github.com/pavelanni/examprep/internal/model"
	"github.com/pavelanni/examprep/internal/question"
	"github.com/pavelanni/examprep/internal/store"
	"github.com/pavelanni/examprep/internal/upload"
)

// maxJSONBody caps plain JSON request bodies.
const maxJSONBody = 4 << 20

// errInput marks malformed ids, query parameters and bodies.
var errInput = errors.New("invalid input")

// Tutor gives practice hints. *llm.Client implements it.
type Tutor interface {
	Hint(ctx context.Context, req llm.HintRequest) (*llm.Hint, error)
	Explain(ctx context.Context, q question.Question, attempt string) (string, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	exams    *exam.Manager
	tutor    Tutor
	cache    cache.Catalog
	uploads  *upload.Dir
	validate *validator.Validate
	config   model.Config
}

// New creates a new Handler. tutor may be nil when no LLM is configured and
// c may be nil to disable catalog caching.
func New(s *store.Store, m *exam.Manager, tutor Tutor, c cache.Catalog, u *upload.Dir, cfg model.Config) *Handler {
	if c == nil {
		c = cache.Noop{}
	}
	return &Handler{
		store:    s,
		exams:    m,
		tutor:    tutor,
		cache:    c,
		uploads:  u,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		config:   cfg,
	}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/catalog", h.handleCatalog)

		r.Get("/chapters", h.handleListChapters)
		r.Post("/chapters", h.handleCreateChapter)
		r.Get("/chapters/{id}", h.handleGetChapter)
		r.Put("/chapters/{id}", h.handleUpdateChapter)
		r.Delete("/chapters/{id}", h.handleDeleteChapter)
		r.Post("/chapters/{id}/subchapters", h.handleCreateSubChapter)

		r.Put("/subchapters/{id}", h.handleUpdateSubChapter)
		r.Delete("/subchapters/{id}", h.handleDeleteSubChapter)
		r.Post("/subchapters/{id}/examsets/{examSetID}", h.handleAssignExamSet)

		r.Get("/examsets", h.handleListExamSets)
		r.Post("/examsets", h.handleCreateExamSet)
		r.Get("/examsets/unassigned", h.handleListUnassigned)
		r.Get("/examsets/{id}", h.handleGetExamSet)
		r.Put("/examsets/{id}", h.handleUpdateExamSet)
		r.Delete("/examsets/{id}", h.handleDeleteExamSet)

		r.Get("/examsets/{id}/questions", h.handleListQuestions)
		r.Post("/examsets/{id}/questions", h.handleAddQuestions)
		r.Put("/examsets/{id}/questions", h.handleReplaceQuestions)
		r.Get("/examsets/{id}/questions/{path}", h.handleGetQuestion)
		r.Put("/examsets/{id}/questions/{path}", h.handleQuickEdit)
		r.Delete("/examsets/{id}/questions/{path}", h.handleDeleteQuestion)
		r.Get("/examsets/{id}/questions/{path}/json", h.handleGetQuestionJSON)
		r.Put("/examsets/{id}/questions/{path}/json", h.handleFullEdit)

		r.Post("/import/preview", h.handleImportPreview)
		r.Post("/examsets/{id}/import", h.handleImport)

		r.Get("/exams", h.handleListExams)
		r.Post("/exams/{examID}/attempts", h.handleCreateAttempt)
		r.Get("/attempts/{id}", h.handleGetAttempt)
		r.Post("/attempts/{id}/start", h.handleStartAttempt)
		r.Put("/attempts/{id}/answers/{questionID}", h.handleAnswer)
		r.Post("/attempts/{id}/goto/{index}", h.handleGoto)
		r.Post("/attempts/{id}/submit", h.handleSubmit)

		r.Get("/practice", h.handlePracticeDashboard)
		r.Put("/practice/{kcID}", h.handleRecordPractice)
		r.Post("/practice/hint", h.handleHint)
		r.Post("/practice/explain", h.handleExplain)
	})

	if h.uploads != nil {
		r.Handle(h.uploads.URLPrefix+"/*", h.uploads.Handler(h.config.BasePath+h.uploads.URLPrefix))
	}
}

// BasePathMiddleware stores the configured base path in the request context.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func (h *Handler) badRequest(w http.ResponseWriter, r *http.Request, reason string) {
	writeError(w, http.StatusBadRequest, appI18n.Td(r.Context(), "InvalidRequest", map[string]any{"Reason": reason}))
}

// fail maps an error to a response. Validation problems and missing entities
// are reported as such; anything else is logged and hidden behind a generic
// localized message.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, entity string, err error) {
	ctx := r.Context()
	var (
		verrs validator.ValidationErrors
		ierr  *importer.ValidationError
		ferr  *importer.FileError
	)
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, question.ErrPathNotFound),
		errors.Is(err, exam.ErrExamNotFound), errors.Is(err, exam.ErrAttemptNotFound):
		writeError(w, http.StatusNotFound, appI18n.Td(ctx, "NotFound", map[string]any{"Entity": entity}))
	case errors.Is(err, store.ErrNotAssignable):
		writeError(w, http.StatusBadRequest, appI18n.T(ctx, "NotAssignable"))
	case errors.As(err, &ferr) && errors.Is(err, importer.ErrFileTooLarge):
		writeError(w, http.StatusBadRequest, appI18n.Td(ctx, "ImportFileTooLarge",
			map[string]any{"Name": ferr.Name, "MaxMB": importer.MaxFileSize >> 20}))
	case errors.As(err, &verrs), errors.As(err, &ierr), errors.Is(err, errInput),
		errors.Is(err, question.ErrUnknownKind), errors.Is(err, question.ErrNesting),
		errors.Is(err, question.ErrMultiAnswer),
		errors.Is(err, importer.ErrInvalidJSON), errors.Is(err, importer.ErrEmpty),
		errors.Is(err, importer.ErrUnknownImage), errors.Is(err, importer.ErrImageNotNamed),
		errors.Is(err, exam.ErrInvalidOption), errors.Is(err, exam.ErrUnknownQuestion),
		errors.Is(err, exam.ErrOutOfRange), errors.Is(err, upload.ErrBadName):
		h.badRequest(w, r, err.Error())
	case errors.Is(err, importer.ErrTooManyFiles):
		writeError(w, http.StatusBadRequest, appI18n.Td(ctx, "ImportTooManyFiles", map[string]any{"Max": importer.MaxFiles}))
	case errors.Is(err, exam.ErrNotStarted):
		writeError(w, http.StatusConflict, appI18n.T(ctx, "AttemptNotStarted"))
	case errors.Is(err, exam.ErrAlreadyStarted):
		writeError(w, http.StatusConflict, appI18n.T(ctx, "AttemptStarted"))
	case errors.Is(err, exam.ErrFinished):
		writeError(w, http.StatusConflict, appI18n.T(ctx, "AttemptFinished"))
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, appI18n.T(ctx, "GenericFailure"))
	}
}

func urlID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s %q", errInput, name, chi.URLParam(r, name))
	}
	return id, nil
}

// decode reads a JSON body into v and runs struct validation on it.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: decode body: %v", errInput, err)
	}
	return h.validate.Struct(v)
}

// invalidate drops cached catalog trees after a mutation.
func (h *Handler) invalidate(ctx context.Context) {
	if err := h.cache.Invalidate(ctx); err != nil {
		slog.Warn("invalidate catalog cache", "error", err)
	}
}

func queryInt(r *http.Request, name string) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", errInput, name, s)
	}
	return n, nil
}
