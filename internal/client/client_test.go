package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/examprep/internal/exam"
	"github.com/pavelanni/examprep/internal/handler"
	appI18n "github.com/pavelanni/examprep/internal/i18n"
	"github.com/pavelanni/examprep/internal/importer"
	"github.com/pavelanni/examprep/internal/model"
	"github.com/pavelanni/examprep/internal/question"
	"github.com/pavelanni/examprep/internal/store"
	"github.com/pavelanni/examprep/internal/upload"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	require.NoError(t, appI18n.Init("en"))
	s, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	m := exam.NewManager(exam.MockExams)
	t.Cleanup(m.Close)
	u, err := upload.New(t.TempDir(), "/uploads")
	require.NoError(t, err)

	h := handler.New(s, m, nil, nil, u, model.Config{})
	r := chi.NewRouter()
	r.Use(appI18n.Middleware())
	r.Use(h.BasePathMiddleware)
	h.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

const questionsJSON = `[
  {"id":"1","content":"Xem hình image_placeholder","image":"fig.png","questionType":"single_choice",
   "options":["a","b"],"correctAnswer":"a"},
  {"id":"2","content":"Nhóm","questionType":"group_question","subQuestions":[
    {"id":"2a","content":"con","question_type":"short_answer","correctAnswer":"7"}]}
]`

func TestCatalogAndImportRoundTrip(t *testing.T) {
	srv := newServer(t)
	c := New(srv.URL, "")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	grade := 11
	ch, err := c.CreateChapter(ctx, model.Chapter{Name: "Lượng giác", Grade: &grade})
	require.NoError(t, err)
	sc, err := c.CreateSubChapter(ctx, ch.ID, model.SubChapter{Name: "Công thức"})
	require.NoError(t, err)
	es, err := c.CreateExamSet(ctx, model.ExamSet{Name: "Đề chương", Type: model.ExamTypeChapter, Grade: 11})
	require.NoError(t, err)
	assert.Equal(t, model.StatusDraft, es.Status)

	assigned, err := c.AssignExamSet(ctx, sc.ID, es.ID)
	require.NoError(t, err)
	require.NotNil(t, assigned.SubChapterID)
	assert.Equal(t, sc.ID, *assigned.SubChapterID)

	res, err := c.ImportQuestions(ctx, es.ID, []byte(questionsJSON), []importer.Attachment{
		{ClientID: "1", Filename: "IMG_0001.png", Data: []byte("img")},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count)
	assert.False(t, res.Duplicate)

	detail, err := c.GetExamSet(ctx, es.ID)
	require.NoError(t, err)
	require.Len(t, detail.Questions, 2)
	require.Len(t, detail.Questions[0].Images, 1)
	assert.True(t, strings.HasSuffix(detail.Questions[0].Images[0], "/fig.png"))

	sub, err := c.GetQuestion(ctx, es.ID, question.Path{1, 0})
	require.NoError(t, err)
	assert.Equal(t, question.Answer{"7"}, sub.CorrectAnswer)

	tree, err := c.Catalog(ctx, 11)
	require.NoError(t, err)
	require.Len(t, tree, 1)
	require.Len(t, tree[0].SubChapters, 1)
	assert.Len(t, tree[0].SubChapters[0].ExamSets, 1)

	sets, err := c.ListExamSets(ctx, model.ExamSetFilter{Type: model.ExamTypeChapter})
	require.NoError(t, err)
	assert.Len(t, sets, 1)
}

func TestImportWithoutImagesIsDeduplicated(t *testing.T) {
	srv := newServer(t)
	c := New(srv.URL, "en")
	ctx := context.Background()

	es, err := c.CreateExamSet(ctx, model.ExamSet{Name: "HSA", Type: model.ExamTypeHSA})
	require.NoError(t, err)
	data := []byte(`[{"id":"1","content":"2+2","questionType":"short_answer","correctAnswer":"4"}]`)

	first, err := c.ImportQuestions(ctx, es.ID, data, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Count)

	second, err := c.ImportQuestions(ctx, es.ID, data, nil)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.NotEmpty(t, second.Message)
}

func TestErrorsCarryServerMessage(t *testing.T) {
	srv := newServer(t)
	c := New(srv.URL, "")
	ctx := context.Background()

	_, err := c.GetExamSet(ctx, 404)
	require.Error(t, err)
	assert.True(t, NotFound(err))

	es, err := c.CreateExamSet(ctx, model.ExamSet{Name: "x", Type: model.ExamTypeTSA})
	require.NoError(t, err)
	_, err = c.ImportQuestions(ctx, es.ID, []byte(`[{"id":"1","questionType":"short_answer"}]`), nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Contains(t, apiErr.Message, "content")
}

func TestPreviewImport(t *testing.T) {
	srv := newServer(t)
	c := New(srv.URL, "")
	html, err := c.PreviewImport(context.Background(), []byte(questionsJSON))
	require.NoError(t, err)
	assert.Contains(t, html, "Import preview")
	assert.Contains(t, html, `class="option correct"`)
}
