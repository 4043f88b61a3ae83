package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/examprep/internal/exam"
	appI18n "github.com/pavelanni/examprep/internal/i18n"
	"github.com/pavelanni/examprep/internal/llm"
	"github.com/pavelanni/examprep/internal/model"
	"github.com/pavelanni/examprep/internal/question"
	"github.com/pavelanni/examprep/internal/store"
	"github.com/pavelanni/examprep/internal/upload"
)

type idleTicker struct{ ch chan time.Time }

func (t idleTicker) C() <-chan time.Time { return t.ch }
func (t idleTicker) Stop()               {}

type fakeTutor struct {
	hint string
	err  error
	got  llm.HintRequest
}

func (f *fakeTutor) Hint(_ context.Context, req llm.HintRequest) (*llm.Hint, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Hint{Hint: f.hint, Encouragement: "keep going"}, nil
}

func (f *fakeTutor) Explain(_ context.Context, q question.Question, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "because " + q.Explanation, nil
}

type testEnv struct {
	t      *testing.T
	store  *store.Store
	router http.Handler
}

func newTestEnv(t *testing.T, tutor Tutor) *testEnv {
	t.Helper()
	require.NoError(t, appI18n.Init("en"))
	s, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	m := exam.NewManager(exam.MockExams, exam.WithTicker(func(time.Duration) exam.Ticker {
		return idleTicker{ch: make(chan time.Time)}
	}))
	t.Cleanup(m.Close)

	u, err := upload.New(t.TempDir(), "/uploads")
	require.NoError(t, err)

	h := New(s, m, tutor, nil, u, model.Config{UploadURL: "/uploads"})
	r := chi.NewRouter()
	r.Use(appI18n.Middleware())
	r.Use(h.BasePathMiddleware)
	h.Routes(r)
	return &testEnv{t: t, store: s, router: r}
}

func (e *testEnv) do(method, path, contentType string, body io.Reader) *httptest.ResponseRecorder {
	e.t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) json(method, path, body string) *httptest.ResponseRecorder {
	e.t.Helper()
	return e.do(method, path, "application/json", strings.NewReader(body))
}

func (e *testEnv) expect(rec *httptest.ResponseRecorder, status int, v any) {
	e.t.Helper()
	require.Equal(e.t, status, rec.Code, "body: %s", rec.Body.String())
	if v != nil {
		require.NoError(e.t, json.Unmarshal(rec.Body.Bytes(), v), "decode body %q", rec.Body.String())
	}
}

func (e *testEnv) createChapterExamSet() (chapterID, subID, examSetID int64) {
	e.t.Helper()
	var c model.Chapter
	e.expect(e.json("POST", "/api/chapters", `{"name":"Hàm số","sortOrder":1,"grade":12}`), http.StatusCreated, &c)
	var sc model.SubChapter
	e.expect(e.json("POST", "/api/chapters/"+itoa(c.ID)+"/subchapters", `{"name":"Đạo hàm"}`), http.StatusCreated, &sc)
	var es model.ExamSet
	body := `{"name":"Đề 1","type":"CHAPTER","grade":12,"duration":45,"subChapterId":` + itoa(sc.ID) + `}`
	e.expect(e.json("POST", "/api/examsets", body), http.StatusCreated, &es)
	return c.ID, sc.ID, es.ID
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

func TestChapterDeleteLeavesExamSetsUnassigned(t *testing.T) {
	env := newTestEnv(t, nil)
	chapterID, subID, examSetID := env.createChapterExamSet()

	var got model.Chapter
	env.expect(env.do("GET", "/api/chapters/"+itoa(chapterID), "", nil), http.StatusOK, &got)
	require.Len(t, got.SubChapters, 1)
	assert.Equal(t, subID, got.SubChapters[0].ID)

	env.expect(env.do("DELETE", "/api/chapters/"+itoa(chapterID), "", nil), http.StatusNoContent, nil)
	env.expect(env.do("GET", "/api/chapters/"+itoa(chapterID), "", nil), http.StatusNotFound, nil)

	var unassigned []model.ExamSet
	env.expect(env.do("GET", "/api/examsets/unassigned", "", nil), http.StatusOK, &unassigned)
	require.Len(t, unassigned, 1)
	assert.Equal(t, examSetID, unassigned[0].ID)
	assert.Nil(t, unassigned[0].SubChapterID)
}

func TestCatalogTree(t *testing.T) {
	env := newTestEnv(t, nil)
	_, subID, examSetID := env.createChapterExamSet()

	var tree []model.Chapter
	env.expect(env.do("GET", "/api/catalog?grade=12", "", nil), http.StatusOK, &tree)
	require.Len(t, tree, 1)
	require.Len(t, tree[0].SubChapters, 1)
	assert.Equal(t, subID, tree[0].SubChapters[0].ID)
	sets := tree[0].SubChapters[0].ExamSets
	require.Len(t, sets, 1)
	assert.Equal(t, examSetID, sets[0].ID)

	env.expect(env.do("GET", "/api/catalog?grade=11", "", nil), http.StatusOK, &tree)
	assert.Empty(t, tree, "grade 11 tree")
}

func TestUpdateExamSetWithoutStatus(t *testing.T) {
	env := newTestEnv(t, nil)
	var es model.ExamSet
	env.expect(env.json("POST", "/api/examsets", `{"name":"HSA","type":"HSA","status":"available"}`), http.StatusCreated, &es)

	env.expect(env.json("PUT", "/api/examsets/"+itoa(es.ID), `{"name":"HSA 2026","type":"HSA"}`), http.StatusOK, &es)
	assert.Equal(t, "HSA 2026", es.Name)
	assert.Equal(t, model.StatusAvailable, es.Status)

	env.expect(env.json("PUT", "/api/examsets/"+itoa(es.ID), `{"name":"HSA 2026","type":"HSA","status":"archived"}`), http.StatusOK, &es)
	assert.Equal(t, model.StatusArchived, es.Status)
}

func TestRequestErrors(t *testing.T) {
	env := newTestEnv(t, nil)
	var hsa model.ExamSet
	env.expect(env.json("POST", "/api/examsets", `{"name":"HSA 2025","type":"HSA"}`), http.StatusCreated, &hsa)
	var c model.Chapter
	env.expect(env.json("POST", "/api/chapters", `{"name":"Ch"}`), http.StatusCreated, &c)
	var sc model.SubChapter
	env.expect(env.json("POST", "/api/chapters/"+itoa(c.ID)+"/subchapters", `{"name":"Sub"}`), http.StatusCreated, &sc)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"missing chapter name", "POST", "/api/chapters", `{}`, http.StatusBadRequest},
		{"malformed body", "POST", "/api/chapters", `{"name":`, http.StatusBadRequest},
		{"bad exam type", "POST", "/api/examsets", `{"name":"x","type":"FOO"}`, http.StatusBadRequest},
		{"non-numeric id", "GET", "/api/examsets/abc", "", http.StatusBadRequest},
		{"unknown chapter", "GET", "/api/chapters/999", "", http.StatusNotFound},
		{"unknown exam set", "GET", "/api/examsets/999", "", http.StatusNotFound},
		{"sub-chapter under unknown chapter", "POST", "/api/chapters/999/subchapters", `{"name":"x"}`, http.StatusNotFound},
		{"assign HSA exam set", "POST", "/api/subchapters/" + itoa(sc.ID) + "/examsets/" + itoa(hsa.ID), "", http.StatusBadRequest},
		{"bad grade query", "GET", "/api/examsets?grade=ten", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.json(tt.method, tt.path, tt.body)
			require.Equal(t, tt.want, rec.Code, "body: %s", rec.Body.String())
			var resp errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestErrorsAreLocalized(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do("GET", "/api/chapters/999?lang=vi", "", nil)
	env.expect(rec, http.StatusNotFound, nil)
	assert.NotContains(t, rec.Body.String(), "not found", "expected a Vietnamese message")
}

const importJSON = `[
  {"id":"1","section":"I","content":"Hình vẽ image_placeholder cho biết","image":"fig1.png",
   "questionType":"single_choice","options":["1","2","3","4"],"correctAnswer":"2","explanation":"Đọc hình."},
  {"id":"2","content":"Cho hàm số f(x)","questionType":"group_question","subQuestions":[
    {"id":"2a","content":"f đồng biến","question_type":"true_false","options":["Đúng","Sai"],"correctAnswer":"Đúng"},
    {"id":"2b","content":"f(1) = ?","question_type":"short_answer","correctAnswer":["5"]}
  ]}
]`

func TestImportJSONAndDuplicate(t *testing.T) {
	env := newTestEnv(t, nil)
	_, _, examSetID := env.createChapterExamSet()
	path := "/api/examsets/" + itoa(examSetID) + "/import"

	var resp importResponse
	env.expect(env.json("POST", path, importJSON), http.StatusCreated, &resp)
	assert.Equal(t, 2, resp.Count)
	assert.False(t, resp.Duplicate)
	env.expect(env.json("POST", path, importJSON), http.StatusOK, &resp)
	assert.True(t, resp.Duplicate, "second import")

	var qs []question.Question
	env.expect(env.do("GET", "/api/examsets/"+itoa(examSetID)+"/questions", "", nil), http.StatusOK, &qs)
	require.Len(t, qs, 2)

	var sub question.Question
	env.expect(env.do("GET", "/api/examsets/"+itoa(examSetID)+"/questions/1_1", "", nil), http.StatusOK, &sub)
	assert.Equal(t, question.ID("2b"), sub.ID)
	assert.Equal(t, question.KindShortAnswer, sub.Type)
	env.expect(env.do("GET", "/api/examsets/"+itoa(examSetID)+"/questions/1_5", "", nil), http.StatusNotFound, nil)
	env.expect(env.do("GET", "/api/examsets/"+itoa(examSetID)+"/questions/x", "", nil), http.StatusBadRequest, nil)
}

func TestImportValidationStoresNothing(t *testing.T) {
	env := newTestEnv(t, nil)
	_, _, examSetID := env.createChapterExamSet()

	tests := []struct {
		name string
		body string
	}{
		{"not JSON", `{`},
		{"empty array", `[]`},
		{"missing content", `[{"id":"1","questionType":"single_choice"},{"id":"2","content":"x"}]`},
		{"children under non-group", `[{"id":"1","content":"x","questionType":"single_choice","subQuestions":[{"id":"1a","content":"y","questionType":"true_false"}]}]`},
		{"two answers on true/false", `[{"id":"1","content":"x","questionType":"true_false","options":["Đúng","Sai"],"correctAnswer":["Đúng","Sai"]}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.json("POST", "/api/examsets/"+itoa(examSetID)+"/questions", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, "body: %s", rec.Body.String())
		})
	}
	qs, err := env.store.ListQuestions(examSetID)
	require.NoError(t, err)
	assert.Empty(t, qs, "questions stored after failed imports")
}

func multipartBody(t *testing.T, fields map[string]string, files map[string][2]string) (string, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for field, f := range files {
		fw, err := mw.CreateFormFile(field, f[0])
		require.NoError(t, err)
		_, err = fw.Write([]byte(f[1]))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return mw.FormDataContentType(), &buf
}

func TestAddQuestionsWithImages(t *testing.T) {
	env := newTestEnv(t, nil)
	_, _, examSetID := env.createChapterExamSet()

	ct, body := multipartBody(t,
		map[string]string{"questions": importJSON},
		map[string][2]string{"image_1": {"photo-from-phone.png", "PNGDATA"}},
	)
	var qs []question.Question
	env.expect(env.do("POST", "/api/examsets/"+itoa(examSetID)+"/questions", ct, body), http.StatusCreated, &qs)
	require.Len(t, qs, 2)
	require.Len(t, qs[0].Images, 1)
	url := qs[0].Images[0]
	assert.True(t, strings.HasPrefix(url, "/uploads/"), "image url = %q", url)
	assert.True(t, strings.HasSuffix(url, "/fig1.png"), "image url = %q", url)

	rec := env.do("GET", url, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "PNGDATA", rec.Body.String())
}

func TestAddQuestionsRejectsStrayImage(t *testing.T) {
	env := newTestEnv(t, nil)
	_, _, examSetID := env.createChapterExamSet()
	ct, body := multipartBody(t,
		map[string]string{"questions": importJSON},
		map[string][2]string{"image_99": {"x.png", "data"}},
	)
	env.expect(env.do("POST", "/api/examsets/"+itoa(examSetID)+"/questions", ct, body), http.StatusBadRequest, nil)
}

func TestReplaceQuestions(t *testing.T) {
	env := newTestEnv(t, nil)
	_, _, examSetID := env.createChapterExamSet()
	path := "/api/examsets/" + itoa(examSetID) + "/questions"

	var qs []question.Question
	env.expect(env.json("POST", path, importJSON), http.StatusCreated, &qs)
	require.Len(t, qs, 2)

	env.expect(env.json("PUT", path, `[{"id":"9","content":"1+1","questionType":"short_answer","correctAnswer":"2"}]`), http.StatusOK, &qs)
	require.Len(t, qs, 1)
	assert.Equal(t, question.ID("9"), qs[0].ID)

	bad := `[{"id":"10","content":"x","questionType":"single_choice","options":["a","b"],"correctAnswer":["a","b"]}]`
	env.expect(env.json("PUT", path, bad), http.StatusBadRequest, nil)
	env.expect(env.do("GET", path, "", nil), http.StatusOK, &qs)
	require.Len(t, qs, 1, "rejected replace changed the forest")
	assert.Equal(t, question.ID("9"), qs[0].ID)
}

func TestQuickEdit(t *testing.T) {
	env := newTestEnv(t, nil)
	_, _, examSetID := env.createChapterExamSet()
	err := env.store.ReplaceQuestions(examSetID, []question.Question{{
		ID:            "1",
		Content:       "A image_placeholder B image_placeholder",
		Images:        []string{"/uploads/a/1.png", "/uploads/b/2.png"},
		Type:          question.KindSingleChoice,
		Options:       []string{"x", "y"},
		CorrectAnswer: question.Answer{"x"},
	}})
	require.NoError(t, err)
	path := "/api/examsets/" + itoa(examSetID) + "/questions/0"

	var q question.Question
	env.expect(env.json("PUT", path, `{"explanation":"vì x","correctAnswer":"y"}`), http.StatusOK, &q)
	assert.Equal(t, "vì x", q.Explanation)
	assert.Equal(t, question.Answer{"y"}, q.CorrectAnswer)
	assert.Equal(t, "A image_placeholder B image_placeholder", q.Content)
	env.expect(env.json("PUT", path, `{"correctAnswer":["x","y"]}`), http.StatusBadRequest, nil)

	ct, body := multipartBody(t,
		map[string]string{"data": `{"content":"A image_placeholder B image_placeholder C image_placeholder"}`},
		map[string][2]string{"upload_1": {"new.png", "NEW"}},
	)
	env.expect(env.do("PUT", path, ct, body), http.StatusOK, &q)
	require.Len(t, q.Images, 2)
	assert.Equal(t, "/uploads/a/1.png", q.Images[0], "slot 0 keeps the existing image")
	assert.True(t, strings.HasSuffix(q.Images[1], "/new.png"), "slot 1 = %q, want the upload", q.Images[1])

	ct, body = multipartBody(t, nil, map[string][2]string{"upload_x": {"bad.png", "x"}})
	env.expect(env.do("PUT", path, ct, body), http.StatusBadRequest, nil)
}

func TestFullEdit(t *testing.T) {
	env := newTestEnv(t, nil)
	_, _, examSetID := env.createChapterExamSet()
	env.expect(env.json("POST", "/api/examsets/"+itoa(examSetID)+"/questions", importJSON), http.StatusCreated, nil)
	path := "/api/examsets/" + itoa(examSetID) + "/questions/1/json"

	rec := env.do("GET", path, "", nil)
	env.expect(rec, http.StatusOK, nil)
	node, err := question.ParseNode(rec.Body.Bytes())
	require.NoError(t, err)
	node.SubQuestions = node.SubQuestions[:1]
	node.Content = "Cho hàm số g(x)"
	edited, _ := question.MarshalNode(node)

	var got question.Question
	env.expect(env.do("PUT", path, "application/json", bytes.NewReader(edited)), http.StatusOK, &got)
	assert.Equal(t, "Cho hàm số g(x)", got.Content)
	assert.Len(t, got.SubQuestions, 1)

	env.expect(env.json("PUT", path, `{"id":"2","content":"x","questionType":"short_answer","subQuestions":[{"id":"a","content":"y","questionType":"short_answer"}]}`), http.StatusBadRequest, nil)
	env.expect(env.json("PUT", path, `not json`), http.StatusBadRequest, nil)

	env.expect(env.do("DELETE", "/api/examsets/"+itoa(examSetID)+"/questions/0", "", nil), http.StatusNoContent, nil)
	qs, _ := env.store.ListQuestions(examSetID)
	require.Len(t, qs, 1)
	assert.Equal(t, question.ID("2"), qs[0].ID)
}

func TestImportPreview(t *testing.T) {
	env := newTestEnv(t, nil)
	ct, body := multipartBody(t,
		map[string]string{"questions": importJSON},
		map[string][2]string{"image_1": {"fig1.png", "\x89PNG\r\n\x1a\nrest"}},
	)
	rec := env.do("POST", "/api/import/preview", ct, body)
	env.expect(rec, http.StatusOK, nil)
	html := rec.Body.String()
	for _, want := range []string{`class="option correct"`, `src="data:image/png;base64,`, "Đọc hình.", "Sub-questions", "<h2>Import preview</h2>"} {
		assert.Contains(t, html, want)
	}
}

func TestExamAttemptFlow(t *testing.T) {
	env := newTestEnv(t, nil)

	var exams []exam.Summary
	env.expect(env.do("GET", "/api/exams", "", nil), http.StatusOK, &exams)
	require.Len(t, exams, 3)

	var created attemptResponse
	env.expect(env.do("POST", "/api/exams/hsa-math-01/attempts", "", nil), http.StatusCreated, &created)
	assert.Equal(t, exam.StateNotStarted, created.State)
	assert.NotEmpty(t, created.Warning)
	assert.Equal(t, 30*60, created.RemainingSeconds)
	base := "/api/attempts/" + created.ID

	env.expect(env.json("PUT", base+"/answers/1", `{"option":"x = 3"}`), http.StatusConflict, nil)
	env.expect(env.do("POST", base+"/start", "", nil), http.StatusOK, nil)
	env.expect(env.do("POST", base+"/start", "", nil), http.StatusConflict, nil)

	var v exam.View
	env.expect(env.json("PUT", base+"/answers/1", `{"option":"x = 3"}`), http.StatusOK, &v)
	if assert.NotNil(t, v.Answers["1"]) {
		assert.Equal(t, "x = 3", *v.Answers["1"])
	}
	env.expect(env.json("PUT", base+"/answers/1", `{"option":"x = 42"}`), http.StatusBadRequest, nil)
	env.expect(env.do("POST", base+"/goto/2", "", nil), http.StatusOK, &v)
	assert.Equal(t, 2, v.Current)
	env.expect(env.do("POST", base+"/goto/next", "", nil), http.StatusOK, &v)
	assert.Equal(t, 3, v.Current)
	env.expect(env.do("POST", base+"/goto/99", "", nil), http.StatusBadRequest, nil)

	env.expect(env.do("POST", base+"/submit", "", nil), http.StatusOK, &v)
	assert.Equal(t, exam.StateFinished, v.State)
	assert.Equal(t, exam.FinishSubmitted, v.FinishReason)
	if assert.NotNil(t, v.Score) {
		assert.Equal(t, 1, v.Score.Correct)
	}
	env.expect(env.do("POST", base+"/submit", "", nil), http.StatusConflict, nil)

	env.expect(env.do("POST", "/api/exams/nope/attempts", "", nil), http.StatusNotFound, nil)
	env.expect(env.do("GET", "/api/attempts/nope", "", nil), http.StatusNotFound, nil)
}

func TestPracticeDashboard(t *testing.T) {
	env := newTestEnv(t, nil)
	records := []struct{ id, name, tag string }{
		{"kc1", "Phương trình bậc hai", "Đại số"},
		{"kc2", "Công thức lượng giác", "LƯỢNG GIÁC"},
		{"kc3", "Đạo hàm cơ bản", "Đạo hàm"},
		{"kc4", "Tích phân", "tích phân"},
	}
	for _, r := range records {
		body := `{"name":"` + r.name + `","tag":"` + r.tag + `","correct":true}`
		env.expect(env.json("PUT", "/api/practice/"+r.id, body), http.StatusOK, nil)
	}

	var d dashboardResponse
	env.expect(env.do("GET", "/api/practice?category=calculus&page=3&prevCategory=algebra", "", nil), http.StatusOK, &d)
	assert.Equal(t, 2, d.TotalItems)
	assert.Equal(t, 1, d.Page.Page, "page resets when the category changes")
	assert.Len(t, d.Items, 2)
	require.Len(t, d.Labels, 7)
	assert.Equal(t, "All", d.Labels[0].Label)
	assert.Equal(t, 4, d.Labels[0].Count)

	env.expect(env.do("GET", "/api/practice?category=astrology", "", nil), http.StatusBadRequest, nil)
	env.expect(env.json("PUT", "/api/practice/kc9", `{"tag":"x"}`), http.StatusBadRequest, nil)
}

func TestTutor(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.expect(env.json("POST", "/api/practice/hint", `{}`), http.StatusServiceUnavailable, nil)
	})

	t.Run("hint for stored question", func(t *testing.T) {
		tutor := &fakeTutor{hint: "Xét dấu đạo hàm."}
		env := newTestEnv(t, tutor)
		_, _, examSetID := env.createChapterExamSet()
		env.expect(env.json("POST", "/api/examsets/"+itoa(examSetID)+"/questions", importJSON), http.StatusCreated, nil)

		var h llm.Hint
		body := `{"examType":"CHAPTER","examSetId":` + itoa(examSetID) + `,"path":"1_0","attempt":"Sai"}`
		env.expect(env.json("POST", "/api/practice/hint", body), http.StatusOK, &h)
		assert.Equal(t, "Xét dấu đạo hàm.", h.Hint)
		assert.Equal(t, question.ID("2a"), tutor.got.Question.ID)
		assert.Equal(t, "Sai", tutor.got.Attempt)
		env.expect(env.json("POST", "/api/practice/hint", `{"attempt":"x"}`), http.StatusBadRequest, nil)
	})

	t.Run("tutor failure", func(t *testing.T) {
		env := newTestEnv(t, &fakeTutor{err: errors.New("upstream down")})
		body := `{"question":{"id":"1","content":"1+1","questionType":"short_answer","correctAnswer":"2","explanation":"x"}}`
		env.expect(env.json("POST", "/api/practice/explain", body), http.StatusServiceUnavailable, nil)
	})
}
