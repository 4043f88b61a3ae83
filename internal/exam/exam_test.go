package exam

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTicker is driven by the test instead of the wall clock.
type fakeTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func newFakeTicker() *fakeTicker {
	return &fakeTicker{ch: make(chan time.Time)}
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()               { f.stopped.Store(true) }

func buildExam(n, minutes int) Exam {
	e := Exam{ID: "test", Title: "Test", DurationMinutes: minutes}
	for i := 1; i <= n; i++ {
		e.Questions = append(e.Questions, Question{
			ID:            i,
			Content:       fmt.Sprintf("Q%d", i),
			Options:       []string{"A", "B", "C", "D"},
			CorrectAnswer: "A",
		})
	}
	return e
}

func TestScoreAnswers(t *testing.T) {
	e := buildExam(22, 10)
	answers := map[int]*string{}
	right, wrong := "A", "B"
	for i := 1; i <= 22; i++ {
		switch {
		case i <= 11:
			answers[i] = &right
		case i <= 20:
			answers[i] = &wrong
		default:
			answers[i] = nil
		}
	}
	s := ScoreAnswers(&e, answers)
	assert.Equal(t, Score{Correct: 11, Total: 22, Percentage: 50}, s)
}

func TestScoreRounding(t *testing.T) {
	tests := []struct {
		total, correct, want int
	}{
		{3, 1, 33},
		{3, 2, 67},
		{8, 1, 13},
		{6, 6, 100},
		{6, 0, 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_of_%d", tt.correct, tt.total), func(t *testing.T) {
			e := buildExam(tt.total, 1)
			answers := map[int]*string{}
			a := "A"
			for i := 1; i <= tt.correct; i++ {
				answers[i] = &a
			}
			assert.Equal(t, tt.want, ScoreAnswers(&e, answers).Percentage)
		})
	}
	empty := Exam{}
	assert.Equal(t, 0, ScoreAnswers(&empty, nil).Percentage)
}

func TestStateMachine(t *testing.T) {
	ft := newFakeTicker()
	m := NewManager([]Exam{buildExam(3, 1)}, WithTicker(func(time.Duration) Ticker { return ft }))
	a, err := m.Create("test")
	require.NoError(t, err)

	assert.Equal(t, StateNotStarted, a.State())
	assert.ErrorIs(t, a.Answer(1, "A"), ErrNotStarted)
	_, err = a.Submit()
	assert.ErrorIs(t, err, ErrNotStarted)

	_, err = m.Start(a.ID)
	require.NoError(t, err)
	assert.Equal(t, StateInProgress, a.State())
	_, err = m.Start(a.ID)
	assert.ErrorIs(t, err, ErrAlreadyStarted)

	require.NoError(t, a.Answer(1, "A"))
	require.NoError(t, a.Answer(2, "C"))
	require.NoError(t, a.Answer(2, "A"))
	assert.ErrorIs(t, a.Answer(9, "A"), ErrUnknownQuestion)
	assert.ErrorIs(t, a.Answer(3, "Z"), ErrInvalidOption)

	require.NoError(t, a.Goto(2))
	v := a.Snapshot()
	assert.Equal(t, 2, v.Current)
	require.NotNil(t, v.Question)
	assert.Equal(t, 3, v.Question.ID)
	assert.Equal(t, []GridCell{
		{Index: 0, QuestionID: 1, Status: GridAnswered},
		{Index: 1, QuestionID: 2, Status: GridAnswered},
		{Index: 2, QuestionID: 3, Status: GridCurrent},
	}, v.Grid)
	assert.Nil(t, v.Answers["3"])
	assert.Nil(t, v.Review, "answer key must stay hidden while in progress")

	require.NoError(t, a.Next())
	assert.Equal(t, 2, a.Snapshot().Current)
	require.NoError(t, a.Prev())
	require.NoError(t, a.Prev())
	require.NoError(t, a.Prev())
	assert.Equal(t, 0, a.Snapshot().Current)
	assert.ErrorIs(t, a.Goto(3), ErrOutOfRange)

	score, err := a.Submit()
	require.NoError(t, err)
	assert.Equal(t, Score{Correct: 2, Total: 3, Percentage: 67}, score)
	assert.Equal(t, StateFinished, a.State())

	_, err = a.Submit()
	assert.ErrorIs(t, err, ErrFinished)
	assert.ErrorIs(t, a.Answer(3, "A"), ErrFinished)
	_, err = m.Start(a.ID)
	assert.ErrorIs(t, err, ErrFinished)

	v = a.Snapshot()
	assert.Equal(t, FinishSubmitted, v.FinishReason)
	assert.NotNil(t, v.Score)
	assert.Len(t, v.Review, 3)
	assert.Nil(t, v.Question)

	select {
	case <-a.Done():
	case <-time.After(time.Second):
		t.Fatal("done channel not closed")
	}
}

func TestTimerFinishesExactlyOnce(t *testing.T) {
	var finishes atomic.Int32
	ft := newFakeTicker()
	m := NewManager(
		[]Exam{buildExam(2, 1)},
		WithTicker(func(d time.Duration) Ticker {
			assert.Equal(t, time.Second, d)
			return ft
		}),
		WithFinishHook(func(*Attempt) { finishes.Add(1) }),
	)
	a, err := m.Create("test")
	require.NoError(t, err)
	_, err = m.Start(a.ID)
	require.NoError(t, err)

	ticks := 0
	for ticks < 120 {
		select {
		case ft.ch <- time.Time{}:
			ticks++
			continue
		case <-a.Done():
		}
		break
	}

	assert.LessOrEqual(t, ticks, 60)
	assert.Equal(t, 60, ticks)
	assert.Equal(t, StateFinished, a.State())
	assert.Equal(t, FinishTimeout, a.Snapshot().FinishReason)
	assert.Equal(t, 0, a.Snapshot().RemainingSeconds)

	// Late ticks and submits never finish a second time.
	assert.False(t, a.Tick())
	_, err = a.Submit()
	assert.ErrorIs(t, err, ErrFinished)
	assert.Equal(t, int32(1), finishes.Load())

	assert.Eventually(t, ft.stopped.Load, time.Second, 5*time.Millisecond)
}

func TestConcurrentSubmitAndTimeout(t *testing.T) {
	var finishes atomic.Int32
	e := buildExam(1, 1)
	a := newAttempt("x", &e, time.Now, func(*Attempt) { finishes.Add(1) })
	a.state = StateInProgress
	a.remaining = 1

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); a.Tick() }()
	go func() { defer wg.Done(); _, _ = a.Submit() }()
	wg.Wait()

	assert.Equal(t, int32(1), finishes.Load())
}

func TestConcurrentNextAdvancesEachStep(t *testing.T) {
	e := buildExam(50, 1)
	a := newAttempt("x", &e, time.Now, nil)
	a.state = StateInProgress

	const steps = 20
	var wg sync.WaitGroup
	wg.Add(steps)
	for range steps {
		go func() { defer wg.Done(); assert.NoError(t, a.Next()) }()
	}
	wg.Wait()
	assert.Equal(t, steps, a.Snapshot().Current)

	wg.Add(steps)
	for range steps {
		go func() { defer wg.Done(); assert.NoError(t, a.Prev()) }()
	}
	wg.Wait()
	assert.Equal(t, 0, a.Snapshot().Current)
}

func TestSubmitStopsTicker(t *testing.T) {
	ft := newFakeTicker()
	m := NewManager([]Exam{buildExam(1, 5)}, WithTicker(func(time.Duration) Ticker { return ft }))
	a, _ := m.Create("test")
	_, err := m.Start(a.ID)
	require.NoError(t, err)

	ft.ch <- time.Time{}
	assert.Equal(t, 5*60-1, a.Snapshot().RemainingSeconds)

	_, err = a.Submit()
	require.NoError(t, err)
	assert.Eventually(t, ft.stopped.Load, time.Second, 5*time.Millisecond)
}

func TestZeroDurationFinishesOnStart(t *testing.T) {
	m := NewManager([]Exam{buildExam(1, 0)})
	a, _ := m.Create("test")
	_, err := m.Start(a.ID)
	require.NoError(t, err)
	assert.Equal(t, StateFinished, a.State())
}

func TestManagerLookupAndPrune(t *testing.T) {
	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	ft := newFakeTicker()
	m := NewManager(MockExams, WithClock(clock), WithTicker(func(time.Duration) Ticker { return ft }))

	assert.Len(t, m.Exams(), 3)
	_, err := m.Create("nope")
	assert.ErrorIs(t, err, ErrExamNotFound)
	_, err = m.Get("nope")
	assert.ErrorIs(t, err, ErrAttemptNotFound)

	idle, _ := m.Create("hsa-math-01")
	done, _ := m.Create("hsa-math-01")
	running, _ := m.Create("tsa-thinking-01")
	_, err = m.Start(done.ID)
	require.NoError(t, err)
	_, err = done.Submit()
	require.NoError(t, err)
	_, err = m.Start(running.ID)
	require.NoError(t, err)
	for _, a := range []*Attempt{idle, done, running} {
		_, err := m.Get(a.ID)
		assert.NoError(t, err)
	}

	assert.Equal(t, 0, m.Prune(time.Hour))

	now = now.Add(2 * time.Hour)
	assert.Equal(t, 2, m.Prune(time.Hour))
	_, err = m.Get(idle.ID)
	assert.ErrorIs(t, err, ErrAttemptNotFound)
	_, err = m.Get(running.ID)
	assert.NoError(t, err)

	m.Close()
	assert.Equal(t, StateFinished, running.State())
	assert.Equal(t, FinishAborted, running.Snapshot().FinishReason)
}

func TestMockExamsAreConsistent(t *testing.T) {
	require.Len(t, MockExams, 3)
	for _, e := range MockExams {
		t.Run(e.ID, func(t *testing.T) {
			assert.Positive(t, e.DurationMinutes)
			assert.NotEmpty(t, e.Questions)
			seen := map[int]bool{}
			for _, q := range e.Questions {
				assert.False(t, seen[q.ID], "duplicate question id %d", q.ID)
				seen[q.ID] = true
				assert.Contains(t, q.Options, q.CorrectAnswer, "question %d", q.ID)
			}
		})
	}
}
