// Package exam runs timed mock exams: the not_started → in_progress →
// finished state machine, the one-second countdown and scoring.
package exam

import (
	"errors"
	"math"
	"strconv"
	"sync"
	"time"
)

// State is the lifecycle state of an attempt.
type State string

const (
	StateNotStarted State = "not_started"
	StateInProgress State = "in_progress"
	StateFinished   State = "finished"
)

// FinishReason records why an attempt finished.
type FinishReason string

const (
	FinishSubmitted FinishReason = "submitted"
	FinishTimeout   FinishReason = "timeout"
	FinishAborted   FinishReason = "aborted"
)

var (
	ErrNotStarted      = errors.New("exam not started")
	ErrAlreadyStarted  = errors.New("exam already started")
	ErrFinished        = errors.New("exam already finished")
	ErrUnknownQuestion = errors.New("unknown question")
	ErrInvalidOption   = errors.New("option not offered by question")
	ErrOutOfRange      = errors.New("question index out of range")
)

// Question is one single-answer question of a mock exam.
type Question struct {
	ID            int      `json:"id"`
	Content       string   `json:"content"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
	Explanation   string   `json:"explanation"`
}

// Exam is a static exam definition.
type Exam struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Subject         string     `json:"subject"`
	DurationMinutes int        `json:"durationMinutes"`
	Questions       []Question `json:"questions"`
}

// Summary is an exam without its question bank.
type Summary struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Subject         string `json:"subject"`
	DurationMinutes int    `json:"durationMinutes"`
	QuestionCount   int    `json:"questionCount"`
}

// Summary returns the listing view of e.
func (e *Exam) Summary() Summary {
	return Summary{
		ID:              e.ID,
		Title:           e.Title,
		Subject:         e.Subject,
		DurationMinutes: e.DurationMinutes,
		QuestionCount:   len(e.Questions),
	}
}

func (e *Exam) question(id int) (*Question, bool) {
	for i := range e.Questions {
		if e.Questions[i].ID == id {
			return &e.Questions[i], true
		}
	}
	return nil, false
}

// Score is the result of a finished attempt.
type Score struct {
	Correct    int `json:"correct"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

// ScoreAnswers compares every answer to its question's correct answer.
// Unanswered questions count as wrong.
func ScoreAnswers(e *Exam, answers map[int]*string) Score {
	s := Score{Total: len(e.Questions)}
	for _, q := range e.Questions {
		if a := answers[q.ID]; a != nil && *a == q.CorrectAnswer {
			s.Correct++
		}
	}
	if s.Total > 0 {
		s.Percentage = int(math.Round(100 * float64(s.Correct) / float64(s.Total)))
	}
	return s
}

// Ticker delivers one tick per period until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFunc creates a ticker with the given period.
type TickerFunc func(d time.Duration) Ticker

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewRealTicker wraps time.NewTicker.
func NewRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// Attempt is one student's run through an exam.
type Attempt struct {
	ID   string
	Exam *Exam

	mu         sync.Mutex
	state      State
	remaining  int
	current    int
	answers    map[int]*string
	createdAt  time.Time
	startedAt  time.Time
	finishedAt time.Time
	reason     FinishReason
	score      *Score
	done       chan struct{}
	onFinish   func(*Attempt)
	now        func() time.Time
}

func newAttempt(id string, e *Exam, now func() time.Time, onFinish func(*Attempt)) *Attempt {
	answers := make(map[int]*string, len(e.Questions))
	for _, q := range e.Questions {
		answers[q.ID] = nil
	}
	return &Attempt{
		ID:        id,
		Exam:      e,
		state:     StateNotStarted,
		remaining: e.DurationMinutes * 60,
		answers:   answers,
		done:      make(chan struct{}),
		onFinish:  onFinish,
		now:       now,
		createdAt: now(),
	}
}

// Start moves the attempt to in_progress and launches the countdown. Each tick
// of t takes one second off the clock.
func (a *Attempt) Start(newTicker TickerFunc) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch a.state {
	case StateInProgress:
		return ErrAlreadyStarted
	case StateFinished:
		return ErrFinished
	}
	a.state = StateInProgress
	a.startedAt = a.now()
	if a.remaining <= 0 {
		a.finishLocked(FinishTimeout)
		return nil
	}
	t := newTicker(time.Second)
	go a.run(t)
	return nil
}

func (a *Attempt) run(t Ticker) {
	defer t.Stop()
	for {
		select {
		case <-a.done:
			return
		case <-t.C():
			if a.Tick() {
				return
			}
		}
	}
}

// Tick takes one second off the clock. It reports whether this tick finished
// the attempt.
func (a *Attempt) Tick() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateInProgress {
		return false
	}
	a.remaining--
	if a.remaining <= 0 {
		a.remaining = 0
		a.finishLocked(FinishTimeout)
		return true
	}
	return false
}

// finishLocked must be called with a.mu held and only from in_progress.
func (a *Attempt) finishLocked(reason FinishReason) {
	a.state = StateFinished
	a.reason = reason
	a.finishedAt = a.now()
	s := ScoreAnswers(a.Exam, a.answers)
	a.score = &s
	close(a.done)
	if a.onFinish != nil {
		a.onFinish(a)
	}
}

// Answer records the chosen option for a question, replacing any earlier choice.
func (a *Attempt) Answer(questionID int, option string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.requireInProgress(); err != nil {
		return err
	}
	q, ok := a.Exam.question(questionID)
	if !ok {
		return ErrUnknownQuestion
	}
	valid := false
	for _, o := range q.Options {
		if o == option {
			valid = true
			break
		}
	}
	if !valid {
		return ErrInvalidOption
	}
	a.answers[questionID] = &option
	return nil
}

// Goto moves the cursor to question index i.
func (a *Attempt) Goto(i int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.requireInProgress(); err != nil {
		return err
	}
	if i < 0 || i >= len(a.Exam.Questions) {
		return ErrOutOfRange
	}
	a.current = i
	return nil
}

// Next moves to the following question, staying on the last one.
func (a *Attempt) Next() error {
	return a.step(1)
}

// Prev moves to the previous question, staying on the first one.
func (a *Attempt) Prev() error {
	return a.step(-1)
}

func (a *Attempt) step(delta int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.requireInProgress(); err != nil {
		return err
	}
	if len(a.Exam.Questions) == 0 {
		return ErrOutOfRange
	}
	a.current = min(max(a.current+delta, 0), len(a.Exam.Questions)-1)
	return nil
}

// Submit finishes the attempt explicitly and returns its score.
func (a *Attempt) Submit() (Score, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.requireInProgress(); err != nil {
		return Score{}, err
	}
	a.finishLocked(FinishSubmitted)
	return *a.score, nil
}

func (a *Attempt) requireInProgress() error {
	switch a.state {
	case StateNotStarted:
		return ErrNotStarted
	case StateFinished:
		return ErrFinished
	}
	return nil
}

// Done is closed when the attempt finishes.
func (a *Attempt) Done() <-chan struct{} {
	return a.done
}

// abort finishes a running attempt during shutdown so its countdown stops.
func (a *Attempt) abort() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateInProgress {
		a.finishLocked(FinishAborted)
	}
}

// GridStatus is the status of one cell in the question grid.
type GridStatus string

const (
	GridAnswered   GridStatus = "answered"
	GridUnanswered GridStatus = "unanswered"
	GridCurrent    GridStatus = "current"
)

// GridCell is one entry of the question-status grid.
type GridCell struct {
	Index      int        `json:"index"`
	QuestionID int        `json:"questionId"`
	Status     GridStatus `json:"status"`
}

// View is a point-in-time snapshot of an attempt, safe to serialize.
type View struct {
	ID               string             `json:"id"`
	ExamID           string             `json:"examId"`
	Title            string             `json:"title"`
	State            State              `json:"state"`
	RemainingSeconds int                `json:"remainingSeconds"`
	Current          int                `json:"current"`
	Question         *QuestionView      `json:"question,omitempty"`
	Answers          map[string]*string `json:"answers"`
	Grid             []GridCell         `json:"grid"`
	Score            *Score             `json:"score,omitempty"`
	FinishReason     FinishReason       `json:"finishReason,omitempty"`
	StartedAt        *time.Time         `json:"startedAt,omitempty"`
	FinishedAt       *time.Time         `json:"finishedAt,omitempty"`
	Review           []Question         `json:"review,omitempty"`
}

// QuestionView is the current question without its answer key.
type QuestionView struct {
	ID      int      `json:"id"`
	Content string   `json:"content"`
	Options []string `json:"options"`
}

// Snapshot returns the current view. Answer keys are only included once the
// attempt is finished.
func (a *Attempt) Snapshot() View {
	a.mu.Lock()
	defer a.mu.Unlock()
	v := View{
		ID:               a.ID,
		ExamID:           a.Exam.ID,
		Title:            a.Exam.Title,
		State:            a.state,
		RemainingSeconds: a.remaining,
		Current:          a.current,
		Answers:          make(map[string]*string, len(a.answers)),
		FinishReason:     a.reason,
	}
	for i, q := range a.Exam.Questions {
		key := strconv.Itoa(q.ID)
		v.Answers[key] = a.answers[q.ID]
		status := GridUnanswered
		if a.answers[q.ID] != nil {
			status = GridAnswered
		}
		if i == a.current && a.state == StateInProgress {
			status = GridCurrent
		}
		v.Grid = append(v.Grid, GridCell{Index: i, QuestionID: q.ID, Status: status})
	}
	if a.state == StateInProgress && a.current < len(a.Exam.Questions) {
		q := a.Exam.Questions[a.current]
		v.Question = &QuestionView{ID: q.ID, Content: q.Content, Options: q.Options}
	}
	if !a.startedAt.IsZero() {
		t := a.startedAt
		v.StartedAt = &t
	}
	if a.state == StateFinished {
		t := a.finishedAt
		v.FinishedAt = &t
		s := *a.score
		v.Score = &s
		v.Review = a.Exam.Questions
	}
	return v
}

// State returns the current lifecycle state.
func (a *Attempt) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// staleBefore reports whether the attempt finished, or was created and never
// started, before t.
func (a *Attempt) staleBefore(t time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch a.state {
	case StateFinished:
		return a.finishedAt.Before(t)
	case StateNotStarted:
		return a.createdAt.Before(t)
	}
	return false
}
