package exam

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrExamNotFound    = errors.New("exam not found")
	ErrAttemptNotFound = errors.New("attempt not found")
)

// Manager keeps attempts in memory. Attempts do not survive a restart.
type Manager struct {
	mu        sync.RWMutex
	exams     map[string]*Exam
	order     []string
	attempts  map[string]*Attempt
	newTicker TickerFunc
	now       func() time.Time
	onFinish  func(*Attempt)
}

// Option configures a Manager.
type Option func(*Manager)

// WithTicker replaces the countdown ticker, e.g. with a simulated clock.
func WithTicker(f TickerFunc) Option {
	return func(m *Manager) { m.newTicker = f }
}

// WithClock replaces time.Now for attempt timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithFinishHook is called once for every attempt that finishes. The hook runs
// while the attempt is locked and must not call back into it.
func WithFinishHook(fn func(*Attempt)) Option {
	return func(m *Manager) { m.onFinish = fn }
}

// NewManager registers the given exam definitions.
func NewManager(exams []Exam, opts ...Option) *Manager {
	m := &Manager{
		exams:     make(map[string]*Exam, len(exams)),
		attempts:  make(map[string]*Attempt),
		newTicker: NewRealTicker,
		now:       time.Now,
	}
	for i := range exams {
		e := exams[i]
		m.exams[e.ID] = &e
		m.order = append(m.order, e.ID)
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Exams lists the registered exams in registration order.
func (m *Manager) Exams() []Summary {
	out := make([]Summary, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.exams[id].Summary())
	}
	return out
}

// Exam returns a registered exam definition.
func (m *Manager) Exam(id string) (*Exam, error) {
	e, ok := m.exams[id]
	if !ok {
		return nil, ErrExamNotFound
	}
	return e, nil
}

// Create opens a not-yet-started attempt for an exam.
func (m *Manager) Create(examID string) (*Attempt, error) {
	e, err := m.Exam(examID)
	if err != nil {
		return nil, err
	}
	a := newAttempt(uuid.NewString(), e, m.now, m.finished)
	m.mu.Lock()
	m.attempts[a.ID] = a
	m.mu.Unlock()
	slog.Info("created exam attempt", "attempt_id", a.ID, "exam_id", examID)
	return a, nil
}

// Start starts the countdown of an attempt.
func (m *Manager) Start(id string) (*Attempt, error) {
	a, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	if err := a.Start(m.newTicker); err != nil {
		return nil, err
	}
	slog.Info("started exam attempt", "attempt_id", id, "duration_minutes", a.Exam.DurationMinutes)
	return a, nil
}

// Get returns an attempt by ID.
func (m *Manager) Get(id string) (*Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[id]
	if !ok {
		return nil, ErrAttemptNotFound
	}
	return a, nil
}

// Prune drops attempts that finished, or were never started, more than
// retention ago. It returns the number removed.
func (m *Manager) Prune(retention time.Duration) int {
	cutoff := m.now().Add(-retention)
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, a := range m.attempts {
		if a.staleBefore(cutoff) {
			delete(m.attempts, id)
			n++
		}
	}
	if n > 0 {
		slog.Info("pruned exam attempts", "count", n)
	}
	return n
}

// Close stops the countdown of every running attempt.
func (m *Manager) Close() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.attempts {
		a.abort()
	}
}

func (m *Manager) finished(a *Attempt) {
	slog.Info("exam attempt finished",
		"attempt_id", a.ID,
		"reason", a.reason,
		"correct", a.score.Correct,
		"total", a.score.Total,
		"percentage", a.score.Percentage,
	)
	if m.onFinish != nil {
		m.onFinish(a)
	}
}
