package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExpirer struct {
	n     int64
	err   error
	calls []time.Time
}

func (f *fakeExpirer) ExpireExamSets(now time.Time) (int64, error) {
	f.calls = append(f.calls, now)
	return f.n, f.err
}

type fakePruner struct{ retention []time.Duration }

func (f *fakePruner) Prune(r time.Duration) int {
	f.retention = append(f.retention, r)
	return 0
}

type fakeCache struct{ invalidated int }

func (f *fakeCache) Invalidate(context.Context) error {
	f.invalidated++
	return nil
}

func TestExpireJob(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name            string
		n               int64
		err             error
		wantInvalidated int
	}{
		{"nothing expired", 0, nil, 0},
		{"some expired", 3, nil, 1},
		{"store error", 0, errors.New("locked"), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &fakeExpirer{n: tt.n, err: tt.err}
			c := &fakeCache{}
			s, err := New(e, &fakePruner{}, c, time.Hour)
			require.NoError(t, err)
			s.now = func() time.Time { return now }

			s.ExpireJob()
			assert.Equal(t, []time.Time{now}, e.calls)
			assert.Equal(t, tt.wantInvalidated, c.invalidated)
		})
	}
}

func TestPruneJob(t *testing.T) {
	p := &fakePruner{}
	s, err := New(&fakeExpirer{}, p, nil, 90*time.Minute)
	require.NoError(t, err)
	s.PruneJob()
	assert.Equal(t, []time.Duration{90 * time.Minute}, p.retention)
}

func TestJobsRegistered(t *testing.T) {
	s, err := New(&fakeExpirer{}, &fakePruner{}, nil, time.Hour)
	require.NoError(t, err)
	assert.Len(t, s.cron.Entries(), 2)

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
