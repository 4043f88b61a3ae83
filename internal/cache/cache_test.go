package cache

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/examprep/internal/model"
)

var (
	_ Catalog = Noop{}
	_ Catalog = (*Redis)(nil)
)

func TestNoop(t *testing.T) {
	ctx := context.Background()
	var c Noop
	require.NoError(t, c.Set(ctx, 10, []model.Chapter{{ID: 1}}))
	_, err := c.Get(ctx, 10)
	assert.ErrorIs(t, err, ErrMiss)
	assert.NoError(t, c.Invalidate(ctx))
}

func TestTreeKey(t *testing.T) {
	assert.Equal(t, "examprep:catalog:v0:grade:0", treeKey(0, 0))
	assert.Equal(t, "examprep:catalog:v7:grade:12", treeKey(7, 12))
}

// TestRedis runs against a real server when EXAMPREP_TEST_REDIS is set,
// e.g. EXAMPREP_TEST_REDIS=localhost:6379.
func TestRedis(t *testing.T) {
	addr := os.Getenv("EXAMPREP_TEST_REDIS")
	if addr == "" {
		t.Skip("EXAMPREP_TEST_REDIS not set")
	}
	ctx := context.Background()
	r, err := NewRedis(ctx, addr, "", 15)
	require.NoError(t, err)
	defer r.Close()
	require.NoError(t, r.client.FlushDB(ctx).Err())

	_, err = r.Get(ctx, 12)
	assert.ErrorIs(t, err, ErrMiss)

	grade := 12
	tree := []model.Chapter{{ID: 1, Name: "Đạo hàm", Grade: &grade}}
	require.NoError(t, r.Set(ctx, 12, tree))
	got, err := r.Get(ctx, 12)
	require.NoError(t, err)
	assert.Equal(t, tree[0].Name, got[0].Name)

	require.NoError(t, r.Invalidate(ctx))
	_, err = r.Get(ctx, 12)
	assert.ErrorIs(t, err, ErrMiss)
}
