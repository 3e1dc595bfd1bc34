package nlp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/banktalk/internal/model"
)

func TestTokenBucket(t *testing.T) {
	t.Run("drains to empty", func(t *testing.T) {
		b := newTokenBucket(3)
		defer b.stop()

		for i := 0; i < 3; i++ {
			assert.True(t, b.take(), "take %d", i+1)
		}
		assert.False(t, b.take())
		assert.Equal(t, 0, b.available())
	})

	t.Run("wait honors cancellation", func(t *testing.T) {
		b := newTokenBucket(1)
		defer b.stop()

		require.NoError(t, b.wait(context.Background()))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		err := b.wait(ctx)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Contains(t, err.Error(), "waiting for rate limit")
	})

	t.Run("refills", func(t *testing.T) {
		b := newTokenBucket(600)
		defer b.stop()

		for b.take() {
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, b.wait(ctx))
	})

	t.Run("stop is idempotent", func(t *testing.T) {
		b := newTokenBucket(0)
		b.stop()
		b.stop()
		assert.Equal(t, 120, b.capacity)
	})
}

func TestResponseCache(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c := newResponseCache(time.Minute, func() time.Time { return now })

	ok := &model.ClassificationResponse{ModuleCode: model.ModuleAccounts, SubmoduleCode: "ACC_LIST", Entities: model.Entities{}}
	failed := &model.ClassificationResponse{Error: "nope"}

	c.set(cacheKey("1", "a"), ok)
	c.set(cacheKey("1", "b"), failed)
	assert.Equal(t, 1, c.size(), "errors are not cached")

	got, hit := c.get(cacheKey("1", "A"))
	require.True(t, hit)
	assert.Equal(t, "ACC_LIST", got.SubmoduleCode)

	now = now.Add(2 * time.Minute)
	_, hit = c.get(cacheKey("1", "a"))
	assert.False(t, hit)

	c.set(cacheKey("1", "c"), ok)
	assert.Equal(t, 1, c.size(), "expired entries are swept on write")

	disabled := newResponseCache(0, time.Now)
	disabled.set("k", ok)
	_, hit = disabled.get("k")
	assert.False(t, hit)
}
