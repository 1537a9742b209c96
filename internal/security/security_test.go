package security

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creamcroissant/xraysub/internal/cache"
)

func TestRateLimiter_FixedWindow(t *testing.T) {
	l, err := NewRateLimiter(cache.NewStore(cache.Options{}))
	require.NoError(t, err)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		res, err := l.Allow(ctx, "1.2.3.4", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "hit %d", i)
		assert.Equal(t, 3-i, res.Remaining)
		assert.Equal(t, 3, res.Limit)
	}

	res, err := l.Allow(ctx, "1.2.3.4", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.WithinDuration(t, time.Now().Add(time.Minute), res.ResetAt, 2*time.Second)

	other, err := l.Allow(ctx, "5.6.7.8", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	l.Reset(ctx, "1.2.3.4")
	res, err = l.Allow(ctx, "1.2.3.4", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestRateLimiter_WindowExpires(t *testing.T) {
	l, err := NewRateLimiter(cache.NewStore(cache.Options{CleanupInterval: time.Hour}))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = l.Allow(ctx, "k", 1, 30*time.Millisecond)
	require.NoError(t, err)
	res, err := l.Allow(ctx, "k", 1, 30*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	time.Sleep(50 * time.Millisecond)
	res, err = l.Allow(ctx, "k", 1, 30*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestRateLimiter_Errors(t *testing.T) {
	_, err := NewRateLimiter(nil)
	assert.Error(t, err)

	var nilLimiter *RateLimiter
	_, err = nilLimiter.Allow(context.Background(), "k", 1, time.Minute)
	assert.Error(t, err)

	l, err := NewRateLimiter(cache.NewStore(cache.Options{}))
	require.NoError(t, err)
	_, err = l.Allow(context.Background(), "k", 0, time.Minute)
	assert.Error(t, err)
}

func TestLoggerRecorder(t *testing.T) {
	var buf bytes.Buffer
	r := NewLoggerRecorder(slog.New(slog.NewJSONHandler(&buf, nil)))
	r.Record(context.Background(), Event{Kind: EventSourceRejected, IP: "9.9.9.9", Target: "http://10.0.0.1/"})

	out := buf.String()
	assert.Contains(t, out, `"kind":"source_rejected"`)
	assert.Contains(t, out, `"target":"http://10.0.0.1/"`)
	assert.Contains(t, out, `"component":"audit"`)
	assert.NotContains(t, out, `"ua"`)

	NewLoggerRecorder(nil).Record(context.Background(), Event{Kind: EventRateLimited})
}
