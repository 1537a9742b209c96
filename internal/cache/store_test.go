package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncrement_StartsAtDeltaAndCounts(t *testing.T) {
	s := NewStore(Options{Prefix: "xraysub"})
	ctx := context.Background()

	n, err := s.Increment(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.Increment(ctx, "k", 2, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestIncrement_KeepsOriginalExpiry(t *testing.T) {
	s := NewStore(Options{})
	ctx := context.Background()

	_, err := s.Increment(ctx, "k", 1, 2*time.Second)
	require.NoError(t, err)
	_, err = s.Increment(ctx, "k", 1, time.Hour)
	require.NoError(t, err)

	ttl, ok := s.TTL(ctx, "k")
	require.True(t, ok)
	assert.LessOrEqual(t, ttl, 2*time.Second)
}

func TestIncrement_RestartsAfterExpiry(t *testing.T) {
	s := NewStore(Options{CleanupInterval: time.Hour})
	ctx := context.Background()

	_, err := s.Increment(ctx, "k", 5, 20*time.Millisecond)
	require.NoError(t, err)
	time.Sleep(40 * time.Millisecond)

	n, err := s.Increment(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestIncrement_EmptyKey(t *testing.T) {
	_, err := NewStore(Options{}).Increment(context.Background(), "  ", 1, time.Minute)
	assert.Error(t, err)
}

func TestIncrement_Concurrent(t *testing.T) {
	s := NewStore(Options{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Increment(ctx, "shared", 1, time.Minute)
		}()
	}
	wg.Wait()

	n, err := s.Increment(ctx, "shared", 0, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(50), n)
}

func TestNamespace_IsolatesKeys(t *testing.T) {
	root := NewStore(Options{Prefix: "xraysub:"})
	a := root.Namespace("a")
	b := root.Namespace(":b")
	ctx := context.Background()

	_, err := a.Increment(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	n, err := b.Increment(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 2, root.Len())

	a.Delete(ctx, "k")
	_, ok := a.TTL(ctx, "k")
	assert.False(t, ok)
	_, ok = b.TTL(ctx, "k")
	assert.True(t, ok)
}

func TestJoinPrefixes(t *testing.T) {
	assert.Equal(t, "xraysub:rate", joinPrefixes(" xraysub: ", "", ":rate"))
	assert.Equal(t, "", joinPrefixes("", ":"))
}
