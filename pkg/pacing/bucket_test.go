package pacing

import (
    "context"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestAllowRefills(t *testing.T) {
    clock := time.Unix(100, 0)
    b := NewTokenBucket(1000, 1000)
    b.now = func() time.Time { return clock }
    b.last = clock

    ok, _ := b.Allow(1000)
    require.True(t, ok)
    ok, wait := b.Allow(500)
    assert.False(t, ok)
    assert.Equal(t, 500*time.Millisecond, wait)

    clock = clock.Add(500 * time.Millisecond)
    ok, _ = b.Allow(500)
    assert.True(t, ok)
}

func TestAllowOversizeRequestWhenFull(t *testing.T) {
    b := NewTokenBucket(100, 100)
    ok, _ := b.Allow(5000)
    assert.True(t, ok)
}

func TestWaitHonoursContext(t *testing.T) {
    b := NewTokenBucket(1, 1)
    _, _ = b.Allow(1)
    ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
    defer cancel()
    assert.ErrorIs(t, b.Wait(ctx, 1), context.DeadlineExceeded)

    var nilBucket *TokenBucket
    assert.NoError(t, nilBucket.Wait(context.Background(), 1))
}
