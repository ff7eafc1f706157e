// Package pacing caps emission rate with a token bucket.
package pacing

import (
    "context"
    "sync"
    "time"
)

// TokenBucket refills at rate tokens (bytes) per second up to capacity.
type TokenBucket struct {
    mu       sync.Mutex
    capacity int64
    tokens   int64
    rate     int64
    last     time.Time
    now      func() time.Time
}

// NewTokenBucket returns a full bucket. capacity <= 0 defaults to one second of rate.
func NewTokenBucket(ratePerSec, capacity int64) *TokenBucket {
    if capacity <= 0 { capacity = ratePerSec }
    return &TokenBucket{capacity: capacity, tokens: capacity, rate: ratePerSec, last: time.Now(), now: time.Now}
}

// Allow tries to consume n tokens; if not enough, returns how long to wait.
// Requests larger than capacity are allowed once the bucket is full.
func (b *TokenBucket) Allow(n int64) (ok bool, wait time.Duration) {
    b.mu.Lock(); defer b.mu.Unlock()
    now := b.now()
    dt := now.Sub(b.last)
    if dt > 0 {
        add := (b.rate * dt.Nanoseconds()) / int64(time.Second)
        if add > 0 {
            b.tokens += add
            if b.tokens > b.capacity { b.tokens = b.capacity }
            b.last = now
        }
    }
    need := n
    if need > b.capacity { need = b.capacity }
    if b.tokens >= need {
        b.tokens -= need
        return true, 0
    }
    missing := need - b.tokens
    return false, time.Duration((missing * int64(time.Second)) / b.rate)
}

// Wait blocks until n tokens are available or ctx is done.
func (b *TokenBucket) Wait(ctx context.Context, n int64) error {
    if b == nil || b.rate <= 0 { return nil }
    for {
        ok, wait := b.Allow(n)
        if ok { return nil }
        if wait <= 0 { wait = time.Microsecond }
        t := time.NewTimer(wait)
        select {
        case <-ctx.Done():
            t.Stop()
            return ctx.Err()
        case <-t.C:
        }
    }
}
