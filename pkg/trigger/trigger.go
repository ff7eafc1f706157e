// Package trigger provides the emitter's "wait for permission to send the
// next request" primitives.
package trigger

import (
    "context"
    "errors"
    "io"
    "time"

    "go.uber.org/zap"

    "latdecomp/pkg/wire"
)

// Waiter blocks until the next logical request may be sent.
type Waiter interface {
    Wait(ctx context.Context) error
}

// Immediate never blocks.
type Immediate struct{}

func (Immediate) Wait(ctx context.Context) error { return ctx.Err() }

// Interval sleeps d between requests; the first Wait returns at once.
type Interval struct {
    d       time.Duration
    started bool
}

func NewInterval(d time.Duration) *Interval { return &Interval{d: d} }

func (w *Interval) Wait(ctx context.Context) error {
    if !w.started || w.d <= 0 {
        w.started = true
        return ctx.Err()
    }
    t := time.NewTimer(w.d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return ctx.Err()
    case <-t.C:
        return nil
    }
}

type deadliner interface{ SetReadDeadline(time.Time) error }

// InterruptReads makes blocking reads on r fail once ctx ends, provided r
// supports read deadlines. Call the returned func after the last read; it
// clears any deadline the expiry armed.
func InterruptReads(ctx context.Context, r io.Reader) func() {
    d, ok := r.(deadliner)
    if !ok { return func() {} }
    fired := make(chan struct{})
    stop := context.AfterFunc(ctx, func() {
        defer close(fired)
        _ = d.SetReadDeadline(time.Unix(1, 0))
    })
    return func() {
        if stop() { return }
        // let the expiry land before clearing it
        <-fired
        _ = d.SetReadDeadline(time.Time{})
    }
}

// Tokens reads trigger tokens from r. Values other than the token are
// discarded and waiting continues. In datagram mode each Read is one
// datagram and must be exactly the 4-byte token.
type Tokens struct {
    r        io.Reader
    datagram bool
    buf      []byte
}

// NewStreamTokens reads 4-byte tokens from a byte stream.
func NewStreamTokens(r io.Reader) *Tokens { return &Tokens{r: r, buf: make([]byte, wire.TriggerSize)} }

// NewDatagramTokens reads whole datagrams and accepts only an exact token.
func NewDatagramTokens(r io.Reader) *Tokens { return &Tokens{r: r, datagram: true, buf: make([]byte, 512)} }

// ErrClosed is returned when the trigger source ends.
var ErrClosed = errors.New("trigger source closed")

func (w *Tokens) Wait(ctx context.Context) error {
    if err := ctx.Err(); err != nil { return err }
    defer InterruptReads(ctx, w.r)()
    for {
        var (
            n   int
            err error
        )
        if w.datagram {
            n, err = w.r.Read(w.buf)
        } else {
            n, err = io.ReadFull(w.r, w.buf[:wire.TriggerSize])
        }
        if err != nil {
            if ctx.Err() != nil { return ctx.Err() }
            if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) { return ErrClosed }
            return &wire.TransportError{Op: "read trigger", Err: err}
        }
        if wire.IsTrigger(w.buf[:n]) { return nil }
        zap.L().Debug("ignoring non-trigger control value", zap.Binary("value", w.buf[:n]))
    }
}

// AfterFirst lets the first request through and then defers to w. Datagram
// receivers only learn the sender's address from its first fragment.
func AfterFirst(w Waiter) Waiter { return &afterFirst{w: w} }

type afterFirst struct {
    w    Waiter
    done bool
}

func (a *afterFirst) Wait(ctx context.Context) error {
    if !a.done {
        a.done = true
        return ctx.Err()
    }
    return a.w.Wait(ctx)
}

// WithTimeout bounds each wait on w by d. On expiry the request goes out
// anyway so a lost token cannot stall the session.
func WithTimeout(w Waiter, d time.Duration) Waiter {
    if d <= 0 { return w }
    return &timeoutWaiter{w: w, d: d}
}

type timeoutWaiter struct {
    w Waiter
    d time.Duration
}

func (t *timeoutWaiter) Wait(ctx context.Context) error {
    wctx, cancel := context.WithTimeout(ctx, t.d)
    defer cancel()
    err := t.w.Wait(wctx)
    if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
        zap.L().Warn("trigger not received, sending anyway", zap.Duration("timeout", t.d))
        return nil
    }
    return err
}
