package results

import (
    "sync"

    "go.uber.org/zap"

    "latdecomp/pkg/tracker"
)

// Flusher writes tracker snapshots to a sink every N completed requests and
// on demand. It implements receiver.Notifier.
type Flusher struct {
    tr      *tracker.Tracker
    sink    Sink
    variant Variant
    every   int

    mu        sync.Mutex
    completed int
    flushes   int
}

// NewFlusher flushes after every `every` completions; 0 flushes only on Flush.
func NewFlusher(tr *tracker.Tracker, sink Sink, variant Variant, every int) *Flusher {
    return &Flusher{tr: tr, sink: sink, variant: variant, every: every}
}

// RequestCompleted counts a completion and flushes on the configured cadence.
// Flush failures are logged; the session keeps running.
func (f *Flusher) RequestCompleted(id uint32) {
    f.mu.Lock()
    f.completed++
    due := f.every > 0 && f.completed%f.every == 0
    f.mu.Unlock()
    if !due { return }
    if err := f.Flush(); err != nil {
        zap.L().Warn("periodic flush failed", zap.Uint32("request", id), zap.Error(err))
    }
}

// Flush writes the current snapshot. Incomplete requests are excluded.
func (f *Flusher) Flush() error {
    f.mu.Lock()
    defer f.mu.Unlock()
    recs := f.tr.Snapshot()
    f.flushes++
    zap.L().Debug("flushing results", zap.Int("records", len(recs)), zap.Int("flush", f.flushes))
    return f.sink.Write(f.variant, recs)
}

// Summary summarizes the current snapshot including session duration.
func (f *Flusher) Summary() Summary {
    s := Summarize(f.tr.Snapshot())
    if p := f.tr.Progress(); p.Completed > 0 { s.SessionUS = p.LastRecvUS - p.FirstRecvUS }
    return s
}

// Flushes reports how many times the sink was written.
func (f *Flusher) Flushes() int {
    f.mu.Lock()
    defer f.mu.Unlock()
    return f.flushes
}
