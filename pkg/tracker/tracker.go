// Package tracker groups fragment arrivals by logical request, detects request
// and session completion under loss, reordering and duplication, and derives
// the per-request latency decomposition.
package tracker

import (
    "fmt"
    "sort"
    "sync"

    "go.uber.org/zap"

    "latdecomp/pkg/wire"
)

// Options configures a Tracker.
type Options struct {
    // Capacity is the largest accepted fragment payload (0 = wire.MaxFragmentCapacity).
    Capacity int
    // TotalRequests optionally pre-declares the session size. Fragments may raise it.
    TotalRequests uint32
    // ClockOffsetUS is receiver clock minus sender clock. It is added to every
    // send timestamp before the first-fragment latency is derived.
    ClockOffsetUS int64
}

// SessionState is the per-tracker view of a session. It is only touched with
// the owning Tracker's lock held.
type SessionState struct {
    requests map[uint32]*RequestRecord
    declared uint32
    highest  uint32
    seenAny  bool

    // completeBelow counts complete records with id < declared.
    completeBelow uint32
    complete      bool

    fragments  uint64
    duplicates uint64
    malformed  uint64
}

// Tracker is safe for concurrent use; Observe never blocks on I/O.
type Tracker struct {
    mu       sync.RWMutex
    st       SessionState
    capacity int
    offsetUS int64

    doneOnce sync.Once
    done     chan struct{}
}

// New returns an empty tracker.
func New(opts Options) *Tracker {
    capacity := opts.Capacity
    if capacity <= 0 || capacity > wire.MaxFragmentCapacity { capacity = wire.MaxFragmentCapacity }
    return &Tracker{
        st:       SessionState{requests: make(map[uint32]*RequestRecord), declared: opts.TotalRequests},
        capacity: capacity,
        offsetUS: opts.ClockOffsetUS,
        done:     make(chan struct{}),
    }
}

// Capacity is the largest fragment payload Observe accepts.
func (t *Tracker) Capacity() int { return t.capacity }

// Done is closed the first time the session becomes complete.
func (t *Tracker) Done() <-chan struct{} { return t.done }

// Observe records the arrival of fragment f at recvUS (microseconds since epoch).
func (t *Tracker) Observe(f wire.Fragment, recvUS int64) Event {
    if err := f.Validate(t.capacity); err != nil {
        return t.reject(f.RequestID, err)
    }
    return t.observe(f, recvUS, recvUS)
}

// ObserveWhole records a single-fragment (stream) request whose header arrived
// at headerUS and whose payload finished arriving at completeUS.
func (t *Tracker) ObserveWhole(h wire.StreamHeader, headerUS, completeUS int64) Event {
    f := wire.Fragment{
        SendTimestamp: h.SendTimestamp,
        Index:         0,
        Count:         1,
        RequestID:     h.RequestID,
        TotalRequests: h.TotalRequests,
        PayloadSize:   h.DataSize,
    }
    if completeUS < headerUS { completeUS = headerUS }
    return t.observe(f, headerUS, completeUS)
}

// Reject counts a frame that could not be decoded at all.
func (t *Tracker) Reject(err error) Event { return t.reject(0, err) }

func (t *Tracker) reject(id uint32, err error) Event {
    t.mu.Lock()
    t.st.malformed++
    t.mu.Unlock()
    return Event{Kind: EventMalformed, RequestID: id, Err: err}
}

func (t *Tracker) observe(f wire.Fragment, firstUS, lastUS int64) Event {
    t.mu.Lock()
    defer t.mu.Unlock()
    st := &t.st
    id := f.RequestID

    rec, existed := st.requests[id]
    if existed && rec.ExpectedCount != f.Count {
        st.malformed++
        return Event{Kind: EventMalformed, RequestID: id, Err: fmt.Errorf("%w: request %d count %d disagrees with %d",
            wire.ErrMalformedFragment, id, f.Count, rec.ExpectedCount)}
    }

    st.fragments++
    if f.TotalRequests > st.declared { t.raiseDeclared(f.TotalRequests) }
    if !st.seenAny || id > st.highest { st.highest = id; st.seenAny = true }

    if !existed {
        rec = newRecord(f.Count)
        st.requests[id] = rec
    }
    if rec.HasIndex(f.Index) {
        st.duplicates++
        if lastUS > rec.LastRecvUS { rec.LastRecvUS = lastUS }
        return Event{Kind: EventDuplicate, RequestID: id}
    }

    wasComplete := rec.Complete()
    if f.Index == 0 && !rec.HasFirst {
        rec.FirstSendUS = int64(f.SendTimestamp)
        rec.FirstRecvUS = firstUS
        rec.HasFirst = true
    }
    if lastUS > rec.LastRecvUS { rec.LastRecvUS = lastUS }
    rec.received[f.Index] = struct{}{}
    rec.PayloadBytes += uint64(f.PayloadSize)

    ev := Event{Kind: EventRecorded, RequestID: id}
    if !wasComplete && rec.Complete() {
        ev.Kind |= EventRequestCompleted
        if id < st.declared { st.completeBelow++ }
        zap.L().Debug("request complete", zap.Uint32("request", id), zap.Uint32("fragments", rec.ExpectedCount))
    }
    if t.updateSessionLocked() { ev.Kind |= EventSessionCompleted }
    return ev
}

// raiseDeclared moves the declared session size up to n and accounts for
// already complete requests that now fall inside the session.
func (t *Tracker) raiseDeclared(n uint32) {
    st := &t.st
    old := st.declared
    st.declared = n
    if len(st.requests) < int(n-old) {
        for id, r := range st.requests {
            if id >= old && id < n && r.Complete() { st.completeBelow++ }
        }
    } else {
        for id := old; id < n; id++ {
            if r, ok := st.requests[id]; ok && r.Complete() { st.completeBelow++ }
        }
    }
    zap.L().Debug("session size declared", zap.Uint32("total_requests", n), zap.Uint32("previous", old))
}

// updateSessionLocked recomputes session completeness and reports a
// false->true transition.
func (t *Tracker) updateSessionLocked() bool {
    st := &t.st
    now := st.declared > 0 && st.completeBelow == st.declared
    was := st.complete
    st.complete = now
    if now && !was {
        zap.L().Debug("session complete", zap.Uint32("total_requests", st.declared))
        t.doneOnce.Do(func() { close(t.done) })
        return true
    }
    return false
}

// Snapshot returns one LatencyRecord per complete request, ordered by id.
// It has no side effects and may be called at any time.
func (t *Tracker) Snapshot() []LatencyRecord {
    t.mu.RLock()
    defer t.mu.RUnlock()
    out := make([]LatencyRecord, 0, len(t.st.requests))
    for id, r := range t.st.requests {
        if r.Complete() { out = append(out, r.latency(id, t.offsetUS)) }
    }
    sort.Slice(out, func(i, j int) bool { return out[i].RequestID < out[j].RequestID })
    return out
}

// Record returns a copy of the record for id.
func (t *Tracker) Record(id uint32) (RequestRecord, bool) {
    t.mu.RLock()
    defer t.mu.RUnlock()
    r, ok := t.st.requests[id]
    if !ok { return RequestRecord{}, false }
    return r.clone(), true
}

// SessionComplete reports the session completion invariant.
func (t *Tracker) SessionComplete() bool {
    t.mu.RLock()
    defer t.mu.RUnlock()
    return t.st.complete
}

// Progress is a point-in-time summary of session state.
type Progress struct {
    Declared        uint32
    Highest         uint32
    SeenAny         bool
    Requests        int
    Completed       int
    Fragments       uint64
    Duplicates      uint64
    Malformed       uint64
    SessionComplete bool
    // FirstRecvUS/LastRecvUS span all complete requests (0 when none).
    FirstRecvUS int64
    LastRecvUS  int64
}

// Progress returns counters for logging and summaries.
func (t *Tracker) Progress() Progress {
    t.mu.RLock()
    defer t.mu.RUnlock()
    st := &t.st
    p := Progress{
        Declared:        st.declared,
        Highest:         st.highest,
        SeenAny:         st.seenAny,
        Requests:        len(st.requests),
        Fragments:       st.fragments,
        Duplicates:      st.duplicates,
        Malformed:       st.malformed,
        SessionComplete: st.complete,
    }
    for _, r := range st.requests {
        if !r.Complete() { continue }
        p.Completed++
        if p.FirstRecvUS == 0 || r.FirstRecvUS < p.FirstRecvUS { p.FirstRecvUS = r.FirstRecvUS }
        if r.LastRecvUS > p.LastRecvUS { p.LastRecvUS = r.LastRecvUS }
    }
    return p
}

// Missing lists request ids in [0, declared) that are not complete. The list
// is capped at limit entries when limit > 0.
func (t *Tracker) Missing(limit int) []uint32 {
    t.mu.RLock()
    defer t.mu.RUnlock()
    var out []uint32
    for id := uint32(0); id < t.st.declared; id++ {
        if r, ok := t.st.requests[id]; ok && r.Complete() { continue }
        out = append(out, id)
        if limit > 0 && len(out) >= limit { break }
    }
    return out
}
