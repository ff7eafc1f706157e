package receiver

import (
    "context"
    "errors"
    "io"
    "sync"

    "go.uber.org/zap"

    "latdecomp/pkg/tracker"
    "latdecomp/pkg/transport"
    "latdecomp/pkg/wire"
)

// StreamOptions configures a Stream receiver.
type StreamOptions struct {
    // Trigger writes the trigger token at connect and after every completed request.
    Trigger bool
    // RTT answers every completed request with a response frame followed by
    // ResponseBytes of filler. It replaces the trigger token.
    RTT           bool
    ResponseBytes int
    Clock         wire.Clock
}

// Stream accepts connections and handles each on its own goroutine.
type Stream struct {
    l      transport.Listener
    tr     *tracker.Tracker
    notify Notifier
    opts   StreamOptions

    mu    sync.Mutex
    conns map[transport.Conn]struct{}
    wg    sync.WaitGroup

    // replying is held shared while a handler records a request and answers it.
    replying sync.RWMutex
    filler   []byte
}

func NewStream(l transport.Listener, tr *tracker.Tracker, n Notifier, opts StreamOptions) *Stream {
    if opts.Clock == nil { opts.Clock = wire.NowMicros }
    if n == nil { n = nopNotifier{} }
    if opts.ResponseBytes < 0 { opts.ResponseBytes = 0 }
    if opts.ResponseBytes > wire.MaxStreamDataSize { opts.ResponseBytes = wire.MaxStreamDataSize }
    s := &Stream{l: l, tr: tr, notify: n, opts: opts, conns: make(map[transport.Conn]struct{})}
    if opts.RTT { s.filler = make([]byte, 32*1024) }
    return s
}

// Run accepts until ctx ends or the session completes, then closes the
// listener and every live connection and waits for handlers to return.
func (s *Stream) Run(ctx context.Context) error {
    ctx, cancel := context.WithCancel(ctx)
    defer cancel()
    zap.L().Info("stream receiver started", zap.Stringer("addr", s.l.Addr()),
        zap.Bool("trigger", s.opts.Trigger), zap.Bool("rtt", s.opts.RTT))

    go func() {
        select {
        case <-ctx.Done():
            s.shutdown()
        case <-s.tr.Done():
            // the handler that completed the session may still be replying
            s.replying.Lock()
            s.shutdown()
            s.replying.Unlock()
        }
    }()

    var runErr error
    for {
        c, err := s.l.Accept(ctx)
        if err != nil {
            if ctx.Err() == nil && !errors.Is(err, transport.ErrListenerClosed) {
                runErr = &wire.TransportError{Op: "accept", Err: err}
            }
            break
        }
        if !s.track(c) { _ = c.Close(); break }
        s.wg.Add(1)
        go func() {
            defer s.wg.Done()
            defer s.untrack(c)
            s.handle(c)
        }()
    }
    cancel()
    s.wg.Wait()
    return runErr
}

func (s *Stream) track(c transport.Conn) bool {
    s.mu.Lock(); defer s.mu.Unlock()
    if s.conns == nil { return false }
    s.conns[c] = struct{}{}
    return true
}

func (s *Stream) untrack(c transport.Conn) {
    s.mu.Lock()
    if s.conns != nil { delete(s.conns, c) }
    s.mu.Unlock()
    _ = c.Close()
}

func (s *Stream) shutdown() {
    _ = s.l.Close()
    s.closeAll()
}

func (s *Stream) closeAll() {
    s.mu.Lock()
    conns := s.conns
    s.conns = nil
    s.mu.Unlock()
    for c := range conns { _ = c.Close() }
}

// handle reads header+payload pairs until the peer closes. A short payload
// only ends this connection.
func (s *Stream) handle(c transport.Conn) {
    log := zap.L().With(zap.Stringer("remote", c.RemoteAddr()))
    log.Info("stream connected")
    if s.opts.Trigger && !s.opts.RTT && !s.sendTrigger(c, log) { return }
    scratch := make([]byte, 64*1024)
    for {
        h, err := wire.ReadStreamHeader(c)
        headerUS := s.opts.Clock()
        if err != nil {
            switch {
            case errors.Is(err, io.EOF):
                log.Info("stream closed by peer")
            case errors.Is(err, wire.ErrMalformedFragment):
                report(s.tr, s.notify, s.tr.Reject(err))
            case errors.Is(err, io.ErrUnexpectedEOF):
                log.Warn("stream header cut short", zap.Error(err))
            case !transport.IsClosed(err):
                log.Warn("read stream header", zap.Error(err))
            }
            return
        }
        n, err := wire.DrainPayload(c, int64(h.DataSize), scratch)
        completeUS := s.opts.Clock()
        if err != nil {
            log.Warn("request dropped", zap.Uint32("request", h.RequestID), zap.Int64("received", n),
                zap.Uint32("data_size", h.DataSize), zap.Error(err))
            return
        }
        log.Debug("request received", zap.Uint32("request", h.RequestID), zap.Int64("header_us", headerUS), zap.Int64("complete_us", completeUS))
        s.replying.RLock()
        ev := s.tr.ObserveWhole(h, headerUS, completeUS)
        ok := true
        // the final request only needs a reply when its round trip is measured
        if ev.Has(tracker.EventRequestCompleted) && (s.opts.RTT || !ev.Has(tracker.EventSessionCompleted)) {
            ok = s.reply(c, h.RequestID, log)
        }
        s.replying.RUnlock()
        report(s.tr, s.notify, ev, zap.Stringer("remote", c.RemoteAddr()))
        if ev.Has(tracker.EventSessionCompleted) || !ok { return }
    }
}

// reply answers a completed request; false means the connection is gone.
func (s *Stream) reply(c transport.Conn, id uint32, log *zap.Logger) bool {
    switch {
    case s.opts.RTT:
        return s.sendResponse(c, id, log)
    case s.opts.Trigger:
        return s.sendTrigger(c, log)
    }
    return true
}

func (s *Stream) sendResponse(c transport.Conn, id uint32, log *zap.Logger) bool {
    hdr := appendResponseHeader(make([]byte, 0, wire.ResponseHeaderSize), s.tr, id, s.opts.ResponseBytes, s.opts.Clock())
    err := func() error {
        if _, err := c.Write(hdr); err != nil { return err }
        for left := s.opts.ResponseBytes; left > 0; {
            n := min(left, len(s.filler))
            if _, err := c.Write(s.filler[:n]); err != nil { return err }
            left -= n
        }
        return nil
    }()
    if err != nil {
        if !transport.IsClosed(err) { log.Warn("send response", zap.Uint32("request", id), zap.Error(err)) }
        return false
    }
    return true
}

func (s *Stream) sendTrigger(c transport.Conn, log *zap.Logger) bool {
    if _, err := c.Write(wire.TriggerToken[:]); err != nil {
        if !transport.IsClosed(err) { log.Warn("send trigger", zap.Error(err)) }
        return false
    }
    return true
}
