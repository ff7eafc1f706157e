package main

import (
    "context"
    "errors"
    "io"
    "os"
    "time"

    "go.uber.org/zap"

    "latdecomp/pkg/config"
    "latdecomp/pkg/emitter"
    "latdecomp/pkg/observability"
    "latdecomp/pkg/pacing"
    "latdecomp/pkg/results"
    "latdecomp/pkg/rtt"
    "latdecomp/pkg/transport"
    "latdecomp/pkg/transport/streams"
    "latdecomp/pkg/transport/udp"
    "latdecomp/pkg/trigger"
)

// datagramTriggerTimeout bounds the wait for a token that may have been lost.
const datagramTriggerTimeout = 5 * time.Second

// run is the main entry point after CLI parsing.
func run(ctx context.Context, opts Options) int {
    cfg, err := config.Load(opts.ConfigPath)
    if err != nil {
        _, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
        return 1
    }
    opts.apply(cfg)
    if err := cfg.Validate(); err != nil {
        _, _ = os.Stderr.WriteString("invalid options: " + err.Error() + "\n")
        return 1
    }

    logger, err := observability.SetupLogger(cfg.Log, "send")
    if err != nil {
        _, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
        return 1
    }
    defer func() { _ = logger.Sync() }()

    zap.L().Info("latdecomp-send started", zap.String("transport", cfg.Transport),
        zap.Uint32("requests", cfg.Emitter.TotalRequests), zap.Int("payload_bytes", cfg.Emitter.PayloadBytes))
    zap.L().Debug("effective configuration", zap.Any("config", cfg))
    for _, w := range cfg.Warnings() { zap.L().Warn(w) }

    sess, err := connect(ctx, cfg)
    if err != nil {
        zap.L().Error("failed to connect", zap.Error(err))
        return 1
    }
    defer func() { _ = sess.closer.Close() }()

    plan := emitter.Plan{Requests: cfg.Emitter.TotalRequests, PayloadBytes: cfg.Emitter.PayloadBytes}
    start := time.Now()
    sent, err := emitter.Run(ctx, sess.rw, plan, sess.waiter)
    if err == nil && sess.responses != nil && sent > 0 {
        // the last request's response arrives after Run stops waiting
        err = trigger.WithTimeout(waiterFunc(sess.responses.Collect), cfg.ResponseTimeout()).Wait(ctx)
    }
    elapsed := time.Since(start)
    if sess.responses != nil { reportRTT(sess.responses.Records(), cfg.Results) }
    if err != nil && !errors.Is(err, context.Canceled) {
        zap.L().Error("session aborted", zap.Uint32("sent", sent), zap.Duration("elapsed", elapsed), zap.Error(err))
        return 1
    }
    zap.L().Info("session sent", zap.Uint32("sent", sent), zap.Uint32("planned", plan.Requests), zap.Duration("elapsed", elapsed))
    return 0
}

type waiterFunc func(ctx context.Context) error

func (f waiterFunc) Wait(ctx context.Context) error { return f(ctx) }

// reportRTT writes the round-trip table and logs its summary.
func reportRTT(recs []rtt.Record, c config.ResultsConfig) {
    if c.RTTTable != "" {
        if err := results.WriteRTTFile(c.RTTTable, recs); err != nil {
            zap.L().Error("failed to write round-trip table", zap.String("path", c.RTTTable), zap.Error(err))
        }
    }
    if c.Summary { zap.L().Info("round-trip summary", zap.Any("summary", results.SummarizeRTT(recs))) }
}

// session is a connected emitter plus what it waits on between requests.
type session struct {
    rw        emitter.RequestWriter
    waiter    trigger.Waiter
    closer    io.Closer
    responses *rtt.Responses
}

// connect opens the configured transport and builds the matching emitter and waiter.
func connect(ctx context.Context, cfg *config.Config) (*session, error) {
    var pacer *pacing.TokenBucket
    if cfg.Emitter.RateBytesPerSec > 0 {
        pacer = pacing.NewTokenBucket(cfg.Emitter.RateBytesPerSec, cfg.Emitter.BurstBytes)
    }
    kind := cfg.Kind()
    if kind.Datagram() {
        conn, err := udp.Dial(ctx, cfg.Datagram.Target, udp.Options{
            ReadBuffer:  cfg.Datagram.ReadBufferBytes,
            WriteBuffer: cfg.Datagram.WriteBufferBytes,
            TOS:         cfg.Datagram.TOS,
            TTL:         cfg.Datagram.TTL,
        })
        if err != nil { return nil, err }
        rw := emitter.NewDatagram(conn, emitter.DatagramOptions{
            MaxFragmentSize: cfg.Emitter.MaxFragmentSize,
            Pad:             cfg.Datagram.Pad,
            Pacer:           pacer,
        })
        sess := &session{rw: rw, waiter: trigger.NewInterval(cfg.Interval()), closer: conn}
        switch {
        case cfg.Emitter.RTT:
            sess.responses = rtt.NewDatagramResponses(conn, nil)
            sess.waiter = trigger.WithTimeout(sess.responses, cfg.ResponseTimeout())
        case cfg.Emitter.Trigger:
            sess.waiter = trigger.AfterFirst(trigger.WithTimeout(trigger.NewDatagramTokens(conn), datagramTriggerTimeout))
        }
        return sess, nil
    }
    if kind == transport.KindMem {
        return nil, errors.New("mem transport only connects peers inside one process")
    }
    st, err := streams.New(kind)
    if err != nil { return nil, err }
    c, err := st.Dial(ctx, cfg.Stream.Target)
    if err != nil { return nil, err }
    sess := &session{
        rw:     emitter.NewStream(c, emitter.StreamOptions{Pacer: pacer}),
        waiter: trigger.NewInterval(cfg.Interval()),
        closer: c,
    }
    switch {
    case cfg.Emitter.RTT:
        // streams do not lose responses; a timeout would only desync the framing
        sess.responses = rtt.NewStreamResponses(c, nil)
        sess.waiter = sess.responses
    case cfg.Emitter.Trigger:
        sess.waiter = trigger.NewStreamTokens(c)
    }
    return sess, nil
}
