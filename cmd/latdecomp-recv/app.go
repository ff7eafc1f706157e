package main

import (
    "context"
    "errors"
    "os"

    "go.uber.org/zap"

    "latdecomp/pkg/codec"
    "latdecomp/pkg/config"
    "latdecomp/pkg/observability"
    "latdecomp/pkg/receiver"
    "latdecomp/pkg/results"
    "latdecomp/pkg/tracker"
    "latdecomp/pkg/transport"
    "latdecomp/pkg/transport/streams"
    "latdecomp/pkg/transport/udp"
)

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

    logger, err := observability.SetupLogger(cfg.Log, "recv")
    if err != nil {
        _, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
        return 1
    }
    defer func() { _ = logger.Sync() }()

    zap.L().Info("latdecomp-recv started", zap.String("transport", cfg.Transport))
    zap.L().Debug("effective configuration", zap.Any("config", cfg))
    for _, w := range cfg.Warnings() { zap.L().Warn(w) }

    sink, err := buildSinks(cfg.Results)
    if err != nil {
        zap.L().Error("failed to open result sinks", zap.Error(err))
        return 1
    }
    defer func() {
        if err := sink.Close(); err != nil { zap.L().Warn("closing result sinks", zap.Error(err)) }
    }()

    kind := cfg.Kind()
    tr := tracker.New(tracker.Options{
        Capacity:      cfg.Tracker.MaxFragmentSize,
        TotalRequests: cfg.Tracker.TotalRequests,
        ClockOffsetUS: cfg.Tracker.ClockOffsetUS,
    })
    flusher := results.NewFlusher(tr, sink, results.VariantFor(kind), cfg.Tracker.FlushEvery)

    if err := receive(ctx, cfg, kind, tr, flusher); err != nil {
        zap.L().Error("receiver failed", zap.Error(err))
        finish(tr, flusher, cfg.Results.Summary)
        return 1
    }
    finish(tr, flusher, cfg.Results.Summary)
    return 0
}

func receive(ctx context.Context, cfg *config.Config, kind transport.Kind, tr *tracker.Tracker, n receiver.Notifier) error {
    if kind.Datagram() {
        conn, err := udp.Listen(cfg.Datagram.Listen, udp.Options{
            ReadBuffer:  cfg.Datagram.ReadBufferBytes,
            WriteBuffer: cfg.Datagram.WriteBufferBytes,
        })
        if err != nil { return err }
        defer conn.Close()
        return receiver.NewDatagram(conn, tr, n, receiver.DatagramOptions{
            RecvTimeout:   cfg.RecvTimeout(),
            Capacity:      cfg.Tracker.MaxFragmentSize,
            Trigger:       cfg.Tracker.Trigger,
            RTT:           cfg.Tracker.RTT,
            ResponseBytes: cfg.Tracker.ResponseBytes,
        }).Run(ctx)
    }
    if kind == transport.KindMem {
        return errors.New("mem transport only connects peers inside one process")
    }
    st, err := streams.New(kind)
    if err != nil { return err }
    l, err := st.Listen(ctx, cfg.Stream.Listen)
    if err != nil { return err }
    defer l.Close()
    return receiver.NewStream(l, tr, n, receiver.StreamOptions{
        Trigger:       cfg.Tracker.Trigger,
        RTT:           cfg.Tracker.RTT,
        ResponseBytes: cfg.Tracker.ResponseBytes,
    }).Run(ctx)
}

// finish flushes whatever completed, even when the session did not.
func finish(tr *tracker.Tracker, f *results.Flusher, summary bool) {
    if err := f.Flush(); err != nil { zap.L().Error("final flush failed", zap.Error(err)) }
    p := tr.Progress()
    fields := []zap.Field{
        zap.Uint32("declared", p.Declared), zap.Int("completed", p.Completed),
        zap.Uint64("fragments", p.Fragments), zap.Uint64("duplicates", p.Duplicates),
        zap.Uint64("malformed", p.Malformed), zap.Bool("session_complete", p.SessionComplete),
    }
    if !p.SessionComplete { fields = append(fields, zap.Uint32s("missing", tr.Missing(32))) }
    zap.L().Info("receiver stopped", fields...)
    if summary { zap.L().Info("summary", zap.Any("summary", f.Summary())) }
}

func buildSinks(c config.ResultsConfig) (results.Multi, error) {
    var sinks results.Multi
    fail := func(err error) (results.Multi, error) { _ = sinks.Close(); return nil, err }
    if c.Table != "" { sinks = append(sinks, results.NewTableFile(c.Table)) }
    if c.CodecFile != "" {
        reg, err := codec.NewRegistry()
        if err != nil { return fail(err) }
        cd, err := reg.Lookup(c.Codec)
        if err != nil { return fail(err) }
        sinks = append(sinks, results.NewCodecFile(c.CodecFile, cd))
    }
    if c.Log { sinks = append(sinks, results.LogSink{}) }
    if c.Redis.Addr != "" {
        rs, err := results.NewRedisSink(c.Redis.Addr, c.Redis.Password, c.Redis.DB, c.Redis.Key)
        if err != nil { return fail(err) }
        sinks = append(sinks, rs)
    }
    if c.WebSocket.URL != "" {
        ws, err := results.DialWebSocket(c.WebSocket.URL)
        if err != nil { return fail(err) }
        sinks = append(sinks, ws)
    }
    return sinks, nil
}
