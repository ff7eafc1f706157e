package main

import (
    "context"
    "os"
    "time"

    "go.uber.org/zap"

    "latdecomp/pkg/config"
    "latdecomp/pkg/lossemu"
    "latdecomp/pkg/observability"
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

    logger, err := observability.SetupLogger(cfg.Log, "lossemu")
    if err != nil {
        _, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
        return 1
    }
    defer func() { _ = logger.Sync() }()

    em, err := lossemu.Attach(emulatorOptions(cfg.LossEmu))
    if err != nil {
        zap.L().Error("failed to attach loss emulator", zap.String("interface", cfg.LossEmu.Interface), zap.Error(err))
        return 1
    }
    defer func() {
        if err := em.Close(); err != nil { zap.L().Warn("detaching loss emulator", zap.Error(err)) }
        zap.L().Info("loss emulator detached")
    }()

    report(ctx, em, time.Duration(cfg.LossEmu.ReportMS)*time.Millisecond)
    return 0
}

func emulatorOptions(c config.LossEmuConfig) lossemu.Options {
    return lossemu.Options{
        Interface: c.Interface,
        Odds:      c.Odds,
        BurstMin:  c.BurstMin,
        BurstSpan: c.BurstSpan,
        Generic:   c.Generic,
    }
}

// report logs the counters every period until ctx ends.
func report(ctx context.Context, em *lossemu.Emulator, period time.Duration) {
    t := time.NewTicker(period)
    defer t.Stop()
    var last lossemu.Stats
    for {
        select {
        case <-ctx.Done():
            return
        case <-t.C:
        }
        s, err := em.Stats()
        if err != nil {
            zap.L().Warn("read loss counters", zap.Error(err))
            continue
        }
        zap.L().Info("loss counters",
            zap.Uint64("total", s.Total), zap.Uint64("new_packets", s.Total-last.Total),
            zap.Uint64("dropped", s.Dropped), zap.Uint64("new_drops", s.Dropped-last.Dropped),
            zap.Float64("drop_rate_pct", s.DropRate(last)), zap.Uint32("burst_remaining", s.BurstRemaining))
        last = s
    }
}
