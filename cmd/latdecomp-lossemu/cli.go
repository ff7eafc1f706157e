package main

import (
    "flag"

    "latdecomp/pkg/config"
)

// Options holds CLI options for the loss emulator. Zero values leave the config untouched.
type Options struct {
    ConfigPath string
    Interface  string
    Odds       uint
    BurstMin   int
    BurstSpan  uint
    Generic    bool
    ReportMS   int
    LogLevel   string
}

// ParseFlags parses CLI flags from args and returns Options.
func ParseFlags(args []string) Options {
    fs := flag.NewFlagSet("latdecomp-lossemu", flag.ExitOnError)
    var opts Options
    fs.StringVar(&opts.ConfigPath, "config", "", "Path to YAML config file")
    fs.StringVar(&opts.Interface, "iface", "", "Interface whose receive path drops packets")
    fs.UintVar(&opts.Odds, "odds", 0, "Start a burst on 1 in N packets")
    fs.IntVar(&opts.BurstMin, "burst-min", -1, "Fewest packets dropped after a burst starts")
    fs.UintVar(&opts.BurstSpan, "burst-span", 0, "Burst length varies over this many values")
    fs.BoolVar(&opts.Generic, "generic", false, "Use generic XDP instead of driver mode")
    fs.IntVar(&opts.ReportMS, "report-ms", 0, "Counter logging period")
    fs.StringVar(&opts.LogLevel, "log-level", "", "debug|info|warn|error")
    _ = fs.Parse(args)
    return opts
}

// apply copies explicitly set options over cfg.
func (o Options) apply(cfg *config.Config) {
    if o.Interface != "" { cfg.LossEmu.Interface = o.Interface }
    if o.Odds > 0 { cfg.LossEmu.Odds = uint32(o.Odds) }
    if o.BurstMin >= 0 { cfg.LossEmu.BurstMin = uint32(o.BurstMin) }
    if o.BurstSpan > 0 { cfg.LossEmu.BurstSpan = uint32(o.BurstSpan) }
    if o.Generic { cfg.LossEmu.Generic = true }
    if o.ReportMS > 0 { cfg.LossEmu.ReportMS = o.ReportMS }
    if o.LogLevel != "" { cfg.Log.Level = o.LogLevel }
}
