package main

import (
    "flag"

    "latdecomp/pkg/config"
)

// Options holds CLI options for the receiver. Zero values leave the config untouched.
type Options struct {
    ConfigPath    string
    Transport     string
    Listen        string
    TotalRequests uint
    FlushEvery    int
    Table         string
    Trigger       bool
    RTT           bool
    ResponseBytes int
    ClockOffsetUS int64
    LogLevel      string
}

// ParseFlags parses CLI flags from args and returns Options.
func ParseFlags(args []string) Options {
    fs := flag.NewFlagSet("latdecomp-recv", flag.ExitOnError)
    var opts Options
    fs.StringVar(&opts.ConfigPath, "config", "", "Path to YAML config file")
    fs.StringVar(&opts.Transport, "transport", "", "udp|tcp|quic|winpipe")
    fs.StringVar(&opts.Listen, "listen", "", "Listen address for the selected transport")
    fs.UintVar(&opts.TotalRequests, "requests", 0, "Pre-declared session size (0 = learn from the wire)")
    fs.IntVar(&opts.FlushEvery, "flush-every", -1, "Write results every N completed requests (0 = only at exit)")
    fs.StringVar(&opts.Table, "out", "", "Result table path")
    fs.BoolVar(&opts.Trigger, "trigger", false, "Send a trigger token after every completed request")
    fs.BoolVar(&opts.RTT, "rtt", false, "Answer every completed request with a round-trip response")
    fs.IntVar(&opts.ResponseBytes, "response-bytes", -1, "Response filler bytes in round-trip mode")
    fs.Int64Var(&opts.ClockOffsetUS, "clock-offset-us", 0, "Receiver minus sender clock, applied to first-fragment latency")
    fs.StringVar(&opts.LogLevel, "log-level", "", "debug|info|warn|error")
    _ = fs.Parse(args)
    return opts
}

// apply copies explicitly set options over cfg.
func (o Options) apply(cfg *config.Config) {
    if o.Transport != "" { cfg.Transport = o.Transport }
    if o.Listen != "" {
        cfg.Datagram.Listen = o.Listen
        cfg.Stream.Listen = o.Listen
    }
    if o.TotalRequests > 0 { cfg.Tracker.TotalRequests = uint32(o.TotalRequests) }
    if o.FlushEvery >= 0 { cfg.Tracker.FlushEvery = o.FlushEvery }
    if o.Table != "" { cfg.Results.Table = o.Table }
    if o.Trigger { cfg.Tracker.Trigger = true }
    if o.RTT { cfg.Tracker.RTT = true }
    if o.ResponseBytes >= 0 { cfg.Tracker.ResponseBytes = o.ResponseBytes }
    if o.ClockOffsetUS != 0 { cfg.Tracker.ClockOffsetUS = o.ClockOffsetUS }
    if o.LogLevel != "" { cfg.Log.Level = o.LogLevel }
}
