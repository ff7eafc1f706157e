package main

import (
    "flag"

    "latdecomp/pkg/config"
)

// Options holds CLI options for the sender. Zero values leave the config untouched.
type Options struct {
    ConfigPath    string
    Transport     string
    Target        string
    TotalRequests uint
    PayloadBytes  int
    MaxFragment   int
    IntervalMS    int
    Trigger       bool
    RTT           bool
    RTTTable      string
    LogLevel      string
}

// ParseFlags parses CLI flags from args and returns Options.
func ParseFlags(args []string) Options {
    fs := flag.NewFlagSet("latdecomp-send", flag.ExitOnError)
    var opts Options
    fs.StringVar(&opts.ConfigPath, "config", "", "Path to YAML config file")
    fs.StringVar(&opts.Transport, "transport", "", "udp|tcp|quic|winpipe")
    fs.StringVar(&opts.Target, "target", "", "Receiver address for the selected transport")
    fs.UintVar(&opts.TotalRequests, "requests", 0, "Number of logical requests in the session")
    fs.IntVar(&opts.PayloadBytes, "payload", -1, "Payload bytes per request")
    fs.IntVar(&opts.MaxFragment, "max-fragment", 0, "Largest fragment payload for datagram transports")
    fs.IntVar(&opts.IntervalMS, "interval-ms", -1, "Delay between requests when not trigger-driven")
    fs.BoolVar(&opts.Trigger, "trigger", false, "Wait for the receiver's trigger token before each request")
    fs.BoolVar(&opts.RTT, "rtt", false, "Wait for the receiver's response to each request and record round trips")
    fs.StringVar(&opts.RTTTable, "rtt-out", "", "Round-trip table path")
    fs.StringVar(&opts.LogLevel, "log-level", "", "debug|info|warn|error")
    _ = fs.Parse(args)
    return opts
}

// apply copies explicitly set options over cfg.
func (o Options) apply(cfg *config.Config) {
    if o.Transport != "" { cfg.Transport = o.Transport }
    if o.Target != "" {
        cfg.Datagram.Target = o.Target
        cfg.Stream.Target = o.Target
    }
    if o.TotalRequests > 0 { cfg.Emitter.TotalRequests = uint32(o.TotalRequests) }
    if o.PayloadBytes >= 0 { cfg.Emitter.PayloadBytes = o.PayloadBytes }
    if o.MaxFragment > 0 { cfg.Emitter.MaxFragmentSize = o.MaxFragment }
    if o.IntervalMS >= 0 { cfg.Emitter.IntervalMS = o.IntervalMS }
    if o.Trigger { cfg.Emitter.Trigger = true }
    if o.RTT { cfg.Emitter.RTT = true }
    if o.RTTTable != "" { cfg.Results.RTTTable = o.RTTTable }
    if o.LogLevel != "" { cfg.Log.Level = o.LogLevel }
}
