// Package config provides YAML-based configuration loading for latdecomp.
package config

import (
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "strings"
    "time"

    "github.com/spf13/viper"

    "latdecomp/pkg/transport"
    "latdecomp/pkg/wire"
)

// Config is the root configuration shared by the sender and receiver binaries.
type Config struct {
    // Transport selects the link under test: udp, tcp, quic, mem or winpipe.
    Transport string `mapstructure:"transport"`

    Log      LogConfig      `mapstructure:"log"`
    Datagram DatagramConfig `mapstructure:"datagram"`
    Stream   StreamConfig   `mapstructure:"stream"`
    Emitter  EmitterConfig  `mapstructure:"emitter"`
    Tracker  TrackerConfig  `mapstructure:"tracker"`
    Results  ResultsConfig  `mapstructure:"results"`
    LossEmu  LossEmuConfig  `mapstructure:"lossemu"`
}

// LogConfig defines logger settings.
type LogConfig struct {
    // Level: debug, info, warn, error
    Level string `mapstructure:"level"`
    // Format: console or json
    Format string `mapstructure:"format"`
    // Outputs: list of outputs: stdout, stderr, or file paths
    Outputs []string `mapstructure:"outputs"`

    // Rotation controls file rotation when writing to files
    Rotation RotationConfig `mapstructure:"rotation"`
    // Development toggles development-friendly logging options
    Development bool `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
    Enable     bool   `mapstructure:"enable"`
    Filename   string `mapstructure:"filename"`
    MaxSizeMB  int    `mapstructure:"max_size_mb"`
    MaxBackups int    `mapstructure:"max_backups"`
    MaxAgeDays int    `mapstructure:"max_age_days"`
    Compress   bool   `mapstructure:"compress"`
}

// DatagramConfig tunes the UDP endpoints.
type DatagramConfig struct {
    Listen string `mapstructure:"listen"`
    Target string `mapstructure:"target"`
    // RecvTimeoutMS bounds each receive so shutdown is observed.
    RecvTimeoutMS    int  `mapstructure:"recv_timeout_ms"`
    ReadBufferBytes  int  `mapstructure:"read_buffer_bytes"`
    WriteBufferBytes int  `mapstructure:"write_buffer_bytes"`
    TOS              int  `mapstructure:"tos"`
    TTL              int  `mapstructure:"ttl"`
    // Pad sends every fragment at full capacity, as a fixed-size record.
    Pad bool `mapstructure:"pad"`
}

// StreamConfig holds stream transport endpoints.
type StreamConfig struct {
    Listen string `mapstructure:"listen"`
    Target string `mapstructure:"target"`
}

// EmitterConfig describes what the sender emits.
type EmitterConfig struct {
    TotalRequests   uint32 `mapstructure:"total_requests"`
    PayloadBytes    int    `mapstructure:"payload_bytes"`
    MaxFragmentSize int    `mapstructure:"max_fragment_size"`
    // IntervalMS paces requests when not trigger-driven. 0 sends back to back.
    IntervalMS int `mapstructure:"interval_ms"`
    // Trigger waits for the receiver's trigger token before every request.
    Trigger bool `mapstructure:"trigger"`
    // RateBytesPerSec caps send rate across fragments; 0 disables.
    RateBytesPerSec int64 `mapstructure:"rate_bytes_per_sec"`
    BurstBytes      int64 `mapstructure:"burst_bytes"`
    // RTT waits for the receiver's response to each request and records the
    // round trip. It takes the place of Trigger.
    RTT               bool `mapstructure:"rtt"`
    ResponseTimeoutMS int  `mapstructure:"response_timeout_ms"`
}

// TrackerConfig configures the receive side.
type TrackerConfig struct {
    MaxFragmentSize int `mapstructure:"max_fragment_size"`
    // TotalRequests pre-declares the session size; 0 learns it from the wire.
    TotalRequests uint32 `mapstructure:"total_requests"`
    // FlushEvery writes results after every N completed requests; 0 only at shutdown.
    FlushEvery int `mapstructure:"flush_every"`
    // Trigger makes the receiver hand out trigger tokens.
    Trigger bool `mapstructure:"trigger"`
    // RTT answers every completed request with ResponseBytes of response.
    RTT           bool `mapstructure:"rtt"`
    ResponseBytes int  `mapstructure:"response_bytes"`
    // ClockOffsetUS is receiver clock minus sender clock, applied to
    // first-fragment latency.
    ClockOffsetUS int64 `mapstructure:"clock_offset_us"`
}

// ResultsConfig selects result sinks. Empty values disable a sink.
type ResultsConfig struct {
    Table     string          `mapstructure:"table"`
    Codec     string          `mapstructure:"codec"`
    CodecFile string          `mapstructure:"codec_file"`
    Log       bool            `mapstructure:"log"`
    Summary   bool            `mapstructure:"summary"`
    // RTTTable receives the emitter's round-trip table in RTT mode.
    RTTTable  string          `mapstructure:"rtt_table"`
    Redis     RedisConfig     `mapstructure:"redis"`
    WebSocket WebSocketConfig `mapstructure:"websocket"`
}

// RedisConfig points at a redis list receiving JSON records.
type RedisConfig struct {
    Addr     string `mapstructure:"addr"`
    Password string `mapstructure:"password"`
    DB       int    `mapstructure:"db"`
    Key      string `mapstructure:"key"`
}

// WebSocketConfig points at a websocket collector.
type WebSocketConfig struct {
    URL string `mapstructure:"url"`
}

// LossEmuConfig drives the XDP burst-drop loss emulator.
type LossEmuConfig struct {
    Interface string `mapstructure:"interface"`
    // Odds starts a burst on 1 in Odds packets.
    Odds      uint32 `mapstructure:"odds"`
    BurstMin  uint32 `mapstructure:"burst_min"`
    BurstSpan uint32 `mapstructure:"burst_span"`
    Generic   bool   `mapstructure:"generic"`
    // ReportMS is the counter logging period.
    ReportMS int `mapstructure:"report_ms"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
    return &Config{
        Transport: "udp",
        Log: LogConfig{
            Level:       "info",
            Format:      "console",
            Outputs:     []string{"stdout"},
            Development: true,
            Rotation: RotationConfig{
                Enable:     false,
                Filename:   "logs/latdecomp.log",
                MaxSizeMB:  50,
                MaxBackups: 3,
                MaxAgeDays: 28,
                Compress:   true,
            },
        },
        Datagram: DatagramConfig{
            Listen:           ":12345",
            Target:           "127.0.0.1:12345",
            RecvTimeoutMS:    500,
            ReadBufferBytes:  4 << 20,
            WriteBufferBytes: 4 << 20,
        },
        Stream: StreamConfig{Listen: ":12346", Target: "127.0.0.1:12346"},
        Emitter: EmitterConfig{
            TotalRequests:     100,
            PayloadBytes:      3000,
            MaxFragmentSize:   wire.DefaultMaxFragmentSize,
            IntervalMS:        1000,
            ResponseTimeoutMS: 5000,
        },
        Tracker: TrackerConfig{MaxFragmentSize: wire.DefaultMaxFragmentSize, FlushEvery: 10, ResponseBytes: 100},
        Results: ResultsConfig{
            Table:    "latency_results.txt",
            RTTTable: "rtt_results.txt",
            Codec:    "json",
            Summary:  true,
            Redis:    RedisConfig{Key: "latdecomp:results"},
        },
        LossEmu: LossEmuConfig{Odds: 20000, BurstMin: 50, BurstSpan: 50, ReportMS: 2000},
    }
}

// Load reads configuration from the provided path (if non-empty),
// otherwise it searches common locations and supports environment overrides.
// Environment variables use the prefix LATDECOMP and `.`/`-` are replaced with `_`.
// Example: LATDECOMP_EMITTER_PAYLOAD_BYTES=65536
func Load(path string) (*Config, error) {
    cfg := Default()

    v := viper.New()
    v.SetConfigType("yaml")
    v.SetEnvPrefix("LATDECOMP")
    v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
    v.AutomaticEnv()

    // seed defaults for viper so env-only configs work
    v.SetDefault("transport", cfg.Transport)
    v.SetDefault("log.level", cfg.Log.Level)
    v.SetDefault("log.format", cfg.Log.Format)
    v.SetDefault("log.outputs", cfg.Log.Outputs)
    v.SetDefault("log.development", cfg.Log.Development)
    v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
    v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
    v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
    v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
    v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
    v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
    v.SetDefault("datagram.listen", cfg.Datagram.Listen)
    v.SetDefault("datagram.target", cfg.Datagram.Target)
    v.SetDefault("datagram.recv_timeout_ms", cfg.Datagram.RecvTimeoutMS)
    v.SetDefault("datagram.read_buffer_bytes", cfg.Datagram.ReadBufferBytes)
    v.SetDefault("datagram.write_buffer_bytes", cfg.Datagram.WriteBufferBytes)
    v.SetDefault("datagram.tos", cfg.Datagram.TOS)
    v.SetDefault("datagram.ttl", cfg.Datagram.TTL)
    v.SetDefault("datagram.pad", cfg.Datagram.Pad)
    v.SetDefault("stream.listen", cfg.Stream.Listen)
    v.SetDefault("stream.target", cfg.Stream.Target)
    v.SetDefault("emitter.total_requests", cfg.Emitter.TotalRequests)
    v.SetDefault("emitter.payload_bytes", cfg.Emitter.PayloadBytes)
    v.SetDefault("emitter.max_fragment_size", cfg.Emitter.MaxFragmentSize)
    v.SetDefault("emitter.interval_ms", cfg.Emitter.IntervalMS)
    v.SetDefault("emitter.trigger", cfg.Emitter.Trigger)
    v.SetDefault("emitter.rate_bytes_per_sec", cfg.Emitter.RateBytesPerSec)
    v.SetDefault("emitter.burst_bytes", cfg.Emitter.BurstBytes)
    v.SetDefault("emitter.rtt", cfg.Emitter.RTT)
    v.SetDefault("emitter.response_timeout_ms", cfg.Emitter.ResponseTimeoutMS)
    v.SetDefault("tracker.max_fragment_size", cfg.Tracker.MaxFragmentSize)
    v.SetDefault("tracker.total_requests", cfg.Tracker.TotalRequests)
    v.SetDefault("tracker.flush_every", cfg.Tracker.FlushEvery)
    v.SetDefault("tracker.trigger", cfg.Tracker.Trigger)
    v.SetDefault("tracker.rtt", cfg.Tracker.RTT)
    v.SetDefault("tracker.response_bytes", cfg.Tracker.ResponseBytes)
    v.SetDefault("tracker.clock_offset_us", cfg.Tracker.ClockOffsetUS)
    v.SetDefault("results.table", cfg.Results.Table)
    v.SetDefault("results.codec", cfg.Results.Codec)
    v.SetDefault("results.codec_file", cfg.Results.CodecFile)
    v.SetDefault("results.log", cfg.Results.Log)
    v.SetDefault("results.rtt_table", cfg.Results.RTTTable)
    v.SetDefault("results.summary", cfg.Results.Summary)
    v.SetDefault("results.redis.addr", cfg.Results.Redis.Addr)
    v.SetDefault("results.redis.password", cfg.Results.Redis.Password)
    v.SetDefault("results.redis.db", cfg.Results.Redis.DB)
    v.SetDefault("results.redis.key", cfg.Results.Redis.Key)
    v.SetDefault("results.websocket.url", cfg.Results.WebSocket.URL)
    v.SetDefault("lossemu.interface", cfg.LossEmu.Interface)
    v.SetDefault("lossemu.odds", cfg.LossEmu.Odds)
    v.SetDefault("lossemu.burst_min", cfg.LossEmu.BurstMin)
    v.SetDefault("lossemu.burst_span", cfg.LossEmu.BurstSpan)
    v.SetDefault("lossemu.generic", cfg.LossEmu.Generic)
    v.SetDefault("lossemu.report_ms", cfg.LossEmu.ReportMS)

    // Choose config file
    if path == "" {
        if envPath := os.Getenv("LATDECOMP_CONFIG"); envPath != "" {
            path = envPath
        }
    }

    if path != "" {
        v.SetConfigFile(path)
    } else {
        v.SetConfigName("latdecomp")
        v.AddConfigPath(".")
        v.AddConfigPath("./configs")
        if home, err := os.UserHomeDir(); err == nil {
            v.AddConfigPath(filepath.Join(home, ".latdecomp"))
        }
    }

    // Read config file if present; if not found, continue with defaults/env
    if err := v.ReadInConfig(); err != nil {
        var viperConfigFileNotFound viper.ConfigFileNotFoundError
        if !errors.As(err, &viperConfigFileNotFound) {
            return nil, fmt.Errorf("read config: %w", err)
        }
    }

    if err := v.Unmarshal(&cfg); err != nil {
        return nil, fmt.Errorf("decode config: %w", err)
    }

    if err := cfg.Validate(); err != nil {
        return nil, err
    }
    return cfg, nil
}

// Validate normalizes and checks the configuration. Load calls it; callers
// that modify a loaded Config should call it again.
func (c *Config) Validate() error {
    lvl := strings.ToLower(strings.TrimSpace(c.Log.Level))
    switch lvl {
    case "debug", "info", "warn", "warning", "error":
        // ok
    default:
        return fmt.Errorf("invalid log.level: %q", c.Log.Level)
    }
    if c.Log.Format == "" {
        c.Log.Format = "console"
    }
    if len(c.Log.Outputs) == 0 {
        c.Log.Outputs = []string{"stdout"}
    }

    c.Transport = strings.ToLower(strings.TrimSpace(c.Transport))
    if _, err := transport.ParseKind(c.Transport); err != nil {
        return fmt.Errorf("invalid transport: %w", err)
    }
    for name, n := range map[string]int{
        "emitter.max_fragment_size": c.Emitter.MaxFragmentSize,
        "tracker.max_fragment_size": c.Tracker.MaxFragmentSize,
    } {
        if n <= 0 || n > wire.MaxFragmentCapacity {
            return fmt.Errorf("invalid %s: %d (want 1..%d)", name, n, wire.MaxFragmentCapacity)
        }
    }
    if c.Datagram.RecvTimeoutMS <= 0 {
        return fmt.Errorf("invalid datagram.recv_timeout_ms: %d", c.Datagram.RecvTimeoutMS)
    }
    if c.Emitter.PayloadBytes < 0 || c.Emitter.PayloadBytes > wire.MaxStreamDataSize {
        return fmt.Errorf("invalid emitter.payload_bytes: %d", c.Emitter.PayloadBytes)
    }
    if c.Emitter.IntervalMS < 0 {
        return fmt.Errorf("invalid emitter.interval_ms: %d", c.Emitter.IntervalMS)
    }
    maxResponse := wire.MaxStreamDataSize
    if c.Kind().Datagram() { maxResponse = wire.MaxDatagramResponseData }
    if c.Tracker.ResponseBytes < 0 || c.Tracker.ResponseBytes > maxResponse {
        return fmt.Errorf("invalid tracker.response_bytes: %d (want 0..%d)", c.Tracker.ResponseBytes, maxResponse)
    }
    if c.Emitter.RTT && c.Emitter.ResponseTimeoutMS <= 0 {
        return fmt.Errorf("invalid emitter.response_timeout_ms: %d", c.Emitter.ResponseTimeoutMS)
    }
    if c.LossEmu.ReportMS <= 0 {
        return fmt.Errorf("invalid lossemu.report_ms: %d", c.LossEmu.ReportMS)
    }
    if c.Tracker.FlushEvery < 0 {
        return fmt.Errorf("invalid tracker.flush_every: %d", c.Tracker.FlushEvery)
    }
    if c.Results.Redis.Addr != "" && strings.TrimSpace(c.Results.Redis.Key) == "" {
        return errors.New("results.redis.key is required when results.redis.addr is set")
    }
    return nil
}

// Kind returns the parsed transport kind. Valid after Load.
func (c *Config) Kind() transport.Kind {
    k, _ := transport.ParseKind(c.Transport)
    return k
}

// RecvTimeout returns datagram.recv_timeout_ms as a duration.
func (c *Config) RecvTimeout() time.Duration { return time.Duration(c.Datagram.RecvTimeoutMS) * time.Millisecond }

// ResponseTimeout returns emitter.response_timeout_ms as a duration.
func (c *Config) ResponseTimeout() time.Duration { return time.Duration(c.Emitter.ResponseTimeoutMS) * time.Millisecond }

// Interval returns emitter.interval_ms as a duration.
func (c *Config) Interval() time.Duration { return time.Duration(c.Emitter.IntervalMS) * time.Millisecond }

// Warnings reports settings that are valid on their own but will not work
// together when both sides share this file.
func (c *Config) Warnings() []string {
    var out []string
    if c.Emitter.MaxFragmentSize > c.Tracker.MaxFragmentSize {
        out = append(out, fmt.Sprintf("emitter.max_fragment_size %d exceeds tracker.max_fragment_size %d; larger fragments will be rejected as malformed",
            c.Emitter.MaxFragmentSize, c.Tracker.MaxFragmentSize))
    }
    return out
}
