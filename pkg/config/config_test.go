package config

import (
    "os"
    "path/filepath"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "latdecomp/pkg/transport"
)

func writeYAML(t *testing.T, body string) string {
    t.Helper()
    p := filepath.Join(t.TempDir(), "latdecomp.yaml")
    require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
    return p
}

func TestLoadDefaults(t *testing.T) {
    cfg, err := Load(writeYAML(t, "log:\n  level: info\n"))
    require.NoError(t, err)
    assert.Equal(t, transport.KindUDP, cfg.Kind())
    assert.Equal(t, 500*time.Millisecond, cfg.RecvTimeout())
    assert.Equal(t, 1400, cfg.Tracker.MaxFragmentSize)
    assert.Equal(t, 10, cfg.Tracker.FlushEvery)
    assert.Equal(t, 5*time.Second, cfg.ResponseTimeout())
    assert.Equal(t, 100, cfg.Tracker.ResponseBytes)
}

func TestLoadRoundTripSettings(t *testing.T) {
    p := writeYAML(t, `transport: tcp
emitter:
  rtt: true
tracker:
  rtt: true
  response_bytes: 70000
`)
    t.Setenv("LATDECOMP_TRACKER_CLOCK_OFFSET_US", "-1500")
    cfg, err := Load(p)
    require.NoError(t, err)
    assert.True(t, cfg.Emitter.RTT)
    assert.True(t, cfg.Tracker.RTT)
    assert.Equal(t, 70000, cfg.Tracker.ResponseBytes)
    assert.Equal(t, int64(-1500), cfg.Tracker.ClockOffsetUS)
    assert.Equal(t, "rtt_results.txt", cfg.Results.RTTTable)
}

func TestLoadFileAndEnv(t *testing.T) {
    p := writeYAML(t, `
transport: TCP
emitter:
  total_requests: 7
  payload_bytes: 65536
tracker:
  flush_every: 0
results:
  codec: cbor
  redis:
    addr: 127.0.0.1:6379
`)
    t.Setenv("LATDECOMP_EMITTER_INTERVAL_MS", "25")
    cfg, err := Load(p)
    require.NoError(t, err)
    assert.Equal(t, transport.KindTCP, cfg.Kind())
    assert.Equal(t, uint32(7), cfg.Emitter.TotalRequests)
    assert.Equal(t, 65536, cfg.Emitter.PayloadBytes)
    assert.Equal(t, 0, cfg.Tracker.FlushEvery)
    assert.Equal(t, 25*time.Millisecond, cfg.Interval())
    assert.Equal(t, "latdecomp:results", cfg.Results.Redis.Key)
}

func TestLoadConfigFromEnvPath(t *testing.T) {
    p := writeYAML(t, "transport: quic\n")
    t.Setenv("LATDECOMP_CONFIG", p)
    cfg, err := Load("")
    require.NoError(t, err)
    assert.Equal(t, transport.KindQUIC, cfg.Kind())
}

func TestValidateRejects(t *testing.T) {
    cases := map[string]string{
        "level":     "log:\n  level: loud\n",
        "transport": "transport: smoke\n",
        "fragment":  "tracker:\n  max_fragment_size: 70000\n",
        "timeout":   "datagram:\n  recv_timeout_ms: 0\n",
        "flush":     "tracker:\n  flush_every: -1\n",
        "response":  "tracker:\n  response_bytes: 70000\n",
        "rtt":       "emitter:\n  rtt: true\n  response_timeout_ms: 0\n",
    }
    for name, body := range cases {
        t.Run(name, func(t *testing.T) {
            _, err := Load(writeYAML(t, body))
            assert.Error(t, err)
        })
    }
}

func TestLoadBrokenFile(t *testing.T) {
    _, err := Load(writeYAML(t, "transport: [unterminated\n"))
    assert.Error(t, err)
    _, err = Load(writeYAML(t, "log:\n  level: nope\n"))
    assert.ErrorContains(t, err, "log.level")
}

func TestWarningsOnFragmentSizeMismatch(t *testing.T) {
    cfg, err := Load(writeYAML(t, "emitter:\n  max_fragment_size: 1400\ntracker:\n  max_fragment_size: 1000\n"))
    require.NoError(t, err)
    ws := cfg.Warnings()
    require.Len(t, ws, 1)
    assert.Contains(t, ws[0], "emitter.max_fragment_size")

    assert.Empty(t, Default().Warnings())
}
