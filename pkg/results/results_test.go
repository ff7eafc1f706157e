package results

import (
    "encoding/json"
    "errors"
    "math/rand"
    "net/http"
    "net/http/httptest"
    "os"
    "path/filepath"
    "strings"
    "testing"

    "github.com/gorilla/websocket"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "latdecomp/pkg/codec"
    "latdecomp/pkg/rtt"
    "latdecomp/pkg/tracker"
    "latdecomp/pkg/transport"
    "latdecomp/pkg/wire"
)

var sample = []tracker.LatencyRecord{
    {RequestID: 0, FirstFragmentLatencyUS: 100, SpreadUS: 160},
    {RequestID: 1, FirstFragmentLatencyUS: -20, SpreadUS: 0},
    {RequestID: 2, FirstFragmentLatencyUS: 300, SpreadUS: 40},
}

type memSink struct {
    writes [][]tracker.LatencyRecord
    err    error
    closed bool
}

func (m *memSink) Write(_ Variant, recs []tracker.LatencyRecord) error {
    m.writes = append(m.writes, recs)
    return m.err
}
func (m *memSink) Close() error { m.closed = true; return m.err }

func TestVariantColumns(t *testing.T) {
    assert.Equal(t, VariantDatagram, VariantFor(transport.KindUDP))
    assert.Equal(t, VariantStream, VariantFor(transport.KindQUIC))
    assert.Equal(t, "Transmission_Delay(us)", VariantStream.Columns()[1])
    assert.Equal(t, "Spread(us)", VariantDatagram.Columns()[2])
}

func TestTableFileRewritesEachFlush(t *testing.T) {
    path := filepath.Join(t.TempDir(), "out", "latency.txt")
    tf := NewTableFile(path)
    require.NoError(t, tf.Write(VariantStream, sample[:1]))
    require.NoError(t, tf.Write(VariantStream, sample))

    b, err := os.ReadFile(path)
    require.NoError(t, err)
    lines := strings.Split(strings.TrimSpace(string(b)), "\n")
    require.Len(t, lines, 4)
    assert.Equal(t, []string{"Request_ID", "Transmission_Delay(us)", "Data_Reception_Duration(us)"}, strings.Fields(lines[0]))
    assert.Equal(t, []string{"1", "-20", "0"}, strings.Fields(lines[2]))
}

func TestCodecFile(t *testing.T) {
    reg, err := codec.NewRegistry()
    require.NoError(t, err)
    for _, name := range []string{"json", "cbor", "proto"} {
        t.Run(name, func(t *testing.T) {
            c, err := reg.Lookup(name)
            require.NoError(t, err)
            f := NewCodecFile(filepath.Join(t.TempDir(), "results"), c)
            assert.Equal(t, c.Ext(), filepath.Ext(f.Path))
            require.NoError(t, f.Write(VariantDatagram, sample))

            b, err := os.ReadFile(f.Path)
            require.NoError(t, err)
            var got Batch
            require.NoError(t, c.Unmarshal(b, &got))
            assert.Equal(t, "datagram", got.Variant)
            assert.Equal(t, sample, got.Records)
            assert.Equal(t, 3, got.Summary.Count)
        })
    }
}

func TestMultiWritesAllAndJoinsErrors(t *testing.T) {
    bad := &memSink{err: errors.New("disk full")}
    good := &memSink{}
    m := Multi{bad, good, LogSink{}}
    err := m.Write(VariantDatagram, sample)
    assert.ErrorContains(t, err, "disk full")
    assert.Len(t, good.writes, 1)
    assert.Error(t, m.Close())
    assert.True(t, good.closed)
}

func TestSummarize(t *testing.T) {
    s := Summarize(sample)
    assert.Equal(t, 3, s.Count)
    assert.Equal(t, int64(-20), s.FirstLatency.Min)
    assert.Equal(t, int64(300), s.FirstLatency.Max)
    assert.Equal(t, int64(100), s.FirstLatency.P50)
    assert.InDelta(t, 126.67, s.FirstLatency.Mean, 0.01)
    assert.Equal(t, int64(40), s.Spread.P50)
    assert.Equal(t, Summary{}, Summarize(nil))
}

func TestRTTFileAndSummary(t *testing.T) {
    recs := []rtt.Record{
        {RequestID: 0, RTTUS: 900, OffsetUS: 40, ResponseBytes: 100},
        {RequestID: 1, RTTUS: 700, OffsetUS: -20, ResponseBytes: 100},
        {RequestID: 2, RTTUS: 800, OffsetUS: 10, ResponseBytes: 100},
    }
    path := filepath.Join(t.TempDir(), "rtt.txt")
    require.NoError(t, WriteRTTFile(path, recs))
    b, err := os.ReadFile(path)
    require.NoError(t, err)
    lines := strings.Split(strings.TrimSpace(string(b)), "\n")
    require.Len(t, lines, 4)
    assert.Equal(t, []string{"Request_ID", "RTT(us)", "Clock_Offset(us)", "Response_Bytes"}, strings.Fields(lines[0]))
    assert.Equal(t, []string{"1", "700", "-20", "100"}, strings.Fields(lines[2]))

    s := SummarizeRTT(recs)
    assert.Equal(t, 3, s.Count)
    assert.Equal(t, int64(700), s.RTT.Min)
    assert.Equal(t, int64(800), s.RTT.P50)
    assert.Equal(t, int64(10), s.Offset.P50)
    assert.Equal(t, RTTSummary{}, SummarizeRTT(nil))
}

func TestPercentileSelectionMatchesSort(t *testing.T) {
    rng := rand.New(rand.NewSource(7))
    vals := make([]int64, 5000)
    for i := range vals { vals[i] = rng.Int63n(100000) - 5000 }
    sorted := append([]int64(nil), vals...)
    statsOf(sorted)
    for _, p := range []float64{0, 50, 95, 99, 100} {
        assert.Equal(t, percentileSorted(sorted, p), Percentile(vals, p), "p%.0f", p)
    }
    assert.Zero(t, Percentile(nil, 50))
}

func completeRequest(tr *tracker.Tracker, id, total uint32) tracker.Event {
    return tr.Observe(wire.Fragment{Index: 0, Count: 1, RequestID: id, TotalRequests: total, SendTimestamp: 10}, 25)
}

func TestFlusherCadence(t *testing.T) {
    tr := tracker.New(tracker.Options{})
    sink := &memSink{}
    f := NewFlusher(tr, sink, VariantDatagram, 2)
    for id := uint32(0); id < 5; id++ {
        completeRequest(tr, id, 6)
        f.RequestCompleted(id)
    }
    require.Len(t, sink.writes, 2)
    assert.Len(t, sink.writes[1], 4)

    require.NoError(t, f.Flush())
    assert.Len(t, sink.writes[2], 5)
    assert.Equal(t, 3, f.Flushes())
    assert.Equal(t, 5, f.Summary().Count)

    off := NewFlusher(tr, &memSink{}, VariantDatagram, 0)
    off.RequestCompleted(0)
    assert.Zero(t, off.Flushes())
}

func TestWebSocketSink(t *testing.T) {
    got := make(chan Batch, 1)
    up := websocket.Upgrader{}
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        c, err := up.Upgrade(w, r, nil)
        if err != nil { return }
        defer c.Close()
        var b Batch
        if err := c.ReadJSON(&b); err == nil { got <- b }
        _, _, _ = c.ReadMessage()
    }))
    defer srv.Close()

    s, err := DialWebSocket("ws" + strings.TrimPrefix(srv.URL, "http"))
    require.NoError(t, err)
    require.NoError(t, s.Write(VariantStream, sample))
    b := <-got
    assert.Equal(t, "stream", b.Variant)
    assert.Equal(t, sample, b.Records)
    require.NoError(t, s.Close())
}

func TestRedisPayload(t *testing.T) {
    items, summary, err := redisPayload(VariantDatagram, sample)
    require.NoError(t, err)
    require.Len(t, items, 3)
    var r tracker.LatencyRecord
    require.NoError(t, json.Unmarshal([]byte(items[1].(string)), &r))
    assert.Equal(t, sample[1], r)
    assert.Contains(t, summary, `"variant":"datagram"`)
}

// Runs against a live server when LATDECOMP_TEST_REDIS is set (host:port).
func TestRedisSinkLive(t *testing.T) {
    addr := os.Getenv("LATDECOMP_TEST_REDIS")
    if addr == "" { t.Skip("LATDECOMP_TEST_REDIS not set") }
    s, err := NewRedisSink(addr, "", 0, "latdecomp:test")
    require.NoError(t, err)
    defer s.Close()
    require.NoError(t, s.Write(VariantDatagram, sample))
    n, err := s.client.LLen("latdecomp:test").Result()
    require.NoError(t, err)
    assert.Equal(t, int64(3), n)
}
