package emitter

import (
    "bytes"
    "context"
    "errors"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "latdecomp/pkg/tracker"
    "latdecomp/pkg/trigger"
    "latdecomp/pkg/wire"
)

type captureSender struct {
    frames [][]byte
    failAt int
}

func (c *captureSender) SendBytes(b []byte) error {
    if c.failAt > 0 && len(c.frames)+1 == c.failAt { return errors.New("boom") }
    c.frames = append(c.frames, append([]byte(nil), b...))
    return nil
}

func stepClock(start, step int64) wire.Clock {
    t := start - step
    return func() int64 { t += step; return t }
}

func TestSplit(t *testing.T) {
    sp, err := Split(3000, 1400)
    require.NoError(t, err)
    assert.Equal(t, 3, sp.Count())
    var sizes []int
    for c, ok := sp.Next(); ok; c, ok = sp.Next() {
        assert.Equal(t, uint32(3), c.Count)
        sizes = append(sizes, c.Size)
    }
    assert.Equal(t, []int{1400, 1400, 200}, sizes)

    sp, _ = Split(2800, 1400)
    assert.Equal(t, 2, sp.Count())

    sp, _ = Split(0, 1400)
    c, ok := sp.Next()
    require.True(t, ok)
    assert.Equal(t, Chunk{Index: 0, Count: 1}, c)
    _, ok = sp.Next()
    assert.False(t, ok)

    _, err = Split(10, 0)
    assert.Error(t, err)
}

func TestDatagramStampsEachFragment(t *testing.T) {
    out := &captureSender{}
    d := NewDatagram(out, DatagramOptions{MaxFragmentSize: 1400, Clock: stepClock(1000, 7)})
    require.NoError(t, d.WriteRequest(context.Background(), 4, 10, 3000))
    require.Len(t, out.frames, 3)

    wantSizes := []uint32{1400, 1400, 200}
    for i, b := range out.frames {
        f, err := wire.DecodeFragment(b, 1400)
        require.NoError(t, err)
        assert.Equal(t, uint32(i), f.Index)
        assert.Equal(t, uint32(3), f.Count)
        assert.Equal(t, uint32(4), f.RequestID)
        assert.Equal(t, uint32(10), f.TotalRequests)
        assert.Equal(t, wantSizes[i], f.PayloadSize)
        assert.Equal(t, uint64(1000+7*i), f.SendTimestamp)
        assert.Equal(t, byte('A'), f.Payload[0])
        assert.Equal(t, byte('Z'), f.Payload[25])
    }
}

func TestDatagramPadding(t *testing.T) {
    out := &captureSender{}
    d := NewDatagram(out, DatagramOptions{MaxFragmentSize: 100, Pad: true})
    require.NoError(t, d.WriteRequest(context.Background(), 0, 1, 30))
    require.Len(t, out.frames, 1)
    assert.Len(t, out.frames[0], wire.FragmentHeaderSize+100)
}

func TestDatagramSendError(t *testing.T) {
    out := &captureSender{failAt: 2}
    d := NewDatagram(out, DatagramOptions{MaxFragmentSize: 10})
    err := d.WriteRequest(context.Background(), 0, 1, 25)
    var te *wire.TransportError
    require.ErrorAs(t, err, &te)
    assert.Len(t, out.frames, 1)
}

func TestEmitterToTracker(t *testing.T) {
    out := &captureSender{}
    d := NewDatagram(out, DatagramOptions{MaxFragmentSize: 1400, Clock: stepClock(1000, 10)})
    require.NoError(t, d.WriteRequest(context.Background(), 0, 1, 3000))

    tr := tracker.New(tracker.Options{Capacity: 1400})
    recv := []int64{1100, 1200, 1260}
    for i, b := range out.frames {
        f, err := wire.DecodeFragment(b, 1400)
        require.NoError(t, err)
        tr.Observe(f, recv[i])
    }
    assert.True(t, tr.SessionComplete())
    assert.Equal(t, []tracker.LatencyRecord{{RequestID: 0, FirstFragmentLatencyUS: 100, SpreadUS: 160}}, tr.Snapshot())
}

func TestStreamWritesHeaderAndPayload(t *testing.T) {
    var buf bytes.Buffer
    s := NewStream(&buf, StreamOptions{Clock: stepClock(555, 1), ChunkSize: 16})
    require.NoError(t, s.WriteRequest(context.Background(), 2, 3, 40))
    require.Equal(t, wire.StreamHeaderSize+40, buf.Len())

    h, err := wire.ReadStreamHeader(&buf)
    require.NoError(t, err)
    assert.Equal(t, wire.StreamHeader{SendTimestamp: 555, RequestID: 2, TotalRequests: 3, DataSize: 40}, h)
    assert.Equal(t, byte('A'), buf.Bytes()[0])
    assert.Equal(t, byte('A'), buf.Bytes()[26])
}

func TestStreamRejectsOutOfRangeSize(t *testing.T) {
    var buf bytes.Buffer
    s := NewStream(&buf, StreamOptions{})
    assert.Error(t, s.WriteRequest(context.Background(), 0, 1, -1))
    assert.Error(t, s.WriteRequest(context.Background(), 0, 1, wire.MaxStreamDataSize+1))
    assert.Zero(t, buf.Len())
}

func TestRunHonorsPlanAndContext(t *testing.T) {
    out := &captureSender{}
    d := NewDatagram(out, DatagramOptions{MaxFragmentSize: 100})
    n, err := Run(context.Background(), d, Plan{Requests: 5, PayloadBytes: 150}, trigger.Immediate{})
    require.NoError(t, err)
    assert.Equal(t, uint32(5), n)
    assert.Len(t, out.frames, 10)

    ctx, cancel := context.WithCancel(context.Background())
    cancel()
    n, err = Run(ctx, d, Plan{Requests: 5, PayloadBytes: 150}, nil)
    assert.ErrorIs(t, err, context.Canceled)
    assert.Zero(t, n)
}
