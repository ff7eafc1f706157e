package receiver

import (
    "context"
    "net"
    "os"
    "sync"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "latdecomp/pkg/emitter"
    "latdecomp/pkg/rtt"
    "latdecomp/pkg/tracker"
    "latdecomp/pkg/transport"
    "latdecomp/pkg/transport/mem"
    "latdecomp/pkg/trigger"
    "latdecomp/pkg/wire"
)

type countNotifier struct {
    mu  sync.Mutex
    ids []uint32
}

func (n *countNotifier) RequestCompleted(id uint32) { n.mu.Lock(); n.ids = append(n.ids, id); n.mu.Unlock() }

func (n *countNotifier) count() int { n.mu.Lock(); defer n.mu.Unlock(); return len(n.ids) }

// chanPacketConn feeds queued datagrams to the receiver and times out when idle.
type chanPacketConn struct {
    in     chan []byte
    sent   chan []byte
    closed chan struct{}
    once   sync.Once
}

func newChanPacketConn() *chanPacketConn {
    return &chanPacketConn{in: make(chan []byte, 64), sent: make(chan []byte, 64), closed: make(chan struct{})}
}

var peerAddr = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9}

func (c *chanPacketConn) ReadPacket(buf []byte, timeout time.Duration) (int, net.Addr, error) {
    select {
    case b := <-c.in:
        return copy(buf, b), peerAddr, nil
    case <-c.closed:
        return 0, nil, net.ErrClosed
    case <-time.After(timeout):
        return 0, nil, os.ErrDeadlineExceeded
    }
}
func (c *chanPacketConn) SendBytes(b []byte) error { c.in <- append([]byte(nil), b...); return nil }
func (c *chanPacketConn) WriteTo(b []byte, _ net.Addr) (int, error) {
    c.sent <- append([]byte(nil), b...); return len(b), nil
}
func (c *chanPacketConn) LocalAddr() net.Addr { return peerAddr }
func (c *chanPacketConn) Close() error      { c.once.Do(func() { close(c.closed) }); return nil }

func TestDatagramCompletesSession(t *testing.T) {
    conn := newChanPacketConn()
    tr := tracker.New(tracker.Options{Capacity: 100})
    n := &countNotifier{}
    d := NewDatagram(conn, tr, n, DatagramOptions{RecvTimeout: 10 * time.Millisecond, Capacity: 100, Trigger: true})

    conn.in <- []byte{1, 2, 3} // undecodable
    em := emitter.NewDatagram(conn, emitter.DatagramOptions{MaxFragmentSize: 100})
    for id := uint32(0); id < 3; id++ {
        require.NoError(t, em.WriteRequest(context.Background(), id, 3, 250))
    }

    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    require.NoError(t, d.Run(ctx))

    assert.True(t, tr.SessionComplete())
    assert.Len(t, tr.Snapshot(), 3)
    assert.Equal(t, 3, n.count())
    assert.Equal(t, uint64(1), tr.Progress().Malformed)
    assert.Len(t, conn.sent, 3)
    assert.True(t, wire.IsTrigger(<-conn.sent))
}

func TestDatagramStopsOnCancelAndClose(t *testing.T) {
    conn := newChanPacketConn()
    tr := tracker.New(tracker.Options{})
    d := NewDatagram(conn, tr, nil, DatagramOptions{RecvTimeout: 5 * time.Millisecond})

    ctx, cancel := context.WithCancel(context.Background())
    done := make(chan error, 1)
    go func() { done <- d.Run(ctx) }()
    time.Sleep(20 * time.Millisecond)
    cancel()
    select {
    case err := <-done:
        assert.NoError(t, err)
    case <-time.After(2 * time.Second):
        t.Fatal("receiver did not stop after cancel")
    }

    conn2 := newChanPacketConn()
    _ = conn2.Close()
    assert.NoError(t, NewDatagram(conn2, tr, nil, DatagramOptions{}).Run(context.Background()))
}

func startStream(t *testing.T, tr *tracker.Tracker, n Notifier, opts StreamOptions) (transport.StreamTransport, string, <-chan error, context.CancelFunc) {
    t.Helper()
    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    mt := mem.New()
    l, err := mt.Listen(ctx, t.Name())
    require.NoError(t, err)
    done := make(chan error, 1)
    go func() { done <- NewStream(l, tr, n, opts).Run(ctx) }()
    return mt, t.Name(), done, cancel
}

func TestStreamCompletesSession(t *testing.T) {
    tr := tracker.New(tracker.Options{})
    n := &countNotifier{}
    mt, addr, done, cancel := startStream(t, tr, n, StreamOptions{})
    defer cancel()

    c, err := mt.Dial(context.Background(), addr)
    require.NoError(t, err)
    defer c.Close()
    sent, err := emitter.Run(context.Background(), emitter.NewStream(c, emitter.StreamOptions{}), emitter.Plan{Requests: 3, PayloadBytes: 5000}, nil)
    require.NoError(t, err)
    assert.Equal(t, uint32(3), sent)

    require.NoError(t, <-done)
    recs := tr.Snapshot()
    require.Len(t, recs, 3)
    for i, r := range recs {
        assert.Equal(t, uint32(i), r.RequestID)
        assert.GreaterOrEqual(t, r.SpreadUS, int64(0))
    }
    assert.Equal(t, 3, n.count())
}

func TestStreamIncompleteTransferIsIsolated(t *testing.T) {
    tr := tracker.New(tracker.Options{})
    mt, addr, done, cancel := startStream(t, tr, nil, StreamOptions{})

    bad, err := mt.Dial(context.Background(), addr)
    require.NoError(t, err)
    h := wire.StreamHeader{RequestID: 0, TotalRequests: 2, DataSize: 100}
    hb, _ := h.MarshalBinary()
    _, err = bad.Write(append(hb, make([]byte, 10)...))
    require.NoError(t, err)
    require.NoError(t, bad.Close())

    good, err := mt.Dial(context.Background(), addr)
    require.NoError(t, err)
    require.NoError(t, emitter.NewStream(good, emitter.StreamOptions{}).WriteRequest(context.Background(), 1, 2, 64))

    require.Eventually(t, func() bool { return len(tr.Snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)
    assert.False(t, tr.SessionComplete())
    assert.Equal(t, []uint32{0}, tr.Missing(0))

    cancel()
    require.NoError(t, <-done)
    _, err = good.Write([]byte{0})
    assert.Error(t, err, "receiver closes live connections on shutdown")
}

func TestStreamTriggerMode(t *testing.T) {
    tr := tracker.New(tracker.Options{})
    mt, addr, done, cancel := startStream(t, tr, nil, StreamOptions{Trigger: true})
    defer cancel()

    c, err := mt.Dial(context.Background(), addr)
    require.NoError(t, err)
    defer c.Close()
    w := trigger.NewStreamTokens(c)
    _, err = emitter.Run(context.Background(), emitter.NewStream(c, emitter.StreamOptions{}), emitter.Plan{Requests: 4, PayloadBytes: 128}, w)
    require.NoError(t, err)
    require.NoError(t, <-done)
    assert.Len(t, tr.Snapshot(), 4)
}

func TestDatagramRoundTripReplies(t *testing.T) {
    conn := newChanPacketConn()
    tr := tracker.New(tracker.Options{Capacity: 100})
    d := NewDatagram(conn, tr, nil, DatagramOptions{
        RecvTimeout: 10 * time.Millisecond, Trigger: true, RTT: true, ResponseBytes: 64,
        Clock: func() int64 { return 9000 },
    })
    sendUS := int64(1000)
    em := emitter.NewDatagram(conn, emitter.DatagramOptions{MaxFragmentSize: 100, Clock: func() int64 { sendUS++; return sendUS }})
    for id := uint32(0); id < 2; id++ {
        require.NoError(t, em.WriteRequest(context.Background(), id, 2, 150))
    }

    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    require.NoError(t, d.Run(ctx))
    require.Len(t, conn.sent, 2)

    for id, echo := range []uint64{1001, 1003} {
        b := <-conn.sent
        require.Len(t, b, wire.ResponseHeaderSize+64)
        resp, err := wire.DecodeResponse(b)
        require.NoError(t, err)
        assert.Equal(t, wire.Response{RequestID: uint32(id), EchoTimestamp: echo, ReceiverTimestamp: 9000, DataSize: 64}, resp)
    }
}

func TestStreamRoundTripMode(t *testing.T) {
    tr := tracker.New(tracker.Options{})
    mt, addr, done, cancel := startStream(t, tr, nil, StreamOptions{RTT: true, Trigger: true, ResponseBytes: 40000})
    defer cancel()

    c, err := mt.Dial(context.Background(), addr)
    require.NoError(t, err)
    defer c.Close()
    resp := rtt.NewStreamResponses(c, nil)
    sent, err := emitter.Run(context.Background(), emitter.NewStream(c, emitter.StreamOptions{}), emitter.Plan{Requests: 3, PayloadBytes: 256}, resp)
    require.NoError(t, err)
    require.Equal(t, uint32(3), sent)
    require.NoError(t, resp.Collect(context.Background()))
    require.NoError(t, <-done)

    recs := resp.Records()
    require.Len(t, recs, 3)
    for i, r := range recs {
        assert.Equal(t, uint32(i), r.RequestID)
        assert.Equal(t, 40000, r.ResponseBytes)
        assert.GreaterOrEqual(t, r.RTTUS, int64(0))
    }
}
