package rtt

import (
    "context"
    "net"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "latdecomp/pkg/trigger"
    "latdecomp/pkg/wire"
)

func TestMeasure(t *testing.T) {
    // sent at 1000, back at 1400; a receiver 4400us ahead stamps 5600 at the midpoint
    r := Measure(wire.Response{RequestID: 7, EchoTimestamp: 1000, ReceiverTimestamp: 5600, DataSize: 12}, 1400)
    assert.Equal(t, Record{RequestID: 7, RTTUS: 400, OffsetUS: 4400, ResponseBytes: 12}, r)
}

type datagrams [][]byte

func (d *datagrams) Read(p []byte) (int, error) {
    if len(*d) == 0 { return 0, net.ErrClosed }
    n := copy(p, (*d)[0])
    *d = (*d)[1:]
    return n, nil
}

func frame(id uint32, echo uint64, size int) []byte {
    b := wire.Response{RequestID: id, EchoTimestamp: echo, ReceiverTimestamp: echo + 50, DataSize: uint32(size)}.AppendHeader(nil)
    return append(b, make([]byte, size)...)
}

func TestDatagramResponsesSkipOtherTraffic(t *testing.T) {
    src := &datagrams{wire.TriggerToken[:], []byte("RESP"), frame(0, 100, 8), frame(1, 300, 0)}
    now := int64(200)
    w := NewDatagramResponses(src, func() int64 { return now })

    require.NoError(t, w.Wait(context.Background()))
    assert.Len(t, *src, 4, "first wait must not read")

    require.NoError(t, w.Wait(context.Background()))
    now = 420
    require.NoError(t, w.Collect(context.Background()))
    assert.Equal(t, []Record{
        {RequestID: 0, RTTUS: 100, OffsetUS: 0, ResponseBytes: 8},
        {RequestID: 1, RTTUS: 120, OffsetUS: -10, ResponseBytes: 0},
    }, w.Records())

    var te *wire.TransportError
    assert.ErrorAs(t, w.Collect(context.Background()), &te)
}

func TestStreamResponsesClosed(t *testing.T) {
    a, b := net.Pipe()
    defer a.Close()
    w := NewStreamResponses(a, nil)
    go func() {
        _, _ = b.Write(frame(3, 10, 70000))
        _ = b.Close()
    }()
    require.NoError(t, w.Collect(context.Background()))
    require.Len(t, w.Records(), 1)
    assert.Equal(t, 70000, w.Records()[0].ResponseBytes)
    assert.ErrorIs(t, w.Collect(context.Background()), trigger.ErrClosed)
}

func TestResponsesHonorTimeout(t *testing.T) {
    a, b := net.Pipe()
    defer a.Close()
    defer b.Close()
    w := trigger.WithTimeout(NewStreamResponses(a, nil), 20*time.Millisecond)
    require.NoError(t, w.Wait(context.Background()))
    start := time.Now()
    require.NoError(t, w.Wait(context.Background()), "a lost response must not stall the session")
    assert.Less(t, time.Since(start), time.Second)
}
