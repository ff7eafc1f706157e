package wire

import (
    "bytes"
    "errors"
    "io"
    "testing"
    "testing/iotest"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestFragmentPaddedFrame(t *testing.T) {
    f := Fragment{
        SendTimestamp: 0x0102030405060708,
        Index:         2,
        Count:         3,
        RequestID:     7,
        TotalRequests: 10,
        PayloadSize:   200,
        Payload:       bytes.Repeat([]byte{'A'}, 200),
    }
    b := f.AppendBinary(nil, DefaultMaxFragmentSize)
    require.Len(t, b, FragmentHeaderSize+DefaultMaxFragmentSize)
    assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, b[0:8], "timestamp must be big-endian")

    got, err := DecodeFragment(b, DefaultMaxFragmentSize)
    require.NoError(t, err)
    assert.Equal(t, f.SendTimestamp, got.SendTimestamp)
    assert.Equal(t, f.Index, got.Index)
    assert.Equal(t, f.Count, got.Count)
    assert.Equal(t, f.RequestID, got.RequestID)
    assert.Equal(t, f.TotalRequests, got.TotalRequests)
    assert.Equal(t, f.Payload, got.Payload)
}

func TestDecodeFragmentRejects(t *testing.T) {
    _, err := DecodeFragment(make([]byte, FragmentHeaderSize-1), 0)
    assert.True(t, errors.Is(err, ErrShortFrame))

    f := Fragment{Index: 5, Count: 3}
    _, err = DecodeFragment(f.AppendBinary(nil, 0), 0)
    assert.True(t, errors.Is(err, ErrMalformedFragment))

    f = Fragment{Index: 0, Count: 1, PayloadSize: 1500}
    _, err = DecodeFragment(f.AppendBinary(nil, 0), DefaultMaxFragmentSize)
    assert.True(t, errors.Is(err, ErrMalformedFragment))

    // declared payload longer than the datagram
    b := (&Fragment{Count: 1, PayloadSize: 10}).AppendBinary(nil, 0)
    _, err = DecodeFragment(b[:FragmentHeaderSize+4], 0)
    assert.True(t, errors.Is(err, ErrShortFrame))
}

func TestStreamHeaderLayout(t *testing.T) {
    h := StreamHeader{SendTimestamp: 99, RequestID: 3, TotalRequests: 4, DataSize: 5000}
    b, err := h.MarshalBinary()
    require.NoError(t, err)
    require.Len(t, b, StreamHeaderSize)

    got, err := ReadStreamHeader(bytes.NewReader(b))
    require.NoError(t, err)
    assert.Equal(t, h, got)
}

func TestDrainPayloadToleratesShortReads(t *testing.T) {
    data := bytes.Repeat([]byte{'x'}, 10000)
    n, err := DrainPayload(iotest.OneByteReader(bytes.NewReader(data)), int64(len(data)), make([]byte, 512))
    require.NoError(t, err)
    assert.EqualValues(t, len(data), n)
}

func TestDrainPayloadIncomplete(t *testing.T) {
    n, err := DrainPayload(bytes.NewReader(make([]byte, 100)), 300, nil)
    assert.EqualValues(t, 100, n)
    assert.True(t, errors.Is(err, ErrIncompleteTransfer))

    n, err = DrainPayload(io.MultiReader(), 0, nil)
    assert.NoError(t, err)
    assert.Zero(t, n)
}

func TestIsTrigger(t *testing.T) {
    assert.True(t, IsTrigger([]byte("TRIG")))
    assert.False(t, IsTrigger([]byte("TRIX")))
    assert.False(t, IsTrigger([]byte("TRIGG")))
}

func TestResponseHeader(t *testing.T) {
    r := Response{RequestID: 4, EchoTimestamp: 1000, ReceiverTimestamp: 1500, DataSize: 3}
    b := append(r.AppendHeader(nil), 'x', 'x', 'x')
    require.Len(t, b, ResponseHeaderSize+3)
    assert.Equal(t, []byte("RESP"), b[:4])
    assert.True(t, IsResponse(b))
    assert.False(t, IsResponse(TriggerToken[:]))

    got, err := DecodeResponse(b)
    require.NoError(t, err)
    assert.Equal(t, r, got)

    got, err = ReadResponse(bytes.NewReader(b))
    require.NoError(t, err)
    assert.Equal(t, r, got)

    bad := append([]byte("TRIG"), b[4:]...)
    _, err = DecodeResponse(bad)
    assert.ErrorIs(t, err, ErrMalformedFragment)
    _, err = DecodeResponse(b[:10])
    assert.ErrorIs(t, err, ErrShortFrame)
}
