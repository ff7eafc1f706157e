package wire

import (
    "bytes"
    "encoding/binary"
    "fmt"
    "io"
)

// Response frame layout (28 bytes, big-endian), followed by DataSize filler
// bytes. On datagram transports header and data share one datagram.
//
//  0  ..3   magic "RESP"
//  4  ..7   RequestID         u32
//  8  ..15  EchoTimestamp     u64 (request send time, sender clock)
//  16 ..23  ReceiverTimestamp u64 (request completion, receiver clock)
//  24 ..27  DataSize          u32
const ResponseHeaderSize = 28

// MaxDatagramResponseData bounds the filler a single datagram response carries.
const MaxDatagramResponseData = MaxDatagramSize - ResponseHeaderSize

// ResponseMagic distinguishes responses from trigger tokens on the reverse path.
var ResponseMagic = [4]byte{'R', 'E', 'S', 'P'}

// Response answers one completed request in round-trip mode.
type Response struct {
    RequestID         uint32
    EchoTimestamp     uint64
    ReceiverTimestamp uint64
    DataSize          uint32
}

// AppendHeader appends the 28-byte header to b.
func (r Response) AppendHeader(b []byte) []byte {
    b = append(b, ResponseMagic[:]...)
    b = binary.BigEndian.AppendUint32(b, r.RequestID)
    b = binary.BigEndian.AppendUint64(b, r.EchoTimestamp)
    b = binary.BigEndian.AppendUint64(b, r.ReceiverTimestamp)
    return binary.BigEndian.AppendUint32(b, r.DataSize)
}

// IsResponse reports whether b starts with a response header.
func IsResponse(b []byte) bool {
    return len(b) >= ResponseHeaderSize && bytes.Equal(b[:4], ResponseMagic[:])
}

// DecodeResponse parses the header at the start of b. Trailing bytes are the
// filler and are not checked against DataSize.
func DecodeResponse(b []byte) (Response, error) {
    var r Response
    if len(b) < ResponseHeaderSize {
        return r, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(b))
    }
    if !bytes.Equal(b[:4], ResponseMagic[:]) {
        return r, fmt.Errorf("%w: bad response magic %q", ErrMalformedFragment, b[:4])
    }
    r.RequestID = binary.BigEndian.Uint32(b[4:8])
    r.EchoTimestamp = binary.BigEndian.Uint64(b[8:16])
    r.ReceiverTimestamp = binary.BigEndian.Uint64(b[16:24])
    r.DataSize = binary.BigEndian.Uint32(b[24:28])
    return r, nil
}

// ReadResponse reads one header from a stream. The caller drains DataSize.
func ReadResponse(r io.Reader) (Response, error) {
    var buf [ResponseHeaderSize]byte
    if _, err := io.ReadFull(r, buf[:]); err != nil { return Response{}, err }
    resp, err := DecodeResponse(buf[:])
    if err != nil { return resp, err }
    if resp.DataSize > MaxStreamDataSize {
        return resp, fmt.Errorf("%w: response size %d", ErrMalformedFragment, resp.DataSize)
    }
    return resp, nil
}
