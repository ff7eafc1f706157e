package wire

import (
    "encoding/binary"
    "fmt"
    "io"
)

// Stream header layout (20 bytes, big-endian), followed on the same stream by
// exactly DataSize payload bytes.
//
//  0  ..7   SendTimestamp u64
//  8  ..11  RequestID     u32
//  12 ..15  TotalRequests u32
//  16 ..19  DataSize      u32
const StreamHeaderSize = 20

// MaxStreamDataSize guards against absurd data_size values from a broken peer.
const MaxStreamDataSize = 1 << 30

// StreamHeader announces one logical request on a stream transport.
type StreamHeader struct {
    SendTimestamp uint64
    RequestID     uint32
    TotalRequests uint32
    DataSize      uint32
}

// MarshalBinary encodes h to a 20-byte buffer.
func (h *StreamHeader) MarshalBinary() ([]byte, error) {
    buf := make([]byte, StreamHeaderSize)
    h.put(buf)
    return buf, nil
}

func (h *StreamHeader) put(buf []byte) {
    binary.BigEndian.PutUint64(buf[0:8], h.SendTimestamp)
    binary.BigEndian.PutUint32(buf[8:12], h.RequestID)
    binary.BigEndian.PutUint32(buf[12:16], h.TotalRequests)
    binary.BigEndian.PutUint32(buf[16:20], h.DataSize)
}

// UnmarshalBinary decodes h from buf.
func (h *StreamHeader) UnmarshalBinary(buf []byte) error {
    if len(buf) < StreamHeaderSize {
        return fmt.Errorf("%w: %d bytes", ErrShortFrame, len(buf))
    }
    h.SendTimestamp = binary.BigEndian.Uint64(buf[0:8])
    h.RequestID = binary.BigEndian.Uint32(buf[8:12])
    h.TotalRequests = binary.BigEndian.Uint32(buf[12:16])
    h.DataSize = binary.BigEndian.Uint32(buf[16:20])
    return nil
}

// ReadStreamHeader reads exactly one header from r.
func ReadStreamHeader(r io.Reader) (StreamHeader, error) {
    var buf [StreamHeaderSize]byte
    var h StreamHeader
    if _, err := io.ReadFull(r, buf[:]); err != nil { return h, err }
    if err := h.UnmarshalBinary(buf[:]); err != nil { return h, err }
    if h.DataSize > MaxStreamDataSize {
        return h, fmt.Errorf("%w: data size %d", ErrMalformedFragment, h.DataSize)
    }
    return h, nil
}

// DrainPayload consumes exactly n bytes from r into scratch-sized reads.
// Short reads are accumulated; if the stream ends early the bytes received so
// far are returned with ErrIncompleteTransfer.
func DrainPayload(r io.Reader, n int64, scratch []byte) (int64, error) {
    if len(scratch) == 0 { scratch = make([]byte, 32*1024) }
    var got int64
    for got < n {
        want := n - got
        if want > int64(len(scratch)) { want = int64(len(scratch)) }
        k, err := r.Read(scratch[:want])
        got += int64(k)
        if err != nil {
            if got == n { return got, nil }
            if err == io.EOF {
                return got, fmt.Errorf("%w: expected %d bytes, got %d", ErrIncompleteTransfer, n, got)
            }
            return got, fmt.Errorf("%w: expected %d bytes, got %d: %v", ErrIncompleteTransfer, n, got, err)
        }
    }
    return got, nil
}
