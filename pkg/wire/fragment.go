package wire

import (
    "encoding/binary"
    "fmt"
)

// Datagram fragment layout. All integer fields are big-endian.
//
//  0  ..7   SendTimestamp u64 (microseconds since epoch)
//  8  ..11  Index         u32
//  12 ..15  Count         u32
//  16 ..19  RequestID     u32
//  20 ..23  TotalRequests u32
//  24 ..27  PayloadSize   u32
//  28 ..    payload, optionally padded up to the fragment capacity
const (
    FragmentHeaderSize = 28

    // MaxDatagramSize is the largest UDP payload over IPv4.
    MaxDatagramSize = 65507
    // MaxFragmentCapacity bounds PayloadSize for any fragment.
    MaxFragmentCapacity = MaxDatagramSize - FragmentHeaderSize

    // DefaultMaxFragmentSize matches a typical path MTU minus IP/UDP headers.
    DefaultMaxFragmentSize = 1400
)

// Fragment is a single wire unit carrying part or all of a logical request.
type Fragment struct {
    SendTimestamp uint64
    Index         uint32
    Count         uint32
    RequestID     uint32
    TotalRequests uint32
    PayloadSize   uint32
    Payload       []byte
}

// Validate checks the structural invariants of a fragment against capacity.
// A capacity <= 0 means MaxFragmentCapacity.
func (f *Fragment) Validate(capacity int) error {
    if capacity <= 0 || capacity > MaxFragmentCapacity { capacity = MaxFragmentCapacity }
    if f.Count == 0 {
        return fmt.Errorf("%w: zero fragment count", ErrMalformedFragment)
    }
    if f.Index >= f.Count {
        return fmt.Errorf("%w: index %d >= count %d", ErrMalformedFragment, f.Index, f.Count)
    }
    if int64(f.PayloadSize) > int64(capacity) {
        return fmt.Errorf("%w: payload size %d exceeds capacity %d", ErrMalformedFragment, f.PayloadSize, capacity)
    }
    return nil
}

// EncodedLen returns the frame length for f. With pad > 0 the frame is padded
// to FragmentHeaderSize+pad bytes.
func (f *Fragment) EncodedLen(pad int) int {
    n := FragmentHeaderSize + int(f.PayloadSize)
    if p := FragmentHeaderSize + pad; pad > 0 && p > n { n = p }
    return n
}

// AppendBinary appends the encoded frame to dst. Payload bytes beyond len(f.Payload)
// (up to PayloadSize) and any padding are zero.
func (f *Fragment) AppendBinary(dst []byte, pad int) []byte {
    n := f.EncodedLen(pad)
    off := len(dst)
    dst = append(dst, make([]byte, n)...)
    buf := dst[off:]
    binary.BigEndian.PutUint64(buf[0:8], f.SendTimestamp)
    binary.BigEndian.PutUint32(buf[8:12], f.Index)
    binary.BigEndian.PutUint32(buf[12:16], f.Count)
    binary.BigEndian.PutUint32(buf[16:20], f.RequestID)
    binary.BigEndian.PutUint32(buf[20:24], f.TotalRequests)
    binary.BigEndian.PutUint32(buf[24:28], f.PayloadSize)
    p := f.Payload
    if len(p) > int(f.PayloadSize) { p = p[:f.PayloadSize] }
    copy(buf[FragmentHeaderSize:], p)
    return dst
}

// MarshalBinary encodes f without padding.
func (f *Fragment) MarshalBinary() ([]byte, error) {
    return f.AppendBinary(nil, 0), nil
}

// UnmarshalBinary decodes a frame. Payload aliases buf; trailing padding is ignored.
func (f *Fragment) UnmarshalBinary(buf []byte) error {
    if len(buf) < FragmentHeaderSize {
        return fmt.Errorf("%w: %d bytes", ErrShortFrame, len(buf))
    }
    f.SendTimestamp = binary.BigEndian.Uint64(buf[0:8])
    f.Index = binary.BigEndian.Uint32(buf[8:12])
    f.Count = binary.BigEndian.Uint32(buf[12:16])
    f.RequestID = binary.BigEndian.Uint32(buf[16:20])
    f.TotalRequests = binary.BigEndian.Uint32(buf[20:24])
    f.PayloadSize = binary.BigEndian.Uint32(buf[24:28])
    if int64(f.PayloadSize) > int64(len(buf)-FragmentHeaderSize) {
        return fmt.Errorf("%w: payload size %d but only %d bytes follow the header", ErrShortFrame, f.PayloadSize, len(buf)-FragmentHeaderSize)
    }
    f.Payload = buf[FragmentHeaderSize : FragmentHeaderSize+int(f.PayloadSize)]
    return nil
}

// DecodeFragment decodes and validates a datagram against capacity.
func DecodeFragment(buf []byte, capacity int) (Fragment, error) {
    var f Fragment
    if err := f.UnmarshalBinary(buf); err != nil { return Fragment{}, err }
    if err := f.Validate(capacity); err != nil { return f, err }
    return f, nil
}
