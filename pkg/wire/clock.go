package wire

import (
    "encoding/binary"
    "time"
)

// Clock returns wall-clock microseconds since the Unix epoch.
type Clock func() int64

// NowMicros is the default Clock.
func NowMicros() int64 { return time.Now().UnixMicro() }

// StampTimestamp overwrites the leading send timestamp of an encoded fragment
// or stream header. Callers stamp right before the bytes go to the transport.
func StampTimestamp(frame []byte, us int64) {
    binary.BigEndian.PutUint64(frame[0:8], uint64(us))
}
