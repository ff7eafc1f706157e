package emitter

import (
    "context"
    "fmt"
    "io"

    "go.uber.org/zap"

    "latdecomp/pkg/pacing"
    "latdecomp/pkg/wire"
)

// Sender hands one datagram to the transport.
type Sender interface {
    SendBytes([]byte) error
}

// RequestWriter sends one logical request.
type RequestWriter interface {
    WriteRequest(ctx context.Context, requestID, totalRequests uint32, payloadBytes int) error
}

// DatagramOptions configures a Datagram emitter.
type DatagramOptions struct {
    MaxFragmentSize int  // default wire.DefaultMaxFragmentSize
    Pad             bool // pad every frame to header+MaxFragmentSize
    Clock           wire.Clock
    Pacer           *pacing.TokenBucket
}

// Datagram fragments requests over a datagram Sender; it never waits for acks.
type Datagram struct {
    out     Sender
    opts    DatagramOptions
    payload []byte
    buf     []byte
}

func NewDatagram(out Sender, opts DatagramOptions) *Datagram {
    if opts.MaxFragmentSize <= 0 { opts.MaxFragmentSize = wire.DefaultMaxFragmentSize }
    if opts.MaxFragmentSize > wire.MaxFragmentCapacity { opts.MaxFragmentSize = wire.MaxFragmentCapacity }
    if opts.Clock == nil { opts.Clock = wire.NowMicros }
    return &Datagram{
        out:     out,
        opts:    opts,
        payload: fillPattern(make([]byte, opts.MaxFragmentSize)),
        buf:     make([]byte, 0, wire.FragmentHeaderSize+opts.MaxFragmentSize),
    }
}

// WriteRequest sends all fragments of one request in index order.
func (d *Datagram) WriteRequest(ctx context.Context, requestID, totalRequests uint32, payloadBytes int) error {
    sp, err := Split(payloadBytes, d.opts.MaxFragmentSize)
    if err != nil { return err }
    pad := 0
    if d.opts.Pad { pad = d.opts.MaxFragmentSize }
    for c, ok := sp.Next(); ok; c, ok = sp.Next() {
        if err := ctx.Err(); err != nil { return err }
        f := wire.Fragment{
            Index:         c.Index,
            Count:         c.Count,
            RequestID:     requestID,
            TotalRequests: totalRequests,
            PayloadSize:   uint32(c.Size),
            Payload:       d.payload[:c.Size],
        }
        d.buf = f.AppendBinary(d.buf[:0], pad)
        if err := d.opts.Pacer.Wait(ctx, int64(len(d.buf))); err != nil { return err }
        ts := d.opts.Clock()
        wire.StampTimestamp(d.buf, ts)
        if err := d.out.SendBytes(d.buf); err != nil {
            return &wire.TransportError{Op: "send fragment", Err: err}
        }
        zap.L().Debug("sent fragment",
            zap.Uint32("request", requestID), zap.Uint32("index", c.Index), zap.Uint32("count", c.Count),
            zap.Int("size", c.Size), zap.Int64("ts_us", ts))
    }
    return nil
}

// StreamOptions configures a Stream emitter.
type StreamOptions struct {
    Clock     wire.Clock
    Pacer     *pacing.TokenBucket
    ChunkSize int // payload write size, default 32 KiB
}

// Stream writes one header plus data_size bytes per request on a byte stream.
type Stream struct {
    w       io.Writer
    opts    StreamOptions
    payload []byte
}

func NewStream(w io.Writer, opts StreamOptions) *Stream {
    if opts.Clock == nil { opts.Clock = wire.NowMicros }
    if opts.ChunkSize <= 0 { opts.ChunkSize = 32 * 1024 }
    return &Stream{w: w, opts: opts, payload: fillPattern(make([]byte, opts.ChunkSize))}
}

// WriteRequest writes the header, stamped just before the write, then the payload.
func (s *Stream) WriteRequest(ctx context.Context, requestID, totalRequests uint32, payloadBytes int) error {
    if err := ctx.Err(); err != nil { return err }
    if payloadBytes < 0 || payloadBytes > wire.MaxStreamDataSize {
        return fmt.Errorf("invalid payload size %d (max %d)", payloadBytes, wire.MaxStreamDataSize)
    }
    h := wire.StreamHeader{RequestID: requestID, TotalRequests: totalRequests, DataSize: uint32(payloadBytes)}
    hb, _ := h.MarshalBinary()
    if err := s.opts.Pacer.Wait(ctx, int64(len(hb)+payloadBytes)); err != nil { return err }
    ts := s.opts.Clock()
    wire.StampTimestamp(hb, ts)
    if _, err := s.w.Write(hb); err != nil {
        return &wire.TransportError{Op: "send header", Err: err}
    }
    for left := payloadBytes; left > 0; {
        n := left
        if n > len(s.payload) { n = len(s.payload) }
        if _, err := s.w.Write(s.payload[:n]); err != nil {
            return &wire.TransportError{Op: "send payload", Err: err}
        }
        left -= n
    }
    zap.L().Debug("sent request", zap.Uint32("request", requestID), zap.Int("size", payloadBytes), zap.Int64("ts_us", ts))
    return nil
}
