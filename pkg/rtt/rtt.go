// Package rtt measures request/response round trips from the emitter side.
//
// In round-trip mode the receiver answers every completed request with a
// response frame echoing the request's send timestamp. The emitter waits for
// that response before sending the next request, so Responses doubles as the
// emitter's trigger.Waiter.
package rtt

import (
    "context"
    "errors"
    "io"
    "sync"

    "go.uber.org/zap"

    "latdecomp/pkg/trigger"
    "latdecomp/pkg/wire"
)

// Record is one request/response exchange measured on the sender clock.
type Record struct {
    RequestID uint32 `json:"request_id" cbor:"request_id"`
    RTTUS     int64  `json:"rtt_us" cbor:"rtt_us"`
    // OffsetUS estimates receiver clock minus sender clock, assuming a
    // symmetric path.
    OffsetUS      int64 `json:"offset_us" cbor:"offset_us"`
    ResponseBytes int   `json:"response_bytes" cbor:"response_bytes"`
}

// Measure derives a Record from a response that finished arriving at recvUS.
func Measure(resp wire.Response, recvUS int64) Record {
    echo := int64(resp.EchoTimestamp)
    rtt := recvUS - echo
    return Record{
        RequestID:     resp.RequestID,
        RTTUS:         rtt,
        OffsetUS:      int64(resp.ReceiverTimestamp) - echo - rtt/2,
        ResponseBytes: int(resp.DataSize),
    }
}

// Responses reads response frames from the reverse path. The first Wait
// returns at once; every later Wait blocks for one response and records it.
type Responses struct {
    r        io.Reader
    datagram bool
    clock    wire.Clock
    buf      []byte
    started  bool

    mu   sync.Mutex
    recs []Record
}

// NewStreamResponses reads header plus filler from a byte stream.
func NewStreamResponses(r io.Reader, clock wire.Clock) *Responses {
    return newResponses(r, false, clock, 64*1024)
}

// NewDatagramResponses reads one response per datagram and skips anything else.
func NewDatagramResponses(r io.Reader, clock wire.Clock) *Responses {
    return newResponses(r, true, clock, wire.MaxDatagramSize)
}

func newResponses(r io.Reader, datagram bool, clock wire.Clock, bufSize int) *Responses {
    if clock == nil { clock = wire.NowMicros }
    return &Responses{r: r, datagram: datagram, clock: clock, buf: make([]byte, bufSize)}
}

func (w *Responses) Wait(ctx context.Context) error {
    if !w.started {
        w.started = true
        return ctx.Err()
    }
    return w.Collect(ctx)
}

// Collect blocks for the next response regardless of the first-Wait rule.
// The emitter calls it once after its last request.
func (w *Responses) Collect(ctx context.Context) error {
    if err := ctx.Err(); err != nil { return err }
    defer trigger.InterruptReads(ctx, w.r)()
    for {
        resp, err := w.read()
        recvUS := w.clock()
        if err != nil {
            if ctx.Err() != nil { return ctx.Err() }
            switch {
            case errors.Is(err, errSkip):
                continue
            case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
                return trigger.ErrClosed
            case errors.Is(err, wire.ErrMalformedFragment), errors.Is(err, wire.ErrIncompleteTransfer):
                return err
            }
            return &wire.TransportError{Op: "read response", Err: err}
        }
        rec := Measure(resp, recvUS)
        w.mu.Lock()
        w.recs = append(w.recs, rec)
        w.mu.Unlock()
        zap.L().Debug("response received", zap.Uint32("request", rec.RequestID), zap.Int64("rtt_us", rec.RTTUS),
            zap.Int64("offset_us", rec.OffsetUS), zap.Int("bytes", rec.ResponseBytes))
        return nil
    }
}

var errSkip = errors.New("not a response")

func (w *Responses) read() (wire.Response, error) {
    if w.datagram {
        n, err := w.r.Read(w.buf)
        if err != nil { return wire.Response{}, err }
        if !wire.IsResponse(w.buf[:n]) {
            zap.L().Debug("ignoring non-response datagram", zap.Int("size", n))
            return wire.Response{}, errSkip
        }
        return wire.DecodeResponse(w.buf[:n])
    }
    resp, err := wire.ReadResponse(w.r)
    if err != nil { return resp, err }
    _, err = wire.DrainPayload(w.r, int64(resp.DataSize), w.buf)
    return resp, err
}

// Records returns the round trips measured so far, in arrival order.
func (w *Responses) Records() []Record {
    w.mu.Lock()
    defer w.mu.Unlock()
    out := make([]Record, len(w.recs))
    copy(out, w.recs)
    return out
}
