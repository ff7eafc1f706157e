package receiver

import (
    "context"
    "net"
    "time"

    "go.uber.org/zap"

    "latdecomp/pkg/tracker"
    "latdecomp/pkg/transport"
    "latdecomp/pkg/wire"
)

// DefaultRecvTimeout bounds each blocking read so shutdown is noticed promptly.
const DefaultRecvTimeout = 500 * time.Millisecond

// DatagramOptions configures a Datagram receiver.
type DatagramOptions struct {
    RecvTimeout time.Duration
    Capacity    int
    // Trigger replies with the trigger token to the sender of every completed request.
    Trigger bool
    // RTT replies with a response frame carrying ResponseBytes of filler
    // instead of the trigger token.
    RTT           bool
    ResponseBytes int
    Clock         wire.Clock
}

// Datagram receives one fragment per datagram on a single goroutine.
type Datagram struct {
    conn   transport.PacketConn
    tr     *tracker.Tracker
    notify Notifier
    opts   DatagramOptions
    resp   []byte
}

func NewDatagram(conn transport.PacketConn, tr *tracker.Tracker, n Notifier, opts DatagramOptions) *Datagram {
    if opts.RecvTimeout <= 0 { opts.RecvTimeout = DefaultRecvTimeout }
    if opts.Capacity <= 0 { opts.Capacity = tr.Capacity() }
    if opts.Clock == nil { opts.Clock = wire.NowMicros }
    if opts.ResponseBytes < 0 { opts.ResponseBytes = 0 }
    if opts.ResponseBytes > wire.MaxDatagramResponseData { opts.ResponseBytes = wire.MaxDatagramResponseData }
    if n == nil { n = nopNotifier{} }
    d := &Datagram{conn: conn, tr: tr, notify: n, opts: opts}
    if opts.RTT { d.resp = make([]byte, 0, wire.ResponseHeaderSize+opts.ResponseBytes) }
    return d
}

// Run receives until the session completes, ctx ends or the socket closes.
// Only unexpected socket failures are returned.
func (d *Datagram) Run(ctx context.Context) error {
    buf := make([]byte, wire.MaxDatagramSize)
    log := zap.L().With(zap.Stringer("local", d.conn.LocalAddr()))
    log.Info("datagram receiver started", zap.Duration("recv_timeout", d.opts.RecvTimeout), zap.Int("capacity", d.opts.Capacity),
        zap.Bool("trigger", d.opts.Trigger), zap.Bool("rtt", d.opts.RTT))
    for {
        if ctx.Err() != nil { return nil }
        n, from, err := d.conn.ReadPacket(buf, d.opts.RecvTimeout)
        recvUS := d.opts.Clock()
        if ctx.Err() != nil { return nil }
        if err != nil {
            if transport.IsTimeout(err) { continue }
            if transport.IsClosed(err) { return nil }
            return &wire.TransportError{Op: "receive", Err: err}
        }
        if d.handle(buf[:n], from, recvUS) { return nil }
    }
}

// handle processes one datagram and reports whether the session is complete.
func (d *Datagram) handle(b []byte, from net.Addr, recvUS int64) bool {
    f, err := wire.DecodeFragment(b, d.opts.Capacity)
    var ev tracker.Event
    if err != nil {
        ev = d.tr.Reject(err)
    } else {
        ev = d.tr.Observe(f, recvUS)
        zap.L().Debug("fragment", zap.Uint32("request", f.RequestID), zap.Uint32("index", f.Index),
            zap.Uint32("count", f.Count), zap.Int64("recv_us", recvUS))
    }
    report(d.tr, d.notify, ev, zap.Stringer("from", from))
    if ev.Has(tracker.EventRequestCompleted) && from != nil { d.reply(from, ev.RequestID) }
    return ev.Has(tracker.EventSessionCompleted)
}

// reply answers a completed request with a response frame in round-trip mode
// or with the trigger token in trigger mode.
func (d *Datagram) reply(to net.Addr, id uint32) {
    var b []byte
    switch {
    case d.opts.RTT:
        d.resp = appendResponseHeader(d.resp[:0], d.tr, id, d.opts.ResponseBytes, d.opts.Clock())
        d.resp = d.resp[:wire.ResponseHeaderSize+d.opts.ResponseBytes]
        b = d.resp
    case d.opts.Trigger:
        b = wire.TriggerToken[:]
    default:
        return
    }
    if _, err := d.conn.WriteTo(b, to); err != nil {
        zap.L().Warn("send reply", zap.Stringer("to", to), zap.Uint32("request", id), zap.Error(err))
    }
}
