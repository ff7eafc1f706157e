// Package receiver runs the receive side of a session: it reads frames from a
// transport, timestamps them on arrival and feeds the tracker.
package receiver

import (
    "go.uber.org/zap"

    "latdecomp/pkg/tracker"
    "latdecomp/pkg/wire"
)

// Notifier is told about every request that became complete.
type Notifier interface {
    RequestCompleted(id uint32)
}

type nopNotifier struct{}

func (nopNotifier) RequestCompleted(uint32) {}

// report logs the outcome of one observation and forwards completions.
func report(tr *tracker.Tracker, n Notifier, ev tracker.Event, fields ...zap.Field) {
    switch {
    case ev.Has(tracker.EventMalformed):
        zap.L().Warn("malformed frame", append(fields, zap.Uint32("request", ev.RequestID), zap.Error(ev.Err))...)
        return
    case ev.Has(tracker.EventDuplicate):
        zap.L().Debug("duplicate fragment", append(fields, zap.Uint32("request", ev.RequestID))...)
        return
    }
    if ev.Has(tracker.EventRequestCompleted) {
        if rec, ok := tr.Record(ev.RequestID); ok {
            zap.L().Info("request complete",
                zap.Uint32("request", ev.RequestID),
                zap.Int64("first_latency_us", rec.FirstRecvUS-rec.FirstSendUS),
                zap.Int64("spread_us", rec.LastRecvUS-rec.FirstRecvUS),
                zap.Uint64("bytes", rec.PayloadBytes))
        }
        n.RequestCompleted(ev.RequestID)
    }
    if ev.Has(tracker.EventSessionCompleted) {
        p := tr.Progress()
        zap.L().Info("session complete", zap.Uint32("total_requests", p.Declared),
            zap.Uint64("duplicates", p.Duplicates), zap.Uint64("malformed", p.Malformed))
    }
}

// appendResponseHeader frames the round-trip reply to a completed request,
// echoing the send timestamp of its first fragment.
func appendResponseHeader(b []byte, tr *tracker.Tracker, id uint32, size int, nowUS int64) []byte {
    rec, _ := tr.Record(id)
    resp := wire.Response{RequestID: id, EchoTimestamp: uint64(rec.FirstSendUS), ReceiverTimestamp: uint64(nowUS), DataSize: uint32(size)}
    return resp.AppendHeader(b)
}
