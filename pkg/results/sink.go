// Package results turns tracker snapshots into latency reports and ships them
// to files, logs, redis or a websocket collector.
package results

import (
    "errors"

    "go.uber.org/zap"

    "latdecomp/pkg/tracker"
    "latdecomp/pkg/transport"
)

// Variant selects the column vocabulary of a report.
type Variant int

const (
    VariantDatagram Variant = iota
    VariantStream
)

// VariantFor picks the report variant for a transport kind.
func VariantFor(k transport.Kind) Variant {
    if k.Datagram() { return VariantDatagram }
    return VariantStream
}

func (v Variant) String() string {
    if v == VariantStream { return "stream" }
    return "datagram"
}

// Columns returns the report column titles.
func (v Variant) Columns() [3]string {
    if v == VariantStream {
        return [3]string{"Request_ID", "Transmission_Delay(us)", "Data_Reception_Duration(us)"}
    }
    return [3]string{"Request_ID", "First_Fragment_Latency(us)", "Spread(us)"}
}

// Sink receives the full set of complete records on every flush.
type Sink interface {
    Write(variant Variant, recs []tracker.LatencyRecord) error
    Close() error
}

// Batch is the serialized form used by codec, redis and websocket sinks.
type Batch struct {
    Variant string                  `json:"variant" cbor:"variant"`
    Records []tracker.LatencyRecord `json:"records" cbor:"records"`
    Summary Summary                 `json:"summary" cbor:"summary"`
}

// NewBatch wraps recs with their summary.
func NewBatch(variant Variant, recs []tracker.LatencyRecord) Batch {
    if recs == nil { recs = []tracker.LatencyRecord{} }
    return Batch{Variant: variant.String(), Records: recs, Summary: Summarize(recs)}
}

// Multi fans a write out to every sink. All sinks are written; the errors are joined.
type Multi []Sink

func (m Multi) Write(variant Variant, recs []tracker.LatencyRecord) error {
    var errs []error
    for _, s := range m {
        if err := s.Write(variant, recs); err != nil { errs = append(errs, err) }
    }
    return errors.Join(errs...)
}

func (m Multi) Close() error {
    var errs []error
    for _, s := range m {
        if err := s.Close(); err != nil { errs = append(errs, err) }
    }
    return errors.Join(errs...)
}

// LogSink writes one log line per record.
type LogSink struct{ L *zap.Logger }

func (s LogSink) Write(variant Variant, recs []tracker.LatencyRecord) error {
    l := s.L
    if l == nil { l = zap.L() }
    cols := variant.Columns()
    for _, r := range recs {
        l.Info("latency", zap.Uint32("request", r.RequestID),
            zap.Int64(cols[1], r.FirstFragmentLatencyUS), zap.Int64(cols[2], r.SpreadUS))
    }
    return nil
}

func (LogSink) Close() error { return nil }
