package tracker

import "sort"

// RequestRecord aggregates fragment-arrival evidence for one request id.
// Payload bytes are never reassembled; only indices and timestamps are kept.
type RequestRecord struct {
    FirstSendUS   int64  // send timestamp of fragment 0
    FirstRecvUS   int64  // arrival of fragment 0 (header arrival for streams)
    LastRecvUS    int64  // latest arrival of any fragment (payload complete for streams)
    HasFirst      bool   // fragment 0 has been observed
    ExpectedCount uint32 // taken from the first fragment seen for this id
    PayloadBytes  uint64

    received map[uint32]struct{}
}

func newRecord(expected uint32) *RequestRecord {
    return &RequestRecord{ExpectedCount: expected, received: make(map[uint32]struct{}, expected)}
}

// Received returns the number of distinct fragment indices seen.
func (r *RequestRecord) Received() int { return len(r.received) }

// HasIndex reports whether fragment idx has been observed.
func (r *RequestRecord) HasIndex(idx uint32) bool { _, ok := r.received[idx]; return ok }

// Complete reports whether every fragment index has arrived.
func (r *RequestRecord) Complete() bool {
    return r.ExpectedCount > 0 && uint32(len(r.received)) == r.ExpectedCount
}

// Indices returns the received indices in ascending order.
func (r *RequestRecord) Indices() []uint32 {
    out := make([]uint32, 0, len(r.received))
    for i := range r.received { out = append(out, i) }
    sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
    return out
}

func (r *RequestRecord) clone() RequestRecord {
    c := *r
    c.received = make(map[uint32]struct{}, len(r.received))
    for k := range r.received { c.received[k] = struct{}{} }
    return c
}

// LatencyRecord is the delay decomposition of one completed request.
// Values are signed: unsynchronised clocks can make latency negative.
type LatencyRecord struct {
    RequestID              uint32 `json:"request_id" cbor:"request_id"`
    FirstFragmentLatencyUS int64  `json:"first_fragment_latency_us" cbor:"first_fragment_latency_us"`
    SpreadUS               int64  `json:"spread_us" cbor:"spread_us"`
}

func (r *RequestRecord) latency(id uint32, offsetUS int64) LatencyRecord {
    return LatencyRecord{
        RequestID:              id,
        FirstFragmentLatencyUS: r.FirstRecvUS - (r.FirstSendUS + offsetUS),
        SpreadUS:               r.LastRecvUS - r.FirstRecvUS,
    }
}
