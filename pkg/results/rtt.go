package results

import (
    "bufio"
    "fmt"

    "latdecomp/pkg/rtt"
)

// RTTSummary aggregates the round trips an emitter measured.
type RTTSummary struct {
    Count  int   `json:"count" cbor:"count"`
    RTT    Stats `json:"rtt" cbor:"rtt"`
    Offset Stats `json:"clock_offset" cbor:"clock_offset"`
}

// SummarizeRTT computes round-trip and clock-offset statistics. The offset
// median can be fed back to the receiver as tracker.clock_offset_us.
func SummarizeRTT(recs []rtt.Record) RTTSummary {
    s := RTTSummary{Count: len(recs)}
    if len(recs) == 0 { return s }
    rtts := make([]int64, len(recs))
    offs := make([]int64, len(recs))
    for i, r := range recs {
        rtts[i] = r.RTTUS
        offs[i] = r.OffsetUS
    }
    s.RTT = statsOf(rtts)
    s.Offset = statsOf(offs)
    return s
}

// WriteRTTTable renders round trips in the fixed-width report layout.
func WriteRTTTable(w *bufio.Writer, recs []rtt.Record) error {
    if _, err := fmt.Fprintf(w, "%-12s %-30s %-30s %-16s\n", "Request_ID", "RTT(us)", "Clock_Offset(us)", "Response_Bytes"); err != nil { return err }
    for _, r := range recs {
        if _, err := fmt.Fprintf(w, "%-12d %-30d %-30d %-16d\n", r.RequestID, r.RTTUS, r.OffsetUS, r.ResponseBytes); err != nil { return err }
    }
    return nil
}

// WriteRTTFile atomically replaces path with the round-trip table.
func WriteRTTFile(path string, recs []rtt.Record) error {
    return writeAtomic(path, func(w *bufio.Writer) error { return WriteRTTTable(w, recs) })
}
