package results

import (
    "sort"

    "latdecomp/pkg/tracker"
)

// Stats describes one latency component across a session, in microseconds.
type Stats struct {
    Min  int64   `json:"min_us" cbor:"min_us"`
    Max  int64   `json:"max_us" cbor:"max_us"`
    Mean float64 `json:"mean_us" cbor:"mean_us"`
    P50  int64   `json:"p50_us" cbor:"p50_us"`
    P95  int64   `json:"p95_us" cbor:"p95_us"`
    P99  int64   `json:"p99_us" cbor:"p99_us"`
}

// Summary aggregates a set of latency records.
type Summary struct {
    Count        int   `json:"count" cbor:"count"`
    FirstLatency Stats `json:"first_fragment_latency" cbor:"first_fragment_latency"`
    Spread       Stats `json:"spread" cbor:"spread"`
    // SessionUS spans first arrival to last completion when known.
    SessionUS int64 `json:"session_us,omitempty" cbor:"session_us,omitempty"`
}

// Summarize computes per-component statistics. Empty input yields a zero Summary.
func Summarize(recs []tracker.LatencyRecord) Summary {
    s := Summary{Count: len(recs)}
    if len(recs) == 0 { return s }
    first := make([]int64, len(recs))
    spread := make([]int64, len(recs))
    for i, r := range recs {
        first[i] = r.FirstFragmentLatencyUS
        spread[i] = r.SpreadUS
    }
    s.FirstLatency = statsOf(first)
    s.Spread = statsOf(spread)
    return s
}

// statsOf sorts vals in place.
func statsOf(vals []int64) Stats {
    sort.Slice(vals, func(i, j int) bool { return vals[i] < vals[j] })
    var sum float64
    for _, v := range vals { sum += float64(v) }
    return Stats{
        Min:  vals[0],
        Max:  vals[len(vals)-1],
        Mean: sum / float64(len(vals)),
        P50:  percentileSorted(vals, 50),
        P95:  percentileSorted(vals, 95),
        P99:  percentileSorted(vals, 99),
    }
}

// Percentile returns the nth percentile (nearest-rank, floor index) of vals
// without modifying it. Large inputs use quickselect instead of a full sort.
func Percentile(vals []int64, p float64) int64 {
    if len(vals) == 0 { return 0 }
    data := make([]int64, len(vals))
    copy(data, vals)
    if len(data) <= 1000 {
        sort.Slice(data, func(i, j int) bool { return data[i] < data[j] })
        return percentileSorted(data, p)
    }
    return quickSelect(data, rank(len(data), p))
}

func rank(n int, p float64) int {
    k := int(float64(n-1) * (p / 100.0))
    if k >= n { k = n - 1 }
    if k < 0 { k = 0 }
    return k
}

func percentileSorted(sorted []int64, p float64) int64 { return sorted[rank(len(sorted), p)] }

// quickSelect returns the k-th smallest element, reordering arr.
func quickSelect(arr []int64, k int) int64 {
    left, right := 0, len(arr)-1
    for {
        if left == right { return arr[left] }
        pi := partition(arr, left, right)
        switch {
        case k == pi:
            return arr[k]
        case k < pi:
            right = pi - 1
        default:
            left = pi + 1
        }
    }
}

func partition(arr []int64, left, right int) int {
    // middle pivot
    mid := left + (right-left)/2
    pivot := arr[mid]
    arr[mid], arr[right] = arr[right], arr[mid]
    store := left
    for i := left; i < right; i++ {
        if arr[i] < pivot {
            arr[store], arr[i] = arr[i], arr[store]
            store++
        }
    }
    arr[store], arr[right] = arr[right], arr[store]
    return store
}
