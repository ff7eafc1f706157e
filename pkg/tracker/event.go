package tracker

import "strings"

// EventKind is a bitmask describing what a single observation caused.
type EventKind uint8

const (
    EventRecorded EventKind = 1 << iota // new fragment index stored
    EventDuplicate                      // index already seen; only the last arrival time can move
    EventRequestCompleted               // request transitioned to complete
    EventSessionCompleted               // session transitioned to complete
    EventMalformed                      // rejected without touching state
)

func (k EventKind) String() string {
    if k == 0 { return "none" }
    var parts []string
    names := []struct{ k EventKind; s string }{
        {EventRecorded, "recorded"},
        {EventDuplicate, "duplicate"},
        {EventRequestCompleted, "request-completed"},
        {EventSessionCompleted, "session-completed"},
        {EventMalformed, "malformed"},
    }
    for _, n := range names {
        if k&n.k != 0 { parts = append(parts, n.s) }
    }
    return strings.Join(parts, "|")
}

// Event is the result of one Observe call.
type Event struct {
    Kind      EventKind
    RequestID uint32
    Err       error // reason when Kind has EventMalformed
}

// Has reports whether the event includes kind k.
func (e Event) Has(k EventKind) bool { return e.Kind&k != 0 }
