package wire

import "bytes"

// TriggerSize is the length of a trigger token on the wire.
const TriggerSize = 4

// TriggerToken grants the emitter permission to send the next request.
var TriggerToken = [TriggerSize]byte{'T', 'R', 'I', 'G'}

// IsTrigger reports whether b is exactly the trigger token.
func IsTrigger(b []byte) bool { return bytes.Equal(b, TriggerToken[:]) }
