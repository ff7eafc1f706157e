// Package emitter splits logical requests into wire fragments and sends them,
// stamping each fragment right before it is handed to the transport.
package emitter

import "fmt"

// Chunk describes one fragment of a logical payload.
type Chunk struct {
    Index  uint32
    Count  uint32
    Offset int
    Size   int
}

// Splitter lazily yields the chunks covering a payload.
type Splitter struct {
    total int
    max   int
    count int
    next  int
}

// Split prepares chunks of at most maxFragment bytes. A zero-byte payload
// still yields one empty chunk so the request remains observable.
func Split(payloadBytes, maxFragment int) (*Splitter, error) {
    if maxFragment <= 0 { return nil, fmt.Errorf("invalid max fragment size %d", maxFragment) }
    if payloadBytes < 0 { return nil, fmt.Errorf("invalid payload size %d", payloadBytes) }
    count := (payloadBytes + maxFragment - 1) / maxFragment
    if count == 0 { count = 1 }
    return &Splitter{total: payloadBytes, max: maxFragment, count: count}, nil
}

// Count is ceil(payload/maxFragment), at least 1.
func (s *Splitter) Count() int { return s.count }

// Next returns the next chunk, or false when all chunks were produced.
func (s *Splitter) Next() (Chunk, bool) {
    if s.next >= s.count { return Chunk{}, false }
    off := s.next * s.max
    size := s.total - off
    if size > s.max { size = s.max }
    c := Chunk{Index: uint32(s.next), Count: uint32(s.count), Offset: off, Size: size}
    s.next++
    return c, true
}

// fillPattern writes the repeating 'A'..'Z' test pattern.
func fillPattern(b []byte) []byte {
    for i := range b { b[i] = 'A' + byte(i%26) }
    return b
}
