// Package codec provides the serialization formats used for result files and
// frame dumps.
package codec

import (
    "fmt"
    "sort"
    "strings"
)

// Codec marshals values for a single format.
type Codec interface {
    // Name is the short format name used in config ("json", "cbor", "proto").
    Name() string
    ContentType() string
    // Ext is the conventional file extension including the dot.
    Ext() string
    Marshal(v any) ([]byte, error)
    Unmarshal(data []byte, v any) error
}

// Registry maps format names and content types to codecs.
type Registry struct {
    byName map[string]Codec
}

// NewRegistry returns a registry with JSON, CBOR and Protobuf registered.
func NewRegistry() (*Registry, error) {
    r := &Registry{byName: make(map[string]Codec)}
    r.Register(JSON())
    r.Register(Proto())
    c, err := CBOR()
    if err != nil { return nil, err }
    r.Register(c)
    return r, nil
}

// Register adds or replaces a codec.
func (r *Registry) Register(c Codec) {
    r.byName[c.Name()] = c
}

// Lookup resolves a format name (case-insensitive; "protobuf" aliases "proto").
func (r *Registry) Lookup(name string) (Codec, error) {
    n := strings.ToLower(strings.TrimSpace(name))
    if n == "protobuf" || n == "pb" { n = "proto" }
    if c, ok := r.byName[n]; ok { return c, nil }
    return nil, fmt.Errorf("unknown codec %q (have %s)", name, strings.Join(r.Names(), ", "))
}

// Names lists registered format names, sorted.
func (r *Registry) Names() []string {
    out := make([]string, 0, len(r.byName))
    for n := range r.byName { out = append(out, n) }
    sort.Strings(out)
    return out
}
