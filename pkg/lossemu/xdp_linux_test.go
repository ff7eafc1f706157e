//go:build linux

package lossemu

import (
    "os"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

// Loading needs privileges and a spare interface, so it only runs when one is named.
func TestAttachLive(t *testing.T) {
    iface := os.Getenv("LATDECOMP_TEST_XDP_IFACE")
    if iface == "" { t.Skip("LATDECOMP_TEST_XDP_IFACE not set") }
    o := DefaultOptions()
    o.Interface = iface
    o.Generic = true
    e, err := Attach(o)
    require.NoError(t, err)
    defer e.Close()

    s, err := e.Stats()
    require.NoError(t, err)
    assert.LessOrEqual(t, s.Dropped, s.Total)
}
