//go:build !windows

package streams

import (
    "fmt"

    "latdecomp/pkg/transport"
)

func newWinPipeTransport() (transport.StreamTransport, error) { return nil, fmt.Errorf("winpipe transport is not supported on this platform") }
