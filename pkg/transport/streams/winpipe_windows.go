//go:build windows

package streams

import (
    "latdecomp/pkg/transport"
    "latdecomp/pkg/transport/winpipe"
)

func newWinPipeTransport() (transport.StreamTransport, error) { return winpipe.New(), nil }
