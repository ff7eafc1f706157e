// Package streams builds a StreamTransport for a configured kind.
package streams

import (
    "fmt"

    "latdecomp/pkg/transport"
    "latdecomp/pkg/transport/mem"
    "latdecomp/pkg/transport/quic"
    "latdecomp/pkg/transport/tcp"
)

// shared lets a sender and receiver in one process find each other.
var shared = mem.New()

// New returns the stream transport for kind.
func New(kind transport.Kind) (transport.StreamTransport, error) {
    switch kind {
    case transport.KindTCP:
        return tcp.New(), nil
    case transport.KindQUIC:
        return quic.New()
    case transport.KindMem:
        return shared, nil
    case transport.KindWinPipe:
        return newWinPipeTransport()
    case transport.KindUDP:
        return nil, fmt.Errorf("%s is a datagram transport", kind)
    }
    return nil, fmt.Errorf("unsupported stream transport %s", kind)
}
