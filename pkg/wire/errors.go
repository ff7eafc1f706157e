package wire

import (
    "errors"
    "net"
)

var (
    // ErrShortFrame means the buffer ended before the declared layout.
    ErrShortFrame = errors.New("short frame")
    // ErrMalformedFragment covers index >= count, zero count and oversize payloads.
    ErrMalformedFragment = errors.New("malformed fragment")
    // ErrIncompleteTransfer means the peer closed before data_size bytes arrived.
    ErrIncompleteTransfer = errors.New("incomplete transfer")
)

// TransportError wraps a send/receive failure at the socket boundary.
type TransportError struct {
    Op  string
    Err error
}

func (e *TransportError) Error() string { return "transport " + e.Op + ": " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the underlying error is a deadline expiry.
func (e *TransportError) Timeout() bool {
    var ne net.Error
    return errors.As(e.Err, &ne) && ne.Timeout()
}
