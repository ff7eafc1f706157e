package transport

import (
    "context"
    "errors"
    "fmt"
    "io"
    "net"
    "os"
    "strings"
    "time"
)

// Kind identifies the link type under measurement.
type Kind int

const (
    KindUnknown Kind = iota
    KindUDP
    KindTCP
    KindQUIC
    KindWinPipe
    KindMem
)

func (k Kind) String() string {
    switch k {
    case KindUDP:
        return "udp"
    case KindTCP:
        return "tcp"
    case KindQUIC:
        return "quic"
    case KindWinPipe:
        return "winpipe"
    case KindMem:
        return "mem"
    default:
        return "unknown"
    }
}

// Datagram reports whether the kind carries fragments as datagrams.
func (k Kind) Datagram() bool { return k == KindUDP }

// ParseKind maps a config/CLI name to a Kind.
func ParseKind(s string) (Kind, error) {
    switch strings.ToLower(strings.TrimSpace(s)) {
    case "udp":
        return KindUDP, nil
    case "tcp":
        return KindTCP, nil
    case "quic":
        return KindQUIC, nil
    case "winpipe", "pipe":
        return KindWinPipe, nil
    case "mem":
        return KindMem, nil
    }
    return KindUnknown, fmt.Errorf("unknown transport %q", s)
}

// ErrListenerClosed is returned by Accept after Close.
var ErrListenerClosed = errors.New("listener closed")

// Conn is one established byte stream.
// Exactly one reader and one writer goroutine are expected.
type Conn interface {
    io.ReadWriteCloser
    LocalAddr() net.Addr
    RemoteAddr() net.Addr
    SetReadDeadline(time.Time) error
}

// Listener accepts inbound streams.
type Listener interface {
    // Accept blocks until an inbound stream is available, ctx is done, or the listener closes.
    Accept(ctx context.Context) (Conn, error)
    Addr() net.Addr
    // Close stops the listener and unblocks Accept.
    Close() error
}

// StreamTransport provides dialing/listening for a specific stream kind.
type StreamTransport interface {
    Kind() Kind
    Listen(ctx context.Context, address string) (Listener, error)
    Dial(ctx context.Context, address string) (Conn, error)
}

// PacketConn is a datagram endpoint. Each ReadPacket returns exactly one datagram.
type PacketConn interface {
    // ReadPacket waits at most timeout (0 = forever) for one datagram.
    ReadPacket(buf []byte, timeout time.Duration) (int, net.Addr, error)
    // SendBytes writes one datagram to the connected peer.
    SendBytes([]byte) error
    // WriteTo writes one datagram to addr.
    WriteTo(b []byte, addr net.Addr) (int, error)
    LocalAddr() net.Addr
    Close() error
}

// IsTimeout reports whether err is a read deadline expiry.
func IsTimeout(err error) bool {
    if errors.Is(err, os.ErrDeadlineExceeded) { return true }
    var ne net.Error
    return errors.As(err, &ne) && ne.Timeout()
}

// IsClosed reports whether err comes from using a closed endpoint.
func IsClosed(err error) bool {
    return errors.Is(err, net.ErrClosed) || errors.Is(err, ErrListenerClosed) || errors.Is(err, io.ErrClosedPipe)
}
