package udp

import (
    "context"
    "net"
    "time"

    "go.uber.org/zap"
    "golang.org/x/net/ipv4"

    "latdecomp/pkg/transport"
)

// DefaultBufferSize is the requested kernel socket buffer size on both sides.
const DefaultBufferSize = 4 << 20

// Options tunes the UDP socket. Zero values keep the OS defaults.
type Options struct {
    ReadBuffer  int
    WriteBuffer int
    // TOS sets the IPv4 type-of-service byte on outgoing datagrams.
    TOS int
    // TTL sets the IPv4 unicast hop limit on outgoing datagrams.
    TTL int
}

// Conn is a UDP endpoint carrying one wire fragment per datagram.
type Conn struct {
    c         *net.UDPConn
    connected bool
}

var _ transport.PacketConn = (*Conn)(nil)

// Listen binds address for receiving.
func Listen(address string, opts Options) (*Conn, error) {
    laddr, err := net.ResolveUDPAddr("udp", address)
    if err != nil { return nil, err }
    c, err := net.ListenUDP("udp", laddr)
    if err != nil { return nil, err }
    tune(c, opts)
    return &Conn{c: c}, nil
}

// Dial connects to address for sending. Only datagrams from that peer are read back.
func Dial(ctx context.Context, address string, opts Options) (*Conn, error) {
    var d net.Dialer
    nc, err := d.DialContext(ctx, "udp", address)
    if err != nil { return nil, err }
    c := nc.(*net.UDPConn)
    tune(c, opts)
    return &Conn{c: c, connected: true}, nil
}

func tune(c *net.UDPConn, opts Options) {
    if opts.ReadBuffer > 0 {
        if err := c.SetReadBuffer(opts.ReadBuffer); err != nil { zap.L().Warn("udp set read buffer", zap.Error(err)) }
    }
    if opts.WriteBuffer > 0 {
        if err := c.SetWriteBuffer(opts.WriteBuffer); err != nil { zap.L().Warn("udp set write buffer", zap.Error(err)) }
    }
    if opts.TOS <= 0 && opts.TTL <= 0 { return }
    pc := ipv4.NewConn(c)
    if opts.TOS > 0 {
        if err := pc.SetTOS(opts.TOS); err != nil { zap.L().Warn("udp set tos", zap.Int("tos", opts.TOS), zap.Error(err)) }
    }
    if opts.TTL > 0 {
        if err := pc.SetTTL(opts.TTL); err != nil { zap.L().Warn("udp set ttl", zap.Int("ttl", opts.TTL), zap.Error(err)) }
    }
}

func (c *Conn) ReadPacket(buf []byte, timeout time.Duration) (int, net.Addr, error) {
    var dl time.Time
    if timeout > 0 { dl = time.Now().Add(timeout) }
    if err := c.c.SetReadDeadline(dl); err != nil { return 0, nil, err }
    n, from, err := c.c.ReadFromUDP(buf)
    if err != nil { return n, nil, err }
    return n, from, nil
}

// Read implements io.Reader over single datagrams so trigger readers can use the socket.
func (c *Conn) Read(b []byte) (int, error) { return c.c.Read(b) }

func (c *Conn) SetReadDeadline(t time.Time) error { return c.c.SetReadDeadline(t) }

func (c *Conn) SendBytes(b []byte) error {
    _, err := c.c.Write(b)
    return err
}

func (c *Conn) WriteTo(b []byte, addr net.Addr) (int, error) {
    if c.connected { return c.c.Write(b) }
    return c.c.WriteTo(b, addr)
}

func (c *Conn) LocalAddr() net.Addr  { return c.c.LocalAddr() }
func (c *Conn) RemoteAddr() net.Addr { return c.c.RemoteAddr() }
func (c *Conn) Close() error         { return c.c.Close() }
