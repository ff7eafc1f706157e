package tcp

import (
    "context"
    "net"

    "latdecomp/pkg/transport"
)

// Transport implements a raw byte-stream TCP transport. Nagle is disabled on
// both ends so header writes are not coalesced with later payload.
type Transport struct {
    NoDelay bool
}

func New() *Transport { return &Transport{NoDelay: true} }

func (t *Transport) Kind() transport.Kind { return transport.KindTCP }

func (t *Transport) Listen(ctx context.Context, address string) (transport.Listener, error) {
    var lc net.ListenConfig
    l, err := lc.Listen(ctx, "tcp", address)
    if err != nil { return nil, err }
    a := transport.NewAcceptor(l.Addr(), func() (transport.Conn, error) {
        c, err := l.Accept()
        if err != nil { return nil, err }
        t.tune(c)
        return c, nil
    }, l.Close)
    transport.CloseOnCancel(ctx, a.Done(), a)
    return a, nil
}

func (t *Transport) Dial(ctx context.Context, address string) (transport.Conn, error) {
    d := &net.Dialer{}
    c, err := d.DialContext(ctx, "tcp", address)
    if err != nil { return nil, err }
    t.tune(c)
    return c, nil
}

func (t *Transport) tune(c net.Conn) {
    if tc, ok := c.(*net.TCPConn); ok { _ = tc.SetNoDelay(t.NoDelay) }
}
