package mem

import (
    "context"
    "errors"
    "net"
    "sync"

    "latdecomp/pkg/transport"
)

// Transport is an in-process stream transport using net.Pipe. Useful for tests
// and as a zero-network baseline.
type Transport struct {
    mu        sync.Mutex
    listeners map[string]*listener
}

func New() *Transport { return &Transport{listeners: make(map[string]*listener)} }

func (t *Transport) Kind() transport.Kind { return transport.KindMem }

func (t *Transport) Listen(ctx context.Context, name string) (transport.Listener, error) {
    t.mu.Lock(); defer t.mu.Unlock()
    if _, ok := t.listeners[name]; ok {
        return nil, errors.New("mem: listener already exists")
    }
    l := &listener{name: name, newCh: make(chan net.Conn), closeCh: make(chan struct{})}
    l.release = func() { t.mu.Lock(); delete(t.listeners, name); t.mu.Unlock() }
    t.listeners[name] = l
    transport.CloseOnCancel(ctx, l.closeCh, l)
    return l, nil
}

func (t *Transport) Dial(ctx context.Context, name string) (transport.Conn, error) {
    t.mu.Lock(); l := t.listeners[name]; t.mu.Unlock()
    if l == nil { return nil, errors.New("mem: no such listener") }
    srv, cli := net.Pipe()
    select {
    case l.newCh <- srv:
        return cli, nil
    case <-l.closeCh:
        _ = srv.Close(); _ = cli.Close()
        return nil, transport.ErrListenerClosed
    case <-ctx.Done():
        _ = srv.Close(); _ = cli.Close()
        return nil, ctx.Err()
    }
}

type listener struct {
    name      string
    newCh     chan net.Conn
    closeCh   chan struct{}
    closeOnce sync.Once
    release   func()
}

func (l *listener) Addr() net.Addr { return memAddr(l.name) }

func (l *listener) Accept(ctx context.Context) (transport.Conn, error) {
    select {
    case <-ctx.Done():
        return nil, ctx.Err()
    case <-l.closeCh:
        return nil, transport.ErrListenerClosed
    case c := <-l.newCh:
        return c, nil
    }
}

func (l *listener) Close() error {
    l.closeOnce.Do(func() { close(l.closeCh); l.release() })
    return nil
}

type memAddr string
func (a memAddr) Network() string { return "mem" }
func (a memAddr) String() string  { return string(a) }
