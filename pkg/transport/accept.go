package transport

import (
    "context"
    "io"
    "net"
    "sync"
)

// Acceptor adapts a blocking accept function to Listener. A background loop
// hands accepted conns over a channel so Accept can honor ctx.
type Acceptor struct {
    addr    net.Addr
    accept  func() (Conn, error)
    closeFn func() error

    newCh     chan Conn
    closeCh   chan struct{}
    closeOnce sync.Once
    errMu     sync.Mutex
    err       error
}

// NewAcceptor starts the accept loop. accept must unblock once closeFn runs.
func NewAcceptor(addr net.Addr, accept func() (Conn, error), closeFn func() error) *Acceptor {
    a := &Acceptor{addr: addr, accept: accept, closeFn: closeFn, newCh: make(chan Conn), closeCh: make(chan struct{})}
    go a.loop()
    return a
}

func (a *Acceptor) loop() {
    for {
        c, err := a.accept()
        if err != nil {
            a.errMu.Lock(); a.err = err; a.errMu.Unlock()
            _ = a.Close()
            return
        }
        select {
        case a.newCh <- c:
        case <-a.closeCh:
            _ = c.Close()
            return
        }
    }
}

func (a *Acceptor) Addr() net.Addr { return a.addr }

func (a *Acceptor) Accept(ctx context.Context) (Conn, error) {
    select {
    case <-ctx.Done():
        return nil, ctx.Err()
    case <-a.closeCh:
        a.errMu.Lock(); err := a.err; a.errMu.Unlock()
        if err != nil && !IsClosed(err) { return nil, err }
        return nil, ErrListenerClosed
    case c := <-a.newCh:
        return c, nil
    }
}

func (a *Acceptor) Close() error {
    var err error
    a.closeOnce.Do(func() {
        close(a.closeCh)
        if a.closeFn != nil { err = a.closeFn() }
    })
    return err
}

// Done is closed once the acceptor is closed.
func (a *Acceptor) Done() <-chan struct{} { return a.closeCh }

// CloseOnCancel closes c when ctx ends. The watcher exits without closing
// anything once done is closed.
func CloseOnCancel(ctx context.Context, done <-chan struct{}, c io.Closer) {
    go func() {
        select {
        case <-ctx.Done():
            _ = c.Close()
        case <-done:
        }
    }()
}
