package quic

import (
    "context"
    "crypto/rand"
    "crypto/rsa"
    "crypto/tls"
    "crypto/x509"
    "errors"
    "io"
    "math/big"
    "net"
    "sync"
    "sync/atomic"
    "time"

    quicgo "github.com/quic-go/quic-go"
    "go.uber.org/zap"

    "latdecomp/pkg/transport"
)

const alpn = "latdecomp"

// preamble is written by the dialer so the peer learns about the stream
// before any measured bytes flow. It is consumed inside Accept.
var preamble = [4]byte{'L', 'D', 'Q', '1'}

// Transport carries one bidirectional QUIC stream per connection.
type Transport struct {
    tlsConf  *tls.Config
    quicConf *quicgo.Config
    // HandshakeTimeout bounds stream setup on accepted connections.
    HandshakeTimeout time.Duration
}

func New() (*Transport, error) {
    // Ephemeral self-signed certificate; peers are not authenticated.
    cert, err := selfSignedCert()
    if err != nil { return nil, err }
    tlsConf := &tls.Config{
        Certificates: []tls.Certificate{cert},
        NextProtos:   []string{alpn},
        MinVersion:   tls.VersionTLS13,
    }
    return &Transport{tlsConf: tlsConf, quicConf: &quicgo.Config{}, HandshakeTimeout: 5 * time.Second}, nil
}

func (t *Transport) Kind() transport.Kind { return transport.KindQUIC }

func (t *Transport) Listen(ctx context.Context, address string) (transport.Listener, error) {
    l, err := quicgo.ListenAddr(address, t.tlsConf, t.quicConf)
    if err != nil { return nil, err }
    lctx, cancel := context.WithCancel(context.Background())
    ql := &listener{l: l, ready: make(chan transport.Conn), closeCh: make(chan struct{}), cancel: cancel}
    go ql.acceptLoop(lctx, t.HandshakeTimeout)
    transport.CloseOnCancel(ctx, ql.closeCh, ql)
    return ql, nil
}

func (t *Transport) Dial(ctx context.Context, address string) (transport.Conn, error) {
    tlsClient := &tls.Config{
        InsecureSkipVerify: true, // self-signed server certs
        NextProtos:         []string{alpn},
        MinVersion:         tls.VersionTLS13,
    }
    c, err := quicgo.DialAddr(ctx, address, tlsClient, t.quicConf)
    if err != nil { return nil, err }
    st, err := c.OpenStreamSync(ctx)
    if err != nil { _ = c.CloseWithError(0, ""); return nil, err }
    if _, err := st.Write(preamble[:]); err != nil { _ = c.CloseWithError(0, ""); return nil, err }
    return &conn{Stream: st, c: c}, nil
}

type listener struct {
    l         *quicgo.Listener
    ready     chan transport.Conn
    closeCh   chan struct{}
    closeOnce sync.Once
    cancel    context.CancelFunc
}

func (l *listener) Addr() net.Addr { return l.l.Addr() }

func (l *listener) Accept(ctx context.Context) (transport.Conn, error) {
    select {
    case <-ctx.Done():
        return nil, ctx.Err()
    case <-l.closeCh:
        return nil, transport.ErrListenerClosed
    case c := <-l.ready:
        return c, nil
    }
}

func (l *listener) Close() error {
    var err error
    l.closeOnce.Do(func() { close(l.closeCh); l.cancel(); err = l.l.Close() })
    return err
}

func (l *listener) acceptLoop(ctx context.Context, hsTimeout time.Duration) {
    for {
        qc, err := l.l.Accept(ctx)
        if err != nil { return }
        go l.setup(ctx, qc, hsTimeout)
    }
}

// setup waits for the dialer's stream and preamble, then hands the conn to Accept.
func (l *listener) setup(ctx context.Context, qc quicgo.Connection, hsTimeout time.Duration) {
    sctx, cancel := context.WithTimeout(ctx, hsTimeout)
    defer cancel()
    st, err := qc.AcceptStream(sctx)
    if err != nil {
        zap.L().Debug("quic accept stream", zap.Stringer("remote", qc.RemoteAddr()), zap.Error(err))
        _ = qc.CloseWithError(0, "")
        return
    }
    var got [4]byte
    _ = st.SetReadDeadline(time.Now().Add(hsTimeout))
    if _, err := io.ReadFull(st, got[:]); err != nil || got != preamble {
        if err == nil { err = errors.New("bad preamble") }
        zap.L().Debug("quic preamble", zap.Stringer("remote", qc.RemoteAddr()), zap.Error(err))
        _ = qc.CloseWithError(1, "bad preamble")
        return
    }
    _ = st.SetReadDeadline(time.Time{})
    c := &conn{Stream: st, c: qc}
    select {
    case l.ready <- c:
    case <-l.closeCh:
        _ = c.Close()
    }
}

// lingerTimeout bounds how long Close waits for the peer to drain our data.
const lingerTimeout = 2 * time.Second

// conn exposes a QUIC stream plus its connection addresses as transport.Conn.
type conn struct {
    quicgo.Stream
    c       quicgo.Connection
    peerEOF atomic.Bool
}

func (c *conn) Read(b []byte) (int, error) {
    n, err := c.Stream.Read(b)
    if err == io.EOF { c.peerEOF.Store(true) }
    return n, err
}

func (c *conn) LocalAddr() net.Addr  { return c.c.LocalAddr() }
func (c *conn) RemoteAddr() net.Addr { return c.c.RemoteAddr() }

// Close closes the send side then tears down the connection. Unless the peer
// already finished its side, it first waits for the peer to close so queued
// bytes are delivered.
func (c *conn) Close() error {
    err := c.Stream.Close()
    if !c.peerEOF.Load() {
        select {
        case <-c.c.Context().Done():
        case <-time.After(lingerTimeout):
        }
    }
    c.Stream.CancelRead(0)
    if cerr := c.c.CloseWithError(0, ""); err == nil { err = cerr }
    return err
}

// selfSignedCert generates a short-lived self-signed TLS certificate for QUIC.
func selfSignedCert() (tls.Certificate, error) {
    priv, err := rsa.GenerateKey(rand.Reader, 2048)
    if err != nil { return tls.Certificate{}, err }
    tmpl := x509.Certificate{
        SerialNumber:          big.NewInt(time.Now().UnixNano()),
        NotBefore:             time.Now().Add(-time.Minute),
        NotAfter:              time.Now().Add(24 * time.Hour),
        KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
        ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
        BasicConstraintsValid: true,
        DNSNames:              []string{"localhost"},
    }
    der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
    if err != nil { return tls.Certificate{}, err }
    return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}, nil
}
