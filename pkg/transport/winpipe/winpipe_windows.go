//go:build windows

package winpipe

import (
    "context"

    "github.com/Microsoft/go-winio"

    "latdecomp/pkg/transport"
)

// Transport measures local IPC over Windows named pipes in byte mode.
// Addresses are pipe paths such as `\\.\pipe\latdecomp`.
type Transport struct {
    BufferSize int32
}

func New() *Transport { return &Transport{BufferSize: 1 << 20} }

func (t *Transport) Kind() transport.Kind { return transport.KindWinPipe }

func (t *Transport) Listen(ctx context.Context, pipeName string) (transport.Listener, error) {
    l, err := winio.ListenPipe(pipeName, &winio.PipeConfig{InputBufferSize: t.BufferSize, OutputBufferSize: t.BufferSize})
    if err != nil { return nil, err }
    a := transport.NewAcceptor(l.Addr(), func() (transport.Conn, error) { return l.Accept() }, l.Close)
    transport.CloseOnCancel(ctx, a.Done(), a)
    return a, nil
}

func (t *Transport) Dial(ctx context.Context, pipeName string) (transport.Conn, error) {
    return winio.DialPipeContext(ctx, pipeName)
}
