//go:build linux

package lossemu

import (
    "errors"
    "fmt"
    "net"

    "github.com/cilium/ebpf"
    "github.com/cilium/ebpf/link"
    "github.com/cilium/ebpf/rlimit"
    "go.uber.org/zap"
)

// Emulator is an attached burst-drop program. Close detaches it.
type Emulator struct {
    state *ebpf.Map
    stats *ebpf.Map
    prog  *ebpf.Program
    link  link.Link
}

// Attach loads the program and attaches it to opts.Interface. It needs
// CAP_BPF and CAP_NET_ADMIN (or root).
func Attach(opts Options) (*Emulator, error) {
    if err := opts.Validate(); err != nil { return nil, err }
    iface, err := net.InterfaceByName(opts.Interface)
    if err != nil { return nil, fmt.Errorf("lookup interface %q: %w", opts.Interface, err) }
    if err := rlimit.RemoveMemlock(); err != nil { return nil, fmt.Errorf("remove memlock: %w", err) }

    e := &Emulator{}
    fail := func(err error) (*Emulator, error) { _ = e.Close(); return nil, err }
    e.state, err = ebpf.NewMap(&ebpf.MapSpec{Name: "ld_drop_state", Type: ebpf.Array, KeySize: 4, ValueSize: 4, MaxEntries: 1})
    if err != nil { return fail(fmt.Errorf("create state map: %w", err)) }
    e.stats, err = ebpf.NewMap(&ebpf.MapSpec{Name: "ld_drop_stats", Type: ebpf.Array, KeySize: 4, ValueSize: 8, MaxEntries: statSlots})
    if err != nil { return fail(fmt.Errorf("create stats map: %w", err)) }
    e.prog, err = ebpf.NewProgram(&ebpf.ProgramSpec{
        Name:         "ld_burst_drop",
        Type:         ebpf.XDP,
        License:      "GPL",
        Instructions: Program(opts, e.state.FD(), e.stats.FD()),
    })
    if err != nil {
        var ve *ebpf.VerifierError
        if errors.As(err, &ve) { zap.L().Debug("verifier log", zap.Strings("log", ve.Log)) }
        return fail(fmt.Errorf("load program: %w", err))
    }
    flags := link.XDPAttachFlags(0)
    if opts.Generic { flags = link.XDPGenericMode }
    e.link, err = link.AttachXDP(link.XDPOptions{Program: e.prog, Interface: iface.Index, Flags: flags})
    if err != nil { return fail(fmt.Errorf("attach xdp to %s: %w", opts.Interface, err)) }

    zap.L().Info("loss emulator attached", zap.String("interface", opts.Interface), zap.Int("ifindex", iface.Index),
        zap.Uint32("odds", opts.Odds), zap.Uint32("burst_min", opts.BurstMin), zap.Uint32("burst_span", opts.BurstSpan),
        zap.Bool("generic", opts.Generic))
    return e, nil
}

// Stats reads the counters and the drops left in the current burst.
func (e *Emulator) Stats() (Stats, error) {
    var s Stats
    if err := e.stats.Lookup(statTotal, &s.Total); err != nil { return s, fmt.Errorf("read total: %w", err) }
    if err := e.stats.Lookup(statDropped, &s.Dropped); err != nil { return s, fmt.Errorf("read dropped: %w", err) }
    if err := e.state.Lookup(uint32(0), &s.BurstRemaining); err != nil { return s, fmt.Errorf("read burst state: %w", err) }
    return s, nil
}

// Close detaches the program and releases its maps.
func (e *Emulator) Close() error {
    var errs []error
    if e.link != nil { errs = append(errs, e.link.Close()) }
    if e.prog != nil { errs = append(errs, e.prog.Close()) }
    if e.stats != nil { errs = append(errs, e.stats.Close()) }
    if e.state != nil { errs = append(errs, e.state.Close()) }
    return errors.Join(errs...)
}
