// Package lossemu injects bursty receive-side packet loss with an XDP program
// so the tracker's loss handling can be exercised on a real link.
//
// Every packet arriving on the interface rolls a 1-in-Odds die. A hit drops
// the packet and arms a burst of BurstMin plus up to BurstSpan-1 further
// drops. The program is assembled in Go; no compiled object is needed.
package lossemu

import (
    "errors"
    "fmt"

    "github.com/cilium/ebpf/asm"
)

// XDP verdicts.
const (
    xdpDrop = 1
    xdpPass = 2
)

// Stats slots in the counters map.
const (
    statTotal uint32 = iota
    statDropped
    statSlots
)

// ErrUnsupported is returned where XDP is not available.
var ErrUnsupported = errors.New("xdp loss emulation requires linux")

// Options configures the emulator.
type Options struct {
    Interface string
    // Odds is the per-packet chance, 1 in Odds, of starting a burst.
    Odds uint32
    // BurstMin and BurstSpan size the drops that follow a trigger:
    // BurstMin + rand%BurstSpan packets.
    BurstMin  uint32
    BurstSpan uint32
    // Generic forces the kernel's generic XDP hook instead of driver mode.
    Generic bool
}

// DefaultOptions drops bursts of 50..99 packets with 1-in-20000 odds.
func DefaultOptions() Options {
    return Options{Odds: 20000, BurstMin: 50, BurstSpan: 50}
}

// Validate checks the options the program bakes in as immediates.
func (o Options) Validate() error {
    if o.Interface == "" { return errors.New("interface is required") }
    if o.Odds == 0 || o.Odds > 1<<31-1 { return fmt.Errorf("invalid odds %d", o.Odds) }
    if o.BurstSpan == 0 || o.BurstSpan > 1<<31-1 { return fmt.Errorf("invalid burst span %d", o.BurstSpan) }
    if o.BurstMin > 1<<31-1-o.BurstSpan { return fmt.Errorf("invalid burst min %d", o.BurstMin) }
    return nil
}

// Stats is a snapshot of the emulator counters.
type Stats struct {
    Total          uint64 `json:"total"`
    Dropped        uint64 `json:"dropped"`
    BurstRemaining uint32 `json:"burst_remaining"`
}

// DropRate returns the percentage of packets dropped between prev and s.
func (s Stats) DropRate(prev Stats) float64 {
    total := s.Total - prev.Total
    if total == 0 { return 0 }
    return float64(s.Dropped-prev.Dropped) / float64(total) * 100
}

// Program assembles the burst-drop XDP program against the burst state map
// (u32 -> u32, one entry) and the counters map (u32 -> u64, statSlots entries).
func Program(o Options, stateFD, statsFD int) asm.Instructions {
    return asm.Instructions{
        // counters[total]++
        asm.StoreImm(asm.RFP, -4, int64(statTotal), asm.Word),
        asm.Mov.Reg(asm.R2, asm.RFP),
        asm.Add.Imm(asm.R2, -4),
        asm.LoadMapPtr(asm.R1, statsFD),
        asm.FnMapLookupElem.Call(),
        asm.JEq.Imm(asm.R0, 0, "state"),
        asm.Mov.Imm(asm.R1, 1),
        asm.StoreXAdd(asm.R0, asm.R1, asm.DWord),

        // r7 = &state[0]; the key slot still holds 0
        asm.Mov.Reg(asm.R2, asm.RFP).WithSymbol("state"),
        asm.Add.Imm(asm.R2, -4),
        asm.LoadMapPtr(asm.R1, stateFD),
        asm.FnMapLookupElem.Call(),
        asm.JEq.Imm(asm.R0, 0, "pass"),
        asm.Mov.Reg(asm.R7, asm.R0),

        // inside a burst: count down and drop
        asm.LoadMem(asm.R1, asm.R7, 0, asm.Word),
        asm.JEq.Imm(asm.R1, 0, "roll"),
        asm.Add.Imm(asm.R1, -1),
        asm.StoreMem(asm.R7, 0, asm.R1, asm.Word),
        asm.Ja.Label("drop"),

        // 1 in Odds starts a burst with this packet
        asm.FnGetPrandomU32.Call().WithSymbol("roll"),
        asm.Mod.Imm(asm.R0, int32(o.Odds)),
        asm.JNE.Imm(asm.R0, 0, "pass"),
        asm.FnGetPrandomU32.Call(),
        asm.Mod.Imm(asm.R0, int32(o.BurstSpan)),
        asm.Add.Imm(asm.R0, int32(o.BurstMin)),
        asm.StoreMem(asm.R7, 0, asm.R0, asm.Word),

        // counters[dropped]++
        asm.StoreImm(asm.RFP, -4, int64(statDropped), asm.Word).WithSymbol("drop"),
        asm.Mov.Reg(asm.R2, asm.RFP),
        asm.Add.Imm(asm.R2, -4),
        asm.LoadMapPtr(asm.R1, statsFD),
        asm.FnMapLookupElem.Call(),
        asm.JEq.Imm(asm.R0, 0, "verdict"),
        asm.Mov.Imm(asm.R1, 1),
        asm.StoreXAdd(asm.R0, asm.R1, asm.DWord),
        asm.Mov.Imm(asm.R0, xdpDrop).WithSymbol("verdict"),
        asm.Return(),

        asm.Mov.Imm(asm.R0, xdpPass).WithSymbol("pass"),
        asm.Return(),
    }
}
