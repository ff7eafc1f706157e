package main

import (
    "context"
    "encoding/hex"
    "flag"
    "fmt"
    "log"
    "os"
    "path/filepath"
    "strings"

    "latdecomp/pkg/codec"
    "latdecomp/pkg/emitter"
    "latdecomp/pkg/wire"
)

// collector keeps every datagram handed to it.
type collector struct{ frames [][]byte }

func (c *collector) SendBytes(b []byte) error { c.frames = append(c.frames, append([]byte(nil), b...)); return nil }

func main() {
    outDir := flag.String("out", "testdata/frame", "output directory for binary frames")
    payload := flag.Int("payload", 3000, "request payload bytes")
    maxFrag := flag.Int("max-fragment", wire.DefaultMaxFragmentSize, "largest fragment payload")
    pad := flag.Bool("pad", false, "pad fragments to full capacity")
    format := flag.String("codec", "json", "codec for the decoded index file (json|cbor|proto)")
    flag.Parse()
    if err := os.MkdirAll(*outDir, 0o755); err != nil { log.Fatal(err) }

    // Fixed clock so the output is reproducible.
    var ts int64 = 1_700_000_000_000_000
    clock := func() int64 { ts += 10; return ts }

    // 1) Datagram fragments of one request
    col := &collector{}
    d := emitter.NewDatagram(col, emitter.DatagramOptions{MaxFragmentSize: *maxFrag, Pad: *pad, Clock: clock})
    if err := d.WriteRequest(context.Background(), 0, 1, *payload); err != nil { log.Fatal(err) }
    var index []wire.Fragment
    for i, b := range col.frames {
        writeOut(*outDir, fmt.Sprintf("fragment_%02d.bin", i), b)
        f, err := wire.DecodeFragment(b, *maxFrag)
        if err != nil { log.Fatal(err) }
        f.Payload = nil
        index = append(index, f)
    }

    // 2) Stream header + payload
    var sb strings.Builder
    s := emitter.NewStream(&sb, emitter.StreamOptions{Clock: clock})
    if err := s.WriteRequest(context.Background(), 0, 1, 64); err != nil { log.Fatal(err) }
    writeOut(*outDir, "stream_request.bin", []byte(sb.String()))

    // 3) Trigger token
    writeOut(*outDir, "trigger.bin", wire.TriggerToken[:])

    // 4) Round-trip response answering the datagram request
    resp := wire.Response{RequestID: 0, EchoTimestamp: uint64(index[0].SendTimestamp), ReceiverTimestamp: uint64(clock()), DataSize: 16}
    writeOut(*outDir, "response.bin", append(resp.AppendHeader(nil), make([]byte, resp.DataSize)...))

    // Decoded fragment headers for inspection
    reg, err := codec.NewRegistry()
    if err != nil { log.Fatal(err) }
    c, err := reg.Lookup(*format)
    if err != nil { log.Fatal(err) }
    b, err := c.Marshal(index)
    if err != nil { log.Fatal(err) }
    writeOut(*outDir, "fragments"+c.Ext(), b)

    fmt.Println("Generated wire frames in", *outDir)
}

func writeOut(dir, name string, b []byte) {
    p := filepath.Join(dir, name)
    if err := os.WriteFile(p, b, 0o644); err != nil { log.Fatal(err) }
    fmt.Printf("%-24s %6d bytes  head: %s\n", name, len(b), shortHex(b, 32))
}

func shortHex(b []byte, n int) string {
    if len(b) == 0 { return "" }
    if n > len(b) { n = len(b) }
    enc := hex.EncodeToString(b[:n])
    if len(b) > n { enc += "..." }
    var out []string
    for i := 0; i < len(enc); i += 8 {
        j := i + 8
        if j > len(enc) { j = len(enc) }
        out = append(out, enc[i:j])
    }
    return strings.Join(out, " ")
}
