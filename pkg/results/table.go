package results

import (
    "bufio"
    "fmt"
    "os"
    "path/filepath"

    "latdecomp/pkg/tracker"
)

// TableFile rewrites a fixed-width text table on every flush. The file is
// replaced atomically so readers never see a partial table.
type TableFile struct {
    Path string
}

func NewTableFile(path string) *TableFile { return &TableFile{Path: path} }

func (t *TableFile) Write(variant Variant, recs []tracker.LatencyRecord) error {
    return writeAtomic(t.Path, func(w *bufio.Writer) error { return WriteTable(w, variant, recs) })
}

// writeAtomic renders into a temp file next to path and renames it over path.
func writeAtomic(path string, render func(*bufio.Writer) error) error {
    dir := filepath.Dir(path)
    if err := os.MkdirAll(dir, 0o755); err != nil { return err }
    tmp, err := os.CreateTemp(dir, ".latdecomp-*")
    if err != nil { return err }
    defer os.Remove(tmp.Name())

    w := bufio.NewWriter(tmp)
    if err := render(w); err != nil { tmp.Close(); return err }
    if err := w.Flush(); err != nil { tmp.Close(); return err }
    if err := tmp.Close(); err != nil { return err }
    return os.Rename(tmp.Name(), path)
}

func (t *TableFile) Close() error { return nil }

// WriteTable renders recs as the fixed-width report table.
func WriteTable(w *bufio.Writer, variant Variant, recs []tracker.LatencyRecord) error {
    cols := variant.Columns()
    if _, err := fmt.Fprintf(w, "%-12s %-30s %-30s\n", cols[0], cols[1], cols[2]); err != nil { return err }
    for _, r := range recs {
        if _, err := fmt.Fprintf(w, "%-12d %-30d %-30d\n", r.RequestID, r.FirstFragmentLatencyUS, r.SpreadUS); err != nil { return err }
    }
    return nil
}
