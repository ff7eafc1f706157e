package results

import (
    "os"
    "path/filepath"
    "strings"

    "latdecomp/pkg/codec"
    "latdecomp/pkg/tracker"
)

// CodecFile writes each flush as one encoded Batch, replacing the file.
type CodecFile struct {
    Path  string
    Codec codec.Codec
}

// NewCodecFile uses the codec's extension when path has none.
func NewCodecFile(path string, c codec.Codec) *CodecFile {
    if filepath.Ext(path) == "" { path = strings.TrimSuffix(path, ".") + c.Ext() }
    return &CodecFile{Path: path, Codec: c}
}

func (f *CodecFile) Write(variant Variant, recs []tracker.LatencyRecord) error {
    b, err := f.Codec.Marshal(NewBatch(variant, recs))
    if err != nil { return err }
    dir := filepath.Dir(f.Path)
    if err := os.MkdirAll(dir, 0o755); err != nil { return err }
    tmp := filepath.Join(dir, "."+filepath.Base(f.Path)+".tmp")
    if err := os.WriteFile(tmp, b, 0o644); err != nil { return err }
    return os.Rename(tmp, f.Path)
}

func (f *CodecFile) Close() error { return nil }
