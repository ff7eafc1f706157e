package observability

import (
    "os"
    "path/filepath"
    "strings"
    "testing"

    "go.uber.org/zap"

    "latdecomp/pkg/config"
)

func TestSetupLoggerWritesJSONFile(t *testing.T) {
    prev := zap.L()
    defer zap.ReplaceGlobals(prev)

    path := filepath.Join(t.TempDir(), "logs", "recv.log")
    lg, err := SetupLogger(config.LogConfig{Level: "debug", Format: "json", Outputs: []string{path}}, "recv")
    if err != nil { t.Fatalf("setup: %v", err) }
    zap.L().Debug("fragment", zap.Uint32("request", 3))
    _ = lg.Sync()

    b, err := os.ReadFile(path)
    if err != nil { t.Fatalf("read log: %v", err) }
    line := string(b)
    for _, want := range []string{`"msg":"fragment"`, `"request":3`, `"role":"recv"`} {
        if !strings.Contains(line, want) { t.Fatalf("log line %q lacks %s", line, want) }
    }
}

func TestParseLevel(t *testing.T) {
    if parseLevel("WARNING") != zap.WarnLevel { t.Fatalf("warning should map to warn") }
    if parseLevel("bogus") != zap.InfoLevel { t.Fatalf("unknown levels default to info") }
}

func TestChooseFilename(t *testing.T) {
    c := config.LogConfig{Rotation: config.RotationConfig{Enable: true, Filename: "rot.log"}}
    if got := chooseFilename("out.log", c); got != "rot.log" { t.Fatalf("got %s", got) }
    c.Rotation.Enable = false
    if got := chooseFilename("out.log", c); got != "out.log" { t.Fatalf("got %s", got) }
}
