package main

import (
    "context"
    "os"
    "os/signal"
    "syscall"
)

func main() {
    opts := ParseFlags(os.Args[1:])
    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    code := run(ctx, opts)
    stop()
    os.Exit(code)
}
