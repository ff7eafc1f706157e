package emitter

import (
    "context"
    "fmt"

    "go.uber.org/zap"

    "latdecomp/pkg/trigger"
)

// Plan describes a session from the emitter's side.
type Plan struct {
    Requests     uint32
    PayloadBytes int
}

// Run sends plan.Requests requests, waiting on w before each. It returns the
// number of requests handed to the transport.
func Run(ctx context.Context, rw RequestWriter, plan Plan, w trigger.Waiter) (uint32, error) {
    if w == nil { w = trigger.Immediate{} }
    var sent uint32
    for id := uint32(0); id < plan.Requests; id++ {
        if err := w.Wait(ctx); err != nil {
            return sent, fmt.Errorf("wait before request %d: %w", id, err)
        }
        if err := rw.WriteRequest(ctx, id, plan.Requests, plan.PayloadBytes); err != nil {
            return sent, fmt.Errorf("request %d: %w", id, err)
        }
        sent++
        zap.L().Info("request sent", zap.Uint32("request", id), zap.Uint32("total", plan.Requests), zap.Int("bytes", plan.PayloadBytes))
    }
    return sent, nil
}
