package spool

import (
	"context"
	"log/slog"
	"time"

	"dealdesk/api/internal/deal"
)

// Replayer periodically drains the spool into the audit table.
type Replayer struct {
	spool    *RedisSpool
	sink     func(context.Context, deal.AuditEntry) error
	interval time.Duration
	onReplay func(n int)
}

func NewReplayer(s *RedisSpool, sink func(context.Context, deal.AuditEntry) error, interval time.Duration) *Replayer {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Replayer{spool: s, sink: sink, interval: interval}
}

// OnReplay registers a callback invoked with the count of each non-empty drain.
func (r *Replayer) OnReplay(fn func(n int)) {
	r.onReplay = fn
}

// Run drains until ctx is cancelled.
func (r *Replayer) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Once(ctx)
		}
	}
}

// Once performs a single drain pass and reports how many entries it wrote.
func (r *Replayer) Once(ctx context.Context) int {
	n, err := r.spool.Drain(ctx, 100, r.sink)
	if err != nil {
		slog.Warn("audit spool replay incomplete", "replayed", n, "error", err)
	}
	if n > 0 {
		slog.Info("replayed spooled audit entries", "count", n)
		if r.onReplay != nil {
			r.onReplay(n)
		}
	}
	return n
}
