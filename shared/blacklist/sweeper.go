package blacklist

import (
	"context"
	"time"

	"github.com/itchan-dev/ideamarket/shared/logger"
)

// Start sweeps expired entries once and then every interval until Stop is
// called or ctx is cancelled. Calling Start on a running sweeper is a no-op.
func (b *Blacklist) Start(ctx context.Context, interval time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	b.cancel = cancel
	b.done = done

	log := logger.Component("blacklist_sweeper")
	log.Info("started blacklist sweeper", "interval", interval)

	go func() {
		defer close(done)
		b.runSweep(ctx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				b.runSweep(ctx)
			case <-ctx.Done():
				log.Info("blacklist sweeper shutting down gracefully")
				return
			}
		}
	}()
}

// Stop cancels the sweeper and waits for the running sweep to return.
func (b *Blacklist) Stop() {
	b.mu.Lock()
	cancel, done := b.cancel, b.done
	b.cancel, b.done = nil, nil
	b.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (b *Blacklist) runSweep(ctx context.Context) {
	removed, err := b.SweepExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Log.Error("blacklist sweep failed", "component", "blacklist_sweeper", "error", err)
		}
		return
	}
	logger.Log.Info("blacklist sweep finished", "component", "blacklist_sweeper", "removed", removed)
}
