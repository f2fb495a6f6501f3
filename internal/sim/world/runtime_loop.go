package world

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

var ErrStopped = eris.New("world stopped")

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer w.rescheduleOnSwap()()

	w.log.Info().Int("tick_rate_hz", w.cfg.TickRateHz).Msg("world running")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case fn := <-w.inbox:
			fn(w)
		case <-ticker.C:
			w.Step()
		}
	}
}

func (w *World) Stop() { w.stopOnce.Do(func() { close(w.stop) }) }

// Post queues fn for the loop without waiting. It reports false when the
// inbox is full and fn was dropped.
func (w *World) Post(fn func(*World)) bool {
	select {
	case w.inbox <- fn:
		return true
	default:
		w.dropped.Add(1)
		w.log.Warn().Msg("world inbox full; event dropped")
		return false
	}
}

// Do runs fn on the loop goroutine and waits for it to finish.
func (w *World) Do(ctx context.Context, fn func(*World)) error {
	done := make(chan struct{})
	wrapped := func(w *World) {
		defer close(done)
		fn(w)
	}
	select {
	case w.inbox <- wrapped:
	case <-w.stop:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-w.stop:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}
