// Package replay steps a session over a manual clock and emits every
// published snapshot, so a trading day can be rendered deterministically.
package replay

import (
	"context"
	"fmt"
	"time"

	"econ-clock/internal/clock"
	"econ-clock/internal/orchestrator"
)

// Frame is one published snapshot and the instant it was taken at.
type Frame struct {
	AtMs     int64                 `json:"at_ms"`
	Snapshot orchestrator.Snapshot `json:"snapshot"`
}

// Sink receives frames in clock order.
type Sink interface {
	OnFrame(ctx context.Context, f Frame) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, f Frame) error

// OnFrame calls fn.
func (fn SinkFunc) OnFrame(ctx context.Context, f Frame) error { return fn(ctx, f) }

// Collector keeps every frame it receives.
type Collector struct {
	Frames []Frame
}

// OnFrame appends f.
func (c *Collector) OnFrame(_ context.Context, f Frame) error {
	c.Frames = append(c.Frames, f)
	return nil
}

// Runner drives a session whose clock it owns.
type Runner struct {
	session *orchestrator.Session
	clk     *clock.Manual
}

// NewRunner creates a runner. session must have been built on clk.
func NewRunner(session *orchestrator.Session, clk *clock.Manual) *Runner {
	return &Runner{session: session, clk: clk}
}

// Run ticks the session at from, from+step, ... up to but excluding to.
// Loads are awaited before the clock moves on. Returns the number of
// frames emitted.
func (r *Runner) Run(ctx context.Context, from, to int64, step time.Duration, sink Sink) (int, error) {
	if from >= to || step.Milliseconds() <= 0 {
		return 0, fmt.Errorf("%w: from=%d to=%d step=%s", ErrInvalidRange, from, to, step)
	}

	frames := 0
	emit := func(at int64, snap orchestrator.Snapshot) error {
		frames++
		return sink.OnFrame(ctx, Frame{AtMs: at, Snapshot: snap})
	}

	for at := from; at < to; at += step.Milliseconds() {
		if err := ctx.Err(); err != nil {
			return frames, err
		}
		r.clk.Set(at)

		snap, published := r.session.Tick(ctx)
		if published {
			if err := emit(at, snap); err != nil {
				return frames, err
			}
		}
		if !snap.Loading {
			continue
		}

		if err := r.session.Settle(ctx); err != nil {
			return frames, err
		}
		if snap, published = r.session.Tick(ctx); published {
			if err := emit(at, snap); err != nil {
				return frames, err
			}
		}
	}
	return frames, nil
}
