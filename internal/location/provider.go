// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package location

import (
	"context"
	"log/slog"
	"time"

	"github.com/wneessen/traccar-agent/internal/logger"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// Provider is a source of positional fixes. Stream starts the provider; cancelling ctx stops
// it. The returned channel is closed when the provider stops, for example after losing the
// connection to the receiver.
type Provider interface {
	Name() string
	Stream(ctx context.Context) <-chan Fix
}

// Supervisor keeps a Provider streaming. Whenever the provider's stream ends, it is restarted
// after an exponential backoff. Fixes are forwarded in the order they arrive.
type Supervisor struct {
	provider Provider
	logger   *logger.Logger
}

// NewSupervisor returns a Supervisor for the given provider.
func NewSupervisor(provider Provider, log *logger.Logger) *Supervisor {
	return &Supervisor{
		provider: provider,
		logger:   log,
	}
}

// Run streams fixes from the provider into out until ctx is cancelled. Run does not close out.
func (s *Supervisor) Run(ctx context.Context, out chan<- Fix) {
	backoff := initialBackoff
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		stream := s.safeStream(ctx)
		if stream != nil {
			received := s.forward(ctx, stream, out)
			if ctx.Err() != nil {
				return
			}
			if received {
				backoff = initialBackoff
			}
		}

		s.logger.Debug("location provider stream ended, restarting",
			slog.String("provider", s.provider.Name()), slog.Duration("backoff", backoff))
		if !SleepOrDone(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff)
	}
}

// forward copies fixes from stream to out until stream closes or ctx is done. It reports
// whether at least one fix was forwarded.
func (s *Supervisor) forward(ctx context.Context, stream <-chan Fix, out chan<- Fix) bool {
	received := false
	for {
		select {
		case <-ctx.Done():
			return received
		case fix, ok := <-stream:
			if !ok {
				return received
			}
			received = true
			select {
			case <-ctx.Done():
				return received
			case out <- fix:
			}
		}
	}
}

// safeStream starts the provider stream and recovers from a panicking provider.
func (s *Supervisor) safeStream(ctx context.Context) (ch <-chan Fix) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("location provider panicked", slog.String("provider", s.provider.Name()),
				slog.Any("panic", r))
			ch = nil
		}
	}()
	return s.provider.Stream(ctx)
}

// SleepOrDone waits for d and reports false if ctx ended first.
func SleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d *= 2; d > maxBackoff {
		return maxBackoff
	}
	return d
}
