// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package location

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/wneessen/traccar-agent/internal/logger"
)

type mockProvider struct {
	mu      sync.Mutex
	calls   int
	batches [][]Fix
	panics  bool
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) Stream(ctx context.Context) <-chan Fix {
	m.mu.Lock()
	call := m.calls
	m.calls++
	m.mu.Unlock()
	if m.panics && call == 0 {
		panic("intentionally panicking")
	}

	out := make(chan Fix)
	go func() {
		defer close(out)
		if call >= len(m.batches) {
			<-ctx.Done()
			return
		}
		for _, fix := range m.batches[call] {
			select {
			case <-ctx.Done():
				return
			case out <- fix:
			}
		}
	}()
	return out
}

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func testLogger() *logger.Logger {
	return logger.NewLogger(slog.LevelDebug, io.Discard)
}

func TestSupervisor_Run(t *testing.T) {
	t.Run("fixes are forwarded in order across restarts", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			now := time.Now()
			provider := &mockProvider{batches: [][]Fix{
				{{Latitude: 1, Timestamp: now}, {Latitude: 2, Timestamp: now.Add(time.Second)}},
				{{Latitude: 3, Timestamp: now.Add(2 * time.Second)}},
			}}
			out := make(chan Fix)
			done := make(chan struct{})
			go func() {
				NewSupervisor(provider, testLogger()).Run(ctx, out)
				close(done)
			}()

			for _, want := range []float64{1, 2, 3} {
				fix := <-out
				if fix.Latitude != want {
					t.Errorf("expected latitude to be %f, got %f", want, fix.Latitude)
				}
			}
			if provider.callCount() != 2 {
				t.Errorf("expected provider to be started twice, got %d", provider.callCount())
			}

			cancel()
			<-done
		})
	})
	t.Run("panicking provider is restarted", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			provider := &mockProvider{panics: true, batches: [][]Fix{nil, {{Latitude: 7}}}}
			out := make(chan Fix)
			done := make(chan struct{})
			go func() {
				NewSupervisor(provider, testLogger()).Run(ctx, out)
				close(done)
			}()

			start := time.Now()
			fix := <-out
			if fix.Latitude != 7 {
				t.Errorf("expected latitude to be 7, got %f", fix.Latitude)
			}
			if elapsed := time.Since(start); elapsed != initialBackoff {
				t.Errorf("expected restart after %s, got %s", initialBackoff, elapsed)
			}

			cancel()
			<-done
		})
	})
	t.Run("cancelled context stops the supervisor", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			provider := &mockProvider{}
			done := make(chan struct{})
			go func() {
				NewSupervisor(provider, testLogger()).Run(ctx, make(chan Fix))
				close(done)
			}()
			synctest.Wait()
			cancel()
			<-done
		})
	})
}

func TestNextBackoff(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want time.Duration
	}{
		{time.Second, 2 * time.Second},
		{16 * time.Second, maxBackoff},
		{maxBackoff, maxBackoff},
	}
	for _, tc := range tests {
		if got := nextBackoff(tc.in); got != tc.want {
			t.Errorf("expected backoff after %s to be %s, got %s", tc.in, tc.want, got)
		}
	}
}

func TestSleepOrDone(t *testing.T) {
	t.Run("full sleep reports true", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			start := time.Now()
			if !SleepOrDone(t.Context(), 5*time.Second) {
				t.Fatal("expected sleep to complete")
			}
			if elapsed := time.Since(start); elapsed != 5*time.Second {
				t.Errorf("expected to sleep for 5s, slept %s", elapsed)
			}
		})
	})
	t.Run("cancelled context cuts the sleep short", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(t.Context(), time.Second)
			defer cancel()
			start := time.Now()
			if SleepOrDone(ctx, time.Minute) {
				t.Fatal("expected sleep to be interrupted")
			}
			if elapsed := time.Since(start); elapsed != time.Second {
				t.Errorf("expected to return after 1s, returned after %s", elapsed)
			}
		})
	})
}
