// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package delivery

import (
	"log/slog"
	"sync/atomic"
)

// Stats counts the reports passing through a Dispatcher.
type Stats struct {
	queued    atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	Queued    int64
	Delivered int64
	Failed    int64
	Dropped   int64
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Queued:    s.queued.Load(),
		Delivered: s.delivered.Load(),
		Failed:    s.failed.Load(),
		Dropped:   s.dropped.Load(),
	}
}

// LogValue implements slog.LogValuer.
func (s Snapshot) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("queued", s.Queued),
		slog.Int64("delivered", s.Delivered),
		slog.Int64("failed", s.Failed),
		slog.Int64("dropped", s.Dropped),
	)
}
