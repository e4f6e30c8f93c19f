// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package battery

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/wneessen/traccar-agent/internal/logger"
	"github.com/wneessen/traccar-agent/internal/vartype"
)

// ErrBatteryUnavailable is returned when no battery level can be determined.
var ErrBatteryUnavailable = errors.New("battery level unavailable")

// Reader reports the current battery level in percent (0-100).
type Reader interface {
	Name() string
	Level(ctx context.Context) (vartype.VarFloat64, error)
}

// None is a Reader for devices without a battery.
type None struct{}

func (None) Name() string { return "none" }

func (None) Level(context.Context) (vartype.VarFloat64, error) {
	return vartype.VarFloat64{}, ErrBatteryUnavailable
}

// Cache serves the last battery level read from an underlying Reader. The level is updated by
// calling Refresh, usually from a scheduled job, so that reading it never blocks on the bus or
// the filesystem.
type Cache struct {
	reader Reader
	logger *logger.Logger

	mu    sync.RWMutex
	level vartype.VarFloat64
}

// NewCache returns a Cache for reader. The cached level is unknown until the first Refresh.
func NewCache(reader Reader, log *logger.Logger) *Cache {
	return &Cache{
		reader: reader,
		logger: log,
	}
}

func (c *Cache) Name() string {
	return "cached " + c.reader.Name()
}

// Level returns the cached battery level or ErrBatteryUnavailable.
func (c *Cache) Level(context.Context) (vartype.VarFloat64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.level.IsSet() {
		return c.level, ErrBatteryUnavailable
	}
	return c.level, nil
}

// Refresh reads the battery level from the underlying Reader. A failed read clears the cached
// level.
func (c *Cache) Refresh(ctx context.Context) {
	level, err := c.reader.Level(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil || !level.IsSet() {
		c.level.Reset()
		c.logger.Debug("failed to read battery level", slog.String("reader", c.reader.Name()), logger.Err(err))
		return
	}
	c.level = level
}

// clamp limits a percentage to the 0-100 range.
func clamp(pct float64) float64 {
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	default:
		return pct
	}
}
