// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package report turns accepted fixes into delivery-ready position reports.
package report

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/wneessen/traccar-agent/internal/battery"
	"github.com/wneessen/traccar-agent/internal/location"
	"github.com/wneessen/traccar-agent/internal/logger"
	"github.com/wneessen/traccar-agent/internal/vartype"
)

// Report is a position report for a single accepted fix. Once handed to a Sink, the report
// belongs to the sink.
type Report struct {
	// ID is unique per report, so receivers can drop duplicates of a redelivered report.
	ID uuid.UUID

	DeviceID   string
	Credential string

	Latitude  float64
	Longitude float64
	Altitude  float64
	Course    vartype.VarFloat64
	Speed     float64
	Accuracy  float64

	// Battery is the battery level in percent. It is unset if the level is unknown.
	Battery vartype.VarFloat64

	Timestamp time.Time
}

// Identity identifies the reporting device towards the server.
type Identity struct {
	DeviceID   string
	Credential string
}

// Sink receives built reports. Send must not block the caller.
type Sink interface {
	Send(Report)
}

// Build creates a Report for fix. It performs no filtering and no I/O.
func Build(fix location.Fix, id Identity, batteryLevel vartype.VarFloat64) Report {
	return Report{
		ID:         uuid.New(),
		DeviceID:   id.DeviceID,
		Credential: id.Credential,
		Latitude:   fix.Latitude,
		Longitude:  fix.Longitude,
		Altitude:   fix.Altitude,
		Course:     fix.Course,
		Speed:      fix.Speed,
		Accuracy:   fix.Accuracy,
		Battery:    batteryLevel,
		Timestamp:  fix.Timestamp,
	}
}

// Builder attaches device identity and battery level to accepted fixes and hands the
// resulting reports to a Sink.
type Builder struct {
	identity Identity
	battery  battery.Reader
	sink     Sink
	logger   *logger.Logger
}

// NewBuilder returns a Builder. A nil battery reader reports an unknown battery level.
func NewBuilder(id Identity, reader battery.Reader, sink Sink, log *logger.Logger) *Builder {
	if reader == nil {
		reader = battery.None{}
	}
	return &Builder{
		identity: id,
		battery:  reader,
		sink:     sink,
		logger:   log,
	}
}

// Dispatch builds the report for an accepted fix and sends it to the sink exactly once. The
// built report is returned for inspection; the sink owns it.
func (b *Builder) Dispatch(ctx context.Context, fix location.Fix) Report {
	level, err := b.battery.Level(ctx)
	if err != nil {
		b.logger.Debug("battery level unknown", slog.String("reader", b.battery.Name()), logger.Err(err))
		level.Reset()
	}

	r := Build(fix, b.identity, level)
	b.sink.Send(r)
	return r
}
