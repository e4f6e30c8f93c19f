// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package filter decides which positional fixes are significant enough to be reported.
package filter

import (
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/wneessen/traccar-agent/internal/location"
	"github.com/wneessen/traccar-agent/internal/logger"
)

var (
	// ErrOutOfOrderFix is the rejection reason for a fix older than the last accepted one.
	ErrOutOfOrderFix = errors.New("fix is older than the last accepted fix")

	// ErrThresholdNotMet is the rejection reason for a fix that did not pass the time,
	// distance or angle gate.
	ErrThresholdNotMet = errors.New("fix does not meet the reporting thresholds")
)

// Thresholds controls which fixes are accepted. A zero MinDistance or MinAngle disables the
// respective criterion.
type Thresholds struct {
	MinInterval    time.Duration
	MinDistance    float64
	MinAngle       float64
	ForceFrequency bool
}

// Decision is the result of evaluating a fix. Reason is nil for accepted fixes.
type Decision struct {
	Accept   bool
	Reason   error
	Elapsed  time.Duration
	Distance float64
	Angle    float64
}

// Evaluate decides whether candidate should be reported given the previously accepted fix.
// A nil previous means no fix has been accepted yet, in which case the candidate is always
// accepted.
//
// A candidate sharing the previous timestamp is not out of order. With a MinInterval of 0 it
// passes the time gate like any other fix and, once accepted, replaces the previous fix.
//
// Once the time gate passes, the distance and angle criteria are OR'ed, and a disabled
// criterion counts as met. With only one of both criteria configured, every fix passing the
// time gate is therefore accepted.
func Evaluate(candidate location.Fix, previous *location.Fix, th Thresholds) Decision {
	if previous == nil {
		return Decision{Accept: true}
	}

	decision := Decision{
		Elapsed:  candidate.Timestamp.Sub(previous.Timestamp),
		Distance: candidate.DistanceTo(*previous),
		Angle:    angleDelta(candidate, *previous),
	}
	if decision.Elapsed < 0 {
		decision.Reason = ErrOutOfOrderFix
		return decision
	}
	if decision.Elapsed < th.MinInterval {
		decision.Reason = ErrThresholdNotMet
		return decision
	}
	if th.ForceFrequency {
		decision.Accept = true
		return decision
	}

	distanceMet := th.MinDistance == 0 || decision.Distance >= th.MinDistance
	angleMet := th.MinAngle == 0 || decision.Angle >= th.MinAngle
	if distanceMet || angleMet {
		decision.Accept = true
		return decision
	}
	decision.Reason = ErrThresholdNotMet
	return decision
}

// angleDelta returns the absolute course difference without wrap-around. A fix without a
// course contributes no angular change.
func angleDelta(a, b location.Fix) float64 {
	if !a.Course.IsSet() || !b.Course.IsSet() {
		return 0
	}
	return math.Abs(a.Course.Value() - b.Course.Value())
}

// Filter holds the last accepted fix and applies Evaluate to each new fix. A Filter is owned
// by a single goroutine; callers feeding fixes from several goroutines must serialize calls.
type Filter struct {
	thresholds Thresholds
	logger     *logger.Logger
	last       *location.Fix
}

// New returns a Filter with an empty state.
func New(th Thresholds, log *logger.Logger) *Filter {
	return &Filter{
		thresholds: th,
		logger:     log,
	}
}

// Offer evaluates fix against the last accepted fix. The state is replaced only if the fix
// is accepted.
func (f *Filter) Offer(fix location.Fix) Decision {
	decision := Evaluate(fix, f.last, f.thresholds)
	if !decision.Accept {
		f.logger.Debug("location ignored", slog.String("reason", decision.Reason.Error()),
			slog.Duration("elapsed", decision.Elapsed), slog.Float64("distance", decision.Distance),
			slog.Float64("angle", decision.Angle))
		return decision
	}

	accepted := fix
	f.last = &accepted
	return decision
}

// Last returns a copy of the last accepted fix and whether one exists.
func (f *Filter) Last() (location.Fix, bool) {
	if f.last == nil {
		return location.Fix{}, false
	}
	return *f.last, true
}

// Reset forgets the last accepted fix, so that the next fix is accepted unconditionally.
func (f *Filter) Reset() {
	f.last = nil
}
