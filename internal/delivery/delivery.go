// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package delivery

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/wneessen/traccar-agent/internal/logger"
	"github.com/wneessen/traccar-agent/internal/report"
)

const (
	// DefaultQueueSize is the number of reports the Dispatcher buffers before dropping.
	DefaultQueueSize = 64

	// DefaultTimeout limits a single Transport.Send call.
	DefaultTimeout = time.Second * 30
)

// ErrQueueFull is the failure reason of a report that could not be queued for delivery.
var ErrQueueFull = errors.New("delivery queue is full")

// Transport delivers a single report to the server. Send is called at most once per report by
// the Dispatcher; any retry policy belongs to the Transport.
type Transport interface {
	Name() string
	Send(ctx context.Context, r report.Report) error
}

// Outcome is the result of a single delivery attempt.
type Outcome struct {
	ReportID  uuid.UUID
	Transport string
	Success   bool
	Err       error
}

// Dispatcher hands reports to a Transport on a background worker. Send never blocks the
// caller, and delivery results are only reported through the outcome handler.
type Dispatcher struct {
	transport Transport
	timeout   time.Duration
	logger    *logger.Logger
	queue     chan report.Report
	stats     *Stats
	onOutcome func(Outcome)
}

// NewDispatcher returns a Dispatcher for transport. Non-positive queue sizes and timeouts
// fall back to the defaults.
func NewDispatcher(transport Transport, queueSize int, timeout time.Duration, log *logger.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{
		transport: transport,
		timeout:   timeout,
		logger:    log,
		queue:     make(chan report.Report, queueSize),
		stats:     new(Stats),
	}
}

// HandleOutcomes registers fn to be called for every delivery outcome. It must be called
// before Run. fn is called from the worker goroutine, or from Send for dropped reports.
func (d *Dispatcher) HandleOutcomes(fn func(Outcome)) {
	d.onOutcome = fn
}

// Stats returns the delivery counters of the Dispatcher.
func (d *Dispatcher) Stats() *Stats {
	return d.stats
}

// Send queues r for delivery. If the queue is full, the report is dropped and reported as a
// failed delivery with ErrQueueFull.
func (d *Dispatcher) Send(r report.Report) {
	select {
	case d.queue <- r:
		d.stats.queued.Add(1)
	default:
		d.stats.dropped.Add(1)
		d.logger.Warn("dropping report, delivery queue is full", slog.String("report_id", r.ID.String()))
		d.emit(Outcome{ReportID: r.ID, Transport: d.transport.Name(), Err: ErrQueueFull})
	}
}

// Run delivers queued reports until ctx is cancelled. Reports still queued at that point are
// not delivered.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-d.queue:
			d.deliver(ctx, r)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, r report.Report) {
	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	outcome := Outcome{ReportID: r.ID, Transport: d.transport.Name()}
	if err := d.transport.Send(sendCtx, r); err != nil {
		d.stats.failed.Add(1)
		outcome.Err = err
		d.logger.Warn("failed to deliver report", slog.String("transport", outcome.Transport),
			slog.String("report_id", r.ID.String()), logger.Err(err))
	} else {
		d.stats.delivered.Add(1)
		outcome.Success = true
		d.logger.Debug("report delivered", slog.String("transport", outcome.Transport),
			slog.String("report_id", r.ID.String()))
	}
	d.emit(outcome)
}

func (d *Dispatcher) emit(outcome Outcome) {
	if d.onOutcome != nil {
		d.onOutcome(outcome)
	}
}
