// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/godbus/dbus/v5"

	"github.com/wneessen/traccar-agent/internal/battery"
	"github.com/wneessen/traccar-agent/internal/config"
	"github.com/wneessen/traccar-agent/internal/delivery"
	"github.com/wneessen/traccar-agent/internal/filter"
	"github.com/wneessen/traccar-agent/internal/location"
	"github.com/wneessen/traccar-agent/internal/logger"
	"github.com/wneessen/traccar-agent/internal/report"
)

const controlBufferSize = 4

// command is a request handled by the goroutine that owns the filter state.
type command int

const (
	cmdReset command = iota
	cmdStatus
)

type Service struct {
	config     *config.Config
	logger     *logger.Logger
	scheduler  gocron.Scheduler
	provider   location.Provider
	transport  delivery.Transport
	battery    *battery.Cache
	filter     *filter.Filter
	builder    *report.Builder
	dispatcher *delivery.Dispatcher

	control       chan command
	lastDelivered atomic.Int64
	busConnect    func() (*dbus.Conn, error)

	shutdownOnce sync.Once
	shutdownErr  error

	SignalSrc signalSource
}

func New(conf *config.Config, log *logger.Logger) (*Service, error) {
	if conf == nil {
		return nil, errors.New("config is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}

	service := &Service{
		config:     conf,
		logger:     log,
		control:    make(chan command, controlBufferSize),
		busConnect: func() (*dbus.Conn, error) { return dbus.ConnectSystemBus() },
		SignalSrc:  stdLibSignalSource{},
	}

	var err error
	service.provider, err = service.selectLocationProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to create location provider: %w", err)
	}
	reader, err := service.selectBatteryReader()
	if err != nil {
		return nil, fmt.Errorf("failed to create battery reader: %w", err)
	}
	if reader != nil {
		service.battery = battery.NewCache(reader, log)
		reader = service.battery
	}

	// The transport and the scheduler hold resources, so they are created last
	service.transport, err = service.selectTransport()
	if err != nil {
		return nil, fmt.Errorf("failed to create delivery transport: %w", err)
	}
	service.scheduler, err = gocron.NewScheduler()
	if err != nil {
		service.closeTransport()
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	service.filter = filter.New(filter.Thresholds{
		MinInterval:    conf.Filter.Interval,
		MinDistance:    conf.Filter.Distance,
		MinAngle:       conf.Filter.Angle,
		ForceFrequency: conf.Filter.ForceFrequency,
	}, log)
	service.dispatcher = delivery.NewDispatcher(service.transport, conf.Delivery.QueueSize,
		conf.Delivery.Timeout, log)
	service.dispatcher.HandleOutcomes(service.handleOutcome)
	service.builder = report.NewBuilder(report.Identity{
		DeviceID:   conf.Device.ID,
		Credential: conf.Device.Credential,
	}, reader, service.dispatcher, log)

	return service, nil
}

func (s *Service) Run(ctx context.Context) error {
	// Start scheduled jobs
	if s.battery != nil {
		if err := s.createScheduledJob(ctx, s.config.Battery.Refresh, s.battery.Refresh,
			"battery_refresh_job"); err != nil {
			return errors.Join(err, s.shutdown())
		}
	}
	if err := s.createScheduledJob(ctx, s.config.Intervals.Stats, s.logDeliveryStats,
		"delivery_stats_job"); err != nil {
		return errors.Join(err, s.shutdown())
	}
	s.scheduler.Start()

	fixes := make(chan location.Fix)
	var wg sync.WaitGroup
	wg.Go(func() { s.dispatcher.Run(ctx) })
	wg.Go(func() { location.NewSupervisor(s.provider, s.logger).Run(ctx, fixes) })
	wg.Go(func() { s.processFixes(ctx, fixes) })
	wg.Go(func() { s.monitorSleepResume(ctx) })

	// Wait for the context to cancel and for in-flight deliveries to end before disconnecting
	<-ctx.Done()
	wg.Wait()
	return s.shutdown()
}

// shutdown stops the scheduler and closes the transport. Only the first call has an effect.
func (s *Service) shutdown() error {
	s.shutdownOnce.Do(func() {
		s.closeTransport()
		s.shutdownErr = s.scheduler.Shutdown()
	})
	return s.shutdownErr
}

func (s *Service) closeTransport() {
	if closer, ok := s.transport.(interface{ Close() }); ok {
		closer.Close()
	}
}

func (s *Service) createScheduledJob(ctx context.Context, interval time.Duration, task func(context.Context),
	jobName string,
) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(task),
		gocron.WithContext(ctx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithName(jobName),
	)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", jobName, err)
	}
	return nil
}

// processFixes runs every fix through the filter and dispatches a report for each accepted one.
// It is the only goroutine touching the filter state.
func (s *Service) processFixes(ctx context.Context, fixes <-chan location.Fix) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-s.control:
			s.handleCommand(cmd)
		case fix, ok := <-fixes:
			if !ok {
				return
			}
			s.processFix(ctx, fix)
		}
	}
}

func (s *Service) processFix(ctx context.Context, fix location.Fix) {
	decision := s.filter.Offer(fix)
	if !decision.Accept {
		return
	}
	r := s.builder.Dispatch(ctx, fix)
	s.logger.Debug("location accepted", slog.String("report_id", r.ID.String()),
		slog.Float64("lat", fix.Latitude), slog.Float64("lon", fix.Longitude),
		slog.String("source", fix.Source), slog.Float64("distance", decision.Distance),
		slog.Duration("elapsed", decision.Elapsed))
}

func (s *Service) handleCommand(cmd command) {
	switch cmd {
	case cmdReset:
		s.filter.Reset()
		s.logger.Info("filter state reset, next location will be reported")
	case cmdStatus:
		s.logStatus()
	}
}

// request queues cmd for the fix processing goroutine. Requests are dropped while the queue is full.
func (s *Service) request(cmd command) {
	select {
	case s.control <- cmd:
	default:
		s.logger.Debug("control queue full, dropping request")
	}
}

func (s *Service) handleOutcome(outcome delivery.Outcome) {
	if outcome.Success {
		s.lastDelivered.Store(time.Now().Unix())
	}
}

func (s *Service) logDeliveryStats(context.Context) {
	s.logger.Info("delivery statistics", slog.String("transport", s.transport.Name()),
		slog.Any("stats", s.dispatcher.Stats().Snapshot()))
}

func (s *Service) logStatus() {
	attrs := []any{
		slog.String("device", s.config.Device.ID),
		slog.String("provider", s.provider.Name()),
		slog.String("transport", s.transport.Name()),
		slog.Any("stats", s.dispatcher.Stats().Snapshot()),
	}
	if fix, ok := s.filter.Last(); ok {
		attrs = append(attrs, slog.Float64("latitude", fix.Latitude), slog.Float64("longitude", fix.Longitude),
			slog.Time("last_fix", fix.Timestamp))
	}
	if last := s.lastDelivered.Load(); last > 0 {
		attrs = append(attrs, slog.Time("last_delivery", time.Unix(last, 0)))
	}
	s.logger.Info("current agent status", attrs...)
}
