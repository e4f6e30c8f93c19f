// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/traccar-agent/internal/location"
	"github.com/wneessen/traccar-agent/internal/logger"
)

const (
	logindManager   = "org.freedesktop.login1.Manager"
	prepareForSleep = "PrepareForSleep"

	debounceWindow   = 2 // seconds
	signalBufferSize = 8

	busRetryDelay       = 5 * time.Second
	receiverWakeupDelay = 10 * time.Second
)

var errBusClosed = errors.New("system bus connection closed")

// monitorSleepResume watches logind for resume events. After a resume, the last reported fix may
// be far away and arbitrarily old, so the filter state is reset.
func (s *Service) monitorSleepResume(ctx context.Context) {
	var lastResumeUnix int64
	for {
		conn := s.connectToSystemBus(ctx)
		if conn == nil {
			return
		}

		if err := s.watchResume(ctx, conn, &lastResumeUnix); err != nil {
			s.logger.Warn("sleep monitoring interrupted", logger.Err(err))
		}
		if err := conn.Close(); err != nil && ctx.Err() == nil {
			s.logger.Error("failed to close system bus connection", logger.Err(err))
		}
		if !location.SleepOrDone(ctx, busRetryDelay) {
			return
		}
	}
}

// connectToSystemBus retries connecting to the system bus until it succeeds or ctx is cancelled.
func (s *Service) connectToSystemBus(ctx context.Context) *dbus.Conn {
	for {
		conn, err := s.busConnect()
		if err == nil {
			return conn
		}
		s.logger.Debug("failed to connect to system bus, sleep monitoring paused", logger.Err(err))
		if !location.SleepOrDone(ctx, busRetryDelay) {
			return nil
		}
	}
}

// watchResume handles PrepareForSleep signals until the connection drops or ctx is cancelled.
func (s *Service) watchResume(ctx context.Context, conn *dbus.Conn, lastResumeUnix *int64) error {
	if err := conn.AddMatchSignal(dbus.WithMatchInterface(logindManager),
		dbus.WithMatchMember(prepareForSleep)); err != nil {
		return fmt.Errorf("failed to subscribe to %s.%s: %w", logindManager, prepareForSleep, err)
	}

	signals := make(chan *dbus.Signal, signalBufferSize)
	conn.Signal(signals)
	defer conn.RemoveSignal(signals)

	for {
		select {
		case <-ctx.Done():
			return nil
		case sgn, ok := <-signals:
			if !ok {
				return errBusClosed
			}
			s.processSleepSignal(ctx, sgn, lastResumeUnix)
		}
	}
}

// processSleepSignal ignores everything but the resume edge, PrepareForSleep(false).
func (s *Service) processSleepSignal(ctx context.Context, sgn *dbus.Signal, lastResumeUnix *int64) {
	if len(sgn.Body) != 1 {
		return
	}
	if sleeping, ok := sgn.Body[0].(bool); !ok || sleeping {
		return
	}

	now := time.Now().Unix()
	if now-atomic.LoadInt64(lastResumeUnix) < debounceWindow {
		return
	}
	atomic.StoreInt64(lastResumeUnix, now)

	// Give the receiver time to reacquire a fix
	if !location.SleepOrDone(ctx, receiverWakeupDelay) {
		return
	}
	s.logger.Debug("resumed from sleep, resetting location filter")
	s.request(cmdReset)
	if s.battery != nil {
		s.battery.Refresh(ctx)
	}
}
