// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package gpsd

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net"
	"sync"
	"time"

	"github.com/stratoberry/go-gpsd"

	"github.com/wneessen/traccar-agent/internal/location"
	"github.com/wneessen/traccar-agent/internal/logger"
	"github.com/wneessen/traccar-agent/internal/vartype"
)

const (
	name = "gpsd"

	DefaultHost = "localhost"
	DefaultPort = "2947"

	fallbackAccuracy3DFix = 10 // ~10 m typical consumer GPS in open sky
	fallbackAccuracy2DFix = 25 // worse than 3D, but still accurate enough
)

// Provider streams fixes from the TPV reports of a gpsd daemon.
type Provider struct {
	name   string
	addr   string
	logger *logger.Logger
	dialFn func(addr string) (*gpsd.Session, error)
	now    func() time.Time
}

// New returns a gpsd Provider for the given host and port.
func New(host, port string, log *logger.Logger) *Provider {
	if host == "" {
		host = DefaultHost
	}
	if port == "" {
		port = DefaultPort
	}
	return &Provider{
		name:   name,
		addr:   net.JoinHostPort(host, port),
		logger: log,
		dialFn: gpsd.Dial,
		now:    time.Now,
	}
}

func (p *Provider) Name() string {
	return p.name
}

// Stream connects to gpsd and emits a fix for every TPV report with at least a 2D fix. The
// stream ends when the gpsd connection is lost or ctx is cancelled.
func (p *Provider) Stream(ctx context.Context) <-chan location.Fix {
	out := make(chan location.Fix)

	var mu sync.Mutex
	closed := false
	closeOut := func() {
		mu.Lock()
		defer mu.Unlock()
		closed = true
		close(out)
	}

	session, err := p.dialFn(p.addr)
	if err != nil {
		p.logger.Warn("failed to connect to gpsd", slog.String("addr", p.addr), logger.Err(err))
		close(out)
		return out
	}

	// Install TPV filter: this gets called for every TPV report
	session.AddFilter("TPV", func(r interface{}) {
		tpv, ok := r.(*gpsd.TPVReport)
		if !ok {
			return
		}
		fix, ok := p.fixFromTPV(tpv)
		if !ok {
			return
		}

		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case <-ctx.Done():
		case out <- fix:
		}
	})

	go func() {
		defer closeOut()
		// Watch() returns a channel that signals when the watch ends, e.g. on connection loss.
		// go-gpsd has no Close(); the connection is torn down when the process exits.
		done := session.Watch()
		select {
		case <-ctx.Done():
		case <-done:
			p.logger.Debug("gpsd watch ended", slog.String("addr", p.addr))
		}
	}()

	return out
}

// fixFromTPV converts a TPV report into a Fix. Reports without a 2D fix or with invalid
// coordinates are skipped.
func (p *Provider) fixFromTPV(tpv *gpsd.TPVReport) (location.Fix, bool) {
	if tpv.Mode < gpsd.Mode2D {
		return location.Fix{}, false
	}

	fix := location.Fix{
		Latitude:  tpv.Lat,
		Longitude: tpv.Lon,
		Altitude:  tpv.Alt,
		Speed:     tpv.Speed,
		Accuracy:  horizontalAccuracy(tpv),
		Timestamp: tpv.Time,
		Source:    p.name,
	}
	if !fix.Valid() {
		return location.Fix{}, false
	}
	if fix.Timestamp.IsZero() {
		fix.Timestamp = p.now()
	}
	// gpsd omits the track if unknown, which go-gpsd decodes as 0. A stationary receiver's
	// track is meaningless, so we only report it while moving.
	if tpv.Speed > 0 {
		fix.Course = vartype.NewVariable(tpv.Track)
	}
	return fix, true
}

func horizontalAccuracy(tpv *gpsd.TPVReport) float64 {
	if tpv.Epx > 0 && tpv.Epy > 0 {
		return math.Hypot(tpv.Epx, tpv.Epy)
	}
	if tpv.Mode >= gpsd.Mode3D {
		return fallbackAccuracy3DFix
	}
	return fallbackAccuracy2DFix
}

// String implements fmt.Stringer.
func (p *Provider) String() string {
	return fmt.Sprintf("%s (%s)", p.name, p.addr)
}
