// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package nmea

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/adrianmo/go-nmea"
	"github.com/jacobsa/go-serial/serial"

	"github.com/wneessen/traccar-agent/internal/location"
	"github.com/wneessen/traccar-agent/internal/logger"
	"github.com/wneessen/traccar-agent/internal/vartype"
)

const (
	name = "nmea"

	DefaultBaudRate = 9600

	// uere is the assumed user equivalent range error in meters, used to turn HDOP into meters.
	uere             = 5.0
	fallbackAccuracy = 25
	maxReplayGap     = time.Minute
)

// ErrNoFix is returned for RMC sentences that carry no valid position.
var ErrNoFix = errors.New("sentence carries no valid fix")

// Provider streams fixes from NMEA 0183 RMC sentences. The sentences are read either from a
// serial GNSS receiver or from a recorded log file that is replayed at its original pace.
type Provider struct {
	name   string
	source string
	pace   bool
	logger *logger.Logger
	openFn func() (io.ReadCloser, error)
}

// NewSerial returns a Provider that reads from the serial device at the given baud rate.
func NewSerial(device string, baudRate uint, log *logger.Logger) *Provider {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	return &Provider{
		name:   name,
		source: device,
		logger: log,
		openFn: func() (io.ReadCloser, error) {
			return serial.Open(serial.OpenOptions{
				PortName:        device,
				BaudRate:        baudRate,
				DataBits:        8,
				StopBits:        1,
				MinimumReadSize: 1,
				ParityMode:      serial.PARITY_NONE,
			})
		},
	}
}

// NewFile returns a Provider that replays a recorded NMEA log.
func NewFile(path string, log *logger.Logger) *Provider {
	return &Provider{
		name:   name,
		source: path,
		pace:   true,
		logger: log,
		openFn: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}
}

func (p *Provider) Name() string {
	return p.name
}

// String implements fmt.Stringer.
func (p *Provider) String() string {
	return fmt.Sprintf("%s (%s)", p.name, p.source)
}

// Stream reads sentences until the source is exhausted, fails or ctx is cancelled.
func (p *Provider) Stream(ctx context.Context) <-chan location.Fix {
	out := make(chan location.Fix)

	reader, err := p.openFn()
	if err != nil {
		p.logger.Warn("failed to open NMEA source", slog.String("source", p.source), logger.Err(err))
		close(out)
		return out
	}
	// Unblock a pending read when the context is cancelled
	stop := context.AfterFunc(ctx, func() { _ = reader.Close() })

	go func() {
		defer close(out)
		defer func() {
			if stop() {
				_ = reader.Close()
			}
		}()

		var last time.Time
		state := &sentenceState{}
		scanner := bufio.NewScanner(reader)
		for scanner.Scan() {
			fix, err := state.handle(scanner.Text())
			if err != nil {
				if !errors.Is(err, errSkip) {
					p.logger.Debug("ignoring NMEA sentence", slog.String("source", p.source), logger.Err(err))
				}
				continue
			}
			fix.Source = p.name

			if p.pace && !last.IsZero() {
				if gap := fix.Timestamp.Sub(last); gap > 0 {
					if !location.SleepOrDone(ctx, min(gap, maxReplayGap)) {
						return
					}
				}
			}
			last = fix.Timestamp

			select {
			case <-ctx.Done():
				return
			case out <- fix:
			}
		}
		if err = scanner.Err(); err != nil && ctx.Err() == nil {
			p.logger.Warn("failed to read NMEA source", slog.String("source", p.source), logger.Err(err))
		}
	}()

	return out
}

// errSkip marks sentences that are valid but do not produce a fix.
var errSkip = errors.New("sentence skipped")

// sentenceState carries information between sentences of one stream. GGA sentences provide
// the dilution of precision that RMC sentences lack.
type sentenceState struct {
	hdop float64
}

func (s *sentenceState) handle(line string) (location.Fix, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return location.Fix{}, errSkip
	}
	sentence, err := nmea.Parse(line)
	if err != nil {
		return location.Fix{}, fmt.Errorf("failed to parse sentence: %w", err)
	}

	switch sentence.DataType() {
	case nmea.TypeGGA:
		gga := sentence.(nmea.GGA)
		s.hdop = 0
		if gga.FixQuality != nmea.Invalid {
			s.hdop = gga.HDOP
		}
		return location.Fix{}, errSkip
	case nmea.TypeRMC:
		fix, err := fixFromRMC(sentence.(nmea.RMC))
		if err != nil {
			return location.Fix{}, err
		}
		fix.Accuracy = fallbackAccuracy
		if s.hdop > 0 {
			fix.Accuracy = s.hdop * uere
		}
		return fix, nil
	default:
		return location.Fix{}, errSkip
	}
}

func fixFromRMC(rmc nmea.RMC) (location.Fix, error) {
	if rmc.Validity != nmea.ValidRMC || !rmc.Date.Valid || !rmc.Time.Valid {
		return location.Fix{}, ErrNoFix
	}

	fix := location.Fix{
		Latitude:  rmc.Latitude,
		Longitude: rmc.Longitude,
		Speed:     rmc.Speed / location.KnotsPerMeterPerSecond,
		Timestamp: time.Date(2000+rmc.Date.YY, time.Month(rmc.Date.MM), rmc.Date.DD,
			rmc.Time.Hour, rmc.Time.Minute, rmc.Time.Second, rmc.Time.Millisecond*int(time.Millisecond),
			time.UTC),
	}
	if !fix.Valid() {
		return location.Fix{}, ErrNoFix
	}
	// An empty course field parses as 0, so the course only counts while moving
	if rmc.Speed > 0 {
		fix.Course = vartype.NewVariable(rmc.Course)
	}
	return fix, nil
}
