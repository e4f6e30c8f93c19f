// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kkyr/fig"
)

const configEnv = "TRACCARAGENT"

const (
	ProviderGPSD = "gpsd"
	ProviderNMEA = "nmea"

	TransportOsmAnd = "osmand"
	TransportMQTT   = "mqtt"

	BatteryUPower = "upower"
	BatterySysfs  = "sysfs"
	BatteryNone   = "none"
)

var ErrMissingDeviceID = errors.New("device identifier must not be empty")

// Config represents the application's configuration structure.
type Config struct {
	LogLevel slog.Level `fig:"loglevel" default:"0"`

	Device struct {
		ID         string `fig:"id"`
		Credential string `fig:"credential"`
	} `fig:"device"`

	// Filter holds the thresholds that decide which fixes are significant. A zero distance
	// or angle disables that criterion.
	Filter struct {
		Interval       time.Duration `fig:"interval" default:"300s"`
		Distance       float64       `fig:"distance"`
		Angle          float64       `fig:"angle"`
		ForceFrequency bool          `fig:"force_frequency"`
	} `fig:"filter"`

	Location struct {
		// Allowed values: gpsd, nmea
		Provider string `fig:"provider" default:"gpsd"`
		GPSD     struct {
			Host string `fig:"host" default:"localhost"`
			Port string `fig:"port" default:"2947"`
		} `fig:"gpsd"`
		NMEA struct {
			Device   string `fig:"device" default:"/dev/ttyUSB0"`
			BaudRate uint   `fig:"baudrate" default:"9600"`
			// File replays a recorded NMEA log instead of reading the device
			File string `fig:"file"`
		} `fig:"nmea"`
	} `fig:"location"`

	Delivery struct {
		// Allowed values: osmand, mqtt
		Transport string        `fig:"transport" default:"osmand"`
		QueueSize int           `fig:"queue_size" default:"64"`
		Timeout   time.Duration `fig:"timeout" default:"30s"`
	} `fig:"delivery"`

	Server struct {
		URL string `fig:"url" default:"http://localhost:5055"`
	} `fig:"server"`

	MQTT struct {
		Broker   string `fig:"broker" default:"tcp://localhost:1883"`
		Topic    string `fig:"topic" default:"traccar/positions"`
		ClientID string `fig:"client_id"`
		Username string `fig:"username"`
		Password string `fig:"password"`
	} `fig:"mqtt"`

	Battery struct {
		// Allowed values: upower, sysfs, none
		Provider  string        `fig:"provider" default:"upower"`
		SysfsName string        `fig:"sysfs_name"`
		Refresh   time.Duration `fig:"refresh" default:"1m"`
	} `fig:"battery"`

	Intervals struct {
		Stats time.Duration `fig:"stats" default:"15m"`
	} `fig:"intervals"`
}

func NewFromFile(path, file string) (*Config, error) {
	conf := new(Config)
	_, err := os.Stat(filepath.Join(path, file))
	if err != nil {
		return conf, fmt.Errorf("failed to read config: %w", err)
	}
	if err = fig.Load(conf, fig.Dirs(path), fig.File(file), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load config: %w", err)
	}

	return conf, conf.Validate()
}

func New() (*Config, error) {
	conf := new(Config)
	if err := fig.Load(conf, fig.AllowNoFile(), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load config: %w", err)
	}

	return conf, conf.Validate()
}

// Validate checks the configuration and normalizes provider and transport names to lower case.
func (c *Config) Validate() error {
	c.Location.Provider = strings.ToLower(c.Location.Provider)
	c.Delivery.Transport = strings.ToLower(c.Delivery.Transport)
	c.Battery.Provider = strings.ToLower(c.Battery.Provider)

	if c.Device.ID == "" {
		return ErrMissingDeviceID
	}
	if c.Filter.Interval < 0 {
		return fmt.Errorf("invalid filter interval: %s", c.Filter.Interval)
	}
	if c.Filter.Distance < 0 {
		return fmt.Errorf("invalid filter distance: %f", c.Filter.Distance)
	}
	if c.Filter.Angle < 0 {
		return fmt.Errorf("invalid filter angle: %f", c.Filter.Angle)
	}

	switch c.Location.Provider {
	case ProviderGPSD:
	case ProviderNMEA:
		if c.Location.NMEA.Device == "" && c.Location.NMEA.File == "" {
			return errors.New("NMEA provider requires a device or a file")
		}
	default:
		return fmt.Errorf("invalid location provider: %s", c.Location.Provider)
	}

	switch c.Delivery.Transport {
	case TransportOsmAnd:
		u, err := url.ParseRequestURI(c.Server.URL)
		if err != nil {
			return fmt.Errorf("invalid server URL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("invalid server URL scheme: %s", u.Scheme)
		}
	case TransportMQTT:
		if c.MQTT.Broker == "" {
			return errors.New("MQTT transport requires a broker")
		}
		if c.MQTT.ClientID == "" {
			c.MQTT.ClientID = "traccar-agent-" + c.Device.ID
		}
	default:
		return fmt.Errorf("invalid delivery transport: %s", c.Delivery.Transport)
	}
	if c.Delivery.QueueSize < 1 {
		return fmt.Errorf("invalid delivery queue size: %d", c.Delivery.QueueSize)
	}
	if c.Delivery.Timeout <= 0 {
		return fmt.Errorf("invalid delivery timeout: %s", c.Delivery.Timeout)
	}

	switch c.Battery.Provider {
	case BatteryUPower, BatterySysfs, BatteryNone:
	default:
		return fmt.Errorf("invalid battery provider: %s", c.Battery.Provider)
	}
	if c.Battery.Provider != BatteryNone && c.Battery.Refresh <= 0 {
		return fmt.Errorf("invalid battery refresh interval: %s", c.Battery.Refresh)
	}
	if c.Intervals.Stats <= 0 {
		return fmt.Errorf("invalid stats interval: %s", c.Intervals.Stats)
	}

	return nil
}
