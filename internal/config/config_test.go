// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package config

import (
	"errors"
	"log/slog"
	"testing"
	"time"
)

const testDeviceID = "123456"

func TestNew(t *testing.T) {
	const (
		expectLogLevel  = slog.LevelInfo
		expectInterval  = time.Minute * 5
		expectProvider  = ProviderGPSD
		expectTransport = TransportOsmAnd
		expectBattery   = BatteryUPower
		expectQueueSize = 64
		expectTimeout   = time.Second * 30
		expectStats     = time.Minute * 15
	)
	t.Run("new config with all defaults set", func(t *testing.T) {
		t.Setenv("TRACCARAGENT_DEVICE_ID", testDeviceID)
		conf, err := New()
		if err != nil {
			t.Fatalf("failed to load config: %s", err)
		}
		if conf.LogLevel != expectLogLevel {
			t.Errorf("expected log level to be: %s, got %s", expectLogLevel, conf.LogLevel)
		}
		if conf.Device.ID != testDeviceID {
			t.Errorf("expected device ID to be: %s, got %s", testDeviceID, conf.Device.ID)
		}
		if conf.Filter.Interval != expectInterval {
			t.Errorf("expected filter interval to be: %s, got %s", expectInterval, conf.Filter.Interval)
		}
		if conf.Filter.Distance != 0 || conf.Filter.Angle != 0 || conf.Filter.ForceFrequency {
			t.Errorf("expected distance and angle criteria to be disabled, got %+v", conf.Filter)
		}
		if conf.Location.Provider != expectProvider {
			t.Errorf("expected location provider to be: %s, got %s", expectProvider, conf.Location.Provider)
		}
		if conf.Delivery.Transport != expectTransport {
			t.Errorf("expected transport to be: %s, got %s", expectTransport, conf.Delivery.Transport)
		}
		if conf.Delivery.QueueSize != expectQueueSize {
			t.Errorf("expected queue size to be: %d, got %d", expectQueueSize, conf.Delivery.QueueSize)
		}
		if conf.Delivery.Timeout != expectTimeout {
			t.Errorf("expected delivery timeout to be: %s, got %s", expectTimeout, conf.Delivery.Timeout)
		}
		if conf.Battery.Provider != expectBattery {
			t.Errorf("expected battery provider to be: %s, got %s", expectBattery, conf.Battery.Provider)
		}
		if conf.Intervals.Stats != expectStats {
			t.Errorf("expected stats interval to be: %s, got %s", expectStats, conf.Intervals.Stats)
		}
	})
	t.Run("thresholds are read from env", func(t *testing.T) {
		t.Setenv("TRACCARAGENT_DEVICE_ID", testDeviceID)
		t.Setenv("TRACCARAGENT_FILTER_INTERVAL", "60s")
		t.Setenv("TRACCARAGENT_FILTER_DISTANCE", "50")
		t.Setenv("TRACCARAGENT_FILTER_ANGLE", "30")
		t.Setenv("TRACCARAGENT_FILTER_FORCE_FREQUENCY", "true")
		conf, err := New()
		if err != nil {
			t.Fatalf("failed to load config: %s", err)
		}
		if conf.Filter.Interval != time.Minute {
			t.Errorf("expected filter interval to be: %s, got %s", time.Minute, conf.Filter.Interval)
		}
		if conf.Filter.Distance != 50 {
			t.Errorf("expected filter distance to be: 50, got %f", conf.Filter.Distance)
		}
		if conf.Filter.Angle != 30 {
			t.Errorf("expected filter angle to be: 30, got %f", conf.Filter.Angle)
		}
		if !conf.Filter.ForceFrequency {
			t.Error("expected force frequency to be enabled")
		}
	})
	t.Run("MQTT client ID defaults to the device ID", func(t *testing.T) {
		t.Setenv("TRACCARAGENT_DEVICE_ID", testDeviceID)
		t.Setenv("TRACCARAGENT_DELIVERY_TRANSPORT", TransportMQTT)
		conf, err := New()
		if err != nil {
			t.Fatalf("failed to load config: %s", err)
		}
		if conf.MQTT.ClientID != "traccar-agent-"+testDeviceID {
			t.Errorf("unexpected MQTT client ID: %s", conf.MQTT.ClientID)
		}
	})
	t.Run("provider and transport names are case insensitive", func(t *testing.T) {
		t.Setenv("TRACCARAGENT_DEVICE_ID", testDeviceID)
		t.Setenv("TRACCARAGENT_LOCATION_PROVIDER", "GPSD")
		t.Setenv("TRACCARAGENT_DELIVERY_TRANSPORT", "OsmAnd")
		t.Setenv("TRACCARAGENT_BATTERY_PROVIDER", "SysFS")
		conf, err := New()
		if err != nil {
			t.Fatalf("failed to load config: %s", err)
		}
		if conf.Location.Provider != ProviderGPSD {
			t.Errorf("expected location provider to be: %s, got %s", ProviderGPSD, conf.Location.Provider)
		}
		if conf.Delivery.Transport != TransportOsmAnd {
			t.Errorf("expected transport to be: %s, got %s", TransportOsmAnd, conf.Delivery.Transport)
		}
		if conf.Battery.Provider != BatterySysfs {
			t.Errorf("expected battery provider to be: %s, got %s", BatterySysfs, conf.Battery.Provider)
		}
	})
	t.Run("missing device ID fails", func(t *testing.T) {
		_, err := New()
		if !errors.Is(err, ErrMissingDeviceID) {
			t.Errorf("expected error to be %s, got %s", ErrMissingDeviceID, err)
		}
	})
	t.Run("new config with invalid values from env", func(t *testing.T) {
		t.Setenv("TRACCARAGENT_DEVICE_ID", testDeviceID)
		t.Setenv("TRACCARAGENT_LOGLEVEL", "invalid")
		_, err := New()
		if err == nil {
			t.Error("expected config to fail, but didn't")
		}
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"negative interval", "TRACCARAGENT_FILTER_INTERVAL", "-1s"},
		{"negative distance", "TRACCARAGENT_FILTER_DISTANCE", "-5"},
		{"negative angle", "TRACCARAGENT_FILTER_ANGLE", "-1"},
		{"unknown location provider", "TRACCARAGENT_LOCATION_PROVIDER", "geoip"},
		{"unknown transport", "TRACCARAGENT_DELIVERY_TRANSPORT", "carrier-pigeon"},
		{"unknown battery provider", "TRACCARAGENT_BATTERY_PROVIDER", "acpi"},
		{"unparsable server URL", "TRACCARAGENT_SERVER_URL", "not a url"},
		{"unsupported server URL scheme", "TRACCARAGENT_SERVER_URL", "ftp://localhost:5055"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("TRACCARAGENT_DEVICE_ID", testDeviceID)
			t.Setenv(tc.key, tc.val)
			if _, err := New(); err == nil {
				t.Error("expected config to fail, but didn't")
			}
		})
	}
	// fig replaces zero values with their defaults, so these cases modify a loaded config
	mutations := []struct {
		name   string
		mutate func(*Config)
		fails  bool
	}{
		{"NMEA provider without device or file", func(c *Config) {
			c.Location.Provider = ProviderNMEA
			c.Location.NMEA.Device = ""
		}, true},
		{"NMEA provider with replay file", func(c *Config) {
			c.Location.Provider = ProviderNMEA
			c.Location.NMEA.Device = ""
			c.Location.NMEA.File = "replay.nmea"
		}, false},
		{"zero queue size", func(c *Config) { c.Delivery.QueueSize = 0 }, true},
		{"zero delivery timeout", func(c *Config) { c.Delivery.Timeout = 0 }, true},
		{"zero stats interval", func(c *Config) { c.Intervals.Stats = 0 }, true},
		{"zero battery refresh", func(c *Config) { c.Battery.Refresh = 0 }, true},
		{"disabled battery ignores the refresh interval", func(c *Config) {
			c.Battery.Provider = BatteryNone
			c.Battery.Refresh = 0
		}, false},
		{"MQTT transport without broker", func(c *Config) {
			c.Delivery.Transport = TransportMQTT
			c.MQTT.Broker = ""
		}, true},
	}
	for _, tc := range mutations {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("TRACCARAGENT_DEVICE_ID", testDeviceID)
			conf, err := New()
			if err != nil {
				t.Fatalf("failed to load config: %s", err)
			}
			tc.mutate(conf)
			err = conf.Validate()
			if tc.fails && err == nil {
				t.Error("expected config to fail, but didn't")
			}
			if !tc.fails && err != nil {
				t.Errorf("expected config to validate, got %s", err)
			}
		})
	}
}

func TestNewFromFile(t *testing.T) {
	t.Run("reading config from valid file succeeds", func(t *testing.T) {
		conf, err := NewFromFile("../../etc", "config.toml")
		if err != nil {
			t.Fatalf("failed to load config: %s", err)
		}
		if conf.Device.ID != testDeviceID {
			t.Errorf("expected device ID to be: %s, got %s", testDeviceID, conf.Device.ID)
		}
		if conf.Filter.Interval != time.Minute*5 {
			t.Errorf("expected filter interval to be: %s, got %s", time.Minute*5, conf.Filter.Interval)
		}
		if conf.Location.NMEA.BaudRate != 9600 {
			t.Errorf("expected baud rate to be: 9600, got %d", conf.Location.NMEA.BaudRate)
		}
	})
	t.Run("env overrides file values", func(t *testing.T) {
		t.Setenv("TRACCARAGENT_FILTER_DISTANCE", "100")
		conf, err := NewFromFile("../../etc", "config.toml")
		if err != nil {
			t.Fatalf("failed to load config: %s", err)
		}
		if conf.Filter.Distance != 100 {
			t.Errorf("expected filter distance to be: 100, got %f", conf.Filter.Distance)
		}
	})
	t.Run("reading config from non-existent file fails", func(t *testing.T) {
		_, err := NewFromFile("../../etc", "non-existent.toml")
		if err == nil {
			t.Error("expected config to fail, but didn't")
		}
	})
	t.Run("reading invalid config file fails", func(t *testing.T) {
		_, err := NewFromFile("testdata", "invalid.toml")
		if err == nil {
			t.Error("expected config to fail, but didn't")
		}
	})
}
