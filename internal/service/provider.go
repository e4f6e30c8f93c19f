// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"fmt"

	"github.com/wneessen/traccar-agent/internal/battery"
	"github.com/wneessen/traccar-agent/internal/config"
	"github.com/wneessen/traccar-agent/internal/delivery"
	"github.com/wneessen/traccar-agent/internal/delivery/transport/mqtt"
	"github.com/wneessen/traccar-agent/internal/delivery/transport/osmand"
	"github.com/wneessen/traccar-agent/internal/http"
	"github.com/wneessen/traccar-agent/internal/location"
	"github.com/wneessen/traccar-agent/internal/location/provider/gpsd"
	"github.com/wneessen/traccar-agent/internal/location/provider/nmea"
)

func (s *Service) selectLocationProvider() (location.Provider, error) {
	switch s.config.Location.Provider {
	case config.ProviderGPSD:
		return gpsd.New(s.config.Location.GPSD.Host, s.config.Location.GPSD.Port, s.logger), nil
	case config.ProviderNMEA:
		if s.config.Location.NMEA.File != "" {
			return nmea.NewFile(s.config.Location.NMEA.File, s.logger), nil
		}
		return nmea.NewSerial(s.config.Location.NMEA.Device, s.config.Location.NMEA.BaudRate, s.logger), nil
	default:
		return nil, fmt.Errorf("unsupported location provider: %s", s.config.Location.Provider)
	}
}

func (s *Service) selectTransport() (delivery.Transport, error) {
	switch s.config.Delivery.Transport {
	case config.TransportOsmAnd:
		transport, err := osmand.New(http.New(s.logger), s.config.Server.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create OsmAnd transport: %w", err)
		}
		return transport, nil
	case config.TransportMQTT:
		transport, err := mqtt.New(mqtt.Options{
			Broker:   s.config.MQTT.Broker,
			ClientID: s.config.MQTT.ClientID,
			Username: s.config.MQTT.Username,
			Password: s.config.MQTT.Password,
			Topic:    s.config.MQTT.Topic,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create MQTT transport: %w", err)
		}
		return transport, nil
	default:
		return nil, fmt.Errorf("unsupported delivery transport: %s", s.config.Delivery.Transport)
	}
}

// selectBatteryReader returns nil if battery reporting is disabled.
func (s *Service) selectBatteryReader() (battery.Reader, error) {
	switch s.config.Battery.Provider {
	case config.BatteryUPower:
		return battery.NewUPower(), nil
	case config.BatterySysfs:
		return battery.NewSysfs(battery.DefaultSysfsRoot, s.config.Battery.SysfsName), nil
	case config.BatteryNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported battery provider: %s", s.config.Battery.Provider)
	}
}
