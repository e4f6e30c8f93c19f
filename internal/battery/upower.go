// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package battery

import (
	"context"
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/traccar-agent/internal/vartype"
)

const (
	upowerDest          = "org.freedesktop.UPower"
	upowerDisplayDevice = "/org/freedesktop/UPower/devices/DisplayDevice"
	upowerPropPresent   = "org.freedesktop.UPower.Device.IsPresent"
	upowerPropPercent   = "org.freedesktop.UPower.Device.Percentage"
)

// propertyReader is the subset of dbus.BusObject the UPower reader needs.
type propertyReader interface {
	GetProperty(p string) (dbus.Variant, error)
}

// UPower reads the battery level of the UPower display device via the system bus.
type UPower struct {
	connectFn func(ctx context.Context) (propertyReader, func() error, error)
}

// NewUPower returns a UPower battery reader.
func NewUPower() *UPower {
	return &UPower{connectFn: connectUPower}
}

func (u *UPower) Name() string {
	return "upower"
}

// Level queries UPower for the battery percentage. Devices without a battery report
// ErrBatteryUnavailable.
func (u *UPower) Level(ctx context.Context) (level vartype.VarFloat64, err error) {
	obj, closeFn, err := u.connectFn(ctx)
	if err != nil {
		return level, err
	}
	defer func() {
		if closeErr := closeFn(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close system bus: %w", closeErr))
		}
	}()

	present, err := obj.GetProperty(upowerPropPresent)
	if err != nil {
		return level, fmt.Errorf("failed to read UPower battery presence: %w", err)
	}
	if isPresent, ok := present.Value().(bool); !ok || !isPresent {
		return level, ErrBatteryUnavailable
	}

	percentage, err := obj.GetProperty(upowerPropPercent)
	if err != nil {
		return level, fmt.Errorf("failed to read UPower battery percentage: %w", err)
	}
	pct, ok := percentage.Value().(float64)
	if !ok {
		return level, fmt.Errorf("unexpected UPower percentage type %s", percentage.Signature())
	}
	level.Set(clamp(pct))
	return level, nil
}

func connectUPower(ctx context.Context) (propertyReader, func() error, error) {
	conn, err := dbus.ConnectSystemBus(dbus.WithContext(ctx))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}
	return conn.Object(upowerDest, upowerDisplayDevice), conn.Close, nil
}
