// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package battery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/wneessen/traccar-agent/internal/vartype"
)

// DefaultSysfsRoot is the kernel's power supply class directory.
const DefaultSysfsRoot = "/sys/class/power_supply"

// Sysfs reads the battery capacity from the kernel power supply class. If no supply name is
// given, the first supply of type "Battery" is used.
type Sysfs struct {
	root   string
	supply string
}

// NewSysfs returns a Sysfs battery reader for the named supply below root.
func NewSysfs(root, supply string) *Sysfs {
	if root == "" {
		root = DefaultSysfsRoot
	}
	return &Sysfs{
		root:   root,
		supply: supply,
	}
}

func (s *Sysfs) Name() string {
	return "sysfs"
}

func (s *Sysfs) Level(context.Context) (vartype.VarFloat64, error) {
	var level vartype.VarFloat64
	supply := s.supply
	if supply == "" {
		found, err := s.findBattery()
		if err != nil {
			return level, err
		}
		supply = found
	}

	data, err := os.ReadFile(filepath.Join(s.root, supply, "capacity"))
	if err != nil {
		return level, fmt.Errorf("failed to read battery capacity of %q: %w", supply, err)
	}
	pct, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return level, fmt.Errorf("failed to parse battery capacity of %q: %w", supply, err)
	}
	level.Set(clamp(pct))
	return level, nil
}

func (s *Sysfs) findBattery() (string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return "", fmt.Errorf("failed to list power supplies: %w", err)
	}
	for _, entry := range entries {
		data, err := os.ReadFile(filepath.Join(s.root, entry.Name(), "type"))
		if err != nil {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(string(data)), "battery") {
			return entry.Name(), nil
		}
	}
	return "", ErrBatteryUnavailable
}
