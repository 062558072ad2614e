// Package sysmetrics samples live host metrics for the dashboard gauges.
// Collection never fails: any probe error zeroes the affected figures so
// the client renders a valid shape without error handling.
package sysmetrics

import (
	"context"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// Memory is the RAM figure pair.
type Memory struct {
	Active uint64 `json:"active"`
	Total  uint64 `json:"total"`
}

// Disk is the volume usage figure pair.
type Disk struct {
	Used uint64 `json:"used"`
	Size uint64 `json:"size"`
}

// Snapshot is one live sample of the host metrics the widgets render.
type Snapshot struct {
	CPU  float64 `json:"cpu"`
	RAM  Memory  `json:"ram"`
	ROM  Disk    `json:"rom"`
	Temp float64 `json:"temp"`
}

// Collector samples host metrics for a chosen volume.
type Collector struct {
	volume string
}

// NewCollector returns a collector reporting disk usage for the given
// mount point.
func NewCollector(volume string) *Collector {
	if volume == "" {
		volume = "/"
	}
	return &Collector{volume: volume}
}

// Collect samples the host. Each figure degrades to zero independently on
// failure; the snapshot itself is always valid.
func (c *Collector) Collect(ctx context.Context) Snapshot {
	var snap Snapshot

	if usage, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(usage) > 0 {
		snap.CPU = usage[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		active := vm.Active
		if active == 0 {
			// Platforms without an active page count report used instead.
			active = vm.Used
		}
		snap.RAM = Memory{Active: active, Total: vm.Total}
	}

	if usage, err := disk.UsageWithContext(ctx, c.volume); err == nil {
		snap.ROM = Disk{Used: usage.Used, Size: usage.Total}
	}

	snap.Temp = cpuTemperature(ctx)

	return snap
}

// cpuTemperature picks the most CPU-looking sensor from the host's
// temperature readings.
func cpuTemperature(ctx context.Context) float64 {
	sensors, err := host.SensorsTemperaturesWithContext(ctx)
	if err != nil || len(sensors) == 0 {
		return 0
	}

	preferred := []string{"coretemp", "k10temp", "cpu_thermal", "cpu-thermal", "soc_thermal", "acpitz"}
	for _, key := range preferred {
		for _, s := range sensors {
			if strings.Contains(strings.ToLower(s.SensorKey), key) && s.Temperature > 0 {
				return s.Temperature
			}
		}
	}
	for _, s := range sensors {
		if s.Temperature > 0 {
			return s.Temperature
		}
	}
	return 0
}
