package power

import (
	"github.com/sirupsen/logrus"
)

// Throttle records one involuntary reduction made by a reallocation pass.
type Throttle struct {
	Device   string `json:"device"`
	Position int    `json:"position"`
	From     int    `json:"from"`
	To       int    `json:"to"`
}

// allocatePowerLocked restores sum(consumption) <= SafeCapacity.
//
// When the total is already within the safe capacity nothing changes.
// Otherwise devices are served in FIFO order from the safe capacity: each
// keeps its consumption while it fits, the first one that does not fit gets
// whatever is left, and everything after it is cut to zero.
func (m *Manager) allocatePowerLocked() []Throttle {
	m.currentPowerUsage = 0
	for _, d := range m.devices {
		m.currentPowerUsage += d.Consumption
	}
	m.lastThrottles = nil
	if m.currentPowerUsage <= m.limits.SafeCapacity {
		return nil
	}

	demand := m.currentPowerUsage
	available := m.limits.SafeCapacity
	var throttles []Throttle
	for i, d := range m.devices {
		granted := d.Consumption
		switch {
		case available <= 0:
			granted = 0
		case d.Consumption <= available:
			available -= d.Consumption
		default:
			granted = available
			available = 0
		}
		if granted != d.Consumption {
			throttles = append(throttles, Throttle{
				Device:   d.Name,
				Position: i,
				From:     d.Consumption,
				To:       granted,
			})
			d.Consumption = granted
		}
	}

	m.currentPowerUsage = 0
	for _, d := range m.devices {
		m.currentPowerUsage += d.Consumption
	}

	m.lastThrottles = throttles
	for _, t := range throttles {
		m.logger.WithFields(logrus.Fields{
			"device":   t.Device,
			"position": t.Position,
			"from":     t.From,
			"to":       t.To,
		}).Warn("Device throttled")
	}
	m.logger.WithFields(logrus.Fields{
		"demand":        demand,
		"total":         m.currentPowerUsage,
		"safe_capacity": m.limits.SafeCapacity,
		"throttled":     len(throttles),
	}).Info("Reallocated power budget")

	return append([]Throttle(nil), throttles...)
}
