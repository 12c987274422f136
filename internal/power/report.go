package power

import (
	"fmt"
	"io"
	"strings"
)

// Allocation is one line of a Report.
type Allocation struct {
	Name        string     `json:"name"`
	Position    int        `json:"position"`
	Requested   int        `json:"requested"`
	Consumption int        `json:"consumption"`
	State       GrantState `json:"state"`
}

// Report is a point-in-time view of the manager, devices in FIFO order.
type Report struct {
	Devices      []Allocation `json:"devices"`
	Total        int          `json:"total"`
	SafeCapacity int          `json:"safe_capacity"`
	MaxCapacity  int          `json:"max_capacity"`
	Headroom     int          `json:"headroom"`
}

func (m *Manager) Snapshot() Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := Report{
		Devices:      make([]Allocation, 0, len(m.devices)),
		Total:        m.currentPowerUsage,
		SafeCapacity: m.limits.SafeCapacity,
		MaxCapacity:  m.limits.MaxCapacity,
		Headroom:     m.limits.SafeCapacity - m.currentPowerUsage,
	}
	for i, d := range m.devices {
		r.Devices = append(r.Devices, Allocation{
			Name:        d.Name,
			Position:    i,
			Requested:   d.Requested,
			Consumption: d.Consumption,
			State:       d.State(),
		})
	}
	return r
}

// PrintDeviceAllocations writes one line per device in FIFO order.
func (m *Manager) PrintDeviceAllocations(w io.Writer) error {
	return m.Snapshot().Print(w)
}

func (r Report) Print(w io.Writer) error {
	for _, a := range r.Devices {
		if _, err := fmt.Fprintf(w, "%s is consuming %d units.\n", a.Name, a.Consumption); err != nil {
			return err
		}
	}
	return nil
}

// String renders the compact form "A: 20, C: 32".
func (r Report) String() string {
	parts := make([]string, 0, len(r.Devices))
	for _, a := range r.Devices {
		parts = append(parts, fmt.Sprintf("%s: %d", a.Name, a.Consumption))
	}
	return strings.Join(parts, ", ")
}
