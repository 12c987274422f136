package power

import (
	"errors"
	"fmt"
	"sync"

	"power-budget/internal/logging"

	"github.com/sirupsen/logrus"
)

const (
	DefaultSafeCapacity = 92
	DefaultMaxCapacity  = 100
	DefaultPerDeviceMax = 40
)

var ErrDuplicateDevice = errors.New("device already connected")

// Limits bounds what a Manager hands out. MaxCapacity is the declared ceiling
// of the supply; reallocation only ever enforces SafeCapacity.
type Limits struct {
	SafeCapacity int
	MaxCapacity  int
	PerDeviceMax int
}

func DefaultLimits() Limits {
	return Limits{
		SafeCapacity: DefaultSafeCapacity,
		MaxCapacity:  DefaultMaxCapacity,
		PerDeviceMax: DefaultPerDeviceMax,
	}
}

func (l Limits) Validate() error {
	if l.SafeCapacity <= 0 {
		return fmt.Errorf("safe capacity must be greater than 0")
	}
	if l.PerDeviceMax <= 0 {
		return fmt.Errorf("per-device max must be greater than 0")
	}
	if l.MaxCapacity > 0 && l.SafeCapacity > l.MaxCapacity {
		return fmt.Errorf("safe capacity %d exceeds max capacity %d", l.SafeCapacity, l.MaxCapacity)
	}
	return nil
}

type Options struct {
	Limits Limits
	// UniqueNames rejects a connect whose name is already present. When false,
	// duplicates are kept and lookups hit the earliest connected one.
	UniqueNames bool
	Logger      logrus.FieldLogger
}

// Manager tracks a shared power budget across connected devices. Devices are
// kept in connection order, which is the only priority used when demand has to
// be cut back. Every exported method holds the manager lock for its full
// duration, including the reallocation pass.
type Manager struct {
	limits      Limits
	uniqueNames bool
	logger      logrus.FieldLogger

	mu                sync.Mutex
	devices           []*Device
	currentPowerUsage int
	lastThrottles     []Throttle
}

func NewManager(opts Options) (*Manager, error) {
	limits := opts.Limits
	if limits == (Limits{}) {
		limits = DefaultLimits()
	}
	if err := limits.Validate(); err != nil {
		return nil, fmt.Errorf("invalid limits: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetAllocationLogger()
	}
	return &Manager{
		limits:      limits,
		uniqueNames: opts.UniqueNames,
		logger:      logger,
	}, nil
}

// ConnectDevice appends a new device at the end of the FIFO order and
// reallocates. The request is clamped to [0, PerDeviceMax].
func (m *Manager) ConnectDevice(name string, requested int, connectionTime int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.uniqueNames && m.indexLocked(name) >= 0 {
		return fmt.Errorf("connect %q: %w", name, ErrDuplicateDevice)
	}

	d := newDevice(name, connectionTime, requested, m.limits.PerDeviceMax)
	m.warnIfClamped(name, requested, d.Consumption)
	m.devices = append(m.devices, d)

	m.logger.WithFields(logrus.Fields{
		"device":          name,
		"requested":       requested,
		"consumption":     d.Consumption,
		"connection_time": connectionTime,
		"position":        len(m.devices) - 1,
	}).Info("Device connected")

	m.allocatePowerLocked()
	return nil
}

// DisconnectDevice removes the first device named name. It reports false and
// changes nothing when no device matches. Freed power is not handed back to
// devices that were throttled earlier.
func (m *Manager) DisconnectDevice(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.indexLocked(name)
	if idx < 0 {
		m.logger.WithField("device", name).Debug("Disconnect ignored, device not connected")
		return false
	}
	released := m.devices[idx].Consumption
	m.devices = append(m.devices[:idx], m.devices[idx+1:]...)

	m.logger.WithFields(logrus.Fields{
		"device":   name,
		"released": released,
	}).Info("Device disconnected")

	m.allocatePowerLocked()
	return true
}

// ChangeDeviceConsumption sets a new request for the first device named name
// and reallocates. It reports false and changes nothing when no device
// matches. This is the only way a device's consumption can go up.
func (m *Manager) ChangeDeviceConsumption(name string, consumption int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.indexLocked(name)
	if idx < 0 {
		m.logger.WithField("device", name).Debug("Change ignored, device not connected")
		return false
	}
	d := m.devices[idx]
	prev := d.Consumption
	c := clampConsumption(consumption, m.limits.PerDeviceMax)
	m.warnIfClamped(name, consumption, c)
	d.Requested = c
	d.Consumption = c

	m.logger.WithFields(logrus.Fields{
		"device":      name,
		"requested":   consumption,
		"from":        prev,
		"consumption": c,
	}).Info("Device consumption changed")

	m.allocatePowerLocked()
	return true
}

// AllocatePower runs the reallocation pass on demand and returns the
// reductions it made. A second call without an intervening mutation returns
// nothing.
func (m *Manager) AllocatePower() []Throttle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allocatePowerLocked()
}

// LastThrottles returns the reductions made by the most recent reallocation
// pass, whichever operation triggered it.
func (m *Manager) LastThrottles() []Throttle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Throttle(nil), m.lastThrottles...)
}

func (m *Manager) CurrentPowerUsage() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentPowerUsage
}

// Headroom is the power still available below the safe capacity.
func (m *Manager) Headroom() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.limits.SafeCapacity - m.currentPowerUsage
}

func (m *Manager) Limits() Limits {
	return m.limits
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.devices)
}

// Device returns a copy of the first device named name.
func (m *Manager) Device(name string) (Device, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.indexLocked(name)
	if idx < 0 {
		return Device{}, false
	}
	return *m.devices[idx], true
}

// Devices returns copies of all devices in FIFO order.
func (m *Manager) Devices() []Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Device, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, *d)
	}
	return out
}

func (m *Manager) indexLocked(name string) int {
	for i, d := range m.devices {
		if d.Name == name {
			return i
		}
	}
	return -1
}

func (m *Manager) warnIfClamped(name string, requested, granted int) {
	if requested == granted {
		return
	}
	entry := m.logger.WithFields(logrus.Fields{
		"device":         name,
		"requested":      requested,
		"consumption":    granted,
		"per_device_max": m.limits.PerDeviceMax,
	})
	if requested < 0 {
		entry.Warn("Negative consumption request clamped to 0")
		return
	}
	entry.Debug("Consumption request clamped to per-device max")
}
