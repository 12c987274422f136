package power

// GrantState describes how much of its last explicit request a device holds.
type GrantState string

const (
	GrantFull    GrantState = "full"
	GrantPartial GrantState = "partial"
	GrantZero    GrantState = "zero"
)

// Device is a named consumer attached to a Manager.
//
// Consumption is the amount currently granted and always lies in
// [0, PerDeviceMax]. Requested holds the last explicit request after clamping;
// it is reported but never used to give throttled power back.
type Device struct {
	Name           string
	ConnectionTime int64
	Requested      int
	Consumption    int
}

func newDevice(name string, connectionTime int64, requested int, perDeviceMax int) *Device {
	c := clampConsumption(requested, perDeviceMax)
	return &Device{
		Name:           name,
		ConnectionTime: connectionTime,
		Requested:      c,
		Consumption:    c,
	}
}

// State derives the grant state from the last request and the current grant.
// A device that asked for nothing is considered fully served.
func (d *Device) State() GrantState {
	switch {
	case d.Consumption >= d.Requested:
		return GrantFull
	case d.Consumption == 0:
		return GrantZero
	default:
		return GrantPartial
	}
}

func clampConsumption(v int, perDeviceMax int) int {
	if v < 0 {
		return 0
	}
	if v > perDeviceMax {
		return perDeviceMax
	}
	return v
}
