package trace

import "power-budget/internal/config"

// ReferenceScenario is the canonical three-device walk-through: C is
// throttled to 12 on connect, A drops to 20, C asks for 32, B leaves. The
// final allocation is A: 20, C: 32.
func ReferenceScenario() []config.EventConfig {
	amount := func(v int) *int { return &v }
	return []config.EventConfig{
		{T: 0, Action: config.ActionConnect, Device: "A", Consumption: amount(40)},
		{T: 1, Action: config.ActionConnect, Device: "B", Consumption: amount(40)},
		{T: 2, Action: config.ActionConnect, Device: "C", Consumption: amount(40)},
		{T: 3, Action: config.ActionChange, Device: "A", Consumption: amount(20)},
		{T: 3, Action: config.ActionChange, Device: "C", Consumption: amount(32)},
		{T: 4, Action: config.ActionDisconnect, Device: "B"},
	}
}
