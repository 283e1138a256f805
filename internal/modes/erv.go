package modes

import (
	"fmt"

	"melcloud-bridge/internal/capability"
	"melcloud-bridge/internal/melcloud"
)

// ErvSlot maps a raw ventilation mode onto a slot: recovery is heat, bypass is
// cool, auto is auto.
func ErvSlot(raw int) Slot {
	switch raw {
	case melcloud.ErvModeBypass:
		return SlotCool
	case melcloud.ErvModeAuto:
		return SlotAuto
	}
	return SlotHeat
}

// ErvActivity is the ventilator's current activity for a raw mode.
func ErvActivity(raw int) Activity {
	switch raw {
	case melcloud.ErvModeRecovery:
		return ActivityHeating
	case melcloud.ErvModeBypass:
		return ActivityCooling
	}
	return ActivityIdle
}

// ErvRawMode resolves a slot to the raw ventilation mode.
func ErvRawMode(s Slot, caps capability.Set) (int, error) {
	switch s {
	case SlotHeat:
		return melcloud.ErvModeRecovery, nil
	case SlotCool:
		if !caps.HasBypassVentilation {
			return 0, fmt.Errorf("bypass ventilation not available")
		}
		return melcloud.ErvModeBypass, nil
	case SlotAuto:
		if !caps.HasAutoVentilation {
			return 0, fmt.Errorf("auto ventilation not available")
		}
		return melcloud.ErvModeAuto, nil
	}
	return 0, fmt.Errorf("unknown slot %d", s)
}
