package modes

import (
	"fmt"

	"melcloud-bridge/internal/melcloud"
)

// Presentation selects the accessory model a device is presented as. The two
// models use different enumerations and, for a few raw modes, different
// current-state rules.
type Presentation string

const (
	PresentationHeaterCooler Presentation = "heater_cooler"
	PresentationThermostat   Presentation = "thermostat"
)

// ParsePresentation validates a configured presentation. Empty selects heater_cooler.
func ParsePresentation(s string) (Presentation, error) {
	switch Presentation(s) {
	case "", PresentationHeaterCooler:
		return PresentationHeaterCooler, nil
	case PresentationThermostat:
		return PresentationThermostat, nil
	}
	return "", fmt.Errorf("unknown presentation %q", s)
}

// Heater-cooler enumerations.
const (
	HCCurrentInactive = 0
	HCCurrentIdle     = 1
	HCCurrentHeating  = 2
	HCCurrentCooling  = 3

	HCTargetAuto = 0
	HCTargetHeat = 1
	HCTargetCool = 2
)

// Thermostat enumerations.
const (
	ThCurrentOff  = 0
	ThCurrentHeat = 1
	ThCurrentCool = 2

	ThTargetOff  = 0
	ThTargetHeat = 1
	ThTargetCool = 2
	ThTargetAuto = 3
)

var heaterCoolerRules = map[int]CurrentRule{
	melcloud.AtaModeHeat: RuleHeatOrIdle,
	melcloud.AtaModeDry:  RuleCoolOrIdle,
	melcloud.AtaModeCool: RuleCoolOrIdle,
	melcloud.AtaModeFan:  RuleIdle,
	melcloud.AtaModeAuto: RuleCompare,
}

// The thermostat table reports dry as cooling without the room comparison.
var thermostatRules = map[int]CurrentRule{
	melcloud.AtaModeHeat: RuleHeatOrIdle,
	melcloud.AtaModeDry:  RuleCool,
	melcloud.AtaModeCool: RuleCoolOrIdle,
	melcloud.AtaModeFan:  RuleIdle,
	melcloud.AtaModeAuto: RuleCompare,
}

func (p Presentation) ataRules() map[int]CurrentRule {
	if p == PresentationThermostat {
		return thermostatRules
	}
	return heaterCoolerRules
}

// Current maps an activity onto the presentation's current-state value.
func (p Presentation) Current(a Activity) int {
	if p == PresentationThermostat {
		switch a {
		case ActivityHeating:
			return ThCurrentHeat
		case ActivityCooling:
			return ThCurrentCool
		}
		return ThCurrentOff
	}
	switch a {
	case ActivityIdle:
		return HCCurrentIdle
	case ActivityHeating:
		return HCCurrentHeating
	case ActivityCooling:
		return HCCurrentCooling
	}
	return HCCurrentInactive
}

// Target maps a slot onto the presentation's target value. The thermostat
// folds power into its target; the heater-cooler carries power separately.
func (p Presentation) Target(s Slot, power bool) int {
	if p == PresentationThermostat {
		if !power {
			return ThTargetOff
		}
		switch s {
		case SlotHeat:
			return ThTargetHeat
		case SlotCool:
			return ThTargetCool
		}
		return ThTargetAuto
	}
	switch s {
	case SlotHeat:
		return HCTargetHeat
	case SlotCool:
		return HCTargetCool
	}
	return HCTargetAuto
}

// TargetRange returns the valid range of target values.
func (p Presentation) TargetRange() (min, max int) {
	if p == PresentationThermostat {
		return ThTargetOff, ThTargetAuto
	}
	return HCTargetAuto, HCTargetCool
}

// ParseTarget is the inverse of Target. off reports a thermostat "off" value,
// which carries no slot.
func (p Presentation) ParseTarget(v int) (s Slot, off bool, err error) {
	if p == PresentationThermostat {
		switch v {
		case ThTargetOff:
			return 0, true, nil
		case ThTargetHeat:
			return SlotHeat, false, nil
		case ThTargetCool:
			return SlotCool, false, nil
		case ThTargetAuto:
			return SlotAuto, false, nil
		}
		return 0, false, fmt.Errorf("thermostat target %d out of range", v)
	}
	switch v {
	case HCTargetAuto:
		return SlotAuto, false, nil
	case HCTargetHeat:
		return SlotHeat, false, nil
	case HCTargetCool:
		return SlotCool, false, nil
	}
	return 0, false, fmt.Errorf("heater-cooler target %d out of range", v)
}
