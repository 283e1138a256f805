// Package modes holds the mode tables shared by the state normalizer and the
// command encoder. Both directions go through the same lookups so a value
// written by a command is reported back unchanged by the next read.
package modes

import (
	"errors"
	"fmt"
)

// Slot is a presented target mode.
type Slot int

const (
	SlotAuto Slot = iota
	SlotHeat
	SlotCool
)

func (s Slot) String() string {
	switch s {
	case SlotAuto:
		return "auto"
	case SlotHeat:
		return "heat"
	case SlotCool:
		return "cool"
	}
	return fmt.Sprintf("slot(%d)", int(s))
}

// Activity is what a unit or zone is doing right now, layered over its target.
type Activity int

const (
	ActivityInactive Activity = iota
	ActivityIdle
	ActivityHeating
	ActivityCooling
)

func (a Activity) String() string {
	switch a {
	case ActivityInactive:
		return "inactive"
	case ActivityIdle:
		return "idle"
	case ActivityHeating:
		return "heating"
	case ActivityCooling:
		return "cooling"
	}
	return fmt.Sprintf("activity(%d)", int(a))
}

// CurrentRule derives an Activity from room and set temperatures.
type CurrentRule int

const (
	RuleIdle CurrentRule = iota
	RuleHeatOrIdle
	RuleCoolOrIdle
	RuleCompare
	RuleHeat
	RuleCool
)

// Apply evaluates the rule.
func (r CurrentRule) Apply(room, set float64) Activity {
	switch r {
	case RuleHeatOrIdle:
		if room < set {
			return ActivityHeating
		}
	case RuleCoolOrIdle:
		if room > set {
			return ActivityCooling
		}
	case RuleCompare:
		switch {
		case room < set:
			return ActivityHeating
		case room > set:
			return ActivityCooling
		}
	case RuleHeat:
		return ActivityHeating
	case RuleCool:
		return ActivityCooling
	}
	return ActivityIdle
}

// ErrSlotDisabled is returned when an aliased slot was configured off.
var ErrSlotDisabled = errors.New("mode slot disabled")
