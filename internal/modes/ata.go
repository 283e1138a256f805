package modes

import (
	"melcloud-bridge/internal/capability"
	"melcloud-bridge/internal/melcloud"
)

// AtaBaseMode folds the i-See sensor variants onto their plain modes.
func AtaBaseMode(raw int) int {
	switch raw {
	case melcloud.AtaModeISeeHeat:
		return melcloud.AtaModeHeat
	case melcloud.AtaModeISeeDry:
		return melcloud.AtaModeDry
	case melcloud.AtaModeISeeCool:
		return melcloud.AtaModeCool
	}
	return raw
}

// AtaModeSupported reports whether the unit can run a raw mode.
func AtaModeSupported(raw int, caps capability.Set) bool {
	switch AtaBaseMode(raw) {
	case melcloud.AtaModeHeat:
		return caps.HasHeat
	case melcloud.AtaModeDry:
		return caps.HasDry
	case melcloud.AtaModeCool:
		return caps.HasCool
	case melcloud.AtaModeAuto:
		return caps.HasAuto
	case melcloud.AtaModeFan:
		return true
	}
	return false
}

// AtaCurrentRule returns the activity rule for a raw mode under a presentation.
// Unknown modes report idle.
func AtaCurrentRule(p Presentation, raw int) CurrentRule {
	if r, ok := p.ataRules()[AtaBaseMode(raw)]; ok {
		return r
	}
	return RuleIdle
}
