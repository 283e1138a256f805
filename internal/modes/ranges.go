package modes

import (
	"math"

	"melcloud-bridge/internal/melcloud"
)

// Range is an inclusive valid interval for a temperature target.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Clamp returns v limited to the range.
func (r Range) Clamp(v float64) float64 {
	return math.Min(math.Max(v, r.Min), r.Max)
}

// Heat pump target ranges in °C.
var (
	ZoneThermostatRange = Range{Min: 10, Max: 31}
	HeatFlowRange       = Range{Min: 25, Max: 60}
	CoolFlowRange       = Range{Min: 5, Max: 25}
)

const (
	minTankTemperature        = 40
	defaultMaxTankTemperature = 60
)

// TankRange is the hot water tank target range; the upper bound comes from
// the unit when it reports one.
func TankRange(dev melcloud.Block) Range {
	return Range{Min: minTankTemperature, Max: dev.FloatOr("MaxTankTemperature", defaultMaxTankTemperature)}
}

// AtaRange returns the set temperature range for a raw air conditioner mode,
// read from the unit's limits with fallbacks.
func AtaRange(dev melcloud.Block, raw int) Range {
	switch AtaBaseMode(raw) {
	case melcloud.AtaModeHeat:
		return Range{Min: dev.FloatOr("MinTempHeat", 10), Max: dev.FloatOr("MaxTempHeat", 31)}
	case melcloud.AtaModeAuto:
		return Range{Min: dev.FloatOr("MinTempAutomatic", 16), Max: dev.FloatOr("MaxTempAutomatic", 31)}
	}
	return Range{Min: dev.FloatOr("MinTempCoolDry", 16), Max: dev.FloatOr("MaxTempCoolDry", 31)}
}

// Step returns the unit's temperature increment, 0.5 unless it reports 1.
func Step(dev melcloud.Block) float64 {
	if dev.FloatOr("TemperatureIncrement", 0.5) >= 1 {
		return 1
	}
	return 0.5
}

// RoundToStep rounds v to the nearest multiple of step.
func RoundToStep(v, step float64) float64 {
	if step <= 0 {
		return v
	}
	return math.Round(v/step) * step
}
