package normalize

import (
	"math"

	"melcloud-bridge/internal/capability"
	"melcloud-bridge/internal/melcloud"
	"melcloud-bridge/internal/modes"
)

// Unit is the temperature display unit of an account.
type Unit string

const (
	Celsius    Unit = "celsius"
	Fahrenheit Unit = "fahrenheit"
)

// Display converts a Celsius value into the unit, rounded to 0.1.
func (u Unit) Display(c float64) float64 {
	if u == Fahrenheit {
		return math.Round((c*9/5+32)*10) / 10
	}
	return c
}

// Symbol is the short unit name used by Home Assistant.
func (u Unit) Symbol() string {
	if u == Fahrenheit {
		return "F"
	}
	return "C"
}

// State is the canonical device state handed to sinks. Temperatures are always
// Celsius; DisplayUnit tells consumers how to show them. A State is rebuilt
// from scratch every cycle and never modified afterwards.
type State struct {
	DeviceID     string             `json:"device_id"`
	Name         string             `json:"name"`
	Family       melcloud.Family    `json:"family"`
	Presentation modes.Presentation `json:"presentation"`
	DisplayUnit  Unit               `json:"display_unit"`
	Capabilities capability.Set     `json:"capabilities"`

	Power    bool           `json:"power"`
	Activity modes.Activity `json:"activity"`
	Current  int            `json:"current"`
	Target   int            `json:"target"`
	// ValidTargets lists the target values the device accepts, ascending.
	ValidTargets []int `json:"valid_targets,omitempty"`

	RoomTemperature    *float64     `json:"room_temperature,omitempty"`
	TargetTemperature  *float64     `json:"target_temperature,omitempty"`
	TargetRange        *modes.Range `json:"target_range,omitempty"`
	TemperatureStep    float64      `json:"temperature_step,omitempty"`
	OutdoorTemperature *float64     `json:"outdoor_temperature,omitempty"`

	FanSpeed    int  `json:"fan_speed"`
	FanSpeedMax int  `json:"fan_speed_max"`
	Swing       bool `json:"swing"`
	Lock        bool `json:"lock"`

	Zones       []ZoneState  `json:"zones,omitempty"`
	Ventilation *Ventilation `json:"ventilation,omitempty"`
}

// ZoneState is one entry of a heat pump's zone table.
type ZoneState struct {
	Position int             `json:"position"`
	Role     capability.Role `json:"role"`

	Activity     modes.Activity `json:"activity"`
	Current      int            `json:"current"`
	Target       int            `json:"target"`
	ValidTargets []int          `json:"valid_targets,omitempty"`

	CurrentTemperature *float64     `json:"current_temperature,omitempty"`
	TargetTemperature  *float64     `json:"target_temperature,omitempty"`
	TargetRange        *modes.Range `json:"target_range,omitempty"`

	FlowControl bool `json:"flow_control,omitempty"`
	Lock        bool `json:"lock"`
	Eco         bool `json:"eco,omitempty"`
}

// Ventilation carries the air quality readings of a ventilator.
type Ventilation struct {
	CO2                *int     `json:"co2,omitempty"`
	PM25               *int     `json:"pm25,omitempty"`
	SupplyTemperature  *float64 `json:"supply_temperature,omitempty"`
	ExhaustTemperature *float64 `json:"exhaust_temperature,omitempty"`
	CoreMaintenance    bool     `json:"core_maintenance"`
	FilterMaintenance  bool     `json:"filter_maintenance"`
}

// DisplayTemperatures returns a copy of s with every temperature, range and
// step expressed in the display unit. The copy is for presentation only; it
// must not be fed back into the engine.
func (s State) DisplayTemperatures() State {
	u := s.DisplayUnit
	if u != Fahrenheit {
		return s
	}
	out := s
	out.RoomTemperature = displayPtr(u, s.RoomTemperature)
	out.TargetTemperature = displayPtr(u, s.TargetTemperature)
	out.OutdoorTemperature = displayPtr(u, s.OutdoorTemperature)
	out.TargetRange = displayRange(u, s.TargetRange)
	if s.TemperatureStep > 0 {
		out.TemperatureStep = 1
	}
	if s.Zones != nil {
		out.Zones = make([]ZoneState, len(s.Zones))
		for i, z := range s.Zones {
			z.CurrentTemperature = displayPtr(u, z.CurrentTemperature)
			z.TargetTemperature = displayPtr(u, z.TargetTemperature)
			z.TargetRange = displayRange(u, z.TargetRange)
			out.Zones[i] = z
		}
	}
	if s.Ventilation != nil {
		v := *s.Ventilation
		v.SupplyTemperature = displayPtr(u, v.SupplyTemperature)
		v.ExhaustTemperature = displayPtr(u, v.ExhaustTemperature)
		out.Ventilation = &v
	}
	return out
}

func displayPtr(u Unit, c *float64) *float64 {
	if c == nil {
		return nil
	}
	v := u.Display(*c)
	return &v
}

func displayRange(u Unit, r *modes.Range) *modes.Range {
	if r == nil {
		return nil
	}
	return &modes.Range{Min: u.Display(r.Min), Max: u.Display(r.Max)}
}

// Zone returns the zone state at position p.
func (s State) Zone(p int) (ZoneState, bool) {
	for _, z := range s.Zones {
		if z.Position == p {
			return z, true
		}
	}
	return ZoneState{}, false
}

func floatPtr(b melcloud.Block, key string) *float64 {
	if v, ok := b.Float(key); ok {
		return &v
	}
	return nil
}

func intPtr(b melcloud.Block, key string) *int {
	if v, ok := b.Int(key); ok {
		return &v
	}
	return nil
}
