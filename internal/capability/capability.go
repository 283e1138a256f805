// Package capability derives what a specific device instance supports from
// its raw record, and enumerates the zones a heat pump actually has.
package capability

import (
	"melcloud-bridge/internal/melcloud"
)

// Set holds facts derived from one RawSnapshot. It is recomputed every cycle
// and never persisted on its own.
type Set struct {
	Family  melcloud.Family  `json:"family"`
	Variant melcloud.Variant `json:"variant"`

	HasHeat               bool `json:"has_heat"`
	HasCool               bool `json:"has_cool"`
	HasAuto               bool `json:"has_auto"`
	HasDry                bool `json:"has_dry"`
	NumberOfFanSpeeds     int  `json:"number_of_fan_speeds"`
	HasAutomaticFanSpeed  bool `json:"has_automatic_fan_speed"`
	HasSwing              bool `json:"has_swing"`
	HasOutdoorTemperature bool `json:"has_outdoor_temperature"`

	// Heat pump.
	HasZone1        bool `json:"has_zone1,omitempty"`
	HasZone2        bool `json:"has_zone2,omitempty"`
	HasHotWaterTank bool `json:"has_hot_water_tank,omitempty"`
	CanHeat         bool `json:"can_heat,omitempty"`
	CanCool         bool `json:"can_cool,omitempty"`

	// Ventilator.
	HasAutoVentilation    bool `json:"has_auto_ventilation,omitempty"`
	HasBypassVentilation  bool `json:"has_bypass_ventilation,omitempty"`
	HasCO2Sensor          bool `json:"has_co2_sensor,omitempty"`
	HasPM25Sensor         bool `json:"has_pm25_sensor,omitempty"`
	HasRoomTemperature    bool `json:"has_room_temperature,omitempty"`
	HasSupplyTemperature  bool `json:"has_supply_temperature,omitempty"`
	HasExhaustTemperature bool `json:"has_exhaust_temperature,omitempty"`
}

// Preferences are operator choices that can only take capabilities away.
type Preferences struct {
	DisableHeat               bool
	DisableCool               bool
	DisableAuto               bool
	DisableDry                bool
	DisableSwing              bool
	DisableAutomaticFanSpeed  bool
	DisableOutdoorTemperature bool
	DisableHotWater           bool
	DisableBypass             bool
}

// maxFanSpeeds bounds the vendor speed count.
const maxFanSpeeds = 5

// fieldNames maps capability facts onto the field names one upstream service
// uses. Block names the nested capabilities object ("" = the device block
// itself). An empty field name means the capability is inherent to the family
// on that service and is not reported.
type fieldNames struct {
	Block     string
	Heat      string
	Cool      string
	Auto      string
	Dry       string
	FanSpeeds string
	AutoFan   string
	Swing     string
	Outdoor   string
}

var ataFields = map[melcloud.Variant]fieldNames{
	melcloud.VariantMELCloud: {
		Heat:      "ModelSupportsHeat",
		Auto:      "ModelSupportsAuto",
		Dry:       "ModelSupportsDry",
		FanSpeeds: "NumberOfFanSpeeds",
		AutoFan:   "HasAutomaticFanSpeed",
		Swing:     "SwingFunction",
		Outdoor:   "HasOutdoorTemperature",
	},
	melcloud.VariantHome: {
		Block:     "Capabilities",
		Heat:      "hasHeatOperationMode",
		Cool:      "hasCoolOperationMode",
		Auto:      "hasAutoOperationMode",
		Dry:       "hasDryOperationMode",
		FanSpeeds: "numberOfFanSpeeds",
		AutoFan:   "hasAutomaticFanSpeed",
		Swing:     "hasSwing",
		Outdoor:   "hasOutdoorTemperature",
	},
}

type heatPumpFieldNames struct {
	Block    string
	Zone1    string
	Zone2    string
	HotWater string
	CanHeat  string
	CanCool  string
	Outdoor  string
}

var atwFields = map[melcloud.Variant]heatPumpFieldNames{
	melcloud.VariantMELCloud: {
		Zone2:    "HasZone2",
		HotWater: "HasHotWaterTank",
		CanHeat:  "CanHeat",
		CanCool:  "CanCool",
		Outdoor:  "HasOutdoorTemperature",
	},
	melcloud.VariantHome: {
		Block:    "Capabilities",
		Zone1:    "hasZone1",
		Zone2:    "hasZone2",
		HotWater: "hasHotWater",
		CanHeat:  "canHeat",
		CanCool:  "canCool",
		Outdoor:  "hasOutdoorTemperature",
	},
}

// Derive computes the capability set for one snapshot. It is a pure function
// of its arguments.
func Derive(snap melcloud.RawSnapshot, family melcloud.Family, variant melcloud.Variant, prefs Preferences) Set {
	s := Set{Family: family, Variant: variant}
	switch family {
	case melcloud.FamilyAirConditioner:
		deriveAirConditioner(&s, snap.Device, variant)
	case melcloud.FamilyHeatPump:
		deriveHeatPump(&s, snap.Device, variant)
	case melcloud.FamilyVentilator:
		deriveVentilator(&s, snap.Device)
	}
	applyPreferences(&s, prefs)
	return s
}

// read resolves a field name against a block; "" is an inherent capability.
func read(b melcloud.Block, name string) bool {
	if name == "" {
		return true
	}
	return b.BoolOr(name, false)
}

func capabilityBlock(dev melcloud.Block, name string) melcloud.Block {
	if name == "" {
		return dev
	}
	if sub := dev.Sub(name); sub != nil {
		return sub
	}
	return melcloud.Block{}
}

func deriveAirConditioner(s *Set, dev melcloud.Block, variant melcloud.Variant) {
	names, ok := ataFields[variant]
	if !ok {
		return
	}
	b := capabilityBlock(dev, names.Block)
	s.HasHeat = read(b, names.Heat)
	s.HasCool = read(b, names.Cool)
	s.HasAuto = read(b, names.Auto)
	s.HasDry = read(b, names.Dry)
	s.NumberOfFanSpeeds = clampSpeeds(b.IntOr(names.FanSpeeds, 0))
	s.HasAutomaticFanSpeed = read(b, names.AutoFan)
	s.HasSwing = read(b, names.Swing)
	s.HasOutdoorTemperature = read(b, names.Outdoor)
}

func deriveHeatPump(s *Set, dev melcloud.Block, variant melcloud.Variant) {
	names, ok := atwFields[variant]
	if !ok {
		return
	}
	b := capabilityBlock(dev, names.Block)
	s.HasZone1 = read(b, names.Zone1)
	s.HasZone2 = read(b, names.Zone2)
	s.HasHotWaterTank = read(b, names.HotWater)
	s.CanHeat = read(b, names.CanHeat)
	s.CanCool = read(b, names.CanCool)
	s.HasOutdoorTemperature = read(b, names.Outdoor)

	s.HasHeat = s.CanHeat
	s.HasCool = s.CanCool
	// Heat curve is the heat pump's automatic zone mode.
	s.HasAuto = s.CanHeat
}

func deriveVentilator(s *Set, dev melcloud.Block) {
	s.HasAutoVentilation = dev.BoolOr("HasAutoVentilationMode", false)
	s.HasBypassVentilation = dev.BoolOr("HasBypassVentilationMode", false)
	s.HasCO2Sensor = dev.BoolOr("HasCO2Sensor", false)
	s.HasPM25Sensor = dev.BoolOr("HasPM25Sensor", false)
	s.HasAutomaticFanSpeed = dev.BoolOr("HasAutomaticFanSpeed", false)
	s.NumberOfFanSpeeds = clampSpeeds(dev.IntOr("NumberOfFanSpeeds", 0))

	_, s.HasRoomTemperature = dev.Float("RoomTemperature")
	_, s.HasOutdoorTemperature = dev.Float("OutdoorTemperature")
	_, s.HasSupplyTemperature = dev.Float("SupplyTemperature")
	_, s.HasExhaustTemperature = dev.Float("ExhaustTemperature")

	// Recovery is always available; bypass and auto are optional.
	s.HasHeat = true
	s.HasCool = s.HasBypassVentilation
	s.HasAuto = s.HasAutoVentilation
}

func applyPreferences(s *Set, p Preferences) {
	s.HasHeat = s.HasHeat && !p.DisableHeat
	s.HasCool = s.HasCool && !p.DisableCool
	s.HasAuto = s.HasAuto && !p.DisableAuto
	s.HasDry = s.HasDry && !p.DisableDry
	s.HasSwing = s.HasSwing && !p.DisableSwing
	s.HasAutomaticFanSpeed = s.HasAutomaticFanSpeed && !p.DisableAutomaticFanSpeed
	s.HasOutdoorTemperature = s.HasOutdoorTemperature && !p.DisableOutdoorTemperature

	s.CanHeat = s.CanHeat && !p.DisableHeat
	s.CanCool = s.CanCool && !p.DisableCool
	s.HasHotWaterTank = s.HasHotWaterTank && !p.DisableHotWater

	s.HasAutoVentilation = s.HasAutoVentilation && !p.DisableAuto
	s.HasBypassVentilation = s.HasBypassVentilation && !p.DisableBypass
	if s.Family == melcloud.FamilyVentilator {
		s.HasCool = s.HasBypassVentilation
	}
}

func clampSpeeds(n int) int {
	if n < 0 {
		return 0
	}
	if n > maxFanSpeeds {
		return maxFanSpeeds
	}
	return n
}
