// Package normalize turns a raw device record and its capability set into the
// canonical per-family State consumed by sinks.
package normalize

import (
	"errors"
	"fmt"
	"slices"

	"melcloud-bridge/internal/capability"
	"melcloud-bridge/internal/melcloud"
	"melcloud-bridge/internal/modes"
)

// ErrMalformed is returned when a record lacks its device-state block.
var ErrMalformed = errors.New("malformed device record")

// Input is everything one normalization needs. Normalize is a pure function
// of it.
type Input struct {
	Snapshot     melcloud.RawSnapshot
	Capabilities capability.Set
	Zones        capability.ZoneTable
	Aliases      modes.Aliases
	Presentation modes.Presentation
	Unit         Unit
}

// Normalize builds the State for one device.
func Normalize(in Input) (State, error) {
	if in.Snapshot.Device == nil {
		return State{}, fmt.Errorf("device %s: %w: no Device block", in.Snapshot.DeviceID, ErrMalformed)
	}
	unit := in.Unit
	if unit == "" {
		unit = Celsius
	}
	pres := in.Presentation
	if pres == "" {
		pres = modes.PresentationHeaterCooler
	}
	s := State{
		DeviceID:     in.Snapshot.DeviceID,
		Name:         in.Snapshot.DeviceName,
		Family:       in.Capabilities.Family,
		Presentation: pres,
		DisplayUnit:  unit,
		Capabilities: in.Capabilities,
	}
	switch in.Capabilities.Family {
	case melcloud.FamilyAirConditioner:
		airConditioner(&s, in)
	case melcloud.FamilyHeatPump:
		if _, ok := in.Snapshot.Device.Bool("Power"); !ok {
			return State{}, fmt.Errorf("device %s: %w: Power missing", in.Snapshot.DeviceID, ErrMalformed)
		}
		heatPump(&s, in)
	case melcloud.FamilyVentilator:
		ventilator(&s, in)
	default:
		return State{}, fmt.Errorf("device %s: unsupported family %s", in.Snapshot.DeviceID, in.Capabilities.Family)
	}
	return s, nil
}

func airConditioner(s *State, in Input) {
	dev := in.Snapshot.Device
	caps := in.Capabilities

	s.Power = dev.BoolOr("Power", false)
	raw := dev.IntOr("OperationMode", melcloud.AtaModeAuto)
	room := dev.FloatOr("RoomTemperature", 0)
	set := dev.FloatOr("SetTemperature", room)

	s.Activity = modes.ActivityInactive
	if s.Power {
		s.Activity = modes.AtaCurrentRule(s.Presentation, raw).Apply(room, set)
	}
	s.Current = s.Presentation.Current(s.Activity)
	s.Target = s.Presentation.Target(in.Aliases.Slot(raw), s.Power)
	s.ValidTargets = validTargets(s.Presentation, func(sl modes.Slot) bool {
		r, err := in.Aliases.RawMode(sl)
		return err == nil && modes.AtaModeSupported(r, caps)
	})

	s.RoomTemperature = floatPtr(dev, "RoomTemperature")
	s.TargetTemperature = floatPtr(dev, "SetTemperature")
	rng := modes.AtaRange(dev, raw)
	s.TargetRange = &rng
	s.TemperatureStep = modes.Step(dev)
	if caps.HasOutdoorTemperature {
		s.OutdoorTemperature = floatPtr(dev, "OutdoorTemperature")
	}

	fan := modes.FanScale{Speeds: caps.NumberOfFanSpeeds, Auto: caps.HasAutomaticFanSpeed}
	s.FanSpeed = fan.Dense(dev.IntOr("SetFanSpeed", melcloud.FanSpeedAuto))
	s.FanSpeedMax = fan.Max()

	if caps.HasSwing {
		s.Swing = dev.IntOr("VaneVertical", melcloud.VaneAuto) == melcloud.VaneVerticalSwing ||
			dev.IntOr("VaneHorizontal", melcloud.VaneAuto) == melcloud.VaneHorizontalSwing
	}
	s.Lock = dev.BoolOr("ProhibitSetTemperature", false) ||
		dev.BoolOr("ProhibitOperationMode", false) ||
		dev.BoolOr("ProhibitPower", false)
}

func ventilator(s *State, in Input) {
	dev := in.Snapshot.Device
	caps := in.Capabilities

	s.Power = dev.BoolOr("Power", false)
	raw := dev.IntOr("VentilationMode", melcloud.ErvModeRecovery)

	s.Activity = modes.ActivityInactive
	if s.Power {
		s.Activity = modes.ErvActivity(raw)
	}
	s.Current = s.Presentation.Current(s.Activity)
	s.Target = s.Presentation.Target(modes.ErvSlot(raw), s.Power)
	s.ValidTargets = validTargets(s.Presentation, func(sl modes.Slot) bool {
		_, err := modes.ErvRawMode(sl, caps)
		return err == nil
	})

	if caps.HasRoomTemperature {
		s.RoomTemperature = floatPtr(dev, "RoomTemperature")
	}
	if caps.HasOutdoorTemperature {
		s.OutdoorTemperature = floatPtr(dev, "OutdoorTemperature")
	}

	fan := modes.FanScale{Speeds: caps.NumberOfFanSpeeds, Auto: caps.HasAutomaticFanSpeed}
	s.FanSpeed = fan.Dense(dev.IntOr("SetFanSpeed", melcloud.FanSpeedAuto))
	s.FanSpeedMax = fan.Max()

	v := &Ventilation{
		CoreMaintenance:   dev.BoolOr("CoreMaintenanceRequired", false),
		FilterMaintenance: dev.BoolOr("FilterMaintenanceRequired", false),
	}
	if caps.HasCO2Sensor {
		v.CO2 = intPtr(dev, "RoomCO2Level")
	}
	if caps.HasPM25Sensor {
		v.PM25 = intPtr(dev, "PM25Level")
	}
	if caps.HasSupplyTemperature {
		v.SupplyTemperature = floatPtr(dev, "SupplyTemperature")
	}
	if caps.HasExhaustTemperature {
		v.ExhaustTemperature = floatPtr(dev, "ExhaustTemperature")
	}
	s.Ventilation = v
}

// validTargets lists presentation target values whose slot passes ok. The
// thermostat's "off" is always valid.
func validTargets(p modes.Presentation, ok func(modes.Slot) bool) []int {
	var out []int
	if p == modes.PresentationThermostat {
		out = append(out, modes.ThTargetOff)
	}
	for _, sl := range []modes.Slot{modes.SlotAuto, modes.SlotHeat, modes.SlotCool} {
		if ok(sl) {
			out = append(out, p.Target(sl, true))
		}
	}
	slices.Sort(out)
	return out
}
