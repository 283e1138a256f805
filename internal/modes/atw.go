package modes

import (
	"fmt"

	"melcloud-bridge/internal/capability"
	"melcloud-bridge/internal/melcloud"
)

// ZoneFields names the raw fields and flag bits of one heating zone.
type ZoneFields struct {
	OperationMode     string
	OperationModeFlag uint64

	SetTemperature     string
	SetTemperatureFlag uint64
	HeatFlow           string
	HeatFlowFlag       uint64
	CoolFlow           string
	CoolFlowFlag       uint64

	RoomTemperature string
	Idle            string

	ProhibitHeating     string
	ProhibitHeatingFlag uint64
	ProhibitCooling     string
	ProhibitCoolingFlag uint64
}

var zoneFields = map[capability.Role]ZoneFields{
	capability.RoleZone1: {
		OperationMode:       "OperationModeZone1",
		OperationModeFlag:   melcloud.FlagAtwOperationModeZone1,
		SetTemperature:      "SetTemperatureZone1",
		SetTemperatureFlag:  melcloud.FlagAtwSetTemperatureZone1,
		HeatFlow:            "SetHeatFlowTemperatureZone1",
		HeatFlowFlag:        melcloud.FlagAtwSetHeatFlowTemperatureZone1,
		CoolFlow:            "SetCoolFlowTemperatureZone1",
		CoolFlowFlag:        melcloud.FlagAtwSetCoolFlowTemperatureZone1,
		RoomTemperature:     "RoomTemperatureZone1",
		Idle:                "IdleZone1",
		ProhibitHeating:     "ProhibitHeatingZone1",
		ProhibitHeatingFlag: melcloud.FlagAtwProhibitHeatingZone1,
		ProhibitCooling:     "ProhibitCoolingZone1",
		ProhibitCoolingFlag: melcloud.FlagAtwProhibitCoolingZone1,
	},
	capability.RoleZone2: {
		OperationMode:       "OperationModeZone2",
		OperationModeFlag:   melcloud.FlagAtwOperationModeZone2,
		SetTemperature:      "SetTemperatureZone2",
		SetTemperatureFlag:  melcloud.FlagAtwSetTemperatureZone2,
		HeatFlow:            "SetHeatFlowTemperatureZone2",
		HeatFlowFlag:        melcloud.FlagAtwSetHeatFlowTemperatureZone2,
		CoolFlow:            "SetCoolFlowTemperatureZone2",
		CoolFlowFlag:        melcloud.FlagAtwSetCoolFlowTemperatureZone2,
		RoomTemperature:     "RoomTemperatureZone2",
		Idle:                "IdleZone2",
		ProhibitHeating:     "ProhibitHeatingZone2",
		ProhibitHeatingFlag: melcloud.FlagAtwProhibitHeatingZone2,
		ProhibitCooling:     "ProhibitCoolingZone2",
		ProhibitCoolingFlag: melcloud.FlagAtwProhibitCoolingZone2,
	},
}

// Zone returns the field table for a heating zone role.
func Zone(r capability.Role) (ZoneFields, bool) {
	f, ok := zoneFields[r]
	return f, ok
}

// IsFlowMode reports whether a raw zone mode targets flow temperature.
func IsFlowMode(raw int) bool {
	return raw == melcloud.AtwZoneHeatFlow || raw == melcloud.AtwZoneCoolFlow
}

// ZoneSlot maps a raw zone mode onto a slot. The heat curve is the zone's
// automatic mode.
func ZoneSlot(raw int) Slot {
	switch raw {
	case melcloud.AtwZoneHeatCurve:
		return SlotAuto
	case melcloud.AtwZoneCoolThermostat, melcloud.AtwZoneCoolFlow:
		return SlotCool
	}
	return SlotHeat
}

// ZoneRawMode resolves a slot to the raw zone mode to write. Heat and cool keep
// the zone's current flow or thermostat control.
func ZoneRawMode(s Slot, current int, caps capability.Set) (int, error) {
	flow := IsFlowMode(current)
	switch s {
	case SlotHeat:
		if !caps.CanHeat {
			return 0, fmt.Errorf("zone heating not available")
		}
		if flow {
			return melcloud.AtwZoneHeatFlow, nil
		}
		return melcloud.AtwZoneHeatThermostat, nil
	case SlotCool:
		if !caps.CanCool {
			return 0, fmt.Errorf("zone cooling not available")
		}
		if flow {
			return melcloud.AtwZoneCoolFlow, nil
		}
		return melcloud.AtwZoneCoolThermostat, nil
	case SlotAuto:
		if !caps.CanHeat {
			return 0, fmt.Errorf("heat curve not available")
		}
		return melcloud.AtwZoneHeatCurve, nil
	}
	return 0, fmt.Errorf("unknown slot %d", s)
}

// TargetField is the raw field a zone temperature target lives in.
type TargetField struct {
	Field string
	Flag  uint64
	Range Range
}

// ZoneTarget picks the temperature target field for the zone's current raw
// mode: heat flow, cool flow, or the thermostat set point.
func ZoneTarget(f ZoneFields, raw int) TargetField {
	switch raw {
	case melcloud.AtwZoneHeatFlow:
		return TargetField{Field: f.HeatFlow, Flag: f.HeatFlowFlag, Range: HeatFlowRange}
	case melcloud.AtwZoneCoolFlow:
		return TargetField{Field: f.CoolFlow, Flag: f.CoolFlowFlag, Range: CoolFlowRange}
	}
	return TargetField{Field: f.SetTemperature, Flag: f.SetTemperatureFlag, Range: ZoneThermostatRange}
}

// UnitSlot maps the raw unit status onto a slot.
func UnitSlot(status int) Slot {
	if status == melcloud.AtwUnitCool {
		return SlotCool
	}
	return SlotHeat
}

// UnitStatus resolves a slot to the raw unit status.
func UnitStatus(s Slot, caps capability.Set) (int, error) {
	switch s {
	case SlotHeat:
		if !caps.CanHeat {
			return 0, fmt.Errorf("unit heating not available")
		}
		return melcloud.AtwUnitHeat, nil
	case SlotCool:
		if !caps.CanCool {
			return 0, fmt.Errorf("unit cooling not available")
		}
		return melcloud.AtwUnitCool, nil
	}
	return 0, fmt.Errorf("heat pump unit has no %s mode", s)
}

// UnitActivity maps the raw unit operation state onto an activity.
func UnitActivity(state int) Activity {
	switch state {
	case melcloud.AtwStateHotWater, melcloud.AtwStateHeating, melcloud.AtwStateHeatingEco,
		melcloud.AtwStateHeatingUp, melcloud.AtwStateFreezeStat, melcloud.AtwStateLegionella:
		return ActivityHeating
	case melcloud.AtwStateCooling:
		return ActivityCooling
	}
	return ActivityIdle
}

// HotWaterSlot reports forced hot water as heat and normal operation as auto.
func HotWaterSlot(forced bool) Slot {
	if forced {
		return SlotHeat
	}
	return SlotAuto
}

// HotWaterForced resolves a slot to the ForcedHotWaterMode value.
func HotWaterForced(s Slot) (bool, error) {
	switch s {
	case SlotHeat:
		return true, nil
	case SlotAuto:
		return false, nil
	}
	return false, fmt.Errorf("hot water tank has no %s mode", s)
}
