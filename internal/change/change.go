// Package change decides whether a new device record differs from the last
// one in a way downstream sinks care about.
package change

import (
	"bytes"
	"encoding/json"

	"melcloud-bridge/internal/melcloud"
)

// Only these fields are compared. Timestamps, EffectiveFlags and pending
// command markers move on every poll and are left out.
var familyFields = map[melcloud.Family][]string{
	melcloud.FamilyAirConditioner: {
		"Power", "OperationMode", "SetTemperature", "RoomTemperature",
		"SetFanSpeed", "VaneVertical", "VaneHorizontal", "OutdoorTemperature",
		"ProhibitSetTemperature", "ProhibitOperationMode", "ProhibitPower",
		"InStandbyMode", "Offline",
	},
	melcloud.FamilyHeatPump: {
		"Power", "OperationMode", "UnitStatus", "HolidayMode",
		"OperationModeZone1", "OperationModeZone2",
		"SetTemperatureZone1", "SetTemperatureZone2",
		"SetHeatFlowTemperatureZone1", "SetHeatFlowTemperatureZone2",
		"SetCoolFlowTemperatureZone1", "SetCoolFlowTemperatureZone2",
		"RoomTemperatureZone1", "RoomTemperatureZone2",
		"IdleZone1", "IdleZone2",
		"ProhibitHeatingZone1", "ProhibitCoolingZone1",
		"ProhibitHeatingZone2", "ProhibitCoolingZone2",
		"ForcedHotWaterMode", "EcoHotWater", "ProhibitHotWater",
		"SetTankWaterTemperature", "TankWaterTemperature",
		"OutdoorTemperature", "FlowTemperature", "ReturnTemperature", "Offline",
	},
	melcloud.FamilyVentilator: {
		"Power", "VentilationMode", "SetFanSpeed",
		"RoomTemperature", "OutdoorTemperature", "SupplyTemperature", "ExhaustTemperature",
		"RoomCO2Level", "PM25Level",
		"CoreMaintenanceRequired", "FilterMaintenanceRequired", "Offline",
	},
}

// Fields returns the compared field names for a family.
func Fields(f melcloud.Family) []string { return familyFields[f] }

// Fingerprint serializes the compared subset in a stable key order.
func Fingerprint(s melcloud.RawSnapshot) ([]byte, error) {
	sub := map[string]any{
		"DeviceName": s.DeviceName,
		"Type":       int(s.Type),
	}
	for _, k := range familyFields[s.Type] {
		if v, ok := s.Device[k]; ok {
			sub[k] = v
		}
	}
	if caps := s.Device.Sub("Capabilities"); caps != nil {
		sub["Capabilities"] = map[string]any(caps)
	}
	// encoding/json writes map keys sorted.
	return json.Marshal(sub)
}

// HasChanged reports whether current differs from previous. A nil previous is
// the first observation and always counts as a change, as does a record that
// cannot be serialized.
func HasChanged(previous *melcloud.RawSnapshot, current melcloud.RawSnapshot) bool {
	if previous == nil {
		return true
	}
	a, err := Fingerprint(*previous)
	if err != nil {
		return true
	}
	b, err := Fingerprint(current)
	if err != nil {
		return true
	}
	return !bytes.Equal(a, b)
}
