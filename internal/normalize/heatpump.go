package normalize

import (
	"melcloud-bridge/internal/capability"
	"melcloud-bridge/internal/melcloud"
	"melcloud-bridge/internal/modes"
)

func heatPump(s *State, in Input) {
	dev := in.Snapshot.Device
	caps := in.Capabilities

	s.Power = dev.BoolOr("Power", false)
	state := dev.IntOr("OperationMode", melcloud.AtwStateIdle)
	if caps.HasOutdoorTemperature {
		s.OutdoorTemperature = floatPtr(dev, "OutdoorTemperature")
	}
	s.TemperatureStep = modes.Step(dev)

	for _, z := range in.Zones.Zones {
		var zs ZoneState
		switch z.Role {
		case capability.RoleHeatPumpUnit:
			zs = unitZone(s, dev, caps, state)
		case capability.RoleZone1, capability.RoleZone2:
			f, _ := modes.Zone(z.Role)
			zs = heatingZone(s, dev, caps, f)
		case capability.RoleHotWater:
			zs = hotWaterZone(s, dev, state)
		}
		zs.Position = z.Position
		zs.Role = z.Role
		s.Zones = append(s.Zones, zs)
	}

	// The device-level view mirrors the unit when it is presented.
	if u, ok := s.Zone(0); ok && u.Role == capability.RoleHeatPumpUnit {
		s.Activity = u.Activity
		s.Current = u.Current
		s.Target = u.Target
		s.ValidTargets = u.ValidTargets
	} else {
		s.Activity = modes.ActivityInactive
		if s.Power {
			s.Activity = modes.UnitActivity(state)
		}
		s.Current = s.Presentation.Current(s.Activity)
		s.Target = s.Presentation.Target(modes.UnitSlot(dev.IntOr("UnitStatus", melcloud.AtwUnitHeat)), s.Power)
	}
}

func unitZone(s *State, dev melcloud.Block, caps capability.Set, state int) ZoneState {
	zs := ZoneState{Activity: modes.ActivityInactive}
	if s.Power {
		zs.Activity = modes.UnitActivity(state)
	}
	slot := modes.UnitSlot(dev.IntOr("UnitStatus", melcloud.AtwUnitHeat))
	zs.Current = s.Presentation.Current(zs.Activity)
	zs.Target = s.Presentation.Target(slot, s.Power)
	zs.ValidTargets = validTargets(s.Presentation, func(sl modes.Slot) bool {
		_, err := modes.UnitStatus(sl, caps)
		return err == nil
	})
	zs.CurrentTemperature = floatPtr(dev, "FlowTemperature")
	return zs
}

func heatingZone(s *State, dev melcloud.Block, caps capability.Set, f modes.ZoneFields) ZoneState {
	raw := dev.IntOr(f.OperationMode, melcloud.AtwZoneHeatThermostat)
	slot := modes.ZoneSlot(raw)

	zs := ZoneState{Activity: modes.ActivityInactive}
	switch {
	case !s.Power:
	case dev.BoolOr(f.Idle, false):
		zs.Activity = modes.ActivityIdle
	case slot == modes.SlotCool:
		zs.Activity = modes.ActivityCooling
	default:
		zs.Activity = modes.ActivityHeating
	}
	zs.Current = s.Presentation.Current(zs.Activity)
	zs.Target = s.Presentation.Target(slot, s.Power)
	zs.ValidTargets = validTargets(s.Presentation, func(sl modes.Slot) bool {
		_, err := modes.ZoneRawMode(sl, raw, caps)
		return err == nil
	})

	target := modes.ZoneTarget(f, raw)
	zs.CurrentTemperature = floatPtr(dev, f.RoomTemperature)
	zs.TargetTemperature = floatPtr(dev, target.Field)
	rng := target.Range
	zs.TargetRange = &rng
	zs.FlowControl = modes.IsFlowMode(raw)
	zs.Lock = dev.BoolOr(f.ProhibitHeating, false) &&
		(!caps.CanCool || dev.BoolOr(f.ProhibitCooling, false))
	return zs
}

func hotWaterZone(s *State, dev melcloud.Block, state int) ZoneState {
	forced := dev.BoolOr("ForcedHotWaterMode", false)

	zs := ZoneState{Activity: modes.ActivityInactive}
	if s.Power {
		zs.Activity = modes.ActivityIdle
		if state == melcloud.AtwStateHotWater || forced {
			zs.Activity = modes.ActivityHeating
		}
	}
	zs.Current = s.Presentation.Current(zs.Activity)
	zs.Target = s.Presentation.Target(modes.HotWaterSlot(forced), s.Power)
	zs.ValidTargets = validTargets(s.Presentation, func(sl modes.Slot) bool {
		_, err := modes.HotWaterForced(sl)
		return err == nil
	})

	zs.CurrentTemperature = floatPtr(dev, "TankWaterTemperature")
	zs.TargetTemperature = floatPtr(dev, "SetTankWaterTemperature")
	rng := modes.TankRange(dev)
	zs.TargetRange = &rng
	zs.Lock = dev.BoolOr("ProhibitHotWater", false)
	zs.Eco = dev.BoolOr("EcoHotWater", false)
	return zs
}
