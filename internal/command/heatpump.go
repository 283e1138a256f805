package command

import (
	"errors"
	"fmt"

	"melcloud-bridge/internal/capability"
	"melcloud-bridge/internal/melcloud"
	"melcloud-bridge/internal/modes"
)

// zoneOf resolves an intent's zone position. Without a position the intent
// addresses the heat pump unit, which must itself be in the table.
func zoneOf(in Intent, t capability.ZoneTable) (capability.Role, error) {
	if in.Zone == nil {
		if _, ok := t.Find(capability.RoleHeatPumpUnit); !ok {
			return 0, unsupported(in, "heat pump unit not present")
		}
		return capability.RoleHeatPumpUnit, nil
	}
	z, ok := t.At(*in.Zone)
	if !ok {
		return 0, unsupported(in, fmt.Sprintf("zone %d not present", *in.Zone))
	}
	return z.Role, nil
}

func encodeHeatPump(b *builder, in Intent, c Context) error {
	// Power is device-wide; a position, when given, must still exist.
	if in.Field == FieldPower && in.Zone == nil {
		b.set("Power", boolValue(in), melcloud.FlagAtwPower)
		return nil
	}
	role, err := zoneOf(in, c.Zones)
	if err != nil {
		return err
	}
	dev := c.Current.Device
	caps := c.Capabilities

	if in.Field == FieldPower {
		b.set("Power", boolValue(in), melcloud.FlagAtwPower)
		return nil
	}

	switch role {
	case capability.RoleHeatPumpUnit:
		return encodeUnit(b, in, c)
	case capability.RoleHotWater:
		return encodeHotWater(b, in, c)
	}

	f, _ := modes.Zone(role)
	current := dev.IntOr(f.OperationMode, melcloud.AtwZoneHeatThermostat)

	switch in.Field {
	case FieldTargetMode, FieldOperationMode:
		var raw int
		if in.Field == FieldOperationMode {
			raw = int(in.Value)
			if raw < melcloud.AtwZoneHeatThermostat || raw > melcloud.AtwZoneFloorDryUp {
				return unsupported(in, fmt.Sprintf("zone mode %d", raw))
			}
			if modes.ZoneSlot(raw) == modes.SlotCool && !caps.CanCool {
				return unsupported(in, "zone cooling")
			}
		} else {
			slot, off, err := slotFor(in, c.Presentation)
			if err != nil {
				return err
			}
			if off {
				b.set("Power", false, melcloud.FlagAtwPower)
				return nil
			}
			raw, err = modes.ZoneRawMode(slot, current, caps)
			if err != nil {
				return &ValidationError{Intent: in, Reason: "zone mode", Err: errors.Join(ErrUnsupported, err)}
			}
		}
		b.set(f.OperationMode, raw, f.OperationModeFlag)
		b.powerOn(dev, melcloud.FlagAtwPower)

	case FieldTargetTemperature:
		// Flow and thermostat targets are different vendor fields with
		// different bits for the same user action.
		target := modes.ZoneTarget(f, current)
		v := target.Range.Clamp(modes.RoundToStep(in.Value, modes.Step(dev)))
		b.set(target.Field, v, target.Flag)

	case FieldLock:
		lock := boolValue(in)
		b.set(f.ProhibitHeating, lock, f.ProhibitHeatingFlag)
		if caps.CanCool {
			b.set(f.ProhibitCooling, lock, f.ProhibitCoolingFlag)
		}

	default:
		return unsupported(in, "field for zone")
	}
	return nil
}

func encodeUnit(b *builder, in Intent, c Context) error {
	dev := c.Current.Device
	switch in.Field {
	case FieldTargetMode, FieldOperationMode:
		var status int
		if in.Field == FieldOperationMode {
			status = int(in.Value)
			if status != melcloud.AtwUnitHeat && status != melcloud.AtwUnitCool {
				return unsupported(in, fmt.Sprintf("unit status %d", status))
			}
			if _, err := modes.UnitStatus(modes.UnitSlot(status), c.Capabilities); err != nil {
				return &ValidationError{Intent: in, Reason: "unit mode", Err: errors.Join(ErrUnsupported, err)}
			}
		} else {
			slot, off, err := slotFor(in, c.Presentation)
			if err != nil {
				return err
			}
			if off {
				b.set("Power", false, melcloud.FlagAtwPower)
				return nil
			}
			status, err = modes.UnitStatus(slot, c.Capabilities)
			if err != nil {
				return &ValidationError{Intent: in, Reason: "unit mode", Err: errors.Join(ErrUnsupported, err)}
			}
		}
		b.set("UnitStatus", status, melcloud.FlagAtwOperationMode)
		b.powerOn(dev, melcloud.FlagAtwPower)
		return nil
	}
	return unsupported(in, "field for heat pump unit")
}

func encodeHotWater(b *builder, in Intent, c Context) error {
	dev := c.Current.Device
	switch in.Field {
	case FieldTargetMode:
		slot, off, err := slotFor(in, c.Presentation)
		if err != nil {
			return err
		}
		if off {
			b.set("Power", false, melcloud.FlagAtwPower)
			return nil
		}
		forced, err := modes.HotWaterForced(slot)
		if err != nil {
			return &ValidationError{Intent: in, Reason: "hot water mode", Err: errors.Join(ErrUnsupported, err)}
		}
		b.set("ForcedHotWaterMode", forced, melcloud.FlagAtwForcedHotWaterMode)
		if forced {
			b.powerOn(dev, melcloud.FlagAtwPower)
		}

	case FieldTargetTemperature:
		v := modes.TankRange(dev).Clamp(modes.RoundToStep(in.Value, modes.Step(dev)))
		b.set("SetTankWaterTemperature", v, melcloud.FlagAtwSetTankWaterTemperature)

	case FieldLock:
		b.set("ProhibitHotWater", boolValue(in), melcloud.FlagAtwProhibitHotWater)

	default:
		return unsupported(in, "field for hot water")
	}
	return nil
}
