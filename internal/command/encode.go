package command

import (
	"errors"
	"fmt"
	"math"

	"melcloud-bridge/internal/capability"
	"melcloud-bridge/internal/melcloud"
	"melcloud-bridge/internal/modes"
)

// Context is the device knowledge an encoding is checked against.
type Context struct {
	Capabilities capability.Set
	Zones        capability.ZoneTable
	Aliases      modes.Aliases
	Presentation modes.Presentation
	// Current is the last known record; sub-mode dependent fields and the
	// implicit power-on bit are resolved against it.
	Current melcloud.RawSnapshot
}

// builder accumulates fields and their bits together so a bit is never set
// without its field.
type builder struct {
	payload Payload
	flags   uint64
}

func (b *builder) set(field string, value any, flag uint64) {
	if b.payload == nil {
		b.payload = Payload{}
	}
	b.payload[field] = value
	b.flags |= flag
}

// powerOn adds the power field when the device is currently off.
func (b *builder) powerOn(dev melcloud.Block, flag uint64) {
	if !dev.BoolOr("Power", false) {
		b.set("Power", true, flag)
	}
}

// Encode validates an intent and returns the changed fields and their mask.
// It has no side effects; a rejected intent never reaches the network.
func Encode(in Intent, c Context) (Payload, uint64, error) {
	if math.IsNaN(in.Value) || math.IsInf(in.Value, 0) {
		return nil, 0, invalid(in, "value", ErrNotFinite)
	}
	if c.Current.Device == nil {
		return nil, 0, invalid(in, "no device state", errors.New("device not yet synchronized"))
	}
	if c.Presentation == "" {
		c.Presentation = modes.PresentationHeaterCooler
	}
	var (
		b   builder
		err error
	)
	switch c.Capabilities.Family {
	case melcloud.FamilyAirConditioner:
		err = encodeAirConditioner(&b, in, c)
	case melcloud.FamilyHeatPump:
		err = encodeHeatPump(&b, in, c)
	case melcloud.FamilyVentilator:
		err = encodeVentilator(&b, in, c)
	default:
		err = unsupported(in, fmt.Sprintf("device family %s", c.Capabilities.Family))
	}
	if err != nil {
		return nil, 0, err
	}
	return b.payload, b.flags, nil
}

func boolValue(in Intent) bool { return in.Value != 0 }

// slotFor parses a TargetMode value; off reports a thermostat "off".
func slotFor(in Intent, p modes.Presentation) (modes.Slot, bool, error) {
	s, off, err := p.ParseTarget(int(in.Value))
	if err != nil {
		return 0, false, invalid(in, "target mode", err)
	}
	return s, off, nil
}

func encodeAirConditioner(b *builder, in Intent, c Context) error {
	dev := c.Current.Device
	caps := c.Capabilities

	switch in.Field {
	case FieldPower:
		b.set("Power", boolValue(in), melcloud.FlagAtaPower)

	case FieldTargetMode, FieldOperationMode:
		var raw int
		if in.Field == FieldOperationMode {
			raw = int(in.Value)
		} else {
			slot, off, err := slotFor(in, c.Presentation)
			if err != nil {
				return err
			}
			if off {
				b.set("Power", false, melcloud.FlagAtaPower)
				return nil
			}
			raw, err = c.Aliases.RawMode(slot)
			if err != nil {
				return &ValidationError{Intent: in, Reason: "mode slot", Err: errors.Join(ErrUnsupported, err)}
			}
		}
		if !modes.AtaModeSupported(raw, caps) {
			return unsupported(in, fmt.Sprintf("operation mode %d", raw))
		}
		b.set("OperationMode", raw, melcloud.FlagAtaOperationMode)
		b.powerOn(dev, melcloud.FlagAtaPower)
		// Keep the set point valid for the new mode.
		if set, ok := dev.Float("SetTemperature"); ok {
			if clamped := modes.AtaRange(dev, raw).Clamp(set); clamped != set {
				b.set("SetTemperature", clamped, melcloud.FlagAtaSetTemperature)
			}
		}

	case FieldTargetTemperature:
		raw := dev.IntOr("OperationMode", melcloud.AtaModeAuto)
		v := modes.AtaRange(dev, raw).Clamp(modes.RoundToStep(in.Value, modes.Step(dev)))
		b.set("SetTemperature", v, melcloud.FlagAtaSetTemperature)

	case FieldFanSpeed:
		raw, err := modes.FanScale{Speeds: caps.NumberOfFanSpeeds, Auto: caps.HasAutomaticFanSpeed}.Raw(int(in.Value))
		if err != nil {
			return &ValidationError{Intent: in, Reason: "fan speed", Err: errors.Join(ErrUnsupported, err)}
		}
		b.set("SetFanSpeed", raw, melcloud.FlagAtaFanSpeed)

	case FieldSwing:
		if !caps.HasSwing {
			return unsupported(in, "swing")
		}
		vertical, horizontal := melcloud.VaneAuto, melcloud.VaneAuto
		if boolValue(in) {
			vertical, horizontal = melcloud.VaneVerticalSwing, melcloud.VaneHorizontalSwing
		}
		b.set("VaneVertical", vertical, melcloud.FlagAtaVaneVertical)
		b.set("VaneHorizontal", horizontal, melcloud.FlagAtaVaneHorizontal)

	case FieldLock:
		lock := boolValue(in)
		b.set("ProhibitSetTemperature", lock, melcloud.FlagAtaProhibit)
		b.set("ProhibitOperationMode", lock, melcloud.FlagAtaProhibit)
		b.set("ProhibitPower", lock, melcloud.FlagAtaProhibit)

	default:
		return unsupported(in, "field")
	}
	return nil
}

func encodeVentilator(b *builder, in Intent, c Context) error {
	dev := c.Current.Device
	caps := c.Capabilities

	switch in.Field {
	case FieldPower:
		b.set("Power", boolValue(in), melcloud.FlagErvPower)

	case FieldTargetMode, FieldOperationMode:
		var slot modes.Slot
		if in.Field == FieldOperationMode {
			raw := int(in.Value)
			if raw < melcloud.ErvModeRecovery || raw > melcloud.ErvModeAuto {
				return unsupported(in, fmt.Sprintf("ventilation mode %d", raw))
			}
			slot = modes.ErvSlot(raw)
		} else {
			s, off, err := slotFor(in, c.Presentation)
			if err != nil {
				return err
			}
			if off {
				b.set("Power", false, melcloud.FlagErvPower)
				return nil
			}
			slot = s
		}
		raw, err := modes.ErvRawMode(slot, caps)
		if err != nil {
			return &ValidationError{Intent: in, Reason: "ventilation mode", Err: errors.Join(ErrUnsupported, err)}
		}
		b.set("VentilationMode", raw, melcloud.FlagErvVentilationMode)
		b.powerOn(dev, melcloud.FlagErvPower)

	case FieldFanSpeed:
		raw, err := modes.FanScale{Speeds: caps.NumberOfFanSpeeds, Auto: caps.HasAutomaticFanSpeed}.Raw(int(in.Value))
		if err != nil {
			return &ValidationError{Intent: in, Reason: "fan speed", Err: errors.Join(ErrUnsupported, err)}
		}
		b.set("SetFanSpeed", raw, melcloud.FlagErvFanSpeed)

	default:
		return unsupported(in, "field")
	}
	return nil
}
