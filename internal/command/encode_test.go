package command

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"melcloud-bridge/internal/capability"
	"melcloud-bridge/internal/melcloud"
	"melcloud-bridge/internal/modes"
	"melcloud-bridge/internal/normalize"
)

func ataContext(power bool) Context {
	snap := melcloud.RawSnapshot{
		DeviceID: "100",
		Type:     melcloud.FamilyAirConditioner,
		Device: melcloud.Block{
			"Power":                power,
			"OperationMode":        float64(melcloud.AtaModeCool),
			"SetTemperature":       22.0,
			"RoomTemperature":      24.0,
			"ModelSupportsHeat":    true,
			"ModelSupportsAuto":    true,
			"ModelSupportsDry":     false,
			"NumberOfFanSpeeds":    3.0,
			"HasAutomaticFanSpeed": true,
			"SwingFunction":        true,
		},
	}
	caps := capability.Derive(snap, melcloud.FamilyAirConditioner, melcloud.VariantMELCloud, capability.Preferences{})
	return Context{Capabilities: caps, Current: snap}
}

func intp(i int) *int { return &i }

func TestEncodeModeImpliesPower(t *testing.T) {
	tests := []struct {
		name      string
		power     bool
		wantFlags uint64
	}{
		{"device off", false, melcloud.FlagAtaOperationMode | melcloud.FlagAtaPower},
		{"device on", true, melcloud.FlagAtaOperationMode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, flags, err := Encode(Intent{Field: FieldTargetMode, Value: modes.HCTargetHeat}, ataContext(tt.power))
			if err != nil {
				t.Fatal(err)
			}
			if flags != tt.wantFlags {
				t.Errorf("flags = %#x, want %#x", flags, tt.wantFlags)
			}
			if payload["OperationMode"] != melcloud.AtaModeHeat {
				t.Errorf("OperationMode = %v, want %d", payload["OperationMode"], melcloud.AtaModeHeat)
			}
			_, hasPower := payload["Power"]
			if hasPower == tt.power {
				t.Errorf("Power in payload = %v with device power %v", hasPower, tt.power)
			}
		})
	}
}

// Every set bit must belong to a field in the payload, and no field the
// intent did not touch may appear.
func TestEncodeBitmaskMinimality(t *testing.T) {
	bits := map[string]uint64{
		"Power":          melcloud.FlagAtaPower,
		"OperationMode":  melcloud.FlagAtaOperationMode,
		"SetTemperature": melcloud.FlagAtaSetTemperature,
		"SetFanSpeed":    melcloud.FlagAtaFanSpeed,
		"VaneVertical":   melcloud.FlagAtaVaneVertical,
		"VaneHorizontal": melcloud.FlagAtaVaneHorizontal,
	}
	intents := []Intent{
		{Field: FieldPower, Value: 1},
		{Field: FieldTargetTemperature, Value: 23},
		{Field: FieldFanSpeed, Value: 2},
		{Field: FieldSwing, Value: 1},
		{Field: FieldTargetMode, Value: modes.HCTargetCool},
	}
	for _, in := range intents {
		t.Run(in.String(), func(t *testing.T) {
			payload, flags, err := Encode(in, ataContext(true))
			if err != nil {
				t.Fatal(err)
			}
			var fromPayload uint64
			for k := range payload {
				fromPayload |= bits[k]
			}
			if flags != fromPayload {
				t.Errorf("flags = %#x, payload fields give %#x (%v)", flags, fromPayload, payload)
			}
		})
	}
}

func TestEncodeModeClampsSetPoint(t *testing.T) {
	c := ataContext(true)
	c.Current.Device["SetTemperature"] = 12.0
	c.Current.Device["MinTempCoolDry"] = 16.0

	payload, flags, err := Encode(Intent{Field: FieldTargetMode, Value: modes.HCTargetCool}, c)
	if err != nil {
		t.Fatal(err)
	}
	if payload["SetTemperature"] != 16.0 {
		t.Errorf("SetTemperature = %v, want 16", payload["SetTemperature"])
	}
	if flags&melcloud.FlagAtaSetTemperature == 0 {
		t.Error("set temperature bit missing for clamped set point")
	}
}

func TestEncodeTemperatureRounding(t *testing.T) {
	payload, _, err := Encode(Intent{Field: FieldTargetTemperature, Value: 21.3}, ataContext(true))
	if err != nil {
		t.Fatal(err)
	}
	if payload["SetTemperature"] != 21.5 {
		t.Errorf("SetTemperature = %v, want 21.5", payload["SetTemperature"])
	}
}

func TestEncodeUnsupported(t *testing.T) {
	c := ataContext(true)
	c.Aliases = modes.Aliases{Auto: modes.AliasDisabled}
	tests := []struct {
		name string
		in   Intent
		c    Context
	}{
		{"dry not supported", Intent{Field: FieldOperationMode, Value: melcloud.AtaModeDry}, ataContext(true)},
		{"disabled slot", Intent{Field: FieldTargetMode, Value: modes.HCTargetAuto}, c},
		{"target out of range", Intent{Field: FieldTargetMode, Value: 7}, ataContext(true)},
		{"no state", Intent{Field: FieldPower, Value: 1}, Context{Capabilities: c.Capabilities}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Encode(tt.in, tt.c)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want *ValidationError", err)
			}
		})
	}

	_, _, err := Encode(Intent{Field: FieldTargetMode, Value: modes.HCTargetAuto}, c)
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("disabled slot err = %v, want ErrUnsupported", err)
	}
}

func TestEncodeSwingDisabled(t *testing.T) {
	c := ataContext(true)
	c.Capabilities.HasSwing = false
	if _, _, err := Encode(Intent{Field: FieldSwing, Value: 1}, c); !errors.Is(err, ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}
}

func TestEncodeFanAuto(t *testing.T) {
	payload, flags, err := Encode(Intent{Field: FieldFanSpeed, Value: 4}, ataContext(true))
	if err != nil {
		t.Fatal(err)
	}
	if payload["SetFanSpeed"] != melcloud.FanSpeedAuto || flags != melcloud.FlagAtaFanSpeed {
		t.Errorf("payload = %v flags = %#x", payload, flags)
	}
}

func TestRoundTripHeat(t *testing.T) {
	c := ataContext(false)
	if !c.Capabilities.HasAuto || !c.Capabilities.HasHeat {
		t.Fatal("fixture lacks heat/auto")
	}
	payload, _, err := Encode(Intent{Field: FieldTargetMode, Value: modes.HCTargetHeat}, c)
	if err != nil {
		t.Fatal(err)
	}
	sim := c.Current.Clone()
	payload.Apply(sim.Device)

	st, err := normalize.Normalize(normalize.Input{
		Snapshot:     sim,
		Capabilities: c.Capabilities,
		Aliases:      c.Aliases,
		Presentation: c.Presentation,
	})
	if err != nil {
		t.Fatal(err)
	}
	if st.Target != modes.HCTargetHeat {
		t.Errorf("Target = %d, want heat", st.Target)
	}
	if !st.Power {
		t.Error("Power = false after mode change from off")
	}
}

func TestRoundTripAliased(t *testing.T) {
	c := ataContext(true)
	c.Current.Device["ModelSupportsDry"] = true
	c.Capabilities.HasDry = true
	c.Aliases = modes.Aliases{Cool: modes.AliasDry, Auto: modes.AliasFan}
	for _, target := range []int{modes.HCTargetAuto, modes.HCTargetHeat, modes.HCTargetCool} {
		payload, _, err := Encode(Intent{Field: FieldTargetMode, Value: float64(target)}, c)
		if err != nil {
			t.Fatal(err)
		}
		sim := c.Current.Clone()
		payload.Apply(sim.Device)
		st, err := normalize.Normalize(normalize.Input{Snapshot: sim, Capabilities: c.Capabilities, Aliases: c.Aliases})
		if err != nil {
			t.Fatal(err)
		}
		if st.Target != target {
			t.Errorf("wrote target %d, read %d (payload %v)", target, st.Target, payload)
		}
	}
}

func heatPumpContext(zoneMode int) Context {
	snap := melcloud.RawSnapshot{
		DeviceID: "200",
		Type:     melcloud.FamilyHeatPump,
		Device: melcloud.Block{
			"Power":              true,
			"HasZone2":           true,
			"HasHotWaterTank":    true,
			"CanHeat":            true,
			"CanCool":            false,
			"OperationModeZone1": float64(zoneMode),
			"OperationModeZone2": float64(melcloud.AtwZoneHeatThermostat),
			"MaxTankTemperature": 55.0,
		},
	}
	caps := capability.Derive(snap, melcloud.FamilyHeatPump, melcloud.VariantMELCloud, capability.Preferences{})
	return Context{Capabilities: caps, Zones: capability.Enumerate(caps, 0), Current: snap}
}

func TestEncodeZoneTemperatureBySubMode(t *testing.T) {
	tests := []struct {
		name      string
		zoneMode  int
		value     float64
		wantField string
		wantValue float64
		wantFlag  uint64
	}{
		{"flow clamped", melcloud.AtwZoneHeatFlow, 5, "SetHeatFlowTemperatureZone1", 25, melcloud.FlagAtwSetHeatFlowTemperatureZone1},
		{"flow in range", melcloud.AtwZoneHeatFlow, 40, "SetHeatFlowTemperatureZone1", 40, melcloud.FlagAtwSetHeatFlowTemperatureZone1},
		{"thermostat", melcloud.AtwZoneHeatThermostat, 21, "SetTemperatureZone1", 21, melcloud.FlagAtwSetTemperatureZone1},
		{"thermostat clamped", melcloud.AtwZoneHeatThermostat, 40, "SetTemperatureZone1", 31, melcloud.FlagAtwSetTemperatureZone1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, flags, err := Encode(Intent{Field: FieldTargetTemperature, Value: tt.value, Zone: intp(1)}, heatPumpContext(tt.zoneMode))
			if err != nil {
				t.Fatal(err)
			}
			want := Payload{tt.wantField: tt.wantValue}
			if !reflect.DeepEqual(payload, want) {
				t.Errorf("payload = %v, want %v", payload, want)
			}
			if flags != tt.wantFlag {
				t.Errorf("flags = %#x, want %#x", flags, tt.wantFlag)
			}
		})
	}
}

func TestEncodeZoneModeKeepsFlowControl(t *testing.T) {
	payload, flags, err := Encode(Intent{Field: FieldTargetMode, Value: modes.HCTargetHeat, Zone: intp(1)}, heatPumpContext(melcloud.AtwZoneHeatCurve))
	if err != nil {
		t.Fatal(err)
	}
	if payload["OperationModeZone1"] != melcloud.AtwZoneHeatThermostat || flags != melcloud.FlagAtwOperationModeZone1 {
		t.Errorf("payload = %v flags = %#x", payload, flags)
	}

	if _, _, err := Encode(Intent{Field: FieldTargetMode, Value: modes.HCTargetCool, Zone: intp(1)}, heatPumpContext(melcloud.AtwZoneHeatFlow)); !errors.Is(err, ErrUnsupported) {
		t.Errorf("cool without CanCool: err = %v", err)
	}
}

func TestEncodeZoneAbsent(t *testing.T) {
	c := heatPumpContext(melcloud.AtwZoneHeatThermostat)
	_, _, err := Encode(Intent{Field: FieldTargetTemperature, Value: 21, Zone: intp(7)}, c)
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}
}

func TestEncodeNonFinite(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1)} {
		_, _, err := Encode(Intent{Field: FieldTargetTemperature, Value: v}, ataContext(true))
		var verr *ValidationError
		if !errors.As(err, &verr) || !errors.Is(err, ErrNotFinite) {
			t.Errorf("Encode(%v) err = %v, want ValidationError wrapping ErrNotFinite", v, err)
		}
	}
}

func TestEncodeHiddenUnit(t *testing.T) {
	c := heatPumpContext(melcloud.AtwZoneHeatThermostat)
	c.Zones = capability.Enumerate(c.Capabilities, capability.HideMask(0).Hide(capability.RoleHeatPumpUnit))

	_, _, err := Encode(Intent{Field: FieldTargetMode, Value: modes.HCTargetHeat}, c)
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("unit intent with hidden unit: err = %v, want ErrUnsupported", err)
	}
	payload, flags, err := Encode(Intent{Field: FieldPower, Value: 0}, c)
	if err != nil {
		t.Fatalf("power: %v", err)
	}
	if !reflect.DeepEqual(payload, Payload{"Power": false}) || flags != melcloud.FlagAtwPower {
		t.Errorf("power payload = %v flags = %#x", payload, flags)
	}
}

func TestEncodeHotWater(t *testing.T) {
	c := heatPumpContext(melcloud.AtwZoneHeatThermostat)
	hw, ok := c.Zones.Find(capability.RoleHotWater)
	if !ok {
		t.Fatal("no hot water zone")
	}

	payload, flags, err := Encode(Intent{Field: FieldTargetMode, Value: modes.HCTargetHeat, Zone: intp(hw.Position)}, c)
	if err != nil {
		t.Fatal(err)
	}
	if payload["ForcedHotWaterMode"] != true || flags != melcloud.FlagAtwForcedHotWaterMode {
		t.Errorf("payload = %v flags = %#x", payload, flags)
	}

	payload, flags, err = Encode(Intent{Field: FieldTargetTemperature, Value: 70, Zone: intp(hw.Position)}, c)
	if err != nil {
		t.Fatal(err)
	}
	if payload["SetTankWaterTemperature"] != 55.0 || flags != melcloud.FlagAtwSetTankWaterTemperature {
		t.Errorf("payload = %v flags = %#x", payload, flags)
	}
}

func TestEncodeZoneLock(t *testing.T) {
	payload, flags, err := Encode(Intent{Field: FieldLock, Value: 1, Zone: intp(1)}, heatPumpContext(melcloud.AtwZoneHeatThermostat))
	if err != nil {
		t.Fatal(err)
	}
	// No cooling on this unit, so only the heating prohibit is written.
	want := Payload{"ProhibitHeatingZone1": true}
	if !reflect.DeepEqual(payload, want) || flags != melcloud.FlagAtwProhibitHeatingZone1 {
		t.Errorf("payload = %v flags = %#x", payload, flags)
	}
}

func TestRequestBody(t *testing.T) {
	r := Request{DeviceID: "100", Payload: Payload{"Power": true}, Flags: melcloud.FlagAtaPower}
	body := r.Body()
	if body["EffectiveFlags"] != melcloud.FlagAtaPower || body["DeviceID"] != "100" || body["Power"] != true {
		t.Errorf("Body = %v", body)
	}
}
