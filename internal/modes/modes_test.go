package modes

import (
	"errors"
	"testing"

	"melcloud-bridge/internal/capability"
	"melcloud-bridge/internal/melcloud"
)

func TestCurrentRule(t *testing.T) {
	tests := []struct {
		rule      CurrentRule
		room, set float64
		want      Activity
	}{
		{RuleCompare, 22, 20, ActivityCooling},
		{RuleCompare, 18, 20, ActivityHeating},
		{RuleCompare, 20, 20, ActivityIdle},
		{RuleHeatOrIdle, 22, 20, ActivityIdle},
		{RuleHeatOrIdle, 18, 20, ActivityHeating},
		{RuleCoolOrIdle, 22, 20, ActivityCooling},
		{RuleCoolOrIdle, 18, 20, ActivityIdle},
		{RuleCool, 18, 20, ActivityCooling},
		{RuleIdle, 30, 20, ActivityIdle},
	}
	for _, tt := range tests {
		if got := tt.rule.Apply(tt.room, tt.set); got != tt.want {
			t.Errorf("rule %d room %v set %v = %s, want %s", tt.rule, tt.room, tt.set, got, tt.want)
		}
	}
}

func TestAliasesRoundTrip(t *testing.T) {
	settings := []Aliases{
		{},
		{Heat: AliasNative, Cool: AliasDry, Auto: AliasFan},
		{Heat: AliasFan, Cool: AliasNative, Auto: AliasDisabled},
		{Heat: AliasDisabled, Cool: AliasNative, Auto: AliasDry},
	}
	for _, a := range settings {
		if err := a.Validate(); err != nil {
			t.Fatalf("Validate(%+v) = %v", a, err)
		}
		for _, s := range readOrder {
			raw, err := a.RawMode(s)
			if errors.Is(err, ErrSlotDisabled) {
				continue
			}
			if err != nil {
				t.Fatal(err)
			}
			if got := a.Slot(raw); got != s {
				t.Errorf("%+v: slot %s -> raw %d -> slot %s", a, s, raw, got)
			}
		}
	}
}

func TestAliasesValidateRejectsCollision(t *testing.T) {
	a := Aliases{Heat: AliasDry, Cool: AliasDry}
	if err := a.Validate(); err == nil {
		t.Error("expected collision error")
	}
}

func TestAliasesISeeModes(t *testing.T) {
	var a Aliases
	if got := a.Slot(melcloud.AtaModeISeeHeat); got != SlotHeat {
		t.Errorf("Slot(i-See heat) = %s, want heat", got)
	}
	if got := a.Slot(melcloud.AtaModeDry); got != SlotCool {
		t.Errorf("Slot(dry) fallback = %s, want cool", got)
	}
}

func TestParseAlias(t *testing.T) {
	tests := []struct {
		slot    Slot
		in      string
		want    Alias
		wantErr bool
	}{
		{SlotHeat, "", AliasNative, false},
		{SlotHeat, "heat", AliasNative, false},
		{SlotCool, "dry", AliasDry, false},
		{SlotAuto, "fan", AliasFan, false},
		{SlotAuto, "disabled", AliasDisabled, false},
		{SlotAuto, "heat", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseAlias(tt.slot, tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseAlias(%s, %q) err = %v", tt.slot, tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseAlias(%s, %q) = %d, want %d", tt.slot, tt.in, got, tt.want)
		}
	}
}

func TestPresentationDrift(t *testing.T) {
	// Dry with room below set: heater-cooler compares, thermostat does not.
	hc := AtaCurrentRule(PresentationHeaterCooler, melcloud.AtaModeDry).Apply(18, 20)
	th := AtaCurrentRule(PresentationThermostat, melcloud.AtaModeDry).Apply(18, 20)
	if hc != ActivityIdle {
		t.Errorf("heater_cooler dry = %s, want idle", hc)
	}
	if th != ActivityCooling {
		t.Errorf("thermostat dry = %s, want cooling", th)
	}
}

func TestPresentationTargetInverse(t *testing.T) {
	for _, p := range []Presentation{PresentationHeaterCooler, PresentationThermostat} {
		for _, s := range readOrder {
			v := p.Target(s, true)
			got, off, err := p.ParseTarget(v)
			if err != nil || off || got != s {
				t.Errorf("%s: Target(%s) = %d -> %s, %v, %v", p, s, v, got, off, err)
			}
		}
	}
	if _, off, _ := PresentationThermostat.ParseTarget(ThTargetOff); !off {
		t.Error("thermostat off not reported")
	}
}

func TestFanScale(t *testing.T) {
	withAuto := FanScale{Speeds: 3, Auto: true}
	if withAuto.Max() != 4 {
		t.Errorf("Max = %d, want 4", withAuto.Max())
	}
	if got := withAuto.Dense(melcloud.FanSpeedAuto); got != 4 {
		t.Errorf("Dense(auto) = %d, want 4", got)
	}
	for d := 1; d <= withAuto.Max(); d++ {
		raw, err := withAuto.Raw(d)
		if err != nil {
			t.Fatal(err)
		}
		if got := withAuto.Dense(raw); got != d {
			t.Errorf("dense %d -> raw %d -> dense %d", d, raw, got)
		}
	}

	noAuto := FanScale{Speeds: 5}
	if got := noAuto.Dense(melcloud.FanSpeedAuto); got != 1 {
		t.Errorf("Dense(auto) without auto = %d, want 1", got)
	}
	if raw, _ := noAuto.Raw(9); raw != 5 {
		t.Errorf("Raw(9) = %d, want 5", raw)
	}

	if _, err := (FanScale{}).Raw(1); !errors.Is(err, ErrNoFanControl) {
		t.Errorf("Raw on fixed fan = %v, want ErrNoFanControl", err)
	}
}

func TestZoneModes(t *testing.T) {
	caps := capability.Set{CanHeat: true}
	got, err := ZoneRawMode(SlotHeat, melcloud.AtwZoneCoolFlow, caps)
	if err != nil || got != melcloud.AtwZoneHeatFlow {
		t.Errorf("heat from cool flow = %d, %v; want heat flow", got, err)
	}
	if _, err := ZoneRawMode(SlotCool, melcloud.AtwZoneHeatThermostat, caps); err == nil {
		t.Error("cooling allowed without CanCool")
	}
	for raw := melcloud.AtwZoneHeatThermostat; raw <= melcloud.AtwZoneCoolFlow; raw++ {
		s := ZoneSlot(raw)
		back, err := ZoneRawMode(s, raw, capability.Set{CanHeat: true, CanCool: true})
		if err != nil {
			t.Fatal(err)
		}
		if ZoneSlot(back) != s {
			t.Errorf("raw %d slot %s -> raw %d", raw, s, back)
		}
	}
}

func TestZoneTarget(t *testing.T) {
	f, _ := Zone(capability.RoleZone1)
	tests := []struct {
		raw  int
		want string
		rng  Range
	}{
		{melcloud.AtwZoneHeatThermostat, "SetTemperatureZone1", ZoneThermostatRange},
		{melcloud.AtwZoneHeatFlow, "SetHeatFlowTemperatureZone1", HeatFlowRange},
		{melcloud.AtwZoneCoolFlow, "SetCoolFlowTemperatureZone1", CoolFlowRange},
		{melcloud.AtwZoneHeatCurve, "SetTemperatureZone1", ZoneThermostatRange},
	}
	for _, tt := range tests {
		got := ZoneTarget(f, tt.raw)
		if got.Field != tt.want || got.Range != tt.rng {
			t.Errorf("ZoneTarget(%d) = %s %+v, want %s %+v", tt.raw, got.Field, got.Range, tt.want, tt.rng)
		}
	}
	if HeatFlowRange.Clamp(5) != 25 {
		t.Errorf("Clamp(5) = %v, want 25", HeatFlowRange.Clamp(5))
	}
}

func TestRoundToStep(t *testing.T) {
	if got := RoundToStep(21.3, 0.5); got != 21.5 {
		t.Errorf("RoundToStep(21.3, 0.5) = %v", got)
	}
	if got := RoundToStep(21.3, 1); got != 21 {
		t.Errorf("RoundToStep(21.3, 1) = %v", got)
	}
}
