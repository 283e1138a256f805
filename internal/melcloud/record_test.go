package melcloud

import (
	"encoding/json"
	"testing"
)

func TestRawSnapshotDeviceIDForms(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"numeric", `{"DeviceID": 12345, "Type": 0, "Device": {}}`, "12345"},
		{"string", `{"DeviceID": "a1b2-c3", "Type": 1, "Device": {}}`, "a1b2-c3"},
		{"missing", `{"Type": 3}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s RawSnapshot
			if err := json.Unmarshal([]byte(tt.in), &s); err != nil {
				t.Fatal(err)
			}
			if s.DeviceID != tt.want {
				t.Errorf("DeviceID = %q, want %q", s.DeviceID, tt.want)
			}
		})
	}
}

func TestBlockAccessors(t *testing.T) {
	var b Block
	if err := json.Unmarshal([]byte(`{"Power": true, "SetTemperature": 21.5, "NumberOfFanSpeeds": "5", "Flag": 1, "Nested": {"A": 2}}`), &b); err != nil {
		t.Fatal(err)
	}
	if v, ok := b.Bool("Power"); !ok || !v {
		t.Errorf("Power = %v, %v", v, ok)
	}
	if v := b.FloatOr("SetTemperature", 0); v != 21.5 {
		t.Errorf("SetTemperature = %v, want 21.5", v)
	}
	if v := b.IntOr("NumberOfFanSpeeds", 0); v != 5 {
		t.Errorf("NumberOfFanSpeeds = %v, want 5", v)
	}
	if v := b.BoolOr("Flag", false); !v {
		t.Error("Flag = false, want true")
	}
	if v := b.IntOr("Missing", 7); v != 7 {
		t.Errorf("Missing = %v, want default 7", v)
	}
	if v := b.Sub("Nested").IntOr("A", 0); v != 2 {
		t.Errorf("Nested.A = %v, want 2", v)
	}
}

func TestCloneIsDeep(t *testing.T) {
	s := RawSnapshot{DeviceID: "1", Device: Block{"Power": true, "Nested": map[string]any{"X": 1.0}}}
	cp := s.Clone()
	cp.Device["Power"] = false
	cp.Device.Sub("Nested")["X"] = 2.0

	if s.Device.BoolOr("Power", false) != true {
		t.Error("original Power mutated")
	}
	if s.Device.Sub("Nested").FloatOr("X", 0) != 1 {
		t.Error("original nested block mutated")
	}
}

func TestFamilySetPath(t *testing.T) {
	for fam, want := range map[Family]string{
		FamilyAirConditioner: "Device/SetAta",
		FamilyHeatPump:       "Device/SetAtw",
		FamilyVentilator:     "Device/SetErv",
	} {
		got, err := fam.SetPath()
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("%s path = %q, want %q", fam, got, want)
		}
	}
	if _, err := Family(2).SetPath(); err == nil {
		t.Error("expected error for unknown family")
	}
}
