package command

import (
	"errors"
	"math"
	"testing"
)

func TestDecodeIntents(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    []Intent
		wantErr bool
	}{
		{"number", `{"field":"TargetTemperature","value":22.5}`,
			[]Intent{{Field: FieldTargetTemperature, Value: 22.5}}, false},
		{"bool", `{"field":"power","value":true}`,
			[]Intent{{Field: FieldPower, Value: 1}}, false},
		{"on off", `{"field":"Swing","value":"OFF"}`,
			[]Intent{{Field: FieldSwing, Value: 0}}, false},
		{"list", ` [{"field":"Power","value":1},{"field":"FanSpeed","value":2}]`,
			[]Intent{{Field: FieldPower, Value: 1}, {Field: FieldFanSpeed, Value: 2}}, false},
		{"unknown field", `{"field":"Brightness","value":1}`, nil, true},
		{"bad value", `{"field":"Power","value":"maybe"}`, nil, true},
		{"bad json", `{`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeIntents([]byte(tt.payload))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("intents = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i].Field != tt.want[i].Field || got[i].Value != tt.want[i].Value {
					t.Errorf("intent[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestDecodeIntentZone(t *testing.T) {
	got, err := DecodeIntents([]byte(`{"field":"TargetTemperature","value":40,"zone":2}`))
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Zone == nil || *got[0].Zone != 2 {
		t.Errorf("zone = %v, want 2", got[0].Zone)
	}
}

func TestNewIntentRejectsNonFinite(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, err := NewIntent("TargetTemperature", v, nil); !errors.Is(err, ErrNotFinite) {
			t.Errorf("NewIntent(%v) err = %v, want ErrNotFinite", v, err)
		}
	}
	if _, err := NewIntent("TargetTemperature", 21.5, nil); err != nil {
		t.Errorf("NewIntent(21.5) err = %v", err)
	}
}
