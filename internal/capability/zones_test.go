package capability

import (
	"reflect"
	"testing"
)

func TestEnumerateCompaction(t *testing.T) {
	s := Set{HasZone1: true, HasHotWaterTank: false, HasZone2: true}
	got := Enumerate(s, 0)
	want := ZoneTable{Zones: []Zone{
		{Role: RoleHeatPumpUnit, Position: 0},
		{Role: RoleZone1, Position: 1},
		{Role: RoleZone2, Position: 2},
	}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Enumerate = %+v, want %+v", got, want)
	}
}

func TestEnumerateHideMask(t *testing.T) {
	s := Set{HasZone1: true, HasHotWaterTank: true, HasZone2: true}
	got := Enumerate(s, HideMask(0).Hide(RoleZone1))

	roles := make([]Role, 0, got.Len())
	for i, z := range got.Zones {
		if z.Position != i {
			t.Errorf("zone %s position = %d, want %d", z.Role, z.Position, i)
		}
		roles = append(roles, z.Role)
	}
	want := []Role{RoleHeatPumpUnit, RoleHotWater, RoleZone2}
	if !reflect.DeepEqual(roles, want) {
		t.Errorf("roles = %v, want %v", roles, want)
	}
	if _, ok := got.Find(RoleZone1); ok {
		t.Error("hidden Zone1 still present")
	}
}

func TestEnumerateEmpty(t *testing.T) {
	var mask HideMask
	for _, r := range roleOrder {
		mask = mask.Hide(r)
	}
	got := Enumerate(Set{HasZone1: true}, mask)
	if !got.Empty() {
		t.Errorf("Enumerate = %+v, want empty", got)
	}
	if _, ok := got.At(0); ok {
		t.Error("At(0) on empty table returned a zone")
	}
}

func TestParseRole(t *testing.T) {
	for _, r := range roleOrder {
		got, err := ParseRole(r.String())
		if err != nil || got != r {
			t.Errorf("ParseRole(%q) = %v, %v", r.String(), got, err)
		}
	}
	if _, err := ParseRole("zone3"); err == nil {
		t.Error("expected error")
	}
}
