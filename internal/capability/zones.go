package capability

import "fmt"

// Role identifies one climate zone of a heat pump installation.
type Role int

const (
	RoleHeatPumpUnit Role = iota
	RoleZone1
	RoleHotWater
	RoleZone2
)

// roleOrder is the fixed enumeration order. Positions are assigned by
// filtering this list, never by reordering it.
var roleOrder = [...]Role{RoleHeatPumpUnit, RoleZone1, RoleHotWater, RoleZone2}

func (r Role) String() string {
	switch r {
	case RoleHeatPumpUnit:
		return "heat_pump"
	case RoleZone1:
		return "zone1"
	case RoleHotWater:
		return "hot_water"
	case RoleZone2:
		return "zone2"
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// ParseRole accepts the config spelling of a role.
func ParseRole(s string) (Role, error) {
	for _, r := range roleOrder {
		if r.String() == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown zone role %q", s)
}

// HideMask hides zones from presentation independently of what the unit has.
// Bit n hides the role with value n.
type HideMask uint8

// Hide returns m with role r hidden.
func (m HideMask) Hide(r Role) HideMask { return m | 1<<uint(r) }

// Hidden reports whether r is hidden.
func (m HideMask) Hidden(r Role) bool { return m&(1<<uint(r)) != 0 }

// Zone is one present role and its position.
type Zone struct {
	Role     Role `json:"role"`
	Position int  `json:"position"`
}

// ZoneTable lists present zones in role order with positions 0..n-1.
type ZoneTable struct {
	Zones []Zone `json:"zones"`
}

// Len returns the number of present zones.
func (t ZoneTable) Len() int { return len(t.Zones) }

// Empty reports whether nothing is present.
func (t ZoneTable) Empty() bool { return len(t.Zones) == 0 }

// At returns the zone at position p.
func (t ZoneTable) At(p int) (Zone, bool) {
	if p < 0 || p >= len(t.Zones) {
		return Zone{}, false
	}
	return t.Zones[p], true
}

// Find returns the zone carrying role r.
func (t ZoneTable) Find(r Role) (Zone, bool) {
	for _, z := range t.Zones {
		if z.Role == r {
			return z, true
		}
	}
	return Zone{}, false
}

// present reports whether the unit physically has role r.
func (s Set) present(r Role) bool {
	switch r {
	case RoleHeatPumpUnit:
		return true
	case RoleZone1:
		return s.HasZone1
	case RoleHotWater:
		return s.HasHotWaterTank
	case RoleZone2:
		return s.HasZone2
	}
	return false
}

// Enumerate builds the zone table for a heat pump. A role is included when the
// unit has it and the mask does not hide it. An empty table is valid.
func Enumerate(s Set, hide HideMask) ZoneTable {
	var t ZoneTable
	for _, r := range roleOrder {
		if !s.present(r) || hide.Hidden(r) {
			continue
		}
		t.Zones = append(t.Zones, Zone{Role: r, Position: len(t.Zones)})
	}
	return t
}
