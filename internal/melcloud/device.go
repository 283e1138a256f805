// Package melcloud holds the vendor-side model: raw device records as written
// by the discovery process, the EffectiveFlags bit values and raw mode codes
// for each device family, and the write endpoint paths.
package melcloud

import (
	"fmt"
	"strings"
)

// Family is the vendor device-type discriminant ("Type" in the device record).
type Family int

const (
	FamilyAirConditioner Family = 0 // ATA
	FamilyHeatPump       Family = 1 // ATW
	FamilyVentilator     Family = 3 // ERV
)

func (f Family) String() string {
	switch f {
	case FamilyAirConditioner:
		return "air_conditioner"
	case FamilyHeatPump:
		return "heat_pump"
	case FamilyVentilator:
		return "ventilator"
	default:
		return fmt.Sprintf("unknown(%d)", int(f))
	}
}

// ParseFamily accepts the config spelling ("air_conditioner", "ata", ...).
func ParseFamily(s string) (Family, error) {
	switch strings.ToLower(s) {
	case "air_conditioner", "ata", "0":
		return FamilyAirConditioner, nil
	case "heat_pump", "atw", "1":
		return FamilyHeatPump, nil
	case "ventilator", "erv", "3":
		return FamilyVentilator, nil
	}
	return 0, fmt.Errorf("unknown device family %q", s)
}

// SetPath returns the write endpoint path for a family.
func (f Family) SetPath() (string, error) {
	switch f {
	case FamilyAirConditioner:
		return "Device/SetAta", nil
	case FamilyHeatPump:
		return "Device/SetAtw", nil
	case FamilyVentilator:
		return "Device/SetErv", nil
	}
	return "", fmt.Errorf("no write endpoint for device family %s", f)
}

// Variant selects which upstream service an account talks to. Field names in
// device records differ between the two.
type Variant string

const (
	VariantMELCloud Variant = "melcloud"
	VariantHome     Variant = "melcloud_home"
)

// ParseVariant validates a configured account variant. Empty means VariantMELCloud.
func ParseVariant(s string) (Variant, error) {
	switch Variant(strings.ToLower(s)) {
	case "", VariantMELCloud:
		return VariantMELCloud, nil
	case VariantHome:
		return VariantHome, nil
	}
	return "", fmt.Errorf("unknown account variant %q", s)
}
