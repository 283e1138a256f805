package modes

import (
	"errors"

	"melcloud-bridge/internal/melcloud"
)

// ErrNoFanControl is returned when a unit reports no fan speeds.
var ErrNoFanControl = errors.New("fan speed not controllable")

// FanScale maps the sparse vendor fan code (0 = auto, 1..N speeds) onto the
// dense 1..Max range the presentation layer uses. When auto is supported it
// sits at N+1; otherwise it is elided and raw 0 reads as the lowest speed.
type FanScale struct {
	Speeds int
	Auto   bool
}

// Max is the highest dense value, 0 when the fan is not controllable.
func (f FanScale) Max() int {
	if f.Speeds <= 0 {
		return 0
	}
	if f.Auto {
		return f.Speeds + 1
	}
	return f.Speeds
}

// Dense maps a raw fan code into the dense range.
func (f FanScale) Dense(raw int) int {
	if f.Speeds <= 0 {
		return 0
	}
	if raw == melcloud.FanSpeedAuto {
		if f.Auto {
			return f.Speeds + 1
		}
		return 1
	}
	return min(max(raw, 1), f.Speeds)
}

// Raw maps a dense value back to the vendor code, clamping to 1..Max.
func (f FanScale) Raw(dense int) (int, error) {
	if f.Speeds <= 0 {
		return 0, ErrNoFanControl
	}
	dense = min(max(dense, 1), f.Max())
	if f.Auto && dense == f.Speeds+1 {
		return melcloud.FanSpeedAuto, nil
	}
	return dense, nil
}
