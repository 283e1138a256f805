package modes

import (
	"fmt"

	"melcloud-bridge/internal/melcloud"
)

// Alias is what one presented slot maps to on an air conditioner.
type Alias int

const (
	AliasNative Alias = iota
	AliasDisabled
	AliasDry
	AliasFan
)

// ParseAlias reads the config spelling for one slot. The slot's own name (or
// empty) selects the native mode.
func ParseAlias(slot Slot, s string) (Alias, error) {
	switch s {
	case "", slot.String():
		return AliasNative, nil
	case "disabled", "off":
		return AliasDisabled, nil
	case "dry":
		return AliasDry, nil
	case "fan":
		return AliasFan, nil
	}
	return 0, fmt.Errorf("invalid %s mode alias %q", slot, s)
}

// Aliases holds the three per-installation slot settings.
type Aliases struct {
	Heat Alias
	Cool Alias
	Auto Alias
}

func (a Aliases) alias(s Slot) Alias {
	switch s {
	case SlotHeat:
		return a.Heat
	case SlotCool:
		return a.Cool
	}
	return a.Auto
}

// Validate rejects settings where two slots resolve to the same raw mode,
// since a read could then not tell which slot was written.
func (a Aliases) Validate() error {
	seen := map[int]Slot{}
	for _, s := range readOrder {
		raw, err := a.RawMode(s)
		if err != nil {
			continue
		}
		if prev, ok := seen[raw]; ok {
			return fmt.Errorf("mode aliases: %s and %s both map to raw mode %d", prev, s, raw)
		}
		seen[raw] = s
	}
	return nil
}

var nativeRaw = map[Slot]int{
	SlotHeat: melcloud.AtaModeHeat,
	SlotCool: melcloud.AtaModeCool,
	SlotAuto: melcloud.AtaModeAuto,
}

// RawMode resolves a slot to the raw air conditioner mode to write.
func (a Aliases) RawMode(s Slot) (int, error) {
	switch a.alias(s) {
	case AliasNative:
		return nativeRaw[s], nil
	case AliasDry:
		return melcloud.AtaModeDry, nil
	case AliasFan:
		return melcloud.AtaModeFan, nil
	}
	return 0, fmt.Errorf("%s: %w", s, ErrSlotDisabled)
}

// readOrder breaks ties when resolving a raw mode back to a slot.
var readOrder = [...]Slot{SlotAuto, SlotHeat, SlotCool}

// fallbackSlot reports raw modes no slot resolves to.
var fallbackSlot = map[int]Slot{
	melcloud.AtaModeHeat: SlotHeat,
	melcloud.AtaModeDry:  SlotCool,
	melcloud.AtaModeCool: SlotCool,
	melcloud.AtaModeFan:  SlotAuto,
	melcloud.AtaModeAuto: SlotAuto,
}

// Slot resolves a raw air conditioner mode to the presented slot, using the
// same table RawMode writes with.
func (a Aliases) Slot(raw int) Slot {
	base := AtaBaseMode(raw)
	for _, s := range readOrder {
		if r, err := a.RawMode(s); err == nil && r == base {
			return s
		}
	}
	if s, ok := fallbackSlot[base]; ok {
		return s
	}
	return SlotAuto
}

