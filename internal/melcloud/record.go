package melcloud

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Block is a decoded JSON object from a device record. The vendor payloads
// are capability-dependent and differ between account variants, so fields
// are read by name instead of through a fixed struct.
type Block map[string]any

// Float reads a numeric field. Numeric strings are accepted.
func (b Block) Float(key string) (float64, bool) {
	switch v := b[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

// Int reads a numeric field truncated to int.
func (b Block) Int(key string) (int, bool) {
	f, ok := b.Float(key)
	if !ok || math.IsNaN(f) {
		return 0, false
	}
	return int(f), true
}

// Bool reads a boolean field. Numbers are true when non-zero.
func (b Block) Bool(key string) (bool, bool) {
	switch v := b[key].(type) {
	case bool:
		return v, true
	case float64:
		return v != 0, true
	case string:
		p, err := strconv.ParseBool(v)
		return p, err == nil
	}
	return false, false
}

// FloatOr returns the field or def when absent.
func (b Block) FloatOr(key string, def float64) float64 {
	if v, ok := b.Float(key); ok {
		return v
	}
	return def
}

// IntOr returns the field or def when absent.
func (b Block) IntOr(key string, def int) int {
	if v, ok := b.Int(key); ok {
		return v
	}
	return def
}

// BoolOr returns the field or def when absent.
func (b Block) BoolOr(key string, def bool) bool {
	if v, ok := b.Bool(key); ok {
		return v
	}
	return def
}

// Sub returns a nested object, or nil.
func (b Block) Sub(key string) Block {
	switch v := b[key].(type) {
	case map[string]any:
		return Block(v)
	case Block:
		return v
	}
	return nil
}

// Clone returns a deep copy.
func (b Block) Clone() Block {
	if b == nil {
		return nil
	}
	out := make(Block, len(b))
	for k, v := range b {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return map[string]any(Block(t).Clone())
	case Block:
		return t.Clone()
	case []any:
		cp := make([]any, len(t))
		for i, e := range t {
			cp[i] = cloneValue(e)
		}
		return cp
	}
	return v
}

// RawSnapshot is one device record as last written by the discovery process:
// identity, the family discriminant and the nested device-state block.
// A sync cycle treats it as immutable once read.
type RawSnapshot struct {
	DeviceID   string `json:"DeviceID"`
	DeviceName string `json:"DeviceName"`
	BuildingID int    `json:"BuildingID"`
	Type       Family `json:"Type"`
	Device     Block  `json:"Device"`
}

// UnmarshalJSON accepts DeviceID as either a number (MELCloud) or a string
// (MELCloud Home).
func (s *RawSnapshot) UnmarshalJSON(data []byte) error {
	var rec struct {
		DeviceID   json.RawMessage `json:"DeviceID"`
		DeviceName string          `json:"DeviceName"`
		BuildingID int             `json:"BuildingID"`
		Type       Family          `json:"Type"`
		Device     Block           `json:"Device"`
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	id, err := decodeID(rec.DeviceID)
	if err != nil {
		return err
	}
	*s = RawSnapshot{
		DeviceID:   id,
		DeviceName: rec.DeviceName,
		BuildingID: rec.BuildingID,
		Type:       rec.Type,
		Device:     rec.Device,
	}
	return nil
}

func decodeID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("decode DeviceID: %w", err)
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("decode DeviceID: %w", err)
	}
	return n.String(), nil
}

// Clone returns a deep copy, so optimistic updates never touch a snapshot
// another cycle may still hold.
func (s RawSnapshot) Clone() RawSnapshot {
	cp := s
	cp.Device = s.Device.Clone()
	return cp
}

// Info returns the identity half of the raw info/state pair published to
// external sinks every cycle.
func (s RawSnapshot) Info() map[string]any {
	return map[string]any{
		"DeviceID":   s.DeviceID,
		"DeviceName": s.DeviceName,
		"BuildingID": s.BuildingID,
		"Type":       int(s.Type),
		"Family":     s.Type.String(),
	}
}
