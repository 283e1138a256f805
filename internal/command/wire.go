package command

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// wireIntent is the JSON form of an intent used by the HTTP API, the message
// bus and automation scripts. Value accepts numbers, booleans and "ON"/"OFF".
type wireIntent struct {
	Field string `json:"field"`
	Value any    `json:"value"`
	Zone  *int   `json:"zone,omitempty"`
}

// DecodeIntents accepts a single intent object or an array of them.
func DecodeIntents(data []byte) ([]Intent, error) {
	var list []wireIntent
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("decode intents: %w", err)
		}
	} else {
		var one wireIntent
		if err := json.Unmarshal(data, &one); err != nil {
			return nil, fmt.Errorf("decode intent: %w", err)
		}
		list = []wireIntent{one}
	}

	intents := make([]Intent, 0, len(list))
	for _, w := range list {
		in, err := NewIntent(w.Field, w.Value, w.Zone)
		if err != nil {
			return nil, err
		}
		intents = append(intents, in)
	}
	return intents, nil
}

// NewIntent builds an intent from loosely typed input.
func NewIntent(field string, value any, zone *int) (Intent, error) {
	f, err := ParseField(field)
	if err != nil {
		return Intent{}, err
	}
	v, ok := toFloat64(value)
	if !ok {
		return Intent{}, fmt.Errorf("field %s: unsupported value %v", f, value)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Intent{}, fmt.Errorf("field %s: %w", f, ErrNotFinite)
	}
	return Intent{Field: f, Value: v, Zone: zone}, nil
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		switch strings.ToUpper(n) {
		case "ON", "TRUE":
			return 1, true
		case "OFF", "FALSE":
			return 0, true
		}
	}
	return 0, false
}
