// Package command encodes caller intents into vendor write payloads and the
// EffectiveFlags bitmask that tells the server which fields to apply.
package command

import (
	"errors"
	"fmt"
	"strings"

	"melcloud-bridge/internal/melcloud"
)

// Field is a logical intent target.
type Field string

const (
	FieldPower             Field = "Power"
	FieldTargetMode        Field = "TargetMode"
	FieldOperationMode     Field = "OperationMode"
	FieldTargetTemperature Field = "TargetTemperature"
	FieldFanSpeed          Field = "FanSpeed"
	FieldSwing             Field = "Swing"
	FieldLock              Field = "Lock"
)

var fields = []Field{
	FieldPower, FieldTargetMode, FieldOperationMode, FieldTargetTemperature,
	FieldFanSpeed, FieldSwing, FieldLock,
}

// ParseField accepts a field name case-insensitively.
func ParseField(s string) (Field, error) {
	for _, f := range fields {
		if strings.EqualFold(string(f), s) {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown intent field %q", s)
}

// Intent is a caller's desired change. Value carries booleans as 0/1, the
// presentation target value for TargetMode, the raw vendor mode for
// OperationMode and the dense fan value for FanSpeed. Zone is a ZoneTable
// position and only applies to heat pumps.
type Intent struct {
	Field Field   `json:"field"`
	Value float64 `json:"value"`
	Zone  *int    `json:"zone,omitempty"`
}

func (i Intent) String() string {
	if i.Zone != nil {
		return fmt.Sprintf("%s=%v (zone %d)", i.Field, i.Value, *i.Zone)
	}
	return fmt.Sprintf("%s=%v", i.Field, i.Value)
}

// ErrUnsupported marks intents the device or its configuration cannot carry out.
var ErrUnsupported = errors.New("unsupported")

// ErrNotFinite rejects NaN and infinite values.
var ErrNotFinite = errors.New("value is not a finite number")

// ValidationError is a local rejection raised before any network call. It is
// not retryable.
type ValidationError struct {
	Intent Intent
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid intent %s: %s: %v", e.Intent, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid intent %s: %s", e.Intent, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func unsupported(in Intent, reason string) error {
	return &ValidationError{Intent: in, Reason: reason, Err: ErrUnsupported}
}

func invalid(in Intent, reason string, err error) error {
	return &ValidationError{Intent: in, Reason: reason, Err: err}
}

// Payload holds the changed vendor fields of one write.
type Payload map[string]any

// Apply merges the payload into a device block, for optimistic updates.
func (p Payload) Apply(dev melcloud.Block) {
	for k, v := range p {
		dev[k] = v
	}
}

// Request is a complete write for one device.
type Request struct {
	DeviceID string
	Family   melcloud.Family
	Payload  Payload
	Flags    uint64
}

// Body returns the POST body: the changed fields, the device id and the mask.
func (r Request) Body() map[string]any {
	body := make(map[string]any, len(r.Payload)+3)
	for k, v := range r.Payload {
		body[k] = v
	}
	body["DeviceID"] = r.DeviceID
	body["EffectiveFlags"] = r.Flags
	body["HasPendingCommand"] = true
	return body
}
