package store

import (
	"time"

	"melcloud-bridge/internal/melcloud"
	"melcloud-bridge/internal/normalize"
)

// DeviceRecord is what survives a restart for one device: the last raw
// snapshot, the state built from it, and the last accepted command.
type DeviceRecord struct {
	DeviceID    string               `json:"device_id"`
	Name        string               `json:"name,omitempty"`
	Family      melcloud.Family      `json:"family"`
	Snapshot    melcloud.RawSnapshot `json:"snapshot"`
	State       *normalize.State     `json:"state,omitempty"`
	UpdatedAt   time.Time            `json:"updated_at"`
	LastCommand *CommandLog          `json:"last_command,omitempty"`
}

// CommandLog records one write sent to the vendor service.
type CommandLog struct {
	RequestID string         `json:"request_id"`
	Intent    string         `json:"intent"`
	Payload   map[string]any `json:"payload"`
	Flags     uint64         `json:"flags"`
	SentAt    time.Time      `json:"sent_at"`
}
