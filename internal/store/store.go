package store

import "errors"

// ErrNotFound is returned when a requested entity does not exist in the store.
var ErrNotFound = errors.New("not found")

// Store keeps the single last-known record per device. Nothing is versioned:
// every save overwrites.
type Store interface {
	SaveDevice(rec *DeviceRecord) error
	GetDevice(id string) (*DeviceRecord, error)
	DeleteDevice(id string) error
	ListDevices() ([]*DeviceRecord, error)

	// UpdateDevice atomically reads, modifies, and saves a record in a single
	// transaction. Returns ErrNotFound if the record does not exist.
	UpdateDevice(id string, fn func(rec *DeviceRecord) error) error

	Close() error
}
