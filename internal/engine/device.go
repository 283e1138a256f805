package engine

import (
	"fmt"
	"sync"
	"time"

	"melcloud-bridge/internal/capability"
	"melcloud-bridge/internal/command"
	"melcloud-bridge/internal/melcloud"
	"melcloud-bridge/internal/modes"
	"melcloud-bridge/internal/normalize"
)

// DefaultRefreshInterval is used for devices without their own interval.
const DefaultRefreshInterval = time.Minute

// DeviceConfig is the per-installation configuration of one device.
type DeviceConfig struct {
	ID              string
	Name            string
	Family          melcloud.Family
	RefreshInterval time.Duration
	Presentation    modes.Presentation
	Aliases         modes.Aliases
	Preferences     capability.Preferences
	Hide            capability.HideMask
}

func (c *DeviceConfig) validate() error {
	if c.ID == "" {
		return fmt.Errorf("device id is required")
	}
	if _, err := c.Family.SetPath(); err != nil {
		return fmt.Errorf("device %s: %w", c.ID, err)
	}
	if err := c.Aliases.Validate(); err != nil {
		return fmt.Errorf("device %s: %w", c.ID, err)
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = DefaultRefreshInterval
	}
	if c.Presentation == "" {
		c.Presentation = modes.PresentationHeaterCooler
	}
	return nil
}

// deviceContext is the only place a device's last-known data lives. The sync
// cycle and the command path both go through mu.
type deviceContext struct {
	cfg DeviceConfig

	mu sync.Mutex
	// lastSnapshot is the last fetched record and is never written to.
	lastSnapshot *melcloud.RawSnapshot
	// pending holds fields written since lastSnapshot was fetched. It is
	// dropped as soon as a fetched record differs from lastSnapshot.
	pending      command.Payload
	lastState    *normalize.State
	caps         capability.Set
	zones        capability.ZoneTable
	updatedAt    time.Time
	// restored is set when the last-known data came from the store. The first
	// cycle after a restart then emits even if nothing changed.
	restored bool
}

// effective returns the fetched record with pending writes applied. The
// caller holds mu.
func (dc *deviceContext) effective() (melcloud.RawSnapshot, bool) {
	if dc.lastSnapshot == nil {
		return melcloud.RawSnapshot{}, false
	}
	snap := dc.lastSnapshot.Clone()
	if snap.Device == nil && len(dc.pending) > 0 {
		snap.Device = melcloud.Block{}
	}
	dc.pending.Apply(snap.Device)
	return snap, true
}

func (dc *deviceContext) triggerName() string { return "device:" + dc.cfg.ID }

// View is a read-only copy of one device's last-known data.
type View struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Family       melcloud.Family    `json:"family"`
	Presentation modes.Presentation `json:"presentation"`
	State        *normalize.State   `json:"state,omitempty"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

func (dc *deviceContext) view() View {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	v := View{
		ID:           dc.cfg.ID,
		Name:         dc.cfg.Name,
		Family:       dc.cfg.Family,
		Presentation: dc.cfg.Presentation,
		UpdatedAt:    dc.updatedAt,
	}
	if dc.lastState != nil {
		st := *dc.lastState
		v.State = &st
		if v.Name == "" {
			v.Name = st.Name
		}
	}
	return v
}
