// Package engine runs the per-device sync cycle and the command path.
//
// Each tick reads the device record, derives capabilities and the zone table,
// normalizes, emits the raw pair and, when the record changed, the normalized
// state. Commands are encoded against the last record, written, merged into
// that record optimistically and re-emitted after a short delay.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"melcloud-bridge/internal/capability"
	"melcloud-bridge/internal/change"
	"melcloud-bridge/internal/command"
	"melcloud-bridge/internal/events"
	"melcloud-bridge/internal/melcloud"
	"melcloud-bridge/internal/metrics"
	"melcloud-bridge/internal/normalize"
	"melcloud-bridge/internal/scheduler"
	"melcloud-bridge/internal/snapshot"
	"melcloud-bridge/internal/store"
)

// DefaultEchoDelay is how long after a write the optimistic state is re-emitted.
const DefaultEchoDelay = 500 * time.Millisecond

// ErrUnknownDevice is returned for ids that were never added.
var ErrUnknownDevice = errors.New("unknown device")

// Source provides device records.
type Source interface {
	Read(deviceID string) (melcloud.RawSnapshot, snapshot.Status)
}

// Writer sends a write to the vendor service.
type Writer interface {
	Write(ctx context.Context, req command.Request) error
}

// Option configures the engine.
type Option func(*Engine)

// WithStore persists the last-known record of every device.
func WithStore(s store.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithMetrics records cycle and command counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithEchoDelay overrides DefaultEchoDelay.
func WithEchoDelay(d time.Duration) Option {
	return func(e *Engine) { e.echoDelay = d }
}

// WithVariant sets the account variant, which selects capability field names.
func WithVariant(v melcloud.Variant) Option {
	return func(e *Engine) { e.variant = v }
}

// WithUnit sets the display unit reported in normalized states.
func WithUnit(u normalize.Unit) Option {
	return func(e *Engine) { e.unit = u }
}

// Engine owns the device contexts and the scheduler driving them.
type Engine struct {
	source  Source
	writer  Writer
	bus     *events.Bus
	store   store.Store
	metrics *metrics.Metrics
	logger  *slog.Logger

	variant   melcloud.Variant
	unit      normalize.Unit
	echoDelay time.Duration

	mu      sync.RWMutex
	devices map[string]*deviceContext
	sched   *scheduler.Scheduler
	ctx     context.Context
	echoes  sync.WaitGroup
}

// New creates an engine. Devices are added with AddDevice before Start.
func New(source Source, writer Writer, bus *events.Bus, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		source:    source,
		writer:    writer,
		bus:       bus,
		logger:    logger.With("component", "engine"),
		variant:   melcloud.VariantMELCloud,
		unit:      normalize.Celsius,
		echoDelay: DefaultEchoDelay,
		devices:   make(map[string]*deviceContext),
		ctx:       context.Background(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AddDevice registers a device. Adding an existing id replaces its
// configuration and forgets its last-known data.
func (e *Engine) AddDevice(cfg DeviceConfig) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	dc := &deviceContext{cfg: cfg}
	e.mu.Lock()
	e.devices[cfg.ID] = dc
	sched := e.sched
	e.mu.Unlock()

	if sched != nil {
		e.schedule(sched, dc)
	}
	return nil
}

// Restore loads the last-known records from the store so states are
// available before the first cycle completes.
func (e *Engine) Restore() {
	if e.store == nil {
		return
	}
	recs, err := e.store.ListDevices()
	if err != nil {
		e.logger.Error("restore devices", "err", err)
		return
	}
	for _, rec := range recs {
		dc, ok := e.device(rec.DeviceID)
		if !ok {
			continue
		}
		dc.mu.Lock()
		snap := rec.Snapshot
		dc.lastSnapshot = &snap
		dc.lastState = rec.State
		dc.updatedAt = rec.UpdatedAt
		if rec.State != nil {
			dc.caps = rec.State.Capabilities
		}
		if dc.cfg.Family == melcloud.FamilyHeatPump {
			dc.zones = capability.Enumerate(dc.caps, dc.cfg.Hide)
		}
		dc.restored = true
		dc.mu.Unlock()
		e.logger.Debug("restored device", "device", rec.DeviceID, "updated_at", rec.UpdatedAt)
	}
}

// Start schedules a sync trigger per device. The context bounds every cycle.
func (e *Engine) Start(ctx context.Context) {
	sched := scheduler.New(ctx, e.logger, e.bus)
	e.mu.Lock()
	e.ctx = ctx
	e.sched = sched
	devices := make([]*deviceContext, 0, len(e.devices))
	for _, dc := range e.devices {
		devices = append(devices, dc)
	}
	e.mu.Unlock()

	for _, dc := range devices {
		e.schedule(sched, dc)
	}
	e.logger.Info("engine started", "devices", len(devices))
}

func (e *Engine) schedule(sched *scheduler.Scheduler, dc *deviceContext) {
	id := dc.cfg.ID
	sched.Schedule(dc.triggerName(), dc.cfg.RefreshInterval, func(ctx context.Context) error {
		return e.Sync(ctx, id)
	})
}

// Stop cancels every trigger and waits for in-flight cycles and pending
// re-emissions.
func (e *Engine) Stop() {
	e.mu.Lock()
	sched := e.sched
	e.sched = nil
	e.mu.Unlock()
	if sched != nil {
		sched.CancelAll()
		sched.Wait()
	}
	e.echoes.Wait()
	e.logger.Info("engine stopped")
}

// Refresh runs a device's cycle out of band. It reports false when the
// engine is not started or the device is unknown.
func (e *Engine) Refresh(deviceID string) bool {
	e.mu.RLock()
	sched := e.sched
	dc, ok := e.devices[deviceID]
	e.mu.RUnlock()
	if sched == nil || !ok {
		return false
	}
	return sched.Trigger(dc.triggerName())
}

func (e *Engine) device(id string) (*deviceContext, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	dc, ok := e.devices[id]
	return dc, ok
}

// Sync runs one cycle for a device. Missing data and malformed records are
// not errors: they are logged or reported as warnings and the last good state
// is kept.
func (e *Engine) Sync(ctx context.Context, deviceID string) error {
	dc, ok := e.device(deviceID)
	if !ok {
		return fmt.Errorf("sync %s: %w", deviceID, ErrUnknownDevice)
	}
	start := time.Now()
	outcome := e.sync(dc)
	e.metrics.Cycle(deviceID, outcome, time.Since(start))
	return nil
}

func (e *Engine) sync(dc *deviceContext) string {
	id := dc.cfg.ID
	snap, status := e.source.Read(id)
	if status != snapshot.Found {
		e.logger.Debug("no device record", "device", id, "status", status)
		return status.String()
	}
	if snap.Type != dc.cfg.Family {
		e.warn(id, fmt.Sprintf("record type %s does not match configured family %s", snap.Type, dc.cfg.Family), nil)
		return "malformed"
	}

	caps := capability.Derive(snap, dc.cfg.Family, e.variant, dc.cfg.Preferences)
	var zones capability.ZoneTable
	if dc.cfg.Family == melcloud.FamilyHeatPump {
		zones = capability.Enumerate(caps, dc.cfg.Hide)
		if zones.Empty() {
			e.logger.Debug("empty zone table, nothing to synchronize", "device", id)
			return "empty"
		}
	}

	state, err := normalize.Normalize(normalize.Input{
		Snapshot:     snap,
		Capabilities: caps,
		Zones:        zones,
		Aliases:      dc.cfg.Aliases,
		Presentation: dc.cfg.Presentation,
		Unit:         e.unit,
	})
	if err != nil {
		e.warn(id, "normalize device record", err)
		return "malformed"
	}
	if dc.cfg.Name != "" {
		state.Name = dc.cfg.Name
	}

	now := time.Now()
	e.bus.Emit(events.RawPairUpdated{
		DeviceID: id,
		Info:     snap.Info(),
		State:    snap.Device.Clone(),
		Time:     now,
	})

	dc.mu.Lock()
	changed := dc.restored || change.HasChanged(dc.lastSnapshot, snap)
	dc.restored = false
	dc.lastSnapshot = &snap
	dc.caps = caps
	dc.zones = zones
	dc.updatedAt = now
	if changed {
		dc.pending = nil
		dc.lastState = &state
	} else if dc.lastState == nil {
		dc.lastState = &state
	}
	dc.mu.Unlock()

	// An unchanged record may predate a write; the optimistic state stands.
	if !changed {
		return "unchanged"
	}
	e.bus.Emit(events.NormalizedStateUpdated{DeviceID: id, State: state, Time: now})
	e.persist(dc.cfg, snap, state, now)
	return "changed"
}

func (e *Engine) persist(cfg DeviceConfig, snap melcloud.RawSnapshot, state normalize.State, now time.Time) {
	if e.store == nil {
		return
	}
	rec := &store.DeviceRecord{
		DeviceID:  cfg.ID,
		Name:      state.Name,
		Family:    cfg.Family,
		Snapshot:  snap,
		State:     &state,
		UpdatedAt: now,
	}
	if prev, err := e.store.GetDevice(cfg.ID); err == nil {
		rec.LastCommand = prev.LastCommand
	}
	if err := e.store.SaveDevice(rec); err != nil {
		e.logger.Error("save device", "device", cfg.ID, "err", err)
	}
}

func (e *Engine) warn(deviceID, msg string, err error) {
	e.logger.Warn(msg, "device", deviceID, "err", err)
	e.bus.Emit(events.Warning{DeviceID: deviceID, Message: msg, Err: err, Time: time.Now()})
}

// Apply validates and sends one intent. It returns the request id used in
// logs and DebugTrace events. A *command.ValidationError means nothing was
// sent.
func (e *Engine) Apply(ctx context.Context, deviceID string, in command.Intent) (string, error) {
	dc, ok := e.device(deviceID)
	if !ok {
		return "", fmt.Errorf("apply %s: %w", deviceID, ErrUnknownDevice)
	}

	dc.mu.Lock()
	current, _ := dc.effective()
	cctx := command.Context{
		Capabilities: dc.caps,
		Zones:        dc.zones,
		Aliases:      dc.cfg.Aliases,
		Presentation: dc.cfg.Presentation,
		Current:      current,
	}
	dc.mu.Unlock()

	payload, flags, err := command.Encode(in, cctx)
	if err != nil {
		e.metrics.Command(deviceID, "rejected")
		return "", err
	}

	reqID := uuid.NewString()
	e.bus.Emit(events.DebugTrace{
		DeviceID:  deviceID,
		RequestID: reqID,
		Message:   fmt.Sprintf("write %s flags=%#x", in, flags),
		Time:      time.Now(),
	})
	req := command.Request{DeviceID: deviceID, Family: dc.cfg.Family, Payload: payload, Flags: flags}
	if err := e.writer.Write(ctx, req); err != nil {
		e.metrics.Command(deviceID, "failed")
		e.warn(deviceID, "write "+in.String(), err)
		return reqID, fmt.Errorf("write %s: %w", deviceID, err)
	}
	e.metrics.Command(deviceID, "ok")
	e.logger.Info("command sent", "device", deviceID, "intent", in.String(), "flags", flags, "request", reqID)

	dc.mu.Lock()
	if dc.pending == nil {
		dc.pending = make(command.Payload, len(payload))
	}
	payload.Apply(melcloud.Block(dc.pending))
	dc.mu.Unlock()

	e.recordCommand(deviceID, store.CommandLog{
		RequestID: reqID,
		Intent:    in.String(),
		Payload:   payload,
		Flags:     flags,
		SentAt:    time.Now(),
	})
	e.scheduleEcho(dc)
	return reqID, nil
}

func (e *Engine) recordCommand(deviceID string, entry store.CommandLog) {
	if e.store == nil {
		return
	}
	err := e.store.UpdateDevice(deviceID, func(rec *store.DeviceRecord) error {
		rec.LastCommand = &entry
		return nil
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		e.logger.Error("record command", "device", deviceID, "err", err)
	}
}

// scheduleEcho re-normalizes the fetched record plus pending writes after the echo
// delay and emits it, so sinks see the commanded state before the next poll.
func (e *Engine) scheduleEcho(dc *deviceContext) {
	e.mu.RLock()
	ctx := e.ctx
	e.mu.RUnlock()

	e.echoes.Add(1)
	go func() {
		defer e.echoes.Done()
		t := time.NewTimer(e.echoDelay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return
		}
		e.echo(dc)
	}()
}

func (e *Engine) echo(dc *deviceContext) {
	dc.mu.Lock()
	snap, ok := dc.effective()
	if !ok {
		dc.mu.Unlock()
		return
	}
	in := normalize.Input{
		Snapshot:     snap,
		Capabilities: dc.caps,
		Zones:        dc.zones,
		Aliases:      dc.cfg.Aliases,
		Presentation: dc.cfg.Presentation,
		Unit:         e.unit,
	}
	dc.mu.Unlock()

	state, err := normalize.Normalize(in)
	if err != nil {
		e.warn(dc.cfg.ID, "normalize optimistic state", err)
		return
	}
	if dc.cfg.Name != "" {
		state.Name = dc.cfg.Name
	}
	now := time.Now()
	dc.mu.Lock()
	dc.lastState = &state
	dc.updatedAt = now
	dc.mu.Unlock()
	e.bus.Emit(events.NormalizedStateUpdated{DeviceID: dc.cfg.ID, State: state, Time: now})
}

// Device returns the last-known data of one device.
func (e *Engine) Device(id string) (View, bool) {
	dc, ok := e.device(id)
	if !ok {
		return View{}, false
	}
	return dc.view(), true
}

// Devices returns every device ordered by id.
func (e *Engine) Devices() []View {
	e.mu.RLock()
	ids := make([]string, 0, len(e.devices))
	for id := range e.devices {
		ids = append(ids, id)
	}
	e.mu.RUnlock()
	slices.Sort(ids)

	out := make([]View, 0, len(ids))
	for _, id := range ids {
		if v, ok := e.Device(id); ok {
			out = append(out, v)
		}
	}
	return out
}

// Raw returns the last record of a device, including optimistic updates.
func (e *Engine) Raw(id string) (melcloud.RawSnapshot, bool) {
	dc, ok := e.device(id)
	if !ok {
		return melcloud.RawSnapshot{}, false
	}
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.effective()
}
