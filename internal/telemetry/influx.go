// Package telemetry forwards engine events to external time-series and
// message-bus sinks. Writes are non-blocking; delivery is best effort.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"melcloud-bridge/internal/events"
	"melcloud-bridge/internal/normalize"
)

const (
	influxConnectTimeout = 10 * time.Second
	measurementClimate   = "melcloud_climate"
	measurementZone      = "melcloud_zone"
)

var (
	ErrInfluxDisabled   = errors.New("influxdb disabled")
	ErrInfluxConnection = errors.New("influxdb connection failed")
)

// InfluxConfig configures the InfluxDB v2 sink.
type InfluxConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"` // seconds
}

// Influx writes one point per normalized state update, plus one per zone.
type Influx struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	logger   *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// ConnectInflux creates the client, pings the server and starts the
// non-blocking write API.
func ConnectInflux(cfg InfluxConfig, logger *slog.Logger) (*Influx, error) {
	if !cfg.Enabled {
		return nil, ErrInfluxDisabled
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 100
	}
	flush := cfg.FlushInterval
	if flush <= 0 {
		flush = 10
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batch)).
			SetFlushInterval(uint(flush)*1000))

	ctx, cancel := context.WithTimeout(context.Background(), influxConnectTimeout)
	defer cancel()
	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping: %w", ErrInfluxConnection, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrInfluxConnection)
	}

	i := &Influx{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		logger:   logger.With("component", "influxdb"),
	}
	go i.drainErrors(i.writeAPI.Errors())
	return i, nil
}

func (i *Influx) drainErrors(errs <-chan error) {
	for err := range errs {
		i.logger.Warn("influx write failed", "err", err)
	}
}

// Attach subscribes the sink to state updates. Returns an unsubscribe function.
func (i *Influx) Attach(bus *events.Bus) func() {
	return bus.OnState(func(e events.NormalizedStateUpdated) {
		i.mu.RLock()
		defer i.mu.RUnlock()
		if i.closed {
			return
		}
		for _, p := range StatePoints(e.State, e.Time) {
			i.writeAPI.WritePoint(p)
		}
	})
}

// Close flushes pending points and closes the client.
func (i *Influx) Close() {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return
	}
	i.closed = true
	i.mu.Unlock()
	i.writeAPI.Flush()
	i.client.Close()
}

// StatePoints converts a normalized state into line-protocol points.
func StatePoints(st normalize.State, ts time.Time) []*write.Point {
	if ts.IsZero() {
		ts = time.Now()
	}
	tags := map[string]string{
		"device_id": st.DeviceID,
		"name":      st.Name,
		"family":    st.Family.String(),
	}
	fields := map[string]any{
		"power":         st.Power,
		"current_mode":  st.Current,
		"target_mode":   st.Target,
		"activity":      st.Activity.String(),
		"fan_speed":     st.FanSpeed,
		"fan_speed_max": st.FanSpeedMax,
		"lock":          st.Lock,
	}
	addFloat(fields, "room_temperature", st.RoomTemperature)
	addFloat(fields, "target_temperature", st.TargetTemperature)
	addFloat(fields, "outdoor_temperature", st.OutdoorTemperature)
	if v := st.Ventilation; v != nil {
		addInt(fields, "co2", v.CO2)
		addInt(fields, "pm25", v.PM25)
		addFloat(fields, "supply_temperature", v.SupplyTemperature)
		addFloat(fields, "exhaust_temperature", v.ExhaustTemperature)
	}

	points := []*write.Point{write.NewPoint(measurementClimate, tags, fields, ts)}
	for _, z := range st.Zones {
		zf := map[string]any{
			"current_mode": z.Current,
			"target_mode":  z.Target,
			"activity":     z.Activity.String(),
			"lock":         z.Lock,
		}
		addFloat(zf, "current_temperature", z.CurrentTemperature)
		addFloat(zf, "target_temperature", z.TargetTemperature)
		points = append(points, write.NewPoint(measurementZone, map[string]string{
			"device_id": st.DeviceID,
			"zone":      z.Role.String(),
		}, zf, ts))
	}
	return points
}

func addFloat(m map[string]any, key string, v *float64) {
	if v != nil {
		m[key] = *v
	}
}

func addInt(m map[string]any, key string, v *int) {
	if v != nil {
		m[key] = *v
	}
}
