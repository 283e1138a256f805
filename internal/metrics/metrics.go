// Package metrics exposes sync engine counters and device readings to
// Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"melcloud-bridge/internal/events"
	"melcloud-bridge/internal/normalize"
)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	cycles        *prometheus.CounterVec
	cycleDuration *prometheus.HistogramVec
	emissions     *prometheus.CounterVec
	commands      *prometheus.CounterVec
	warnings      prometheus.Counter

	power       *prometheus.GaugeVec
	roomTemp    *prometheus.GaugeVec
	targetTemp  *prometheus.GaugeVec
	outdoorTemp *prometheus.GaugeVec
	zoneTemp    *prometheus.GaugeVec
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "melcloud_sync_cycles_total",
			Help: "Sync cycles by device and outcome.",
		}, []string{"device", "outcome"}),
		cycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "melcloud_sync_cycle_duration_seconds",
			Help:    "Duration of sync cycles by device.",
			Buckets: prometheus.DefBuckets,
		}, []string{"device"}),
		emissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "melcloud_emissions_total",
			Help: "Events delivered to sinks by kind.",
		}, []string{"kind"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "melcloud_commands_total",
			Help: "Command intents by device and result.",
		}, []string{"device", "result"}),
		warnings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "melcloud_warnings_total",
			Help: "Recovered failures reported as warnings.",
		}),
		power: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "melcloud_device_power",
			Help: "Device power (1 on, 0 off).",
		}, []string{"device", "name"}),
		roomTemp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "melcloud_room_temperature_celsius",
			Help: "Room temperature reported by the device.",
		}, []string{"device", "name"}),
		targetTemp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "melcloud_target_temperature_celsius",
			Help: "Target temperature of the device.",
		}, []string{"device", "name"}),
		outdoorTemp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "melcloud_outdoor_temperature_celsius",
			Help: "Outdoor temperature reported by the device.",
		}, []string{"device", "name"}),
		zoneTemp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "melcloud_zone_temperature_celsius",
			Help: "Current temperature per heat pump zone.",
		}, []string{"device", "zone"}),
	}

	m.registry.MustRegister(
		m.cycles,
		m.cycleDuration,
		m.emissions,
		m.commands,
		m.warnings,
		m.power,
		m.roomTemp,
		m.targetTemp,
		m.outdoorTemp,
		m.zoneTemp,
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Cycle records one sync cycle.
func (m *Metrics) Cycle(device, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(device, outcome).Inc()
	m.cycleDuration.WithLabelValues(device).Observe(d.Seconds())
}

// Command records one command intent.
func (m *Metrics) Command(device, result string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(device, result).Inc()
}

// Attach subscribes the metrics to the event bus. Returns an unsubscribe function.
func (m *Metrics) Attach(bus *events.Bus) func() {
	if m == nil {
		return func() {}
	}
	return bus.OnAll(func(e events.Event) {
		m.emissions.WithLabelValues(string(e.Kind())).Inc()
		switch ev := e.(type) {
		case events.NormalizedStateUpdated:
			m.observeState(ev.State)
		case events.Warning:
			m.warnings.Inc()
		}
	})
}

func (m *Metrics) observeState(st normalize.State) {
	labels := []string{st.DeviceID, st.Name}
	if st.Power {
		m.power.WithLabelValues(labels...).Set(1)
	} else {
		m.power.WithLabelValues(labels...).Set(0)
	}
	if st.RoomTemperature != nil {
		m.roomTemp.WithLabelValues(labels...).Set(*st.RoomTemperature)
	}
	if st.TargetTemperature != nil {
		m.targetTemp.WithLabelValues(labels...).Set(*st.TargetTemperature)
	}
	if st.OutdoorTemperature != nil {
		m.outdoorTemp.WithLabelValues(labels...).Set(*st.OutdoorTemperature)
	}
	for _, z := range st.Zones {
		if z.CurrentTemperature != nil {
			m.zoneTemp.WithLabelValues(st.DeviceID, z.Role.String()).Set(*z.CurrentTemperature)
		}
	}
}
