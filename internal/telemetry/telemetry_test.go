package telemetry

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/segmentio/kafka-go"

	"melcloud-bridge/internal/capability"
	"melcloud-bridge/internal/events"
	"melcloud-bridge/internal/melcloud"
	"melcloud-bridge/internal/normalize"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestStatePoints(t *testing.T) {
	room, zoneTemp := 21.5, 35.0
	st := normalize.State{
		DeviceID:        "7",
		Name:            "Heat pump",
		Family:          melcloud.FamilyHeatPump,
		Power:           true,
		RoomTemperature: &room,
		Zones: []normalize.ZoneState{
			{Position: 0, Role: capability.RoleHeatPumpUnit, CurrentTemperature: &zoneTemp},
			{Position: 1, Role: capability.RoleZone1},
		},
	}
	ts := time.Unix(1700000000, 0)

	points := StatePoints(st, ts)
	if len(points) != 3 {
		t.Fatalf("points = %d, want 3", len(points))
	}
	line := write.PointToLineProtocol(points[0], time.Second)
	for _, want := range []string{"melcloud_climate,", "device_id=7", "power=true", "room_temperature=21.5", "1700000000"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
	if strings.Contains(line, "target_temperature") {
		t.Errorf("line %q has absent target_temperature", line)
	}
	zone := write.PointToLineProtocol(points[1], time.Second)
	if !strings.Contains(zone, "zone=heat_pump") || !strings.Contains(zone, "current_temperature=35") {
		t.Errorf("zone line = %q", zone)
	}
}

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func TestKafkaPublishesRawPairs(t *testing.T) {
	w := &fakeWriter{}
	k := newKafka(w, "melcloud.raw", newTestLogger())
	bus := events.NewBus(newTestLogger())
	k.Attach(bus)
	k.Start(context.Background())

	bus.Emit(events.RawPairUpdated{
		DeviceID: "42",
		Info:     map[string]any{"DeviceName": "Office"},
		State:    melcloud.Block{"Power": true},
	})
	bus.Emit(events.Warning{Message: "ignored"})

	if err := k.Stop(); err != nil {
		t.Fatal(err)
	}
	if !w.closed {
		t.Error("writer not closed")
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "42" {
		t.Errorf("key = %q, want 42", w.msgs[0].Key)
	}
	var env struct {
		Type string `json:"type"`
		Data struct {
			State map[string]any `json:"state"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.msgs[0].Value, &env); err != nil {
		t.Fatal(err)
	}
	if env.Type != "raw_pair" || env.Data.State["Power"] != true {
		t.Errorf("envelope = %+v", env)
	}

	// after Stop, events are ignored
	bus.Emit(events.RawPairUpdated{DeviceID: "42"})
}

func TestNewKafkaValidation(t *testing.T) {
	if _, err := NewKafka(KafkaConfig{}, newTestLogger()); err != ErrKafkaDisabled {
		t.Errorf("err = %v, want ErrKafkaDisabled", err)
	}
	if _, err := NewKafka(KafkaConfig{Enabled: true, Brokers: []string{"b:9092"}}, newTestLogger()); err == nil {
		t.Error("expected error for empty topic")
	}
	if _, err := NewKafka(KafkaConfig{Enabled: true, Topic: "t"}, newTestLogger()); err == nil {
		t.Error("expected error for no brokers")
	}
}

func TestConnectInfluxDisabled(t *testing.T) {
	if _, err := ConnectInflux(InfluxConfig{}, newTestLogger()); err != ErrInfluxDisabled {
		t.Errorf("err = %v, want ErrInfluxDisabled", err)
	}
}
