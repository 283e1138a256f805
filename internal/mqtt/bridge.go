//go:build !no_mqtt

package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"melcloud-bridge/internal/command"
	"melcloud-bridge/internal/engine"
	"melcloud-bridge/internal/events"
)

// Config holds MQTT bridge configuration.
type Config struct {
	Broker      string
	Username    string
	Password    string
	ClientID    string
	TopicPrefix string
	Discovery   bool
}

// Devices is the part of the engine the bridge drives.
type Devices interface {
	Devices() []engine.View
	Device(id string) (engine.View, bool)
	Apply(ctx context.Context, deviceID string, in command.Intent) (string, error)
}

// Bridge publishes engine events to MQTT and turns messages on
// <prefix>/<device>/set into command intents.
//
// Topics:
//
//	<prefix>/bridge/state        online/offline (LWT), retained
//	<prefix>/bridge/warning      warning events
//	<prefix>/<device>/state      normalized state, retained, on change
//	<prefix>/<device>/raw/info   raw identity, retained, every cycle
//	<prefix>/<device>/raw/state  raw device block, retained, every cycle
type Bridge struct {
	client    pahomqtt.Client
	devices   Devices
	bus       *events.Bus
	prefix    string
	discovery bool
	logger    *slog.Logger
	unsub     func()
	ctx       context.Context
	cancel    context.CancelFunc

	// publishFn is replaced in tests.
	publishFn func(topic string, payload []byte, retained bool)

	mu sync.Mutex
	// discovered tracks devices whose HA discovery was published this session.
	discovered map[string]bool
}

// NewBridge creates and connects an MQTT bridge.
func NewBridge(devices Devices, bus *events.Bus, cfg Config, logger *slog.Logger) (*Bridge, error) {
	b := newBridge(devices, bus, cfg, logger)

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "melcloud-bridge"
	}
	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(b.prefix+"/bridge/state", "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			b.logger.Info("MQTT connected")
			b.publishBridgeState("online")
			b.mu.Lock()
			clear(b.discovered)
			b.mu.Unlock()
			b.publishAllDiscovery()
			b.subscribeCommands()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			b.logger.Warn("MQTT connection lost", "err", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	b.client = client
	b.publishFn = b.clientPublish
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		b.cancel()
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		b.cancel()
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	return b, nil
}

func newBridge(devices Devices, bus *events.Bus, cfg Config, logger *slog.Logger) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())
	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = "melcloud"
	}
	return &Bridge{
		devices:    devices,
		bus:        bus,
		prefix:     prefix,
		discovery:  cfg.Discovery,
		logger:     logger.With("component", "mqtt"),
		ctx:        ctx,
		cancel:     cancel,
		discovered: make(map[string]bool),
	}
}

// Start subscribes to engine events and begins MQTT publishing.
func (b *Bridge) Start() {
	b.unsub = b.bus.OnAll(b.handleEvent)
	b.logger.Info("MQTT bridge started", "prefix", b.prefix)
}

// Stop publishes offline state, unsubscribes, and disconnects.
func (b *Bridge) Stop() {
	b.cancel()
	if b.unsub != nil {
		b.unsub()
	}
	b.publishBridgeState("offline")
	if b.client != nil {
		b.client.Disconnect(1000)
	}
	b.logger.Info("MQTT bridge stopped")
}

func (b *Bridge) handleEvent(e events.Event) {
	switch ev := e.(type) {
	case events.NormalizedStateUpdated:
		b.handleState(ev)
	case events.RawPairUpdated:
		base := b.deviceTopic(ev.DeviceID) + "/raw"
		b.publish(base+"/info", mustJSON(ev.Info), true)
		b.publish(base+"/state", mustJSON(ev.State), true)
	case events.Warning:
		b.publish(b.prefix+"/bridge/warning", mustJSON(map[string]any{
			"device_id": ev.DeviceID,
			"message":   ev.Error(),
			"time":      ev.Time.Format(time.RFC3339),
		}), false)
	}
}

func (b *Bridge) handleState(ev events.NormalizedStateUpdated) {
	b.publish(b.deviceTopic(ev.DeviceID)+"/state", mustJSON(ev.State.DisplayTemperatures()), true)

	if !b.discovery {
		return
	}
	b.mu.Lock()
	done := b.discovered[ev.DeviceID]
	b.mu.Unlock()
	if done {
		return
	}
	if v, ok := b.devices.Device(ev.DeviceID); ok {
		b.publishDeviceDiscovery(v)
	}
}

func (b *Bridge) deviceTopic(id string) string {
	return b.prefix + "/" + deviceTopicName(id)
}

func (b *Bridge) publishBridgeState(state string) {
	b.publish(b.prefix+"/bridge/state", []byte(state), true)
}

func (b *Bridge) publishAllDiscovery() {
	if !b.discovery {
		return
	}
	for _, v := range b.devices.Devices() {
		b.publishDeviceDiscovery(v)
	}
}

func (b *Bridge) publishDeviceDiscovery(v engine.View) {
	msgs := buildDiscovery(v, b.prefix)
	if len(msgs) == 0 {
		return
	}
	b.removeStaleDiscovery(v.ID, msgs)
	for _, msg := range msgs {
		b.publish(msg.Topic, msg.Payload, true)
	}
	b.mu.Lock()
	b.discovered[v.ID] = true
	b.mu.Unlock()
	b.logger.Info("published HA discovery", "device", v.ID, "name", deviceDisplayName(v))
}

// removeStaleDiscovery clears retained entities of a device that the current
// discovery set no longer contains, e.g. a zone hidden since the last run.
func (b *Bridge) removeStaleDiscovery(id string, current []discoveryMsg) {
	keep := make(map[string]bool, len(current))
	for _, m := range current {
		keep[m.Topic] = true
	}
	for _, msg := range buildRemoveDiscovery(id) {
		if !keep[msg.Topic] {
			b.publish(msg.Topic, msg.Payload, true)
		}
	}
}

func (b *Bridge) subscribeCommands() {
	for _, v := range b.devices.Devices() {
		id := v.ID
		topic := b.deviceTopic(id) + "/set"
		b.client.Subscribe(topic, 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
			b.handleCommand(id, msg.Payload())
		})
	}
}

func (b *Bridge) handleCommand(id string, payload []byte) {
	intents, err := command.DecodeIntents(payload)
	if err != nil {
		b.logger.Warn("invalid command", "device", id, "err", err)
		return
	}

	for _, in := range intents {
		ctx, cancel := context.WithTimeout(b.ctx, 15*time.Second)
		reqID, err := b.devices.Apply(ctx, id, in)
		cancel()
		if err != nil {
			var verr *command.ValidationError
			if errors.As(err, &verr) {
				b.logger.Warn("command rejected", "device", id, "intent", in.String(), "err", err)
			} else {
				b.logger.Warn("command failed", "device", id, "intent", in.String(), "err", err)
			}
			continue
		}
		b.logger.Debug("command applied", "device", id, "intent", in.String(), "request", reqID)
	}
}

func (b *Bridge) publish(topic string, payload []byte, retained bool) {
	if b.publishFn == nil {
		return
	}
	b.publishFn(topic, payload, retained)
}

func (b *Bridge) clientPublish(topic string, payload []byte, retained bool) {
	token := b.client.Publish(topic, 1, retained, payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			b.logger.Warn("MQTT publish timeout", "topic", topic)
		} else if err := token.Error(); err != nil {
			b.logger.Warn("MQTT publish error", "topic", topic, "err", err)
		}
	}()
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
