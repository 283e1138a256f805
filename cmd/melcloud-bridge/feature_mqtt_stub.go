//go:build no_mqtt

package main

import (
	"log/slog"

	"melcloud-bridge/internal/engine"
	"melcloud-bridge/internal/events"
)

type mqttStopper struct{}

func (m *mqttStopper) Stop() {}

func initMQTT(_ *engine.Engine, _ *events.Bus, _ *Config, _ *slog.Logger) *mqttStopper {
	return &mqttStopper{}
}
