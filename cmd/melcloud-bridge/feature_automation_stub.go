//go:build no_automation

package main

import (
	"log/slog"

	"melcloud-bridge/internal/engine"
	"melcloud-bridge/internal/events"
	"melcloud-bridge/internal/web"
)

type autoStopper struct{}

func (a *autoStopper) Stop() {}

func initAutomation(_ *engine.Engine, _ *events.Bus, _ *Config, _ *slog.Logger) (*autoStopper, []web.ServerOption) {
	return &autoStopper{}, nil
}
