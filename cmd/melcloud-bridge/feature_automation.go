//go:build !no_automation

package main

import (
	"log/slog"

	"melcloud-bridge/internal/automation"
	"melcloud-bridge/internal/engine"
	"melcloud-bridge/internal/events"
	"melcloud-bridge/internal/web"
)

type autoStopper struct {
	engine *automation.Engine
}

func (a *autoStopper) Stop() {
	if a.engine != nil {
		a.engine.Stop()
	}
}

func initAutomation(eng *engine.Engine, bus *events.Bus, cfg *Config, logger *slog.Logger) (*autoStopper, []web.ServerOption) {
	scriptMgr, err := automation.NewManager(cfg.ScriptsDir, logger)
	if err != nil {
		logger.Error("create script manager", "err", err)
		return &autoStopper{}, nil
	}

	auto := automation.NewEngine(eng, bus, scriptMgr, logger)
	auto.Start()

	opts := []web.ServerOption{
		web.WithAutomation(auto, scriptMgr),
	}
	return &autoStopper{engine: auto}, opts
}
