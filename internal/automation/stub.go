//go:build no_automation

package automation

import (
	"context"
	"errors"
	"log/slog"

	"melcloud-bridge/internal/command"
	"melcloud-bridge/internal/engine"
	"melcloud-bridge/internal/events"
)

// ScriptMeta holds user-editable metadata for a script.
type ScriptMeta struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Enabled     bool     `json:"enabled"`
	Devices     []string `json:"devices,omitempty"`
}

// Script represents a single automation script stored on disk.
type Script struct {
	ID       string     `json:"id"`
	Meta     ScriptMeta `json:"meta"`
	LuaCode  string     `json:"lua_code"`
	FilePath string     `json:"-"`
}

// Watches reports true.
func (s *Script) Watches(_ string) bool { return true }

// RunResult is the result of a one-shot script execution.
type RunResult struct {
	OK       bool            `json:"ok"`
	Error    string          `json:"error,omitempty"`
	Device   string          `json:"device,omitempty"`
	Logs     []string        `json:"logs"`
	Commands []CommandResult `json:"commands"`
	Duration string          `json:"duration"`
}

// CommandResult is one melcloud.command call made during a one-shot run.
type CommandResult struct {
	Device    string `json:"device"`
	Intent    string `json:"intent"`
	RequestID string `json:"request_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// RunOptions scopes a one-shot run.
type RunOptions struct {
	Device string
}

// Devices is the part of the sync engine scripts can see and drive.
type Devices interface {
	Devices() []engine.View
	Device(id string) (engine.View, bool)
	Apply(ctx context.Context, deviceID string, in command.Intent) (string, error)
}

// ErrScriptNotFound is returned by Get and Delete for unknown script ids.
var ErrScriptNotFound = errors.New("script not found")

// Manager is a no-op stub when automation is disabled.
type Manager struct{}

// NewManager returns nil manager when automation is disabled.
func NewManager(_ string, _ *slog.Logger) (*Manager, error) { return nil, nil }

// List returns nil.
func (m *Manager) List() ([]*Script, error) { return nil, nil }

// Get returns nil.
func (m *Manager) Get(_ string) (*Script, error) { return nil, nil }

// Save returns the script unchanged.
func (m *Manager) Save(s *Script) (*Script, error) { return s, nil }

// Delete is a no-op.
func (m *Manager) Delete(_ string) error { return nil }

// Engine is a no-op stub when automation is disabled.
type Engine struct{}

// NewEngine returns a no-op engine when automation is disabled.
func NewEngine(_ Devices, _ *events.Bus, _ *Manager, _ *slog.Logger) *Engine {
	return &Engine{}
}

// Start is a no-op.
func (e *Engine) Start() {}

// Stop is a no-op.
func (e *Engine) Stop() {}

// ReloadScript is a no-op.
func (e *Engine) ReloadScript(_ string) error { return nil }

// StopScript is a no-op.
func (e *Engine) StopScript(_ string) {}

// Running reports false.
func (e *Engine) Running(_ string) bool { return false }

// RunScript returns a stub result.
func (e *Engine) RunScript(_ string, _ RunOptions) *RunResult {
	return &RunResult{OK: false, Error: "automation disabled"}
}

// RunLuaCode returns a stub result.
func (e *Engine) RunLuaCode(_ string, _ RunOptions) *RunResult {
	return &RunResult{OK: false, Error: "automation disabled"}
}
