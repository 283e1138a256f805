//go:build !no_automation

package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"melcloud-bridge/internal/command"
	"melcloud-bridge/internal/engine"
	"melcloud-bridge/internal/events"
)

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

// RunOptions scopes a one-shot run. With Device set, only handlers that can
// receive that device's events are dry-run, fed with its current state.
type RunOptions struct {
	Device string
}

// Devices is the part of the sync engine scripts can see and drive.
type Devices interface {
	Devices() []engine.View
	Device(id string) (engine.View, bool)
	Apply(ctx context.Context, deviceID string, in command.Intent) (string, error)
}

// luaEventHandler is a registered Lua callback for an event kind.
type luaEventHandler struct {
	kind   string // "*" matches every kind
	device string // empty = any device
	fn     *lua.LFunction
}

// scriptVM is a running Lua VM for a single script.
type scriptVM struct {
	script   *Script
	state    *lua.LState
	commands chan func(*lua.LState) // serializes Lua access
	handlers []luaEventHandler
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex // protects handlers
	// logf and record capture melcloud.log and melcloud.command in
	// one-shot runs.
	logf   func(msg string)
	record func(CommandResult)
}

// Engine manages Lua VMs and dispatches bus events to scripts.
type Engine struct {
	devices Devices
	bus     *events.Bus
	manager *Manager
	logger  *slog.Logger

	mu    sync.Mutex
	vms   map[string]*scriptVM // script ID -> running VM
	unsub func()
}

// NewEngine creates a new automation engine.
func NewEngine(devices Devices, bus *events.Bus, mgr *Manager, logger *slog.Logger) *Engine {
	return &Engine{
		devices: devices,
		bus:     bus,
		manager: mgr,
		logger:  logger.With("component", "automation"),
		vms:     make(map[string]*scriptVM),
	}
}

// Start subscribes to the bus and loads all enabled scripts.
func (e *Engine) Start() {
	e.unsub = e.bus.OnAll(e.dispatchEvent)

	scripts, err := e.manager.List()
	if err != nil {
		e.logger.Error("load scripts", "err", err)
		return
	}

	for _, s := range scripts {
		if !s.Meta.Enabled {
			continue
		}
		if err := e.startScript(s); err != nil {
			e.logger.Error("start script", "id", s.ID, "err", err)
		}
	}

	e.mu.Lock()
	n := len(e.vms)
	e.mu.Unlock()
	e.logger.Info("automation engine started", "scripts", n)
}

// Stop cancels all VMs and unsubscribes from the bus.
func (e *Engine) Stop() {
	if e.unsub != nil {
		e.unsub()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for id, vm := range e.vms {
		vm.cancel()
		delete(e.vms, id)
	}

	e.logger.Info("automation engine stopped")
}

// ReloadScript stops the old VM (if any) and starts a new one.
func (e *Engine) ReloadScript(id string) error {
	e.stopScript(id)

	s, err := e.manager.Get(id)
	if err != nil {
		return fmt.Errorf("get script: %w", err)
	}
	if !s.Meta.Enabled {
		return nil
	}
	return e.startScript(s)
}

// StopScript stops a running script VM.
func (e *Engine) StopScript(id string) {
	e.stopScript(id)
}

// Running reports whether a script has a live VM.
func (e *Engine) Running(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.vms[id]
	return ok
}

// RunScript executes a saved script once in a temporary VM.
func (e *Engine) RunScript(id string, opt RunOptions) *RunResult {
	start := time.Now()

	s, err := e.manager.Get(id)
	if err != nil {
		return &RunResult{OK: false, Error: err.Error(), Device: opt.Device, Duration: time.Since(start).String()}
	}
	return e.run(s.LuaCode, s, opt)
}

// RunLuaCode executes arbitrary Lua code once in a temporary VM.
func (e *Engine) RunLuaCode(code string, opt RunOptions) *RunResult {
	return e.run(code, &Script{ID: "_inline"}, opt)
}

// run executes code, then calls every handler it registered once with a
// synthetic event built from the device's current state, so a dry run
// exercises the script's actions.
func (e *Engine) run(code string, s *Script, opt RunOptions) *RunResult {
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var (
		logs     []string
		commands []CommandResult
		logMu    sync.Mutex
	)
	L, vm := e.newVM(ctx, cancel, s)
	defer L.Close()
	L.SetContext(ctx)
	vm.logf = func(msg string) {
		logMu.Lock()
		logs = append(logs, msg)
		logMu.Unlock()
	}
	vm.record = func(c CommandResult) {
		logMu.Lock()
		commands = append(commands, c)
		logMu.Unlock()
	}

	result := func(err error) *RunResult {
		logMu.Lock()
		defer logMu.Unlock()
		r := &RunResult{
			OK:       err == nil,
			Device:   opt.Device,
			Logs:     logs,
			Commands: commands,
			Duration: time.Since(start).String(),
		}
		if err != nil {
			r.Error = luaError(err)
		}
		return r
	}

	if err := L.DoString(code); err != nil {
		e.logger.Warn("script run error", "id", s.ID, "err", err)
		return result(err)
	}

	vm.mu.Lock()
	handlers := make([]luaEventHandler, len(vm.handlers))
	copy(handlers, vm.handlers)
	vm.mu.Unlock()

	for _, h := range handlers {
		ev, ok := e.syntheticEvent(h, s, opt.Device)
		if !ok {
			continue
		}
		if err := L.CallByParam(lua.P{Fn: h.fn, NRet: 0, Protect: true}, eventTable(L, ev)); err != nil {
			e.logger.Warn("script run handler error", "id", s.ID, "err", err)
			return result(err)
		}
	}
	return result(nil)
}

func luaError(err error) string {
	msg := err.Error()
	if strings.Contains(msg, "context deadline exceeded") {
		return "timeout (5s)"
	}
	return msg
}

// syntheticEvent fabricates the event a handler would normally receive.
// Only state handlers can be dry-run; they need a synchronized device the
// script watches. A non-empty device narrows the choice to that device.
func (e *Engine) syntheticEvent(h luaEventHandler, s *Script, device string) (events.Event, bool) {
	if h.kind != string(events.KindNormalizedState) && h.kind != "*" {
		return nil, false
	}
	want := h.device
	if device != "" {
		if want != "" && want != device {
			return nil, false
		}
		want = device
	}
	var views []engine.View
	if want != "" {
		if v, ok := e.devices.Device(want); ok {
			views = append(views, v)
		}
	} else {
		views = e.devices.Devices()
	}
	for _, v := range views {
		if v.State != nil && s.Watches(v.ID) {
			return events.NormalizedStateUpdated{DeviceID: v.ID, State: *v.State, Time: time.Now()}, true
		}
	}
	return nil, false
}

func (e *Engine) stopScript(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if vm, ok := e.vms[id]; ok {
		vm.cancel()
		delete(e.vms, id)
		e.logger.Info("script stopped", "id", id)
	}
}

// newVM builds a sandboxed Lua state with the script modules registered.
func (e *Engine) newVM(ctx context.Context, cancel context.CancelFunc, s *Script) (*lua.LState, *scriptVM) {
	L := lua.NewState()
	for _, name := range []string{"os", "io", "loadfile", "dofile", "require", "load", "debug", "package"} {
		L.SetGlobal(name, lua.LNil)
	}

	vm := &scriptVM{
		script:   s,
		state:    L,
		commands: make(chan func(*lua.LState), 64),
		ctx:      ctx,
		cancel:   cancel,
	}
	registerMelcloudModule(L, vm, e)
	registerSystemModule(L, e)
	return L, vm
}

func (e *Engine) startScript(s *Script) error {
	ctx, cancel := context.WithCancel(context.Background())
	L, vm := e.newVM(ctx, cancel, s)

	if err := L.DoString(s.LuaCode); err != nil {
		cancel()
		L.Close()
		return fmt.Errorf("execute script %s: %w", s.ID, err)
	}

	e.mu.Lock()
	e.vms[s.ID] = vm
	e.mu.Unlock()

	go func() {
		defer L.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case fn := <-vm.commands:
				fn(L)
			}
		}
	}()

	e.logger.Info("script started", "id", s.ID, "name", s.Meta.Name)
	return nil
}

// dispatchEvent routes a bus event to all matching Lua handlers.
func (e *Engine) dispatchEvent(ev events.Event) {
	e.mu.Lock()
	vms := make([]*scriptVM, 0, len(e.vms))
	for _, vm := range e.vms {
		vms = append(vms, vm)
	}
	e.mu.Unlock()

	for _, vm := range vms {
		if vm.ctx.Err() != nil || !vm.script.Watches(ev.Device()) {
			continue
		}
		vm.mu.Lock()
		handlers := make([]luaEventHandler, len(vm.handlers))
		copy(handlers, vm.handlers)
		vm.mu.Unlock()

		for _, h := range handlers {
			if !matchesHandler(h, ev) {
				continue
			}
			fn := h.fn
			select {
			case vm.commands <- func(L *lua.LState) { e.callHandler(L, fn, ev) }:
			default:
				e.logger.Warn("script command channel full, dropping event", "id", vm.script.ID, "type", ev.Kind())
			}
		}
	}
}

func matchesHandler(h luaEventHandler, ev events.Event) bool {
	if h.kind != "*" && h.kind != string(ev.Kind()) {
		return false
	}
	return h.device == "" || h.device == ev.Device()
}

func (e *Engine) callHandler(L *lua.LState, fn *lua.LFunction, ev events.Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("lua handler panic", "err", r)
		}
	}()

	if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, eventTable(L, ev)); err != nil {
		e.logger.Error("lua handler error", "err", err)
	}
}

// eventTable renders an event the way the websocket stream does: its JSON
// fields plus "type".
func eventTable(L *lua.LState, ev events.Event) *lua.LTable {
	t := L.NewTable()
	if m, ok := toGeneric(ev).(map[string]any); ok {
		for k, v := range m {
			t.RawSetString(k, goToLua(L, v))
		}
	}
	t.RawSetString("type", lua.LString(ev.Kind()))
	return t
}

// toGeneric turns v into maps, slices and scalars via its JSON form.
func toGeneric(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

// goToLua converts a Go value to a Lua value.
func goToLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case float32:
		return lua.LNumber(val)
	case map[string]any:
		t := L.NewTable()
		for k, vv := range val {
			t.RawSetString(k, goToLua(L, vv))
		}
		return t
	case []any:
		t := L.NewTable()
		for i, vv := range val {
			t.RawSetInt(i+1, goToLua(L, vv))
		}
		return t
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}

// luaToGo converts a Lua scalar to the Go value an intent accepts.
func luaToGo(v lua.LValue) any {
	switch val := v.(type) {
	case lua.LBool:
		return bool(val)
	case lua.LNumber:
		return float64(val)
	case lua.LString:
		return string(val)
	}
	return nil
}
