//go:build !no_automation

package automation

import (
	"context"
	"time"

	lua "github.com/yuin/gopher-lua"

	"melcloud-bridge/internal/command"
)

const (
	maxHandlersPerScript = 100
	commandTimeout       = 15 * time.Second
)

// registerMelcloudModule registers the `melcloud` global table in a Lua state.
func registerMelcloudModule(L *lua.LState, vm *scriptVM, e *Engine) {
	mod := L.NewTable()

	mod.RawSetString("on", L.NewFunction(func(L *lua.LState) int {
		return melcloudOn(L, vm)
	}))
	mod.RawSetString("command", L.NewFunction(func(L *lua.LState) int {
		return melcloudCommand(L, vm, e)
	}))
	mod.RawSetString("state", L.NewFunction(func(L *lua.LState) int {
		return melcloudState(L, e)
	}))
	mod.RawSetString("devices", L.NewFunction(func(L *lua.LState) int {
		return melcloudDevices(L, e)
	}))
	mod.RawSetString("after", L.NewFunction(func(L *lua.LState) int {
		return melcloudAfter(L, vm, e)
	}))
	mod.RawSetString("log", L.NewFunction(func(L *lua.LState) int {
		return melcloudLog(L, vm, e)
	}))

	L.SetGlobal("melcloud", mod)
}

// melcloud.on(kind, [device,] callback)
//
// kind is an event type ("normalized_state", "raw_pair", "warning",
// "debug_trace") or "*".
func melcloudOn(L *lua.LState, vm *scriptVM) int {
	h := luaEventHandler{kind: L.CheckString(1)}
	if L.GetTop() >= 3 {
		h.device = L.CheckString(2)
		h.fn = L.CheckFunction(3)
	} else {
		h.fn = L.CheckFunction(2)
	}

	vm.mu.Lock()
	defer vm.mu.Unlock()
	if len(vm.handlers) >= maxHandlersPerScript {
		L.RaiseError("too many handlers (max %d)", maxHandlersPerScript)
		return 0
	}
	vm.handlers = append(vm.handlers, h)
	return 0
}

// melcloud.command(device, field, value [, zone]) -> request_id | nil, err
func melcloudCommand(L *lua.LState, vm *scriptVM, e *Engine) int {
	id := L.CheckString(1)
	field := L.CheckString(2)
	value := luaToGo(L.CheckAny(3))

	var zone *int
	if L.GetTop() >= 4 {
		z := L.CheckInt(4)
		zone = &z
	}

	res := CommandResult{Device: id, Intent: field}
	fail := func(err error) int {
		res.Error = err.Error()
		if vm.record != nil {
			vm.record(res)
		}
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}

	in, err := command.NewIntent(field, value, zone)
	if err != nil {
		return fail(err)
	}
	res.Intent = in.String()

	ctx, cancel := context.WithTimeout(vm.ctx, commandTimeout)
	defer cancel()
	reqID, err := e.devices.Apply(ctx, id, in)
	if err != nil {
		e.logger.Warn("script command failed", "script", vm.script.ID, "device", id, "intent", in.String(), "err", err)
		return fail(err)
	}
	e.logger.Debug("script command", "script", vm.script.ID, "device", id, "intent", in.String(), "request", reqID)
	res.RequestID = reqID
	if vm.record != nil {
		vm.record(res)
	}
	L.Push(lua.LString(reqID))
	return 1
}

// melcloud.state(device) -> normalized state table, or nil before the first sync
func melcloudState(L *lua.LState, e *Engine) int {
	v, ok := e.devices.Device(L.CheckString(1))
	if !ok || v.State == nil {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(goToLua(L, toGeneric(v.State)))
	return 1
}

// melcloud.devices() -> {{id=, name=, family=}, ...}
func melcloudDevices(L *lua.LState, e *Engine) int {
	tbl := L.NewTable()
	for i, v := range e.devices.Devices() {
		d := L.NewTable()
		d.RawSetString("id", lua.LString(v.ID))
		d.RawSetString("name", lua.LString(v.Name))
		d.RawSetString("family", lua.LString(v.Family.String()))
		tbl.RawSetInt(i+1, d)
	}
	L.Push(tbl)
	return 1
}

// melcloud.after(seconds, callback) runs callback later on the script's VM.
func melcloudAfter(L *lua.LState, vm *scriptVM, e *Engine) int {
	seconds := L.CheckNumber(1)
	fn := L.CheckFunction(2)

	go func() {
		timer := time.NewTimer(time.Duration(float64(seconds) * float64(time.Second)))
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-vm.ctx.Done():
			return
		}

		select {
		case vm.commands <- func(L *lua.LState) {
			if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}); err != nil {
				e.logger.Error("after callback error", "script", vm.script.ID, "err", err)
			}
		}:
		default:
			e.logger.Warn("after: command channel full", "script", vm.script.ID)
		}
	}()
	return 0
}

// melcloud.log(msg)
func melcloudLog(L *lua.LState, vm *scriptVM, e *Engine) int {
	msg := L.CheckString(1)
	if vm.logf != nil {
		vm.logf(msg)
	}
	e.logger.Info("script log", "script", vm.script.ID, "msg", msg)
	return 0
}
