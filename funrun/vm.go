package funrun

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"

	"github.com/dop251/goja"
	"github.com/riftdb/rift/rifterr"
)

// maxTimerTicks bounds one call's cooperative timer drain so a runaway
// setInterval cannot hang the runtime forever; it competes with the
// wall-clock timeout but acts as a backstop independent of it.
const maxTimerTicks = 10000

// VM is one disposable goja.Runtime standing in for a V8 isolate: built
// fresh for a single function call and discarded afterward (§4.13 "one
// VM per call, no state survives between calls").
type VM struct {
	rt       *goja.Runtime
	kind     Kind
	limits   Limits
	clockTS  float64
	rng      *rand.Rand
	timers   *timerQueue
	logs     []LogLine
	trace    []SyscallCall
	journal  []JournalEntry
	bridge   *syscallBridge
	fetch    FetchClient
	fetchCtx context.Context
}

// NewVM builds a runtime with the deterministic global environment every
// function call observes: a frozen clock, a seeded Math.random, a
// console bridged to structured logs, and cooperative timers. clockTS is
// the transaction's observed timestamp, frozen for the VM's lifetime.
// fetch may be nil; it is only ever consulted for action calls.
func NewVM(ctx context.Context, kind Kind, limits Limits, clockTS int64, bridge *syscallBridge, fetch FetchClient) *VM {
	vm := &VM{
		rt:       goja.New(),
		kind:     kind,
		limits:   limits,
		clockTS:  float64(clockTS),
		rng:      rand.New(rand.NewSource(clockTS)),
		timers:   newTimerQueue(),
		bridge:   bridge,
		fetch:    fetch,
		fetchCtx: ctx,
	}
	vm.install()
	return vm
}

func (vm *VM) install() {
	vm.installClock()
	vm.installConsole()
	vm.installTimers()
	vm.installFetch()
	if vm.bridge != nil {
		vm.bridge.install(vm)
	}
}

func (vm *VM) installClock() {
	mathObj := vm.rt.Get("Math").ToObject(vm.rt)
	_ = mathObj.Set("random", func(goja.FunctionCall) goja.Value {
		return vm.rt.ToValue(vm.rng.Float64())
	})

	dateNow := func(goja.FunctionCall) goja.Value {
		return vm.rt.ToValue(vm.clockTS)
	}
	if dateObj, ok := vm.rt.Get("Date").(*goja.Object); ok {
		_ = dateObj.Set("now", dateNow)
	}
}

func (vm *VM) installConsole() {
	console := vm.rt.NewObject()
	logFn := func(level string) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			vm.emitLog(level, call.Arguments)
			return goja.Undefined()
		}
	}
	_ = console.Set("log", logFn("log"))
	_ = console.Set("info", logFn("info"))
	_ = console.Set("warn", logFn("warn"))
	_ = console.Set("error", logFn("error"))
	_ = vm.rt.Set("console", console)
}

func (vm *VM) emitLog(level string, args []goja.Value) {
	if len(vm.logs) >= vm.limits.MaxLogLines {
		return
	}
	messages := make([]string, len(args))
	for i, a := range args {
		s := a.String()
		if len(s) > vm.limits.MaxLogLineLength {
			s = s[:vm.limits.MaxLogLineLength]
		}
		messages[i] = s
	}
	vm.logs = append(vm.logs, LogLine{Level: level, Timestamp: vm.clockTS, Messages: messages})
}

func (vm *VM) installTimers() {
	_ = vm.rt.Set("setTimeout", func(call goja.FunctionCall) goja.Value {
		return vm.rt.ToValue(vm.registerTimer(call, false))
	})
	_ = vm.rt.Set("setInterval", func(call goja.FunctionCall) goja.Value {
		return vm.rt.ToValue(vm.registerTimer(call, true))
	})
	cancel := func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return goja.Undefined()
		}
		id := call.Arguments[0].ToInteger()
		vm.timers.cancel(id)
		return goja.Undefined()
	}
	_ = vm.rt.Set("clearTimeout", cancel)
	_ = vm.rt.Set("clearInterval", cancel)
}

func (vm *VM) registerTimer(call goja.FunctionCall, interval bool) int64 {
	if len(call.Arguments) == 0 {
		return 0
	}
	fn, ok := goja.AssertFunction(call.Arguments[0])
	if !ok {
		panic(vm.rt.NewTypeError("timer callback must be a function"))
	}
	delay := float64(0)
	if len(call.Arguments) > 1 {
		delay = call.Arguments[1].ToFloat()
	}
	var extra []goja.Value
	if len(call.Arguments) > 2 {
		extra = call.Arguments[2:]
	}
	return vm.timers.schedule(fn, delay, interval, extra)
}

// installFetch installs the fetch global in every VM. Outside actions,
// doFetch rejects the call with a Forbidden error, so scripts written for
// actions fail loudly instead of silently no-op-ing elsewhere.
func (vm *VM) installFetch() {
	_ = vm.rt.Set("fetch", vm.wrapSyscall("fetch", vm.doFetch))
}

func (vm *VM) doFetch(call goja.FunctionCall, _ *VM) (goja.Value, error) {
	if vm.kind != KindAction {
		return nil, &rifterr.Error{Code: rifterr.CodeForbidden, Category: rifterr.CategoryForbidden,
			Message: fmt.Sprintf("fetch is only available in actions, not %s", vm.kind)}
	}
	if vm.fetch == nil {
		return nil, &rifterr.Error{Code: rifterr.CodeFetchFailed, Category: rifterr.CategoryExecution,
			Message: "no fetch client configured for this runtime"}
	}
	if len(call.Arguments) == 0 {
		return nil, rifterr.BadRequest(rifterr.CodeArgumentValidationError, "fetch requires a URL")
	}
	url, _ := call.Arguments[0].Export().(string)
	req := FetchRequest{URL: url, Method: http.MethodGet}
	if len(call.Arguments) > 1 {
		opts := call.Arguments[1].ToObject(vm.rt)
		if v := opts.Get("method"); v != nil && !goja.IsUndefined(v) {
			req.Method, _ = v.Export().(string)
		}
		if v := opts.Get("body"); v != nil && !goja.IsUndefined(v) {
			if s, ok := v.Export().(string); ok {
				req.Body = []byte(s)
			}
		}
		if v := opts.Get("headers"); v != nil && !goja.IsUndefined(v) {
			if m, ok := v.Export().(map[string]any); ok {
				req.Headers = make(map[string]string, len(m))
				for k, hv := range m {
					req.Headers[k] = fmt.Sprintf("%v", hv)
				}
			}
		}
	}
	resp, err := vm.fetch.Do(vm.fetchCtx, req)
	vm.journalEntry(fmt.Sprintf("fetch %s %s", req.Method, url))
	if err != nil {
		return nil, rifterr.FetchFailed(err, "fetch %s failed", url)
	}
	result := vm.rt.NewObject()
	_ = result.Set("status", resp.Status)
	_ = result.Set("ok", resp.Status >= 200 && resp.Status < 300)
	_ = result.Set("text", string(resp.Body))
	headers := vm.rt.NewObject()
	for k, v := range resp.Headers {
		_ = headers.Set(k, v)
	}
	_ = result.Set("headers", headers)
	return result, nil
}

// Run compiles src, locates the exported function named entry, invokes it
// with args, drains any cooperative timers it scheduled, and returns the
// function's return value (still a goja.Value; the caller converts it).
func (vm *VM) Run(src, entry string, args ...goja.Value) (goja.Value, error) {
	prog, err := goja.Compile(entry, src, true)
	if err != nil {
		return nil, fmt.Errorf("funrun: compile error: %w", err)
	}
	if _, err := vm.rt.RunProgram(prog); err != nil {
		return nil, fmt.Errorf("funrun: module evaluation failed: %w", err)
	}
	fnVal := vm.rt.Get(entry)
	fn, ok := goja.AssertFunction(fnVal)
	if !ok {
		return nil, fmt.Errorf("funrun: export %q is not a function", entry)
	}
	result, err := fn(goja.Undefined(), args...)
	if err != nil {
		return nil, err
	}
	if err := vm.timers.drain(maxTimerTicks, func(timerID int64) {
		vm.journalEntry(fmt.Sprintf("timer %d fired", timerID))
	}); err != nil {
		return nil, err
	}
	return result, nil
}

// journalEntry records a non-deterministic boundary crossed during this
// call, so the sync engine can replay execution in the same order if
// necessary (§4.13 "journal records non-deterministic boundaries").
func (vm *VM) journalEntry(detail string) {
	vm.journal = append(vm.journal, JournalEntry{Seq: len(vm.journal), Detail: detail})
}

// Interrupt asks the runtime to abort at its next check interval, used by
// the wall-clock timeout enforcement in Execute.
func (vm *VM) Interrupt(v any) { vm.rt.Interrupt(v) }
