package funrun

import (
	"context"
	"errors"
	"time"

	"github.com/dop251/goja"
	"github.com/riftdb/rift/metrics"
	"github.com/riftdb/rift/rifterr"
	"github.com/riftdb/rift/store"
	"github.com/riftdb/rift/value"
)

// timeoutSentinel is the value passed to goja's Interrupt so the caught
// *goja.InterruptedError can be told apart from any other interrupt use.
var timeoutSentinel = "funrun: wall-clock timeout"

// Execute runs one function call to completion: builds a fresh VM,
// installs the syscall bridge bound to txn, enforces the user/system
// wall-clock timeout by interrupting the runtime, and assembles the
// Outcome the caller (scheduler, sync engine, or the direct query/
// mutation path) records.
func Execute(ctx context.Context, kind Kind, limits Limits, clockTS int64, txn *store.Transaction, tableOf map[string]uint16, src Source, args value.Value, fetch FetchClient) Outcome {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.FunctionExecutionDuration, kind.String())

	bridge := newSyscallBridge(txn, tableOf, kind)
	vm := NewVM(ctx, kind, limits, clockTS, bridge, fetch)

	done := make(chan struct{})
	var result goja.Value
	var runErr error

	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				runErr = recoverToError(r)
			}
		}()
		jsArgs := fromValue(vm.rt, args)
		result, runErr = vm.Run(src.ModuleSource, src.ExportName, jsArgs)
	}()

	timeout := limits.UserTimeout
	if limits.SystemTimeout > 0 && limits.SystemTimeout < timeout {
		timeout = limits.SystemTimeout
	}
	timeoutTimer := time.NewTimer(timeout)
	defer timeoutTimer.Stop()

	select {
	case <-done:
	case <-timeoutTimer.C:
		vm.Interrupt(timeoutSentinel)
		<-done
		runErr = rifterr.ExecutionTimedOut("function exceeded %s", timeout)
		metrics.FunctionTimeoutsTotal.Inc()
	case <-ctx.Done():
		vm.Interrupt(ctx.Err())
		<-done
		runErr = ctx.Err()
	}

	outcome := Outcome{
		LogLines:         vm.logs,
		Trace:            SyscallTrace{Calls: vm.trace},
		ObservedIdentity: txn.Identity(),
		Journal:          vm.journal,
	}
	if runErr != nil {
		outcome.Err = classifyError(runErr)
		metrics.FunctionExecutionsTotal.WithLabelValues(kind.String(), "error").Inc()
		return outcome
	}
	res, convErr := toValue(result)
	if convErr != nil {
		outcome.Err = rifterr.Bug("function return value could not be converted: %v", convErr)
		metrics.FunctionExecutionsTotal.WithLabelValues(kind.String(), "error").Inc()
		return outcome
	}
	outcome.Result = res
	metrics.FunctionExecutionsTotal.WithLabelValues(kind.String(), "ok").Inc()
	return outcome
}

func recoverToError(r any) error {
	switch x := r.(type) {
	case error:
		return x
	case *goja.InterruptedError:
		return rifterr.ExecutionTimedOut("interrupted: %v", x)
	case goja.Value:
		return errors.New(x.String())
	default:
		return errors.New(goja.Undefined().String())
	}
}

// classifyError maps a raw execution error to one of §4.13's named
// execution outcomes when it isn't already a rifterr.Error produced by
// the syscall bridge or Execute itself.
func classifyError(err error) error {
	err = unwrapException(err)
	var rerr *rifterr.Error
	if errors.As(err, &rerr) {
		return rerr
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return rifterr.ExecutionTimedOut("%v", interrupted)
	}
	return rifterr.Bug("function execution failed: %v", err)
}

// unwrapException recovers the original Go error from a thrown JS
// exception when the throw originated from a Runtime.NewGoError built by
// the syscall bridge, so a rifterr.Error's code survives the round trip
// through JS instead of being flattened to a plain string.
func unwrapException(err error) error {
	var exc *goja.Exception
	if !errors.As(err, &exc) {
		return err
	}
	if inner, ok := exc.Value().Export().(error); ok {
		return inner
	}
	return errors.New(exc.Value().String())
}
