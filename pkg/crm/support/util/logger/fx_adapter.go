package logger

import (
	"strings"

	"go.uber.org/fx/fxevent"
)

// FxLoggerAdapter routes fx container events into the package logger.
// Container plumbing is logged at DEBUG; only failures and the start event surface above it.
type FxLoggerAdapter struct{}

// NewFxLoggerAdapter creates a new instance of FxLoggerAdapter.
func NewFxLoggerAdapter() fxevent.Logger {
	return &FxLoggerAdapter{}
}

// LogEvent logs events from fx.
func (l *FxLoggerAdapter) LogEvent(event fxevent.Event) {
	switch e := event.(type) {
	case *fxevent.OnStartExecuting:
		Debugf("OnStart hook executing: %s", shortFunctionName(e.FunctionName))
	case *fxevent.OnStartExecuted:
		logHookResult("OnStart", e.FunctionName, e.Err)
	case *fxevent.OnStopExecuting:
		Debugf("OnStop hook executing: %s", shortFunctionName(e.FunctionName))
	case *fxevent.OnStopExecuted:
		logHookResult("OnStop", e.FunctionName, e.Err)
	case *fxevent.Supplied:
		if e.Err != nil {
			Errorf("Supply of %s failed: %v", e.TypeName, e.Err)
		}
	case *fxevent.Provided:
		if e.Err != nil {
			Errorf("Provide via %s failed: %v", shortFunctionName(e.ConstructorName), e.Err)
			return
		}
		Debugf("Provided: %s", strings.Join(e.OutputTypeNames, ", "))
	case *fxevent.Invoked:
		if e.Err != nil {
			Errorf("Invoke of %s failed: %v", shortFunctionName(e.FunctionName), e.Err)
		}
	case *fxevent.Stopping:
		Infof("Received %s, stopping.", strings.ToUpper(e.Signal.String()))
	case *fxevent.Stopped:
		if e.Err != nil {
			Errorf("Stop failed: %v", e.Err)
		}
	case *fxevent.RollingBack:
		Errorf("Start failed, rolling back: %v", e.StartErr)
	case *fxevent.RolledBack:
		if e.Err != nil {
			Errorf("Rollback failed: %v", e.Err)
		}
	case *fxevent.Started:
		if e.Err != nil {
			Errorf("Start failed: %v", e.Err)
		} else {
			Debugf("Container started.")
		}
	case *fxevent.LoggerInitialized:
		if e.Err != nil {
			Errorf("Custom logger initialization failed: %v", e.Err)
		}
	}
}

func logHookResult(kind, functionName string, err error) {
	if err != nil {
		Errorf("%s hook %s failed: %v", kind, shortFunctionName(functionName), err)
		return
	}
	Debugf("%s hook executed: %s", kind, shortFunctionName(functionName))
}

// shortFunctionName strips the package path and any anonymous function suffix
// (".func1") from an fx function name.
func shortFunctionName(funcName string) string {
	if idx := strings.LastIndex(funcName, ".func"); idx != -1 {
		funcName = funcName[:idx]
	}
	if idx := strings.LastIndex(funcName, "/"); idx != -1 {
		funcName = funcName[idx+1:]
	}
	return funcName
}
