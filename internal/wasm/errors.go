package wasm

import (
	"fmt"
	"time"
)

// CompilationError occurs when module compilation fails.
type CompilationError struct {
	ModuleName string
	Err        error
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("failed to compile Wasm module '%s': %v", e.ModuleName, e.Err)
}

func (e *CompilationError) Unwrap() error {
	return e.Err
}

// InstantiationError occurs when module instantiation fails.
type InstantiationError struct {
	ModuleName string
	InstanceID string
	Err        error
}

func (e *InstantiationError) Error() string {
	return fmt.Sprintf("failed to instantiate module '%s' (instance: %s): %v",
		e.ModuleName, e.InstanceID, e.Err)
}

func (e *InstantiationError) Unwrap() error {
	return e.Err
}

// ImportError occurs when a module imports a host function that is not
// provided, or one from a namespace the plugin was not granted.
type ImportError struct {
	ModuleName string
	Namespace  string
	Function   string
	Reason     string
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("module '%s' imports %s.%s: %s",
		e.ModuleName, e.Namespace, e.Function, e.Reason)
}

// ModuleNotFoundError occurs when a module is not in cache.
type ModuleNotFoundError struct {
	ModuleName string
}

func (e *ModuleNotFoundError) Error() string {
	return fmt.Sprintf("module '%s' not found in cache", e.ModuleName)
}

// InstanceLimitError occurs when the runtime already runs the maximum
// number of instances.
type InstanceLimitError struct {
	Limit int
}

func (e *InstanceLimitError) Error() string {
	return fmt.Sprintf("instance limit of %d reached", e.Limit)
}

// FunctionNotFoundError occurs when an exported function is missing.
type FunctionNotFoundError struct {
	ModuleName   string
	FunctionName string
}

func (e *FunctionNotFoundError) Error() string {
	return fmt.Sprintf("function '%s' not found in module '%s'",
		e.FunctionName, e.ModuleName)
}

// CallError occurs when a guest export traps or is aborted by a host
// function.
type CallError struct {
	FunctionName string
	Err          error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("call to '%s' failed: %v", e.FunctionName, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// HostFunctionError occurs when a host function cannot run at all.
type HostFunctionError struct {
	FunctionName string
	Err          error
}

func (e *HostFunctionError) Error() string {
	return fmt.Sprintf("host function '%s' failed: %v", e.FunctionName, e.Err)
}

func (e *HostFunctionError) Unwrap() error {
	return e.Err
}

// TimeoutError occurs when a guest call exceeds the execution timeout.
type TimeoutError struct {
	Duration time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("Wasm execution timed out after %v", e.Duration)
}
