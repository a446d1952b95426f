package compiler

import (
	"time"

	"github.com/dop251/goja"
)

// DefaultSmokeTimeout bounds a preview smoke run.
const DefaultSmokeTimeout = 250 * time.Millisecond

// SmokeResult is the diagnostic outcome of running the script buffer in an
// isolated interpreter. A failing run is a normal, expected outcome of
// untrusted student code — it is surfaced as a preview diagnostic, never as
// an engine error.
type SmokeResult struct {
	OK       bool          `json:"ok"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// SmokeRunner executes the student script inside a goja interpreter with an
// interrupt-based timeout. The interpreter has no host bindings beyond a
// console stub, so student code cannot reach the host process, network or
// filesystem.
type SmokeRunner struct {
	timeout time.Duration
}

// NewSmokeRunner creates a runner with the given per-run timeout.
func NewSmokeRunner(timeout time.Duration) *SmokeRunner {
	if timeout <= 0 {
		timeout = DefaultSmokeTimeout
	}
	return &SmokeRunner{timeout: timeout}
}

// Run executes script and reports whether it completed without throwing.
// Browser globals (document, window) are stubbed as empty objects so DOM
// lookups fail softly instead of aborting the whole diagnostic.
func (r *SmokeRunner) Run(script string) SmokeResult {
	vm := goja.New()
	vm.SetMaxCallStackSize(1024)

	setupStubGlobals(vm)

	timer := time.AfterFunc(r.timeout, func() {
		vm.Interrupt("execution timeout exceeded")
	})
	defer timer.Stop()

	start := time.Now()
	_, err := vm.RunString(script)
	elapsed := time.Since(start)

	if err != nil {
		return SmokeResult{OK: false, Error: err.Error(), Duration: elapsed}
	}
	return SmokeResult{OK: true, Duration: elapsed}
}

func setupStubGlobals(vm *goja.Runtime) {
	noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }

	console := vm.NewObject()
	_ = console.Set("log", noop)
	_ = console.Set("warn", noop)
	_ = console.Set("error", noop)
	_ = console.Set("info", noop)
	_ = vm.Set("console", console)

	document := vm.NewObject()
	_ = document.Set("getElementById", noop)
	_ = document.Set("querySelector", noop)
	_ = document.Set("querySelectorAll", noop)
	_ = document.Set("addEventListener", noop)
	_ = vm.Set("document", document)

	window := vm.NewObject()
	_ = window.Set("addEventListener", noop)
	_ = vm.Set("window", window)
}
