package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Dispatch outcomes reported through Dispatcher.OnDispatch.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Dispatcher resolves model output to known tools and runs them.
type Dispatcher struct {
	registry *Registry
	exec     Executor
	timeout  time.Duration
	log      *slog.Logger

	// OnDispatch, when set, observes each dispatch result.
	OnDispatch func(tool, outcome string)
}

// NewDispatcher runs invocations for tools in registry through exec. Each
// dispatch is bounded by timeout when positive.
func NewDispatcher(registry *Registry, exec Executor, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{registry: registry, exec: exec, timeout: timeout, log: logger}
}

// Resolve reports whether text is a valid invocation of a registered tool.
// Unknown tools and data failing the tool schema resolve to false, so the
// text is treated as speech.
func (d *Dispatcher) Resolve(text string) (Invocation, Tool, bool) {
	if d == nil || d.registry == nil {
		return Invocation{}, Tool{}, false
	}
	inv, ok := ParseInvocation(text)
	if !ok {
		return Invocation{}, Tool{}, false
	}
	tool, ok := d.registry.Lookup(inv.Tool)
	if !ok {
		d.log.Debug("invocation for unknown tool", "tool", inv.Tool)
		return Invocation{}, Tool{}, false
	}
	if err := d.registry.Validate(inv); err != nil {
		d.log.Warn("invalid tool invocation", "tool", inv.Tool, "err", err)
		return Invocation{}, Tool{}, false
	}
	return inv, tool, true
}

// Dispatch runs inv and returns the confirmation to speak. The error is
// returned for logging only; the confirmation already reflects it.
func (d *Dispatcher) Dispatch(ctx context.Context, inv Invocation, tool Tool) (string, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	var err error
	if d.exec == nil {
		err = fmt.Errorf("no executor configured")
	} else {
		err = d.exec.Execute(ctx, inv)
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
		d.log.Warn("tool dispatch failed", "tool", inv.Tool, "err", err)
	}
	if d.OnDispatch != nil {
		d.OnDispatch(inv.Tool, outcome)
	}
	return Confirmation(tool, err), err
}

// Confirmation is the spoken result of a dispatch.
func Confirmation(tool Tool, err error) string {
	if err != nil {
		return fmt.Sprintf("There was an issue saving to %s.", tool.DisplayName())
	}
	return fmt.Sprintf("Saved to %s.", tool.DisplayName())
}
