// engine/hooks.go
package engine

import (
	"context"
	"time"
)

// Hook is the observability seam every stage of the core emits through
// instead of calling a logger directly, so the engine stays testable and
// Prometheus/OTel (metrics.go, tracing.go) can attach without touching core
// logic.
type Hook interface {
	OnStepStart(ctx context.Context, st *State)
	OnBeforeLLM(ctx context.Context, st *State, messages []ChatMessage, toolSchemas []ToolSchema)
	OnAfterLLM(ctx context.Context, st *State, resp LLMResponse)
	OnToolCall(ctx context.Context, st *State, call ToolCall)
	OnToolResult(ctx context.Context, st *State, call ToolCall, result ToolResult, err error)
	OnHistoryChanged(ctx context.Context, st *State)
	OnDone(ctx context.Context, st *State, reason StopReason)

	OnRetryAttempt(ctx context.Context, st *State, attempt int, maxAttempts int, delay time.Duration, err error)
	OnRetryExhausted(ctx context.Context, st *State, err error)
	OnFailoverAdvance(ctx context.Context, st *State, fromModel string, toModel string, err error)

	OnCompaction(ctx context.Context, st *State, beforeTokens int, afterTokens int, strategy string)
	OnContextTrimmed(ctx context.Context, st *State, beforeTokens int, afterTokens int, warning string)
	OnLoopDetected(ctx context.Context, st *State, description string)
}

// NopHook implements every Hook method as a no-op; embed it to implement
// only the handful of methods you actually care about.
type NopHook struct{}

func (NopHook) OnStepStart(context.Context, *State)                                       {}
func (NopHook) OnBeforeLLM(context.Context, *State, []ChatMessage, []ToolSchema)           {}
func (NopHook) OnAfterLLM(context.Context, *State, LLMResponse)                            {}
func (NopHook) OnToolCall(context.Context, *State, ToolCall)                               {}
func (NopHook) OnToolResult(context.Context, *State, ToolCall, ToolResult, error)          {}
func (NopHook) OnHistoryChanged(context.Context, *State)                                   {}
func (NopHook) OnDone(context.Context, *State, StopReason)                                {}
func (NopHook) OnRetryAttempt(context.Context, *State, int, int, time.Duration, error)     {}
func (NopHook) OnRetryExhausted(context.Context, *State, error)                            {}
func (NopHook) OnFailoverAdvance(context.Context, *State, string, string, error)           {}
func (NopHook) OnCompaction(context.Context, *State, int, int, string)                     {}
func (NopHook) OnContextTrimmed(context.Context, *State, int, int, string)                 {}
func (NopHook) OnLoopDetected(context.Context, *State, string)                             {}
