package engine

import (
	"context"
	"time"
)

// Hooks fans a single call out to every registered Hook in order.
type Hooks []Hook

func (hs Hooks) OnStepStart(ctx context.Context, st *State) {
	for _, h := range hs {
		h.OnStepStart(ctx, st)
	}
}
func (hs Hooks) OnBeforeLLM(ctx context.Context, st *State, m []ChatMessage, schemas []ToolSchema) {
	for _, h := range hs {
		h.OnBeforeLLM(ctx, st, m, schemas)
	}
}
func (hs Hooks) OnAfterLLM(ctx context.Context, st *State, r LLMResponse) {
	for _, h := range hs {
		h.OnAfterLLM(ctx, st, r)
	}
}
func (hs Hooks) OnToolCall(ctx context.Context, st *State, c ToolCall) {
	for _, h := range hs {
		h.OnToolCall(ctx, st, c)
	}
}
func (hs Hooks) OnToolResult(ctx context.Context, st *State, c ToolCall, r ToolResult, err error) {
	for _, h := range hs {
		h.OnToolResult(ctx, st, c, r, err)
	}
}
func (hs Hooks) OnHistoryChanged(ctx context.Context, st *State) {
	for _, h := range hs {
		h.OnHistoryChanged(ctx, st)
	}
}
func (hs Hooks) OnDone(ctx context.Context, st *State, reason StopReason) {
	for _, h := range hs {
		h.OnDone(ctx, st, reason)
	}
}
func (hs Hooks) OnRetryAttempt(ctx context.Context, st *State, attempt, maxAttempts int, delay time.Duration, err error) {
	for _, h := range hs {
		h.OnRetryAttempt(ctx, st, attempt, maxAttempts, delay, err)
	}
}
func (hs Hooks) OnRetryExhausted(ctx context.Context, st *State, err error) {
	for _, h := range hs {
		h.OnRetryExhausted(ctx, st, err)
	}
}
func (hs Hooks) OnFailoverAdvance(ctx context.Context, st *State, from, to string, err error) {
	for _, h := range hs {
		h.OnFailoverAdvance(ctx, st, from, to, err)
	}
}
func (hs Hooks) OnCompaction(ctx context.Context, st *State, before, after int, strategy string) {
	for _, h := range hs {
		h.OnCompaction(ctx, st, before, after, strategy)
	}
}
func (hs Hooks) OnContextTrimmed(ctx context.Context, st *State, before, after int, warning string) {
	for _, h := range hs {
		h.OnContextTrimmed(ctx, st, before, after, warning)
	}
}
func (hs Hooks) OnLoopDetected(ctx context.Context, st *State, description string) {
	for _, h := range hs {
		h.OnLoopDetected(ctx, st, description)
	}
}
