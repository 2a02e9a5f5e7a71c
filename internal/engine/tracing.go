// Package engine: OpenTelemetry tracing, one span per tool-loop iteration
// and per tool call, attached via the Hook seam.

package engine

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TracingHook starts one span per step (closed on the next OnStepStart or
// OnDone) and one child span per tool call.
type TracingHook struct {
	Tracer trace.Tracer

	NopHook
	stepSpan trace.Span
	toolSpan trace.Span
}

// NewTracingHook builds a TracingHook using the named tracer from the
// global otel TracerProvider.
func NewTracingHook(tracerName string) *TracingHook {
	return &TracingHook{Tracer: otel.Tracer(tracerName)}
}

func (h *TracingHook) endStep() {
	if h.stepSpan != nil {
		h.stepSpan.End()
		h.stepSpan = nil
	}
}

func (h *TracingHook) OnStepStart(ctx context.Context, st *State) {
	h.endStep()
	_, span := h.Tracer.Start(ctx, "tool_loop.step",
		trace.WithAttributes(
			attribute.Int("step", st.Step),
			attribute.String("phase", string(st.Phase)),
			attribute.String("model", st.Model),
		))
	h.stepSpan = span
}

func (h *TracingHook) OnToolCall(ctx context.Context, st *State, call ToolCall) {
	_, span := h.Tracer.Start(ctx, "tool_loop.tool_call",
		trace.WithAttributes(attribute.String("tool.name", call.Name)))
	h.toolSpan = span
}

func (h *TracingHook) OnToolResult(ctx context.Context, st *State, call ToolCall, result ToolResult, err error) {
	if h.toolSpan == nil {
		return
	}
	h.toolSpan.SetAttributes(attribute.Bool("tool.success", result.Success))
	if err != nil {
		h.toolSpan.RecordError(err)
	}
	h.toolSpan.End()
	h.toolSpan = nil
}

func (h *TracingHook) OnDone(ctx context.Context, st *State, reason StopReason) {
	if h.stepSpan != nil {
		h.stepSpan.SetAttributes(attribute.String("stop_reason", string(reason)))
	}
	h.endStep()
}
