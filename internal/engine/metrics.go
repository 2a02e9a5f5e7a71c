// Package engine: Prometheus metrics, attached purely through the Hook seam
// (spec SPEC_FULL §3 domain stack) so core logic never imports the
// prometheus client directly.

package engine

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsHook records loop iteration counts, compression-pass counts, and
// retry/loop-detection events as Prometheus series.
type MetricsHook struct {
	Iterations      prometheus.Counter
	ToolCalls       prometheus.Counter
	CompactionPasses *prometheus.CounterVec
	LoopDetections  prometheus.Counter
	RetryAttempts   *prometheus.CounterVec
	LLMDuration     prometheus.Histogram

	NopHook // satisfies every Hook method not overridden below
	llmStart time.Time
}

// NewMetricsHook registers and returns a MetricsHook on reg.
func NewMetricsHook(reg prometheus.Registerer) *MetricsHook {
	h := &MetricsHook{
		Iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentcore_loop_iterations_total",
			Help: "Total tool-loop iterations executed.",
		}),
		ToolCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentcore_tool_calls_total",
			Help: "Total tool calls dispatched.",
		}),
		CompactionPasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentcore_compaction_passes_total",
			Help: "Total compaction strategy applications, by strategy.",
		}, []string{"strategy"}),
		LoopDetections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentcore_loop_detections_total",
			Help: "Total times the loop-pattern detector fired.",
		}),
		RetryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentcore_retry_attempts_total",
			Help: "Total retry attempts, by outcome.",
		}, []string{"outcome"}),
		LLMDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "agentcore_llm_call_duration_seconds",
			Help:    "LLM call duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(h.Iterations, h.ToolCalls, h.CompactionPasses, h.LoopDetections, h.RetryAttempts, h.LLMDuration)
	return h
}

func (h *MetricsHook) OnStepStart(ctx context.Context, st *State) {
	h.Iterations.Inc()
	h.llmStart = time.Now()
}

func (h *MetricsHook) OnAfterLLM(ctx context.Context, st *State, resp LLMResponse) {
	h.LLMDuration.Observe(time.Since(h.llmStart).Seconds())
}

func (h *MetricsHook) OnToolCall(ctx context.Context, st *State, call ToolCall) {
	h.ToolCalls.Inc()
}

func (h *MetricsHook) OnCompaction(ctx context.Context, st *State, before, after int, strategy string) {
	h.CompactionPasses.WithLabelValues(strategy).Inc()
}

func (h *MetricsHook) OnLoopDetected(ctx context.Context, st *State, description string) {
	h.LoopDetections.Inc()
}

func (h *MetricsHook) OnRetryAttempt(ctx context.Context, st *State, attempt, maxAttempts int, delay time.Duration, err error) {
	h.RetryAttempts.WithLabelValues("attempted").Inc()
}

func (h *MetricsHook) OnRetryExhausted(ctx context.Context, st *State, err error) {
	h.RetryAttempts.WithLabelValues("exhausted").Inc()
}
