// engine/hook_logger.go
package engine

import (
	"context"
	"log"
	"time"
)

// LoggerHook implements Hook by writing one line per event to L. This is the
// only logging the core does anywhere — everything flows through the Hook
// seam rather than direct log calls, so call sites stay testable.
type LoggerHook struct{ L *log.Logger }

func (h LoggerHook) OnStepStart(_ context.Context, st *State) {
	h.L.Printf("step=%d phase=%s", st.Step, st.Phase)
}

func (h LoggerHook) OnBeforeLLM(_ context.Context, st *State, msgs []ChatMessage, toolSchemas []ToolSchema) {
	tokenizer := GetTokenizerForModel(st.Model)
	messageTokens, _ := CountTokensForMessages(tokenizer, msgs, st.Model)

	toolSchemaTokens := 0
	for _, schema := range toolSchemas {
		nameTokens, _ := tokenizer.CountTokens(schema.Name, st.Model)
		descTokens, _ := tokenizer.CountTokens(schema.Description, st.Model)
		schemaTokens, _ := tokenizer.CountTokens(schema.JSONSchema, st.Model)
		toolSchemaTokens += nameTokens + descTokens + schemaTokens + 10
	}

	historyCount := len(st.History)
	sentCount := len(msgs)
	if historyCount != sentCount {
		h.L.Printf("step=%d: %d msgs (compressed from %d) tokens: messages=~%d tools=~%d",
			st.Step, sentCount, historyCount, messageTokens, toolSchemaTokens)
	} else {
		h.L.Printf("step=%d: %d msgs tokens: messages=~%d tools=~%d",
			st.Step, sentCount, messageTokens, toolSchemaTokens)
	}
}

func (h LoggerHook) OnAfterLLM(_ context.Context, st *State, r LLMResponse) {
	h.L.Printf("finish=%s tokens: prompt=%d completion=%d total=%d",
		r.FinishReason, r.Usage.PromptTokens, r.Usage.CompletionTokens, r.Usage.TotalTokens)
}

func (h LoggerHook) OnToolCall(_ context.Context, _ *State, c ToolCall) {
	h.L.Printf("tool -> %s args=%s", c.Name, c.Arguments)
}

func (h LoggerHook) OnToolResult(_ context.Context, _ *State, c ToolCall, result ToolResult, err error) {
	if err != nil {
		h.L.Printf("tool %s error: %v", c.Name, err)
		return
	}
	preview := result.Message
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	h.L.Printf("tool %s result (success=%v): %s", c.Name, result.Success, preview)
}

func (h LoggerHook) OnDone(_ context.Context, st *State, reason StopReason) {
	h.L.Printf("done: steps=%d reason=%s", st.Step, reason)
}

func (h LoggerHook) OnHistoryChanged(_ context.Context, _ *State) {}

func (h LoggerHook) OnRetryAttempt(_ context.Context, _ *State, attempt int, maxAttempts int, delay time.Duration, err error) {
	h.L.Printf("retry attempt=%d/%d delay=%v error=%v", attempt, maxAttempts, delay, err)
}

func (h LoggerHook) OnRetryExhausted(_ context.Context, _ *State, err error) {
	h.L.Printf("retries exhausted: %v", err)
}

func (h LoggerHook) OnFailoverAdvance(_ context.Context, _ *State, from, to string, err error) {
	h.L.Printf("failover: %s -> %s after error: %v", from, to, err)
}

func (h LoggerHook) OnCompaction(_ context.Context, _ *State, before, after int, strategy string) {
	h.L.Printf("compaction[%s]: before=%d after=%d", strategy, before, after)
}

func (h LoggerHook) OnContextTrimmed(_ context.Context, _ *State, before, after int, warning string) {
	if warning != "" {
		h.L.Printf("context trimmed: before=%d after=%d warning=%s", before, after, warning)
	} else {
		h.L.Printf("context trimmed: before=%d after=%d", before, after)
	}
}

func (h LoggerHook) OnLoopDetected(_ context.Context, _ *State, description string) {
	h.L.Printf("loop detected: %s", description)
}
