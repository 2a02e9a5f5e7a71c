// Package engine: Context Manager (spec §4.6). Trims or compresses a
// message list to fit a model's context budget and surfaces warnings before
// the hard limit is hit.

package engine

import (
	"context"
	"fmt"
	"strings"
)

// ManagedContext is manage_context's return value.
type ManagedContext struct {
	Messages        []ChatMessage
	EstimatedTokens int
	MaxTokens       int
	Warning         string
	WasTrimmed      bool
}

// ModelContextLimit derives a model's context window from its id via the
// coarse lookup spec §4.6 documents as an open question: an explicit
// per-model table should replace this when one is available.
func ModelContextLimit(model string) int {
	lower := strings.ToLower(model)
	if strings.Contains(lower, "gpt-4") || strings.Contains(lower, "claude") {
		return 128000
	}
	if strings.Contains(lower, "gpt-3.5") {
		return 16000
	}
	return 120000
}

const (
	maxContextFraction     = 0.85
	warningThresholdFraction = 0.70
	minMiddleForRecursiveCompression = 8
	keepHeadTailWhenCompressing      = 6
)

// ContextManager implements manage_context.
type ContextManager struct {
	Compressor *Compressor
}

// ManageContext fuses system_prompt and memory_context, checks the result
// against the model's budget, and either leaves it alone, recursively
// compresses the middle, or falls back to naive head-trimming (removing the
// message at index 1 repeatedly).
func (cm *ContextManager) ManageContext(
	ctx context.Context,
	model string,
	messages []ChatMessage,
	systemPrompt string,
	memoryContext string,
) (ManagedContext, error) {
	fused := fuseSystemPrompt(systemPrompt, memoryContext)

	full := messages
	if fused != "" {
		full = append([]ChatMessage{{Role: RoleSystem, Content: fused}}, messages...)
	}

	limit := ModelContextLimit(model)
	maxTokens := int(float64(limit) * maxContextFraction)
	warningThreshold := int(float64(limit) * warningThresholdFraction)

	tokens := EstimateMessages(full)

	warning := ""
	if tokens > warningThreshold {
		warning = fmt.Sprintf("context at %d tokens, approaching the %d-token budget", tokens, maxTokens)
	}

	if tokens <= maxTokens || len(full) <= 2 {
		return ManagedContext{Messages: full, EstimatedTokens: tokens, MaxTokens: maxTokens, Warning: warning}, nil
	}

	trimmed, err := cm.reduce(ctx, full, maxTokens)
	if err != nil {
		return ManagedContext{}, err
	}

	return ManagedContext{
		Messages:        trimmed,
		EstimatedTokens: EstimateMessages(trimmed),
		MaxTokens:       maxTokens,
		Warning:         warning,
		WasTrimmed:      true,
	}, nil
}

func fuseSystemPrompt(systemPrompt, memoryContext string) string {
	switch {
	case systemPrompt == "" && memoryContext == "":
		return ""
	case systemPrompt == "":
		return memoryContext
	case memoryContext == "":
		return systemPrompt
	default:
		return systemPrompt + "\n---\n" + memoryContext
	}
}

// reduce prefers recursive compression of the middle when enough of it
// remains (spec §4.6: "keep system + last 6 as-is, recurse over the middle,
// splice a compressed summary back"), falling back to naive trim-by-index-1
// when the compressor is unavailable or there isn't enough middle to bother.
func (cm *ContextManager) reduce(ctx context.Context, messages []ChatMessage, maxTokens int) ([]ChatMessage, error) {
	if cm.Compressor != nil && len(messages) > keepHeadTailWhenCompressing+1+minMiddleForRecursiveCompression {
		head := messages[0]
		tail := messages[len(messages)-keepHeadTailWhenCompressing:]
		middle := messages[1 : len(messages)-keepHeadTailWhenCompressing]

		middleText := renderMessagesAsText(middle)
		result, err := cm.Compressor.Process(ctx, middleText)
		if err == nil {
			spliced := make([]ChatMessage, 0, 2+len(tail))
			spliced = append(spliced, head)
			spliced = append(spliced, ChatMessage{
				Role:    RoleSystem,
				Content: fmt.Sprintf("[Compressed %d earlier messages]\n%s", len(middle), result.FinalSummary),
			})
			spliced = append(spliced, tail...)
			if EstimateMessages(spliced) <= maxTokens {
				return spliced, nil
			}
		}
	}

	return trimByRemovingIndexOne(messages, maxTokens), nil
}

// trimByRemovingIndexOne repeatedly removes the message at index 1
// (preserving the system message at index 0 and the tail) until under
// budget.
func trimByRemovingIndexOne(messages []ChatMessage, maxTokens int) []ChatMessage {
	current := append([]ChatMessage(nil), messages...)
	for len(current) > 2 && EstimateMessages(current) > maxTokens {
		current = append(current[:1], current[2:]...)
	}
	return current
}

func renderMessagesAsText(messages []ChatMessage) string {
	var sb strings.Builder
	for _, m := range messages {
		sb.WriteString(string(m.Role))
		sb.WriteString(": ")
		sb.WriteString(m.ContentAsText())
		sb.WriteString("\n\n")
	}
	return sb.String()
}
