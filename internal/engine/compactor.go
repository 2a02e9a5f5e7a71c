// Package engine: Session Compactor (spec §4.5). Compresses a conversation
// (ordered Messages), not raw text, preserving file paths, tool names, and
// user-preference statements explicitly — grounded on
// original_source/src/agent/compaction.rs's extract_key_facts/compact shape.

package engine

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

var (
	knownFileExtensions = []string{".rs", ".py", ".ts", ".js", ".toml", ".json", ".md", ".yaml", ".yml"}
	filePathPattern     = regexp.MustCompile(`\S+`)
	preferenceMarkers   = []string{"i prefer", "always use", "don't use", "never use"}
)

// CompactStrategy is one rung of compact_with_fallback's escalation ladder.
type CompactStrategy string

const (
	StrategyAutoCompact         CompactStrategy = "auto_compact"
	StrategyTruncateToolResults CompactStrategy = "truncate_tool_results"
	StrategyReduceThinking      CompactStrategy = "reduce_thinking"
	StrategyModelFailover       CompactStrategy = "model_failover"
	StrategySessionReset        CompactStrategy = "session_reset"
)

// CheapSummarizer is the narrow dependency the compactor needs: a single
// completion call against a cheap model, returning an error (not panicking)
// so the manual fallback path can kick in.
type CheapSummarizer func(ctx context.Context, prompt string) (string, error)

// SessionCompactor implements should_compact/compact/compact_with_fallback.
type SessionCompactor struct {
	Summarizer CheapSummarizer
}

// ShouldCompact is true iff len(messages) > maxMessages AND the estimated
// token count exceeds tokenThreshold.
func (c *SessionCompactor) ShouldCompact(messages []ChatMessage, maxMessages, tokenThreshold int) bool {
	if len(messages) <= maxMessages {
		return false
	}
	return EstimateMessages(messages) > tokenThreshold
}

// extractKeyFacts pulls file paths, tool names, and preference statements
// out of the to-compact prefix (spec §4.5 step 3).
func extractKeyFacts(messages []ChatMessage) []string {
	var facts []string

	filePaths := make([]string, 0, 20)
	seenPaths := map[string]bool{}
	toolNames := map[string]bool{}
	var preferences []string

	for _, msg := range messages {
		text := msg.ContentAsText()

		if len(filePaths) < 20 {
			for _, tok := range filePathPattern.FindAllString(text, -1) {
				if len(filePaths) >= 20 {
					break
				}
				if seenPaths[tok] {
					continue
				}
				if looksLikeFilePath(tok) {
					filePaths = append(filePaths, tok)
					seenPaths[tok] = true
				}
			}
		}

		if msg.Role == RoleAssistant {
			for _, tc := range msg.ToolCalls {
				toolNames[tc.Name] = true
			}
		}

		lower := strings.ToLower(text)
		for _, marker := range preferenceMarkers {
			if strings.Contains(lower, marker) {
				for _, line := range strings.Split(text, "\n") {
					if strings.Contains(strings.ToLower(line), marker) {
						preferences = append(preferences, strings.TrimSpace(line))
					}
				}
			}
		}
	}

	if len(filePaths) > 0 {
		facts = append(facts, fmt.Sprintf("Files referenced: %s", strings.Join(filePaths, ", ")))
	}
	if len(toolNames) > 0 {
		names := make([]string, 0, len(toolNames))
		for n := range toolNames {
			names = append(names, n)
		}
		facts = append(facts, fmt.Sprintf("Tools used: %s", strings.Join(names, ", ")))
	}
	for _, p := range preferences {
		facts = append(facts, fmt.Sprintf("User preference: %s", p))
	}

	return facts
}

func looksLikeFilePath(tok string) bool {
	if strings.HasPrefix(tok, "src/") || strings.HasPrefix(tok, "./") || strings.HasPrefix(tok, "/") {
		return true
	}
	for _, ext := range knownFileExtensions {
		if strings.HasSuffix(tok, ext) {
			return true
		}
	}
	return false
}

// buildConversationText renders to_compact with 500-char-per-message
// truncation for the summarizer prompt (spec §4.5 step 4).
func buildConversationText(messages []ChatMessage) string {
	var sb strings.Builder
	for _, msg := range messages {
		text := msg.ContentAsText()
		if len(text) > 500 {
			text = text[:500] + "..."
		}
		fmt.Fprintf(&sb, "[%s] %s\n", msg.Role, text)
	}
	return sb.String()
}

// manualSummary is the deterministic fallback used when the LLM summarizer
// call fails (spec §4.5 step 4 "fall back to a deterministic manual
// summary").
func manualSummary(facts []string, messageCount int) string {
	var sb strings.Builder
	sb.WriteString("## Conversation Summary\n")
	fmt.Fprintf(&sb, "Compacted %d earlier messages.\n\n", messageCount)
	if len(facts) > 0 {
		sb.WriteString("## Key Facts\n")
		for _, f := range facts {
			sb.WriteString("- ")
			sb.WriteString(f)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// Compact implements the five-step algorithm in spec §4.5.
func (c *SessionCompactor) Compact(ctx context.Context, messages []ChatMessage, keepRecent int) ([]ChatMessage, error) {
	var systemMsg *ChatMessage
	var rest []ChatMessage
	for i := range messages {
		if messages[i].Role == RoleSystem && systemMsg == nil {
			m := messages[i]
			systemMsg = &m
			continue
		}
		rest = append(rest, messages[i])
	}

	if len(rest) <= keepRecent {
		return messages, nil
	}

	toCompact := rest[:len(rest)-keepRecent]
	toKeep := rest[len(rest)-keepRecent:]

	facts := extractKeyFacts(toCompact)

	var summaryText string
	if c.Summarizer != nil {
		convoText := buildConversationText(toCompact)
		summary, err := c.Summarizer(ctx, fmt.Sprintf(
			"Summarize this conversation excerpt, preserving file paths, tool usage, and user preferences:\n\n%s",
			convoText))
		if err != nil {
			summaryText = manualSummary(facts, len(toCompact))
		} else {
			summaryText = summary
		}
	} else {
		summaryText = manualSummary(facts, len(toCompact))
	}

	synthetic := ChatMessage{
		Role:    RoleSystem,
		Content: fmt.Sprintf("[Session Context - Compacted from %d earlier messages]\n%s", len(toCompact), summaryText),
	}

	result := make([]ChatMessage, 0, len(toKeep)+2)
	if systemMsg != nil {
		result = append(result, *systemMsg)
	}
	result = append(result, synthetic)
	result = append(result, toKeep...)
	return result, nil
}

// CompactWithFallback runs the escalation ladder in spec §4.5, stopping as
// soon as estimated tokens drop to targetTokens or below.
func (c *SessionCompactor) CompactWithFallback(
	ctx context.Context,
	messages []ChatMessage,
	keepRecent int,
	targetTokens int,
	cheapModelSummarizer CheapSummarizer,
) ([]ChatMessage, CompactStrategy, error) {
	current := messages

	if EstimateMessages(current) <= targetTokens {
		return current, "", nil
	}

	// AutoCompact: up to 3 tries, accept only if it strictly reduces tokens.
	for attempt := 0; attempt < 3; attempt++ {
		before := EstimateMessages(current)
		compacted, err := c.Compact(ctx, current, keepRecent)
		if err == nil {
			after := EstimateMessages(compacted)
			if after < before {
				current = compacted
			}
		}
		if EstimateMessages(current) <= targetTokens {
			return current, StrategyAutoCompact, nil
		}
	}

	// TruncateToolResults: cap every tool-role message at 2000 chars.
	current = truncateToolResults(current, 2000)
	if EstimateMessages(current) <= targetTokens {
		return current, StrategyTruncateToolResults, nil
	}

	// ReduceThinking: clear opaque reasoning on every message.
	current = clearReasoning(current)
	if EstimateMessages(current) <= targetTokens {
		return current, StrategyReduceThinking, nil
	}

	// ModelFailover: retry compact on a cheaper model.
	if cheapModelSummarizer != nil {
		cheapCompactor := &SessionCompactor{Summarizer: cheapModelSummarizer}
		if compacted, err := cheapCompactor.Compact(ctx, current, keepRecent); err == nil {
			current = compacted
		}
		if EstimateMessages(current) <= targetTokens {
			return current, StrategyModelFailover, nil
		}
	}

	// SessionReset: keep [system?, reset-notice, last user message].
	current = sessionReset(current)
	return current, StrategySessionReset, nil
}

func truncateToolResults(messages []ChatMessage, maxChars int) []ChatMessage {
	out := make([]ChatMessage, len(messages))
	for i, m := range messages {
		if m.Role == RoleTool && len(m.Content) > maxChars {
			m.Content = m.Content[:maxChars] + "\n...[truncated]"
		}
		out[i] = m
	}
	return out
}

func clearReasoning(messages []ChatMessage) []ChatMessage {
	out := make([]ChatMessage, len(messages))
	for i, m := range messages {
		m.Reasoning = ""
		out[i] = m
	}
	return out
}

func sessionReset(messages []ChatMessage) []ChatMessage {
	var systemMsg *ChatMessage
	var lastUser *ChatMessage
	for i := range messages {
		if messages[i].Role == RoleSystem && systemMsg == nil {
			m := messages[i]
			systemMsg = &m
		}
		if messages[i].Role == RoleUser {
			m := messages[i]
			lastUser = &m
		}
	}

	resetNotice := ChatMessage{
		Role:    RoleSystem,
		Content: "[Session Reset - prior conversation discarded to recover from context overflow]",
	}

	result := make([]ChatMessage, 0, 3)
	if systemMsg != nil {
		result = append(result, *systemMsg)
	}
	result = append(result, resetNotice)
	if lastUser != nil {
		result = append(result, *lastUser)
	}
	return result
}
