// Package engine provides agent orchestration functionality.
// This file contains the token estimator: a cheap O(n) char->token
// approximation used everywhere a context budget is tested.

package engine

// Tokenizer provides token counting for text. The core never ships a real
// tokenizer — every implementation is an estimate, so sizing decisions never
// pay a vocabulary-specific cost or couple to a specific model.
type Tokenizer interface {
	CountTokens(text string, model string) (int, error)
}

// EstimateTokens approximates token count as len(text)/4. This is
// intentionally the whole formula: pure, O(n), and model-agnostic.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// perMessageOverheadTokens is the constant added per message by
// EstimateMessages to account for role/formatting tokens a real tokenizer
// would spend that a pure character count can't see.
const perMessageOverheadTokens = 4

// EstimateMessages sums text-content and tool-call argument lengths across
// msgs, divides by 4, and adds perMessageOverheadTokens per message.
func EstimateMessages(msgs []ChatMessage) int {
	total := 0
	for _, msg := range msgs {
		chars := len(msg.ContentAsText())
		for _, tc := range msg.ToolCalls {
			chars += len(tc.Name) + len(tc.Arguments)
		}
		total += chars / 4
		total += perMessageOverheadTokens
	}
	return total
}

// DefaultTokenizer implements Tokenizer via EstimateTokens; it is the only
// Tokenizer the core ships, regardless of model.
type DefaultTokenizer struct{}

func (DefaultTokenizer) CountTokens(text string, model string) (int, error) {
	return EstimateTokens(text), nil
}

// CountTokensForMessages counts tokens for a slice of messages using the
// supplied tokenizer, including the per-message overhead.
func CountTokensForMessages(tokenizer Tokenizer, messages []ChatMessage, model string) (int, error) {
	total := 0
	for _, msg := range messages {
		contentTokens, err := tokenizer.CountTokens(msg.ContentAsText(), model)
		if err != nil {
			return 0, err
		}
		total += contentTokens
		for _, tc := range msg.ToolCalls {
			nameTokens, err := tokenizer.CountTokens(tc.Name, model)
			if err != nil {
				return 0, err
			}
			argTokens, err := tokenizer.CountTokens(tc.Arguments, model)
			if err != nil {
				return 0, err
			}
			total += nameTokens + argTokens
		}
		total += perMessageOverheadTokens
	}
	return total, nil
}

// GetTokenizerForModel returns the tokenizer to use for a given model.
// Every model currently gets the same estimator; this indirection exists so
// a real per-provider tokenizer can be substituted later without touching
// call sites.
func GetTokenizerForModel(model string) Tokenizer {
	return DefaultTokenizer{}
}
