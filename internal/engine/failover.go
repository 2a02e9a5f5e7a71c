// Package engine: Failover Router (spec §4.3). Classifies provider errors
// and walks an ordered model chain per role, advancing on retryable errors
// and surfacing immediately on anything else.

package engine

import (
	"context"
	"fmt"
	"time"
)

// FailoverClass is the router's own, coarser classification layered on top
// of RetryClass: spec names exactly RateLimit|ModelDown|ContextOverflow as
// retryable and AuthError|Unknown as not.
type FailoverClass string

const (
	FailoverRateLimit      FailoverClass = "rate_limit"
	FailoverModelDown      FailoverClass = "model_down"
	FailoverContextOverflow FailoverClass = "context_overflow"
	FailoverAuthError      FailoverClass = "auth_error"
	FailoverUnknown        FailoverClass = "unknown"
)

// classifyFailover maps a RetryClass (errors.go) onto the router's own
// taxonomy. RetryClassRetryable covers rate-limit/server-down; RetryClassMaybe
// covers context-length overflow; anything else is non-advanceable.
func classifyFailover(err error) FailoverClass {
	class := ClassifyLLMError(err)
	switch class {
	case RetryClassRetryable:
		var ee *EngineError
		if asEngineError(err, &ee) && ee.IsRateLimit {
			return FailoverRateLimit
		}
		return FailoverModelDown
	case RetryClassMaybe:
		return FailoverContextOverflow
	default:
		var ee *EngineError
		if asEngineError(err, &ee) && ee.IsAuth {
			return FailoverAuthError
		}
		return FailoverUnknown
	}
}

func asEngineError(err error, target **EngineError) bool {
	ee, ok := err.(*EngineError)
	if !ok {
		return false
	}
	*target = ee
	return true
}

func isAdvanceable(class FailoverClass) bool {
	switch class {
	case FailoverRateLimit, FailoverModelDown, FailoverContextOverflow:
		return true
	default:
		return false
	}
}

// ModelChains maps a role ("primary", "cheap_summarizer", "vision", ...) to
// an ordered list of model ids to try. Built once at construction and
// read-only thereafter (spec §5 "the failover router's chain map is built at
// construction and read-only thereafter").
type ModelChains map[string][]string

// FailoverRouter walks ModelChains on retryable errors before giving up.
type FailoverRouter struct {
	Client LLMClient
	Chains ModelChains
	Retry  RetryPolicy
	Hooks  Hooks
}

// effectiveChain returns [primary] ++ (role chain \ {primary}), order
// preserving and deduplicated.
func effectiveChain(primary string, chain []string) []string {
	out := []string{primary}
	seen := map[string]bool{primary: true}
	for _, m := range chain {
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

// CompleteWithFailover implements complete_with_failover: try each model in
// the effective chain in order; on a retryable classification advance to the
// next model, otherwise surface immediately. Returns the last error if the
// whole chain is exhausted.
func (r *FailoverRouter) CompleteWithFailover(
	ctx context.Context,
	st *State,
	role string,
	primary string,
	messages []ChatMessage,
	tools []ToolSchema,
	opts ChatOptions,
	onChunk func(delta string),
) (LLMResponse, error) {
	chain := effectiveChain(primary, r.Chains[role])

	var lastErr error
	for i, model := range chain {
		resp, err := RetryLLMCall(ctx, r.Retry, r.Client, model, messages, tools, opts, onChunk,
			func(attempt int, delay time.Duration, rerr error) {
				r.Hooks.OnRetryAttempt(ctx, st, attempt, r.Retry.MaxRetries, delay, rerr)
			})
		if err == nil {
			return resp, nil
		}
		lastErr = err

		class := classifyFailover(err)
		if !isAdvanceable(class) {
			return LLMResponse{}, err
		}
		if i+1 < len(chain) {
			r.Hooks.OnFailoverAdvance(ctx, st, model, chain[i+1], err)
		}
	}
	return LLMResponse{}, fmt.Errorf("failover chain exhausted for role %q: %w", role, lastErr)
}
