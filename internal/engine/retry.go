package engine

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy defines retry behavior for a specific operation type. It sits
// underneath the Failover Router (failover.go): Failover walks models,
// RetryPolicy retries a single model attempt before Failover gives up on it.
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

// RetryConfig holds separate retry policies for LLM and tool calls.
type RetryConfig struct {
	LLMPolicy  RetryPolicy
	ToolPolicy RetryPolicy
}

// DefaultRetryConfig matches the teacher's defaults: three retries for LLM
// calls starting at 1s, two retries for tool calls starting at 500ms, both
// with 2x backoff and jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		LLMPolicy: RetryPolicy{
			MaxRetries:   3,
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
			Jitter:       true,
		},
		ToolPolicy: RetryPolicy{
			MaxRetries:   2,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     10 * time.Second,
			Multiplier:   2.0,
			Jitter:       true,
		},
	}
}

// RetryableFunc is a function that can be retried.
type RetryableFunc[T any] func(ctx context.Context) (T, error)

// RetryWithPolicy executes fn, retrying on Retryable/Maybe-classified errors
// according to policy, until success, a non-retryable error, or exhaustion.
func RetryWithPolicy[T any](
	ctx context.Context,
	policy RetryPolicy,
	fn RetryableFunc[T],
	classifyError func(error) RetryClass,
	onRetry func(attempt int, delay time.Duration, err error),
) (T, error) {
	var zero T
	attempt := 0

	for {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		class := classifyError(err)
		if class == RetryClassNonRetryable {
			return zero, err
		}

		if attempt >= policy.MaxRetries {
			return zero, NewRetryExhaustedError(err, attempt, policy.MaxRetries, false)
		}
		if class == RetryClassMaybe && attempt >= 2 {
			return zero, NewRetryExhaustedError(err, attempt, 2, true)
		}

		delay := calculateDelay(policy, attempt, err)
		if onRetry != nil {
			onRetry(attempt+1, delay, err)
		}

		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		case <-time.After(delay):
		}

		attempt++
	}
}

func calculateDelay(policy RetryPolicy, attempt int, err error) time.Duration {
	if retryAfter := ExtractRetryAfter(err); retryAfter > 0 {
		if retryAfter > policy.MaxDelay {
			return policy.MaxDelay
		}
		return retryAfter
	}

	delay := float64(policy.InitialDelay) * math.Pow(policy.Multiplier, float64(attempt))
	if delay > float64(policy.MaxDelay) {
		delay = float64(policy.MaxDelay)
	}
	if policy.Jitter {
		delay += rand.Float64() * 0.2 * delay
	}
	return time.Duration(delay)
}

// RetryLLMCall wraps a single-model LLM call with retry logic; the Failover
// Router calls this once per model in its chain.
func RetryLLMCall(
	ctx context.Context,
	policy RetryPolicy,
	llm LLMClient,
	model string,
	messages []ChatMessage,
	toolSchemas []ToolSchema,
	opts ChatOptions,
	onChunk func(delta string),
	onRetry func(attempt int, delay time.Duration, err error),
) (LLMResponse, error) {
	return RetryWithPolicy(
		ctx,
		policy,
		func(ctx context.Context) (LLMResponse, error) {
			return llm.Chat(ctx, model, messages, toolSchemas, opts, onChunk)
		},
		ClassifyLLMError,
		onRetry,
	)
}

// RetryToolCall wraps a tool call with retry logic honoring the tool's own
// Retryable flag.
func RetryToolCall(
	ctx context.Context,
	policy RetryPolicy,
	call ToolCall,
	reg ToolRegistry,
	tctx ToolContext,
	onRetry func(attempt int, delay time.Duration, err error),
) (ToolResult, error) {
	tool, ok := reg[call.Name]
	if !ok {
		return ToolResult{}, fmt.Errorf("tool not found: %s", call.Name)
	}

	if !tool.Retryable {
		policy = RetryPolicy{MaxRetries: 0}
	}

	return RetryWithPolicy(
		ctx,
		policy,
		func(ctx context.Context) (ToolResult, error) {
			return executeTool(ctx, call, reg, tctx)
		},
		func(err error) RetryClass {
			return ClassifyToolError(err, tool.Retryable)
		},
		onRetry,
	)
}
