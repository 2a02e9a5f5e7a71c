package engine

import (
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestClassifyLLMErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want RetryClass
	}{
		{"rate limit", errors.New("429 too many requests"), RetryClassRetryable},
		{"server error", errors.New("503 service unavailable"), RetryClassRetryable},
		{"network", errors.New("connection reset by peer"), RetryClassRetryable},
		{"deadline exceeded", errors.New("context deadline exceeded"), RetryClassMaybe},
		{"context overflow", errors.New("maximum context length exceeded"), RetryClassMaybe},
		{"auth", errors.New("401 unauthorized"), RetryClassNonRetryable},
		{"bad request", errors.New("400 bad request"), RetryClassNonRetryable},
		{"quota", errors.New("quota exceeded, billing required"), RetryClassNonRetryable},
		{"safety refusal", errors.New("blocked by content filter"), RetryClassNonRetryable},
		{"unknown", errors.New("something weird"), RetryClassNonRetryable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyLLMError(tt.err); got != tt.want {
				t.Errorf("ClassifyLLMError(%q) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifyLLMErrorUnwrapsExistingEngineError(t *testing.T) {
	wrapped := NewEngineError(errors.New("whatever"), RetryClassMaybe)
	if got := ClassifyLLMError(wrapped); got != RetryClassMaybe {
		t.Errorf("expected the already-classified EngineError's class to be reused, got %q", got)
	}
}

func TestClassifyToolErrorRespectsRetryableFlag(t *testing.T) {
	err := errors.New("connection reset")
	if got := ClassifyToolError(err, false); got != RetryClassNonRetryable {
		t.Errorf("expected a non-retryable tool to never retry regardless of error text, got %q", got)
	}
	if got := ClassifyToolError(err, true); got != RetryClassRetryable {
		t.Errorf("expected a retryable tool with a transient error to classify as retryable, got %q", got)
	}
}

func TestClassifyToolErrorDeterministicFailuresAreNonRetryable(t *testing.T) {
	if got := ClassifyToolError(errors.New("file not found"), true); got != RetryClassNonRetryable {
		t.Errorf("expected a deterministic failure to stay non-retryable even for a retryable tool, got %q", got)
	}
}

func TestWrapLLMErrorSetsClassificationFlags(t *testing.T) {
	err := WrapLLMError(errors.New("429 too many requests"), http.StatusTooManyRequests, "30")
	var ee *EngineError
	if !errors.As(err, &ee) {
		t.Fatalf("expected a *EngineError, got %T", err)
	}
	if !ee.IsRateLimit {
		t.Error("expected IsRateLimit true for a 429")
	}
	if ee.Class != RetryClassRetryable {
		t.Errorf("expected RetryClassRetryable, got %q", ee.Class)
	}
}

func TestWrapLLMErrorReturnsNilForNilError(t *testing.T) {
	if WrapLLMError(nil, 0, "") != nil {
		t.Error("expected WrapLLMError(nil, ...) to return nil")
	}
}

func TestExtractRetryAfterParsesSeconds(t *testing.T) {
	err := WrapLLMError(errors.New("429"), http.StatusTooManyRequests, "5")
	if got := ExtractRetryAfter(err); got != 5*time.Second {
		t.Errorf("expected 5s, got %v", got)
	}
}

func TestExtractRetryAfterDefaultsToZeroWhenAbsent(t *testing.T) {
	err := WrapLLMError(errors.New("429"), http.StatusTooManyRequests, "")
	if got := ExtractRetryAfter(err); got != 0 {
		t.Errorf("expected 0 when no Retry-After is present, got %v", got)
	}
}

func TestRetryExhaustedErrorMessageAndUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := NewRetryExhaustedError(inner, 3, 3, true)
	if !IsRetryExhausted(err) {
		t.Error("expected IsRetryExhausted to recognize its own error type")
	}
	if !errors.Is(err, inner) {
		t.Error("expected Unwrap to expose the inner error")
	}
}

func TestWrapWithContextCarriesStepAndPhase(t *testing.T) {
	st := &State{Step: 4, Phase: PhaseEdit}
	err := WrapWithContext(errors.New("write failed"), st, "tool_execution", "write")
	var ce *EngineContextError
	if !errors.As(err, &ce) {
		t.Fatalf("expected a *EngineContextError, got %T", err)
	}
	if ce.Step != 4 || ce.Phase != PhaseEdit || ce.ToolName != "write" {
		t.Errorf("unexpected context: %+v", ce)
	}
}
