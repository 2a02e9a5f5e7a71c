// Package engine: Tool Loop Engine (spec §4.7), the central algorithm. Runs
// a ReAct-style loop against an LLM client (directly, or via a
// FailoverRouter), dispatching tool calls through a ToolRegistry, guarding
// against duplicate calls and detected loop patterns, and enforcing a
// wall-clock timeout.

package engine

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultMaxIterations = 15
	DefaultMaxTokens     = 4096
	DefaultTimeoutSecs   = 900
	maxEmptyRetries      = 2
	maxConsecutiveDupes  = 2
)

// LoopConfig configures one Run call.
type LoopConfig struct {
	Model         string
	Role          string // failover role, when Router is set
	SystemPrompt  string
	AllowedTools  []string // empty means "all tools in Tools"
	MaxIterations int
	MaxTokens     int
	TimeoutSecs   int
	ResultCap     int // ToolResult truncation cap; defaults to interactive cap

	Client LLMClient      // used directly when Router is nil
	Router *FailoverRouter // preferred when set (spec §4.3 integration)

	Tools       ToolRegistry
	ToolContext ToolContext
	RetryPolicy RetryPolicy

	ContextManager *ContextManager

	Vision *VisionRouting // optional; routes image tool results through a vision model

	Hooks Hooks
}

// VisionRouting is the narrow collaborator the loop calls when a ToolResult
// carries image data (spec §4.2 "non-core tool results with base64_data
// images are sent separately to a vision model").
type VisionRouting struct {
	Client LLMClient
	Model  string
}

// ToolLoopResult is Run's return value (spec §4.7).
type ToolLoopResult struct {
	FinalResponse string
	Iterations    int
	ToolCallsMade int
	Success       bool
	StopReason    StopReason
	Messages      []ChatMessage // suffix to append to the caller's durable conversation
}

// Run executes the loop over initialMessages, preceded by a system message
// carrying cfg.SystemPrompt when one is set, until completion, a stop
// condition, or the wall-clock timeout.
func Run(ctx context.Context, cfg LoopConfig, initialMessages []ChatMessage) (ToolLoopResult, error) {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.TimeoutSecs <= 0 {
		cfg.TimeoutSecs = DefaultTimeoutSecs
	}
	if cfg.ResultCap <= 0 {
		cfg.ResultCap = DefaultToolResultCapInteractive
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.TimeoutSecs)*time.Second)
	defer cancel()

	if cfg.SystemPrompt != "" {
		initialMessages = append([]ChatMessage{{Role: RoleSystem, Content: cfg.SystemPrompt}}, initialMessages...)
	}
	st := newState(cfg.Model, initialMessages, cfg.Tools)
	startLen := len(st.History)

	schemas := filterSchemas(cfg.Tools.Schemas(), cfg.AllowedTools)

	result := ToolLoopResult{}

	for {
		st.Step++
		st.Phase = DetectPhase(st.History, cfg.Tools)

		if st.Step > cfg.MaxIterations {
			result.StopReason = StopMaxIterations
			break
		}

		select {
		case <-timeoutCtx.Done():
			result.StopReason = StopTimeout
			cfg.Hooks.OnDone(ctx, st, result.StopReason)
			return finalizeResult(result, st, startLen, false), nil
		default:
		}

		cfg.Hooks.OnStepStart(timeoutCtx, st)

		messages, err := cfg.contextCheck(timeoutCtx, st)
		if err != nil {
			return ToolLoopResult{}, fmt.Errorf("context check: %w", err)
		}
		st.History = messages

		cfg.Hooks.OnBeforeLLM(timeoutCtx, st, st.History, schemas)
		resp, err := cfg.callLLM(timeoutCtx, st, schemas)
		if err != nil {
			return ToolLoopResult{}, fmt.Errorf("llm call at step %d: %w", st.Step, err)
		}
		cfg.Hooks.OnAfterLLM(timeoutCtx, st, resp)

		if len(resp.Assistant.ToolCalls) == 0 {
			text := resp.Assistant.ContentAsText()
			if text != "" {
				st.History = append(st.History, resp.Assistant)
				result.FinalResponse = text
				result.Success = true
				result.StopReason = StopCompleted
				break
			}

			st.emptyRetries++
			if st.emptyRetries > maxEmptyRetries {
				result.FinalResponse = "model keeps returning empty responses"
				result.Success = false
				result.StopReason = StopCompleted
				break
			}
			st.History = append(st.History, resp.Assistant)
			st.History = append(st.History, ChatMessage{
				Role:    RoleSystem,
				Content: "Your last response was empty. Please respond with text or call a tool.",
			})
			cfg.Hooks.OnHistoryChanged(timeoutCtx, st)
			continue
		}

		st.History = append(st.History, resp.Assistant)
		cfg.Hooks.OnHistoryChanged(timeoutCtx, st)

		stopReason, loopErr := cfg.dispatchToolCalls(timeoutCtx, st, resp.Assistant.ToolCalls, &result)
		if loopErr != nil {
			return ToolLoopResult{}, loopErr
		}
		if stopReason != "" {
			result.StopReason = stopReason
			break
		}
	}

	cfg.Hooks.OnDone(timeoutCtx, st, result.StopReason)
	return finalizeResult(result, st, startLen, result.Success), nil
}

func finalizeResult(result ToolLoopResult, st *State, startLen int, success bool) ToolLoopResult {
	result.Iterations = st.Step
	result.Success = success
	if !success && result.FinalResponse == "" && len(st.History) > startLen {
		st.History = append(st.History, synthesizePartialProgress(st.History[startLen:]))
	}
	result.Messages = append([]ChatMessage(nil), st.History[startLen:]...)
	return result
}

// contextCheck implements spec §4.7 step 2: compute estimate_messages; if
// over the model's context budget, attempt recursive compression, falling
// back to naive trim; if still over, proceed anyway (the model will surface
// a ContextOverflow that Failover can catch).
func (cfg *LoopConfig) contextCheck(ctx context.Context, st *State) ([]ChatMessage, error) {
	if cfg.ContextManager == nil {
		return st.History, nil
	}
	managed, err := cfg.ContextManager.ManageContext(ctx, st.Model, st.History, "", "")
	if err != nil {
		return st.History, nil // fall back to proceeding over-budget; the model/failover will surface it
	}
	if managed.WasTrimmed {
		cfg.Hooks.OnContextTrimmed(ctx, st, EstimateMessages(st.History), managed.EstimatedTokens, managed.Warning)
	}
	return managed.Messages, nil
}

func (cfg *LoopConfig) callLLM(ctx context.Context, st *State, schemas []ToolSchema) (LLMResponse, error) {
	opts := ChatOptions{MaxOutputTokens: cfg.MaxTokens}

	if cfg.Router != nil {
		return cfg.Router.CompleteWithFailover(ctx, st, cfg.Role, st.Model, st.History, schemas, opts, nil)
	}

	onRetry := func(attempt int, delay time.Duration, err error) {
		cfg.Hooks.OnRetryAttempt(ctx, st, attempt, cfg.RetryPolicy.MaxRetries, delay, err)
	}
	resp, err := RetryLLMCall(ctx, cfg.RetryPolicy, cfg.Client, st.Model, st.History, schemas, opts, nil, onRetry)
	if err != nil && IsRetryExhausted(err) {
		cfg.Hooks.OnRetryExhausted(ctx, st, err)
	}
	return resp, err
}

// dispatchToolCalls implements spec §4.7 step 4's tool-calls branch: dedup
// detection, per-call execution with optional vision re-routing and
// truncation, loop-pattern detection, and history append in call order.
func (cfg *LoopConfig) dispatchToolCalls(ctx context.Context, st *State, calls []ToolCall, result *ToolLoopResult) (StopReason, error) {
	sigs := make([]string, len(calls))
	for i, c := range calls {
		if c.ID == "" {
			calls[i].ID = NewToolCallID()
			c.ID = calls[i].ID
		}
		sigs[i] = c.Signature()
	}

	allSeen := true
	for _, sig := range sigs {
		if !st.seenSignatures[sig] {
			allSeen = false
			break
		}
	}
	if allSeen {
		st.consecutiveDupes++
		if st.consecutiveDupes >= maxConsecutiveDupes {
			return StopDuplicateCalls, nil
		}
	} else {
		st.consecutiveDupes = 0
	}
	for _, sig := range sigs {
		st.seenSignatures[sig] = true
	}

	for i, call := range calls {
		cfg.Hooks.OnToolCall(ctx, st, call)

		raw, err := cfg.executeOne(ctx, call)
		cfg.Hooks.OnToolResult(ctx, st, call, raw, err)

		var resultText string
		if err != nil {
			resultText = fmt.Sprintf("Error: %v", err)
		} else {
			if raw.HasImageData() && cfg.Vision != nil {
				described, verr := cfg.describeImage(ctx, st, raw)
				if verr == nil {
					resultText = described
				} else {
					resultText = raw.Truncate(cfg.ResultCap).Message
				}
			} else {
				resultText = raw.Truncate(cfg.ResultCap).Message
			}
		}

		if desc := st.detector.Check(sigs[i], resultText); desc != "" {
			st.History = append(st.History, ChatMessage{
				Role:       RoleTool,
				Name:       call.Name,
				ToolCallID: call.ID,
				Content:    resultText,
			})
			cfg.Hooks.OnLoopDetected(ctx, st, desc)
			return StopLoopDetected, nil
		}

		st.History = append(st.History, ChatMessage{
			Role:       RoleTool,
			Name:       call.Name,
			ToolCallID: call.ID,
			Content:    resultText,
		})
		result.ToolCallsMade++
	}
	cfg.Hooks.OnHistoryChanged(ctx, st)
	return "", nil
}

func (cfg *LoopConfig) executeOne(ctx context.Context, call ToolCall) (ToolResult, error) {
	onRetry := func(attempt int, delay time.Duration, err error) {}
	return RetryToolCall(ctx, cfg.RetryPolicy, call, cfg.Tools, cfg.ToolContext, onRetry)
}

// describeImage routes an image-bearing ToolResult through the vision model
// to obtain a textual description, never inlining the image verbatim to the
// main model (spec §4.2).
func (cfg *LoopConfig) describeImage(ctx context.Context, st *State, result ToolResult) (string, error) {
	prompt := ChatMessage{
		Role: RoleUser,
		Parts: []ContentPart{
			{Type: "text", Text: "Describe this image in detail for a text-only assistant."},
			{Type: "image_url", ImageURL: result.ImageData()},
		},
	}
	resp, err := cfg.Vision.Client.Chat(ctx, cfg.Vision.Model, []ChatMessage{prompt}, nil, ChatOptions{MaxOutputTokens: 512}, nil)
	if err != nil {
		return "", err
	}
	return resp.Assistant.ContentAsText(), nil
}

// synthesizePartialProgress builds the assistant-role summary the loop
// appends when it exits without a final text response, so a follow-up
// "continue" lets the model resume (spec §4.7 "Partial progress
// preservation").
func synthesizePartialProgress(suffix []ChatMessage) ChatMessage {
	var sb strings.Builder
	sb.WriteString("[Partial progress before the loop stopped]\n")
	for _, m := range suffix {
		switch m.Role {
		case RoleAssistant:
			for _, tc := range m.ToolCalls {
				fmt.Fprintf(&sb, "- called %s(%s)\n", tc.Name, tc.Arguments)
			}
		case RoleTool:
			text := m.ContentAsText()
			if len(text) > 200 {
				text = text[:200] + "..."
			}
			fmt.Fprintf(&sb, "  -> %s\n", text)
		}
	}
	return ChatMessage{Role: RoleAssistant, Content: sb.String()}
}

func filterSchemas(all []ToolSchema, allowed []string) []ToolSchema {
	if len(allowed) == 0 {
		return all
	}
	allowSet := make(map[string]bool, len(allowed))
	for _, n := range allowed {
		allowSet[n] = true
	}
	out := make([]ToolSchema, 0, len(all))
	for _, s := range all {
		if allowSet[s.Name] {
			out = append(out, s)
		}
	}
	return out
}
