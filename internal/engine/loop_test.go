package engine

import (
	"context"
	"testing"
)

// scriptedLLMClient returns one LLMResponse per call, in order, cycling the
// last entry forever once exhausted so a runaway loop still terminates on
// MaxIterations rather than a slice-index panic.
type scriptedLLMClient struct {
	responses []LLMResponse
	calls     int
}

func (s *scriptedLLMClient) Chat(ctx context.Context, model string, messages []ChatMessage, tools []ToolSchema, opts ChatOptions, onChunk func(string)) (LLMResponse, error) {
	i := s.calls
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	s.calls++
	return s.responses[i], nil
}

func textResponse(text string) LLMResponse {
	return LLMResponse{Assistant: ChatMessage{Role: RoleAssistant, Content: text}}
}

func toolCallResponse(name, args string) LLMResponse {
	return LLMResponse{Assistant: ChatMessage{
		Role:      RoleAssistant,
		ToolCalls: []ToolCall{{ID: "call-1", Name: name, Arguments: args}},
	}}
}

func baseLoopConfig(client LLMClient) LoopConfig {
	return LoopConfig{
		Model:       "gpt-4o",
		Client:      client,
		Tools:       ToolRegistry{"echo": echoTool()},
		RetryPolicy: noRetryPolicy(),
	}
}

func TestRunCompletesOnFirstTextResponse(t *testing.T) {
	client := &scriptedLLMClient{responses: []LLMResponse{textResponse("all done")}}
	cfg := baseLoopConfig(client)

	result, err := Run(context.Background(), cfg, []ChatMessage{{Role: RoleUser, Content: "hi"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.StopReason != StopCompleted || !result.Success {
		t.Fatalf("expected StopCompleted/success, got %+v", result)
	}
	if result.FinalResponse != "all done" {
		t.Errorf("unexpected final response: %q", result.FinalResponse)
	}
	if result.Iterations != 1 {
		t.Errorf("expected 1 iteration, got %d", result.Iterations)
	}
}

func TestRunOneToolRoundThenCompletes(t *testing.T) {
	client := &scriptedLLMClient{responses: []LLMResponse{
		toolCallResponse("echo", `{"text":"hello"}`),
		textResponse("the tool said hello"),
	}}
	cfg := baseLoopConfig(client)

	result, err := Run(context.Background(), cfg, []ChatMessage{{Role: RoleUser, Content: "echo hello"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.StopReason != StopCompleted || !result.Success {
		t.Fatalf("expected StopCompleted/success, got %+v", result)
	}
	if result.ToolCallsMade != 1 {
		t.Errorf("expected 1 tool call made, got %d", result.ToolCallsMade)
	}
	if result.FinalResponse != "the tool said hello" {
		t.Errorf("unexpected final response: %q", result.FinalResponse)
	}
	foundToolMessage := false
	for _, m := range result.Messages {
		if m.Role == RoleTool && m.Content == "hello" {
			foundToolMessage = true
		}
	}
	if !foundToolMessage {
		t.Errorf("expected a tool-role message with the echoed result, got %+v", result.Messages)
	}
}

func TestRunStopsOnMaxIterations(t *testing.T) {
	client := &scriptedLLMClient{responses: []LLMResponse{
		toolCallResponse("echo", `{"text":"a"}`),
	}}
	cfg := baseLoopConfig(client)
	cfg.MaxIterations = 1

	result, err := Run(context.Background(), cfg, []ChatMessage{{Role: RoleUser, Content: "loop forever"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.StopReason != StopMaxIterations {
		t.Fatalf("expected StopMaxIterations, got %+v", result)
	}
	if result.Success {
		t.Error("expected Success=false when stopped on max iterations")
	}
}

func TestRunStopsOnDuplicateCalls(t *testing.T) {
	// Every call echoes the exact same arguments, so the duplicate-signature
	// detector should fire before max iterations would ever be reached.
	client := &scriptedLLMClient{responses: []LLMResponse{
		toolCallResponse("echo", `{"text":"same"}`),
	}}
	cfg := baseLoopConfig(client)
	cfg.MaxIterations = 10

	result, err := Run(context.Background(), cfg, []ChatMessage{{Role: RoleUser, Content: "repeat"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.StopReason != StopDuplicateCalls {
		t.Fatalf("expected StopDuplicateCalls, got %+v", result)
	}
	if result.Success {
		t.Error("expected Success=false when stopped on duplicate calls")
	}
}

func TestRunGivesUpAfterEmptyResponses(t *testing.T) {
	client := &scriptedLLMClient{responses: []LLMResponse{
		textResponse(""),
	}}
	cfg := baseLoopConfig(client)
	cfg.MaxIterations = 10

	result, err := Run(context.Background(), cfg, []ChatMessage{{Role: RoleUser, Content: "say nothing"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.StopReason != StopCompleted || result.Success {
		t.Fatalf("expected StopCompleted with Success=false after exhausting empty-response retries, got %+v", result)
	}
	if result.FinalResponse == "" {
		t.Error("expected a synthetic failure message to explain the empty-response give-up")
	}
	// maxEmptyRetries=2 means it tolerates 2 empty responses and gives up on
	// the 3rd; confirm it didn't bail on the very first empty reply.
	if client.calls < 3 {
		t.Errorf("expected at least 3 LLM calls before giving up, got %d", client.calls)
	}
}

func TestRunStopsOnTimeoutWhenParentContextIsAlreadyDone(t *testing.T) {
	// WithTimeout derived from an already-canceled parent fires its Done()
	// channel immediately, letting the timeout branch be exercised without an
	// actual wall-clock sleep.
	client := &scriptedLLMClient{responses: []LLMResponse{toolCallResponse("echo", `{"text":"a"}`)}}
	cfg := baseLoopConfig(client)
	cfg.MaxIterations = 10

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := Run(ctx, cfg, []ChatMessage{{Role: RoleUser, Content: "hi"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.StopReason != StopTimeout {
		t.Fatalf("expected StopTimeout, got %+v", result)
	}
	if result.Success {
		t.Error("expected Success=false on timeout")
	}
}

func TestRunAppliesConfigDefaultsWithoutPanicking(t *testing.T) {
	client := &scriptedLLMClient{responses: []LLMResponse{textResponse("ok")}}
	cfg := LoopConfig{Model: "gpt-4o", Client: client, Tools: ToolRegistry{}}

	result, err := Run(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.StopReason != StopCompleted {
		t.Fatalf("expected defaults to allow a normal completion, got %+v", result)
	}
}

func TestRunRestrictsSchemasToAllowedTools(t *testing.T) {
	calledWithSchemas := []ToolSchema(nil)
	capture := &capturingLLMClient{
		onChat: func(tools []ToolSchema) {
			calledWithSchemas = tools
		},
		resp: textResponse("done"),
	}
	cfg := baseLoopConfig(capture)
	cfg.Tools = ToolRegistry{"echo": echoTool(), "boom": {Name: "boom", SchemaJSON: `{"type":"object"}`}}
	cfg.AllowedTools = []string{"echo"}

	_, err := Run(context.Background(), cfg, []ChatMessage{{Role: RoleUser, Content: "hi"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(calledWithSchemas) != 1 || calledWithSchemas[0].Name != "echo" {
		t.Errorf("expected only the allowed tool's schema to reach the LLM, got %+v", calledWithSchemas)
	}
}

type capturingLLMClient struct {
	onChat func(tools []ToolSchema)
	resp   LLMResponse
}

func (c *capturingLLMClient) Chat(ctx context.Context, model string, messages []ChatMessage, tools []ToolSchema, opts ChatOptions, onChunk func(string)) (LLMResponse, error) {
	c.onChat(tools)
	return c.resp, nil
}

func TestFilterSchemasPassesThroughWhenNoAllowList(t *testing.T) {
	all := []ToolSchema{{Name: "a"}, {Name: "b"}}
	out := filterSchemas(all, nil)
	if len(out) != 2 {
		t.Errorf("expected all schemas to pass through with an empty allow list, got %+v", out)
	}
}

func TestFilterSchemasFiltersToAllowList(t *testing.T) {
	all := []ToolSchema{{Name: "a"}, {Name: "b"}, {Name: "c"}}
	out := filterSchemas(all, []string{"b"})
	if len(out) != 1 || out[0].Name != "b" {
		t.Errorf("expected only %q, got %+v", "b", out)
	}
}
