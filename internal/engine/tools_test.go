package engine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func echoTool() Tool {
	return Tool{
		Name:       "echo",
		SchemaJSON: `{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`,
		Fn: func(ctx context.Context, args map[string]any, tctx ToolContext) (ToolResult, error) {
			return ToolResult{Success: true, Message: args["text"].(string)}, nil
		},
	}
}

func TestExecuteToolDispatchesRegisteredTool(t *testing.T) {
	reg := ToolRegistry{"echo": echoTool()}
	call := ToolCall{Name: "echo", Arguments: `{"text":"hi"}`}

	result, err := executeTool(context.Background(), call, reg, ToolContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success || result.Message != "hi" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestExecuteToolRejectsUnknownTool(t *testing.T) {
	reg := ToolRegistry{}
	_, err := executeTool(context.Background(), ToolCall{Name: "nope"}, reg, ToolContext{})
	if err == nil {
		t.Error("expected an error for an unregistered tool")
	}
}

func TestExecuteToolRejectsInvalidArguments(t *testing.T) {
	reg := ToolRegistry{"echo": echoTool()}
	call := ToolCall{Name: "echo", Arguments: `{"wrong_field": 1}`}
	_, err := executeTool(context.Background(), call, reg, ToolContext{})
	if err == nil {
		t.Error("expected a schema validation error for missing required field")
	}
	var valErr *ToolValidationError
	if !errors.As(err, &valErr) {
		t.Errorf("expected a *ToolValidationError, got %T: %v", err, err)
	}
}

func TestExecuteToolWrapsFnError(t *testing.T) {
	reg := ToolRegistry{"boom": {
		Name:       "boom",
		SchemaJSON: `{"type":"object"}`,
		Retryable:  true,
		Fn: func(ctx context.Context, args map[string]any, tctx ToolContext) (ToolResult, error) {
			return ToolResult{}, errors.New("connection reset")
		},
	}}
	_, err := executeTool(context.Background(), ToolCall{Name: "boom"}, reg, ToolContext{})
	if err == nil {
		t.Fatal("expected an error")
	}
	var ee *EngineError
	if !errors.As(err, &ee) {
		t.Fatalf("expected a wrapped *EngineError, got %T", err)
	}
	if ee.Class != RetryClassRetryable {
		t.Errorf("expected retryable classification for a connection-reset error, got %q", ee.Class)
	}
}

func TestToolResultTruncateStripsImageAndCapsLength(t *testing.T) {
	data, _ := json.Marshal(map[string]any{"base64_data": "xxxx", "other": "keep"})
	r := ToolResult{Message: "0123456789", Data: data}

	out := r.Truncate(5)
	if out.Message != "01234\n...[truncated, original length 10 chars]" {
		t.Errorf("unexpected truncated message: %q", out.Message)
	}
	var stripped map[string]any
	if err := json.Unmarshal(out.Data, &stripped); err != nil {
		t.Fatalf("expected valid JSON after stripping: %v", err)
	}
	if _, ok := stripped["base64_data"]; ok {
		t.Error("expected base64_data to be stripped")
	}
	if stripped["other"] != "keep" {
		t.Error("expected non-image fields to survive stripping")
	}
}

func TestToolResultHasImageData(t *testing.T) {
	withImage := ToolResult{Data: json.RawMessage(`{"base64_data":"abc"}`)}
	if !withImage.HasImageData() {
		t.Error("expected HasImageData true when base64_data is present")
	}
	without := ToolResult{Data: json.RawMessage(`{"other":"x"}`)}
	if without.HasImageData() {
		t.Error("expected HasImageData false when base64_data is absent")
	}
}

func TestToolValidateArgsRejectsSchemaMismatch(t *testing.T) {
	tool := echoTool()
	if err := tool.ValidateArgs(map[string]any{"text": "ok"}); err != nil {
		t.Errorf("expected valid args to pass, got %v", err)
	}
	if err := tool.ValidateArgs(map[string]any{}); err == nil {
		t.Error("expected missing required field to fail validation")
	}
}

func TestIsObservationToolChecksMetadataAndNamePrefix(t *testing.T) {
	reg := ToolRegistry{
		"custom_watch": {Name: "custom_watch", Metadata: ToolMetadata{Observation: true}},
	}
	if !isObservationTool(reg, "custom_watch") {
		t.Error("expected metadata-flagged tool to be an observation tool")
	}
	if !isObservationTool(reg, "browser_snapshot_full") {
		t.Error("expected browser_snapshot* prefix to be treated as observation")
	}
	if isObservationTool(reg, "read_file") {
		t.Error("expected an unrelated tool name to not be an observation tool")
	}
}

func TestToolRegistrySchemasAndNames(t *testing.T) {
	reg := ToolRegistry{"echo": echoTool()}
	schemas := reg.Schemas()
	if len(schemas) != 1 || schemas[0].Name != "echo" {
		t.Errorf("unexpected schemas: %+v", schemas)
	}
	names := reg.ToolNames()
	if len(names) != 1 || names[0] != "echo" {
		t.Errorf("unexpected names: %v", names)
	}
}
