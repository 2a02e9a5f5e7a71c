// Package engine provides agent orchestration functionality.
// This file contains the tool descriptor, registry, and result shaping
// (truncation, image stripping) consumed by the Tool Loop Engine.

package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Default truncation caps for ToolResult text (spec §3): interactive
// sessions get the larger cap, sub-sessions (e.g. a vision sub-call, a
// sub-task) get the tighter one.
const (
	DefaultToolResultCapInteractive = 30000
	DefaultToolResultCapSubSession  = 8000
)

// ToolContext carries whatever a concrete Tool implementation needs that
// isn't part of the call itself (working directory, session id, approval
// decider, ...). The core treats it as opaque.
type ToolContext struct {
	SessionID string
	Approve   ApprovalDecider
	Extra     map[string]any
}

// ToolResult is {success, message, data}. Tool handles its own truncation
// via Truncate; the loop is what decides which cap applies.
type ToolResult struct {
	Success bool
	Message string
	Data    json.RawMessage
}

// Truncate caps Message (or a data-derived fallback) at maxChars, keeping
// the first maxChars and appending a marker that records the original
// length. It
// also strips any base64_data image blob from Data before the result is
// re-injected into the conversation, per spec's image-stripping rule.
func (r ToolResult) Truncate(maxChars int) ToolResult {
	out := r
	out.Data = stripBase64Image(r.Data)

	text := r.Message
	if text == "" && len(out.Data) > 0 {
		text = string(out.Data)
	}
	if len(text) > maxChars {
		originalLen := len(text)
		head := text[:maxChars]
		out.Message = fmt.Sprintf("%s\n...[truncated, original length %d chars]", head, originalLen)
	} else {
		out.Message = text
	}
	return out
}

// HasImageData reports whether Data carries a base64_data field, signaling
// that the loop should route this result through a vision model instead of
// inlining it verbatim.
func (r ToolResult) HasImageData() bool {
	return len(extractBase64Image(r.Data)) > 0
}

// ImageData returns the base64_data payload, or "" if none is present.
func (r ToolResult) ImageData() string {
	return extractBase64Image(r.Data)
}

func extractBase64Image(data json.RawMessage) string {
	if len(data) == 0 {
		return ""
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return ""
	}
	if v, ok := m["base64_data"].(string); ok {
		return v
	}
	return ""
}

func stripBase64Image(data json.RawMessage) json.RawMessage {
	if len(data) == 0 {
		return data
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return data
	}
	if _, ok := m["base64_data"]; !ok {
		return data
	}
	delete(m, "base64_data")
	reencoded, err := json.Marshal(m)
	if err != nil {
		return data
	}
	return reencoded
}

// ToolFunc is the concrete implementation behind a Tool descriptor.
type ToolFunc func(ctx context.Context, args map[string]any, tctx ToolContext) (ToolResult, error)

// ToolMetadata carries optional versioning/categorization, preserved from
// the teacher's richer descriptor because the fixture tools and tests use it
// to group tools (e.g. observation tools get the generic_repeat grace
// threshold in loopdetect.go); the spec's own descriptor only names
// {name, description, parameter_schema}, so every field here beyond that is
// enrichment, not a requirement.
type ToolMetadata struct {
	Version      string
	Category     string
	Tags         []string
	Deprecated   bool
	Observation  bool // true for tools like browser_snapshot/capture_screen (higher repeat threshold)
}

// Tool is the full descriptor: {name, description, parameter_schema} plus
// the Go-side dispatch function.
type Tool struct {
	Name        string
	Description string
	SchemaJSON  string
	Fn          ToolFunc
	Retryable   bool
	Metadata    ToolMetadata
}

// ValidateArgs validates args against the tool's JSON schema.
func (t Tool) ValidateArgs(args map[string]any) error {
	schemaLoader := gojsonschema.NewStringLoader(t.SchemaJSON)
	documentLoader := gojsonschema.NewGoLoader(args)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		var msgs []string
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return &ToolValidationError{ToolName: t.Name, Errors: msgs}
	}
	return nil
}

// ToolRegistry maps unique tool name to descriptor (spec invariant: names
// are unique within a registry — enforced by it simply being a map).
type ToolRegistry map[string]Tool

// Schemas projects the registry to the wire-level descriptors sent to the
// LLM client.
func (r ToolRegistry) Schemas() []ToolSchema {
	s := make([]ToolSchema, 0, len(r))
	for _, t := range r {
		s = append(s, ToolSchema{
			Name:        t.Name,
			Description: t.Description,
			JSONSchema:  t.SchemaJSON,
			Retryable:   t.Retryable,
		})
	}
	return s
}

// ToolNames returns the registered tool names, for error messages and
// allowed-tools filtering.
func (r ToolRegistry) ToolNames() []string {
	names := make([]string, 0, len(r))
	for n := range r {
		names = append(names, n)
	}
	return names
}

// isObservationTool reports whether name matches one of the loop detector's
// designated observation tools (§4.7.1: screen-snapshot-like calls get a
// higher generic_repeat threshold because legitimate polling looks similar
// in shape to a stuck loop).
func isObservationTool(reg ToolRegistry, name string) bool {
	if t, ok := reg[name]; ok && t.Metadata.Observation {
		return true
	}
	return strings.HasPrefix(name, "browser_snapshot") || strings.HasPrefix(name, "capture_screen")
}

// executeTool parses arguments, validates them, and dispatches to the tool's
// Fn. It never retries — retry.go's RetryToolCall wraps this when a caller
// wants backoff.
func executeTool(ctx context.Context, call ToolCall, reg ToolRegistry, tctx ToolContext) (ToolResult, error) {
	tool, ok := reg[call.Name]
	if !ok {
		return ToolResult{}, fmt.Errorf("tool not found: %s", call.Name)
	}

	var args map[string]any
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return ToolResult{}, fmt.Errorf("invalid tool arguments for %s: %w", call.Name, err)
		}
	}
	if err := tool.ValidateArgs(args); err != nil {
		return ToolResult{}, err
	}

	result, err := tool.Fn(ctx, args, tctx)
	if err != nil {
		return ToolResult{}, WrapToolError(err, tool.Retryable)
	}
	return result, nil
}
