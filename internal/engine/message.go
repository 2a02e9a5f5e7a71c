// Package engine implements the agent execution core: message model, token
// estimation, tool dispatch, failover, compression, and the tool loop itself.
package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Role is one of the four message roles the loop ever produces or consumes.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentPart is one element of a multimodal content array, mirroring the
// `{type: text|image_url, ...}` shape providers emit.
type ContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// ChatMessage is the canonical message record. Content arrives either as a
// plain string or as an ordered sequence of parts; Parts is nil when the
// message was constructed from a plain string, and ContentAsText flattens
// either form for callers that only want text.
type ChatMessage struct {
	Role       Role
	Content    string
	Parts      []ContentPart
	Name       string
	ToolCalls  []ToolCall
	ToolCallID string
	Reasoning  string
	Extra      map[string]any
}

// ContentAsText flattens Parts (if present) into a single string, joining
// text parts with newlines and ignoring non-text parts (image_url etc).
func (m ChatMessage) ContentAsText() string {
	if len(m.Parts) == 0 {
		return m.Content
	}
	var sb strings.Builder
	for _, p := range m.Parts {
		if p.Type != "text" || p.Text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// Validate enforces the two structural invariants on a message: tool_calls
// only ever appear on an assistant message, and tool_call_id only ever
// appears on a tool message.
func (m ChatMessage) Validate() error {
	if len(m.ToolCalls) > 0 && m.Role != RoleAssistant {
		return fmt.Errorf("message with tool_calls must have role assistant, got %q", m.Role)
	}
	if m.ToolCallID != "" && m.Role != RoleTool {
		return fmt.Errorf("message with tool_call_id must have role tool, got %q", m.Role)
	}
	return nil
}

// ToolCall is {id, name, arguments}. Arguments is always the canonical
// JSON-encoded string form; NormalizeArguments is how callers get there from
// a provider payload that may have sent a raw object instead.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
	Error     string
}

// NewToolCallID synthesizes an id for a tool call the provider left blank.
func NewToolCallID() string {
	return uuid.NewString()
}

// NormalizeArguments accepts a raw JSON value that is either a JSON string
// (the common case) or a raw JSON object (some models emit this instead) and
// returns the canonical string form. This is the arguments-polymorphism
// tolerance spec'd for the wire parser.
func NormalizeArguments(raw json.RawMessage) (string, error) {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, nil
	}
	var asObject any
	if err := json.Unmarshal(raw, &asObject); err != nil {
		return "", fmt.Errorf("tool call arguments are neither a JSON string nor object: %w", err)
	}
	encoded, err := json.Marshal(asObject)
	if err != nil {
		return "", fmt.Errorf("re-encoding tool call arguments: %w", err)
	}
	return string(encoded), nil
}

// Signature is the name:arguments key used by dedup and loop-pattern
// detection. It parses Arguments as JSON before re-serializing so that
// whitespace-only differences never produce a false negative.
func (tc ToolCall) Signature() string {
	var parsed any
	if err := json.Unmarshal([]byte(tc.Arguments), &parsed); err != nil {
		return tc.Name + ":" + tc.Arguments
	}
	normalized, err := json.Marshal(parsed)
	if err != nil {
		return tc.Name + ":" + tc.Arguments
	}
	return tc.Name + ":" + string(normalized)
}
