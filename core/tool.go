package core

import "encoding/json"

// ToolCall is a function call requested by an orchestration layer.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
	Class      string `json:"class,omitempty"`
}

type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

func NewToolResult(toolCallID, content string) ToolResult {
	return ToolResult{ToolCallID: toolCallID, Content: content}
}

// NewToolError reports err to the caller, tagged with its error class.
func NewToolError(toolCallID string, err error) ToolResult {
	return ToolResult{ToolCallID: toolCallID, Content: err.Error(), IsError: true, Class: Class(err)}
}
