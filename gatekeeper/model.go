// Package gatekeeper decides whether a claimer satisfies a natural-language
// eligibility rule. A tool-calling model session gathers facts, and a parser that
// never fails reduces whatever the session produced to APPROVE or REJECT.
package gatekeeper

import "context"

// ToolParam describes one argument of a tool in the catalog the model sees.
type ToolParam struct {
	Name        string
	Type        string // "string" or "number"
	Description string
}

// ToolSchema is a tool's catalog entry.
type ToolSchema struct {
	Name        string
	Description string
	Params      []ToolParam
	Required    []string
}

// ToolCall is a function call requested by the model.
type ToolCall struct {
	Name string
	Args map[string]any
}

// ToolResult answers one ToolCall.
type ToolResult struct {
	Name     string
	Response map[string]any
}

// Turn is one model reply: text, tool calls, or both.
type Turn struct {
	Text  string
	Calls []ToolCall
}

// ChatConfig is fixed for the lifetime of a session.
type ChatConfig struct {
	SystemPrompt string
	Tools        []ToolSchema
}

// ChatSession is a stateful multi-turn conversation with one model.
type ChatSession interface {
	SendText(ctx context.Context, text string) (*Turn, error)
	SendToolResults(ctx context.Context, results []ToolResult) (*Turn, error)
}

// ChatModel opens sessions for a (key, model) pair.
type ChatModel interface {
	StartChat(ctx context.Context, apiKey, model string, cfg ChatConfig) (ChatSession, error)
}
