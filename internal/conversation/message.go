package conversation

import (
	"strings"

	"github.com/fyrsmithlabs/sheetctx/internal/tokens"
)

// Role identifies who produced a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// SummaryPrefix starts the content of every generated summary message.
const SummaryPrefix = "[Conversation summary]\n"

// MessageOverheadTokens is charged per message for role and framing.
const MessageOverheadTokens = 4

// ToolCall is one function invocation requested by an assistant message.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
}

// Message is one chat turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	// ToolCalls is set on assistant messages that invoke tools.
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`
	// ToolCallID links a tool message to the call it answers.
	ToolCallID string `json:"toolCallId,omitempty"`
}

// IsSummary reports whether m was generated by a previous Trim.
func (m Message) IsSummary() bool {
	return m.Role == RoleSystem && strings.HasPrefix(m.Content, SummaryPrefix)
}

// HasToolCalls reports whether m is an assistant message requesting tools.
func (m Message) HasToolCalls() bool {
	return m.Role == RoleAssistant && len(m.ToolCalls) > 0
}

func (m Message) callIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(m.ToolCalls))
	for _, c := range m.ToolCalls {
		ids[c.ID] = struct{}{}
	}
	return ids
}

// MessageTokens estimates the cost of one message: a fixed overhead plus
// content, tool call names and arguments, and the tool call id.
func MessageTokens(est tokens.Estimator, m Message) int {
	return MessageOverheadTokens + tokens.Count(est, m.Content) + frameTokens(est, m)
}

// frameTokens is everything in MessageTokens except overhead and content.
func frameTokens(est tokens.Estimator, m Message) int {
	n := 0
	for _, c := range m.ToolCalls {
		n += tokens.Count(est, c.ID) + tokens.Count(est, c.Name) + tokens.Count(est, c.Arguments)
	}
	if m.ToolCallID != "" {
		n += tokens.Count(est, m.ToolCallID)
	}
	return n
}

// TotalTokens sums MessageTokens over msgs.
func TotalTokens(est tokens.Estimator, msgs []Message) int {
	n := 0
	for _, m := range msgs {
		n += MessageTokens(est, m)
	}
	return n
}

func cloneMessage(m Message) Message {
	if m.ToolCalls != nil {
		m.ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
	}
	return m
}
