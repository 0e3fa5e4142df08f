// Package context implements the token-aware context assembler: a fixed
// system message, a document layer, and a rolling conversation layer composed
// into a budget-bounded message list.
package context

import "patchpilot/internal/token"

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is an immutable chat message. Messages are replaced wholesale,
// never mutated in place.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// TokenEstimate returns the deterministic budgeting estimate for the message.
func (m Message) TokenEstimate() int {
	return token.Estimate(m.Content)
}

func sumEstimates(msgs []Message) int {
	total := 0
	for _, m := range msgs {
		total += m.TokenEstimate()
	}
	return total
}
