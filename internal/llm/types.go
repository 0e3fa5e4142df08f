// Package llm defines the model provider contract and the HTTP streaming
// clients that implement it.
package llm

import (
	"context"
	"time"
)

// Message is one entry of the request payload sent to a provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamChunk is one incremental unit of provider output. Content and
// Reasoning may both be set in the same chunk. A chunk with Err set is
// terminal: it reports a mid-stream failure and the channel closes after it.
type StreamChunk struct {
	Content   string
	Reasoning string
	Err       error
}

// Provider turns a message list into a lazy, finite, non-restartable
// sequence of stream chunks. Stream returns an error when the call cannot be
// established (classified transient or permanent via internal/errors); once
// a channel is returned, failures surface as a terminal chunk.
type Provider interface {
	Name() string
	Stream(ctx context.Context, messages []Message, temperature float64, maxTokens int) (<-chan StreamChunk, error)
}

// Config carries the provider connection settings.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}
