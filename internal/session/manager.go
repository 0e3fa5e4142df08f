// Package session drives one streaming exchange at a time: build the message
// list, stream fragments from the provider with bounded retry, forward them
// to the display sink, and fold the result back into conversation history.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	ctxmgr "patchpilot/internal/context"
	apperrors "patchpilot/internal/errors"
	"patchpilot/internal/llm"
	"patchpilot/internal/logging"
)

// Sink receives ordered, fire-and-forget output during a session. Fragments
// are forwarded in the exact order the provider yields them.
type Sink interface {
	Stream(text string)
	Reasoning(text string)
	Info(text string)
	Error(text string)
	Newline()
}

// Manager runs send calls against one provider/assembler pair. One Send is
// outstanding at a time; the assembler serializes its own mutations.
type Manager struct {
	provider    llm.Provider
	assembler   *ctxmgr.Manager
	sink        Sink
	temperature float64
	maxTokens   int
	retry       apperrors.RetryConfig
	logger      logging.Logger
}

// NewManager wires a streaming session.
func NewManager(provider llm.Provider, assembler *ctxmgr.Manager, sink Sink, temperature float64, maxTokens int, retry apperrors.RetryConfig) *Manager {
	return &Manager{
		provider:    provider,
		assembler:   assembler,
		sink:        sink,
		temperature: temperature,
		maxTokens:   maxTokens,
		retry:       retry,
		logger:      logging.NewComponentLogger("session"),
	}
}

// Send sends user text to the provider and streams the reply.
//
// With persist set, the text is appended to conversation history before the
// exchange, so it survives even if the exchange fails. Without persist, the
// text rides along as an ephemeral message and is never stored; callers use
// this for internally synthesized prompts whose summary they record
// themselves.
//
// Transient failures establishing the provider call are retried with
// exponential backoff, restarting the entire call. Cancellation stops
// consumption at the next fragment boundary and is not an error. Whatever
// content accumulated is always recorded as an assistant turn and returned.
func (m *Manager) Send(ctx context.Context, userText string, persist bool) (string, error) {
	var built []ctxmgr.Message
	if persist {
		m.assembler.AppendUser(userText)
		built = m.assembler.Build("")
	} else {
		built = m.assembler.Build(userText)
	}

	messages := make([]llm.Message, len(built))
	for i, msg := range built {
		messages[i] = llm.Message{Role: string(msg.Role), Content: msg.Content}
	}

	var accumulator strings.Builder
	cancelled := false

	_, err := apperrors.RetryWithResultAndLog(ctx, m.retry, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, m.streamOnce(ctx, messages, &accumulator, &cancelled)
	}, m.logger)

	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		cancelled = true
		err = nil
	}

	m.sink.Newline()
	if cancelled {
		m.sink.Info("[Stream interrupted]")
	}
	if err != nil {
		err = fmt.Errorf("send via %s: %w", m.provider.Name(), err)
		m.sink.Error(apperrors.FormatForUser(err))
	}

	if accumulator.Len() > 0 {
		m.assembler.AppendAssistant(accumulator.String())
	}
	return accumulator.String(), err
}

// streamOnce runs a single provider call from establishment to stream end.
// It returns nil on a completed or cancelled stream, a transient error when
// the attempt should be retried from scratch, and a permanent error
// otherwise. Content already forwarded stays in the accumulator across
// retries; it was shown to the user and cannot be unshown.
func (m *Manager) streamOnce(ctx context.Context, messages []llm.Message, accumulator *strings.Builder, cancelled *bool) error {
	chunks, err := m.provider.Stream(ctx, messages, m.temperature, m.maxTokens)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			*cancelled = true
			return nil
		case chunk, ok := <-chunks:
			if !ok {
				return nil
			}
			if chunk.Err != nil {
				return chunk.Err
			}
			if chunk.Reasoning != "" {
				m.sink.Reasoning(chunk.Reasoning)
			}
			if chunk.Content != "" {
				m.sink.Stream(chunk.Content)
				accumulator.WriteString(chunk.Content)
			}
		}
	}
}

// Reset clears the conversation layer. Documents and pins survive.
func (m *Manager) Reset() {
	m.assembler.ResetConversation()
}
