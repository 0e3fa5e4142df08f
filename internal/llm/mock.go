package llm

import "context"

// MockAttempt scripts the outcome of one Stream call of a MockProvider.
// CallErr makes establishment fail; otherwise Chunks are yielded in order.
type MockAttempt struct {
	CallErr error
	Chunks  []StreamChunk
}

// MockProvider replays scripted attempts. Used by session tests; the last
// attempt repeats once the script is exhausted.
type MockProvider struct {
	Attempts []MockAttempt

	Calls        int
	LastMessages []Message
}

var _ Provider = (*MockProvider)(nil)

func (m *MockProvider) Name() string {
	return "mock"
}

func (m *MockProvider) Stream(ctx context.Context, messages []Message, temperature float64, maxTokens int) (<-chan StreamChunk, error) {
	idx := m.Calls
	if idx >= len(m.Attempts) {
		idx = len(m.Attempts) - 1
	}
	m.Calls++
	m.LastMessages = append([]Message(nil), messages...)

	attempt := m.Attempts[idx]
	if attempt.CallErr != nil {
		return nil, attempt.CallErr
	}

	chunks := make(chan StreamChunk)
	go func() {
		defer close(chunks)
		for _, chunk := range attempt.Chunks {
			select {
			case chunks <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return chunks, nil
}
