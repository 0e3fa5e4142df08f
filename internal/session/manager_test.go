package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ctxmgr "patchpilot/internal/context"
	apperrors "patchpilot/internal/errors"
	"patchpilot/internal/llm"
)

// recordingSink captures everything the session forwards.
type recordingSink struct {
	streamed  []string
	reasoning []string
	infos     []string
	errs      []string
	newlines  int
}

func (s *recordingSink) Stream(text string)    { s.streamed = append(s.streamed, text) }
func (s *recordingSink) Reasoning(text string) { s.reasoning = append(s.reasoning, text) }
func (s *recordingSink) Info(text string)      { s.infos = append(s.infos, text) }
func (s *recordingSink) Error(text string)     { s.errs = append(s.errs, text) }
func (s *recordingSink) Newline()              { s.newlines++ }

func newTestSession(provider llm.Provider, sleeps *[]time.Duration) (*Manager, *ctxmgr.Manager, *recordingSink) {
	assembler := ctxmgr.NewManager("system prompt", 100000, 1500, 40)
	sink := &recordingSink{}
	retry := apperrors.RetryConfig{
		MaxRetries: 3,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   30 * time.Second,
		Sleep: func(ctx context.Context, d time.Duration) error {
			if sleeps != nil {
				*sleeps = append(*sleeps, d)
			}
			return ctx.Err()
		},
	}
	return NewManager(provider, assembler, sink, 0.4, 4096, retry), assembler, sink
}

func TestSendStreamsAndRecordsHistory(t *testing.T) {
	provider := &llm.MockProvider{Attempts: []llm.MockAttempt{
		{Chunks: []llm.StreamChunk{
			{Reasoning: "thinking..."},
			{Content: "Hello"},
			{Content: " world"},
		}},
	}}
	session, assembler, sink := newTestSession(provider, nil)

	response, err := session.Send(context.Background(), "hi there", true)

	require.NoError(t, err)
	assert.Equal(t, "Hello world", response)
	assert.Equal(t, []string{"Hello", " world"}, sink.streamed, "fragments forwarded in order")
	assert.Equal(t, []string{"thinking..."}, sink.reasoning)
	assert.Equal(t, 1, sink.newlines)

	// Both the user turn and the assistant turn are in history.
	built := assembler.Build("")
	require.Len(t, built, 3)
	assert.Equal(t, "hi there", built[1].Content)
	assert.Equal(t, "Hello world", built[2].Content)
}

func TestSendEphemeralTextIsNeverStored(t *testing.T) {
	provider := &llm.MockProvider{Attempts: []llm.MockAttempt{
		{Chunks: []llm.StreamChunk{{Content: "done"}}},
	}}
	session, assembler, _ := newTestSession(provider, nil)

	response, err := session.Send(context.Background(), "hi", false)

	require.NoError(t, err)
	assert.Equal(t, "done", response)

	// The ephemeral text reached the provider as the final message.
	require.NotEmpty(t, provider.LastMessages)
	assert.Equal(t, "hi", provider.LastMessages[len(provider.LastMessages)-1].Content)

	// Only the assistant reply made it into history.
	built := assembler.Build("")
	require.Len(t, built, 2)
	assert.Equal(t, "done", built[1].Content)
	for _, msg := range built {
		assert.NotEqual(t, "hi", msg.Content)
	}
}

func TestSendRetriesTransientEstablishmentFailures(t *testing.T) {
	transient := apperrors.NewTransientError(errors.New("503"), "service unavailable")
	provider := &llm.MockProvider{Attempts: []llm.MockAttempt{
		{CallErr: transient},
		{CallErr: transient},
		{Chunks: []llm.StreamChunk{{Content: "recovered"}}},
	}}
	var sleeps []time.Duration
	session, assembler, sink := newTestSession(provider, &sleeps)

	response, err := session.Send(context.Background(), "hi", true)

	require.NoError(t, err)
	assert.Equal(t, "recovered", response)
	assert.Equal(t, 3, provider.Calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, sleeps,
		"exactly two backoff waits, doubling from the base delay")
	assert.Empty(t, sink.errs)
	assert.Equal(t, 2, assembler.Stats().ConversationLen)
}

func TestSendFatalErrorStopsImmediately(t *testing.T) {
	fatal := apperrors.NewPermanentError(errors.New("401"), "Authentication failed. Check your API key configuration.")
	provider := &llm.MockProvider{Attempts: []llm.MockAttempt{{CallErr: fatal}}}
	var sleeps []time.Duration
	session, assembler, sink := newTestSession(provider, &sleeps)

	response, err := session.Send(context.Background(), "hi", true)

	require.Error(t, err)
	assert.Empty(t, response)
	assert.Equal(t, 1, provider.Calls, "no retry on a permanent error")
	assert.Empty(t, sleeps)
	require.Len(t, sink.errs, 1)
	assert.Equal(t, "Authentication failed. Check your API key configuration.", sink.errs[0])

	// The user turn persists even though the exchange failed.
	assert.Equal(t, 1, assembler.Stats().ConversationLen)
}

func TestSendMidStreamFailureKeepsShownContent(t *testing.T) {
	fatal := apperrors.NewPermanentError(errors.New("boom"), "stream broke")
	provider := &llm.MockProvider{Attempts: []llm.MockAttempt{
		{Chunks: []llm.StreamChunk{
			{Content: "partial "},
			{Content: "answer"},
			{Err: fatal},
		}},
	}}
	session, assembler, sink := newTestSession(provider, nil)

	response, err := session.Send(context.Background(), "hi", true)

	require.Error(t, err)
	assert.Equal(t, "partial answer", response, "already-shown fragments are returned")
	assert.Equal(t, []string{"partial ", "answer"}, sink.streamed)

	// Finalize records the partial reply as an assistant turn.
	built := assembler.Build("")
	require.Len(t, built, 3)
	assert.Equal(t, "partial answer", built[2].Content)
}

func TestSendCancellationIsNotAnError(t *testing.T) {
	provider := &llm.MockProvider{Attempts: []llm.MockAttempt{
		{Chunks: []llm.StreamChunk{{Content: "never shown"}}},
	}}
	session, assembler, sink := newTestSession(provider, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	response, err := session.Send(ctx, "hi", true)

	require.NoError(t, err)
	assert.Empty(t, response)
	assert.Equal(t, []string{"[Stream interrupted]"}, sink.infos)
	assert.Empty(t, sink.errs)

	// No assistant turn: nothing was accumulated.
	assert.Equal(t, 1, assembler.Stats().ConversationLen)
}

func TestReset(t *testing.T) {
	provider := &llm.MockProvider{Attempts: []llm.MockAttempt{
		{Chunks: []llm.StreamChunk{{Content: "reply"}}},
	}}
	session, assembler, _ := newTestSession(provider, nil)

	_, err := session.Send(context.Background(), "hi", true)
	require.NoError(t, err)
	require.Equal(t, 2, assembler.Stats().ConversationLen)

	session.Reset()
	assert.Equal(t, 0, assembler.Stats().ConversationLen)
}
