package context

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"patchpilot/internal/token"
)

const testSystem = "You are a test assistant."

func newTestManager() *Manager {
	return NewManager(testSystem, 4500, 1500, 40)
}

func TestUpsertDocumentReplacesInPlace(t *testing.T) {
	m := newTestManager()
	m.UpsertDocument("a.go", "package a")
	m.UpsertDocument("b.go", "package b")
	m.UpsertDocument("a.go", "package a // revised")

	require.Equal(t, []string{"a.go", "b.go"}, m.DocumentIDs(), "upsert keeps the original slot")

	built := m.Build("")
	require.Len(t, built, 3)
	assert.Contains(t, built[1].Content, "revised")
}

func TestUpsertDocumentTruncatesToPerDocumentBudget(t *testing.T) {
	m := NewManager(testSystem, 100000, 100, 40) // 400-char budget per document
	m.UpsertDocument("big.txt", strings.Repeat("x", 5000))

	built := m.Build("")
	doc := built[1].Content
	assert.Contains(t, doc, TruncationMarker)
	assert.LessOrEqual(t, len([]rune(doc)), len(documentTag)+len("big.txt\n")+400+len(TruncationMarker))
}

func TestRemoveDocument(t *testing.T) {
	m := newTestManager()
	m.UpsertDocument("a.go", "package a")
	m.UpsertDocument("b.go", "package b")
	require.True(t, m.Pin("a.go"))

	assert.False(t, m.RemoveDocument("a.go", false), "pinned document refuses removal")
	assert.True(t, m.IsPinned("a.go"))

	assert.True(t, m.RemoveDocument("a.go", true), "force removes a pinned document")
	assert.False(t, m.IsPinned("a.go"), "removal clears the pin")

	assert.True(t, m.RemoveDocument("missing.go", false), "absent id already satisfies removal")
	assert.Equal(t, []string{"b.go"}, m.DocumentIDs())
}

func TestPinRequiresLoadedDocument(t *testing.T) {
	m := newTestManager()
	assert.False(t, m.Pin("ghost.go"))
	assert.False(t, m.IsPinned("ghost.go"))

	m.UpsertDocument("real.go", "package real")
	assert.True(t, m.Pin("real.go"))
	assert.True(t, m.IsPinned("real.go"))

	m.Unpin("real.go")
	assert.False(t, m.IsPinned("real.go"))
	m.Unpin("ghost.go") // no-op
}

func TestConversationFIFOBound(t *testing.T) {
	m := NewManager(testSystem, 1000000, 1500, 4)
	for i := 0; i < 10; i++ {
		m.AppendUser(fmt.Sprintf("user %d", i))
		m.AppendAssistant(fmt.Sprintf("assistant %d", i))
	}

	built := m.Build("")
	convo := built[1:] // no documents loaded
	require.Len(t, convo, 4)
	assert.Equal(t, "user 8", convo[0].Content)
	assert.Equal(t, "assistant 8", convo[1].Content)
	assert.Equal(t, "user 9", convo[2].Content)
	assert.Equal(t, "assistant 9", convo[3].Content)
}

func TestBuildOrderingAndEphemeral(t *testing.T) {
	m := newTestManager()
	m.UpsertDocument("a.go", "package a")
	m.AppendUser("question")
	m.AppendAssistant("answer")

	built := m.Build("ephemeral ask")
	require.Len(t, built, 5)
	assert.Equal(t, RoleSystem, built[0].Role)
	assert.Equal(t, testSystem, built[0].Content)
	assert.True(t, strings.HasPrefix(built[1].Content, documentTag+"a.go"))
	assert.Equal(t, "question", built[2].Content)
	assert.Equal(t, "answer", built[3].Content)
	assert.Equal(t, Message{Role: RoleUser, Content: "ephemeral ask"}, built[4])

	// The ephemeral message is never stored.
	again := m.Build("")
	require.Len(t, again, 4)
	for _, msg := range again {
		assert.NotEqual(t, "ephemeral ask", msg.Content)
	}
}

func TestBuildDropsOldestConversationFirst(t *testing.T) {
	// System ~6 tokens, document ~130 tokens, each turn 25 tokens.
	m := NewManager(testSystem, 200, 1500, 40)
	m.UpsertDocument("doc.txt", strings.Repeat("d", 500))
	for i := 0; i < 4; i++ {
		m.AppendUser(strings.Repeat("u", 100))
	}

	built := m.Build("")

	assert.Equal(t, RoleSystem, built[0].Role)
	require.GreaterOrEqual(t, len(built), 2)
	assert.Contains(t, built[1].Content, documentTag, "documents are never dropped")
	convoKept := len(built) - 2
	assert.Less(t, convoKept, 4, "oldest turns dropped to fit the budget")
	if convoKept > 0 {
		// Whatever survives is the newest suffix.
		assert.Equal(t, RoleUser, built[len(built)-1].Role)
	}
}

func TestBuildEmergencyDocumentTruncation(t *testing.T) {
	// Tiny global budget, one large document, many turns: the conversation is
	// drained entirely and the document is re-truncated with a visible marker.
	m := NewManager(testSystem, 50, 250, 40)
	m.UpsertDocument("huge.txt", strings.Repeat("h", 2000))
	for i := 0; i < 20; i++ {
		m.AppendUser(fmt.Sprintf("turn %d padding padding padding", i))
	}

	built := m.Build("")

	require.Len(t, built, 2, "all conversation turns dropped before touching documents")
	assert.Equal(t, RoleSystem, built[0].Role)
	assert.Equal(t, testSystem, built[0].Content, "system message never shrinks")

	doc := built[1].Content
	assert.Contains(t, doc, TruncationMarker)
	assert.LessOrEqual(t, len([]rune(doc)), len(documentTag)+len("huge.txt\n")+500+len(TruncationMarker))

	// Over budget is allowed; nothing below the system layer is dropped.
	assert.Greater(t, sumEstimates(built), 50)

	// Persisted state is untouched by the emergency pass.
	assert.Equal(t, []string{"huge.txt"}, m.DocumentIDs())
	assert.Equal(t, 20, m.Stats().ConversationLen)
}

func TestTruncateHeadTailIdempotent(t *testing.T) {
	text := strings.Repeat("abcdefghij", 500)
	once := truncateHeadTail(text, 1000)
	twice := truncateHeadTail(once, 1000)

	assert.Contains(t, once, TruncationMarker)
	assert.Equal(t, once, twice)
	assert.True(t, strings.HasPrefix(once, "abcdefghij"))
	assert.True(t, strings.HasSuffix(once, "abcdefghij"))
}

func TestTruncateHeadTailShortTextUntouched(t *testing.T) {
	assert.Equal(t, "short", truncateHeadTail("short", 1000))
	assert.Equal(t, "", truncateHeadTail("", 1000))
}

func TestResetConversationKeepsDocumentsAndPins(t *testing.T) {
	m := newTestManager()
	m.UpsertDocument("keep.go", "package keep")
	m.Pin("keep.go")
	m.AppendUser("hello")
	m.AppendAssistant("hi")

	m.ResetConversation()

	stats := m.Stats()
	assert.Equal(t, 0, stats.ConversationLen)
	assert.Equal(t, 1, stats.DocumentCount)
	assert.True(t, m.IsPinned("keep.go"))
}

func TestStats(t *testing.T) {
	m := newTestManager()
	m.UpsertDocument("a.go", strings.Repeat("a", 400))
	m.UpsertDocument("b.go", strings.Repeat("b", 800))
	m.Pin("b.go")
	m.AppendUser("hello")

	stats := m.Stats()
	assert.Equal(t, 2, stats.DocumentCount)
	assert.Equal(t, 1, stats.PinnedCount)
	assert.Equal(t, 1, stats.ConversationLen)
	assert.Equal(t, 4500, stats.MaxTotal)
	require.Len(t, stats.Documents, 2)
	assert.Equal(t, "a.go", stats.Documents[0].ID)
	assert.False(t, stats.Documents[0].Pinned)
	assert.True(t, stats.Documents[1].Pinned)
	assert.Greater(t, stats.Documents[1].Tokens, stats.Documents[0].Tokens)
	assert.Equal(t, stats.TotalTokens, m.EstimatedTotalTokens())
}

func TestEstimatedTotalGrowsMonotonically(t *testing.T) {
	m := newTestManager()
	base := m.EstimatedTotalTokens()
	assert.Equal(t, token.Estimate(testSystem), base)

	m.UpsertDocument("a.go", strings.Repeat("a", 400))
	withDoc := m.EstimatedTotalTokens()
	assert.Greater(t, withDoc, base)

	m.AppendUser("a question")
	assert.Greater(t, m.EstimatedTotalTokens(), withDoc)
}
