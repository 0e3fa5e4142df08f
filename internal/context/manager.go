package context

import (
	"sync"
)

// TruncationMarker is inserted wherever document content was cut so
// downstream consumers can tell data is missing.
const TruncationMarker = "\n\n/* ...TRUNCATED... (tail follows) */\n\n"

// documentTag prefixes every document entry in the assembled message list.
const documentTag = "[DOCUMENT] "

// tailReserve is subtracted from the tail half so the marker and head fit
// inside the character budget, which also makes truncation idempotent.
const tailReserve = 100

type document struct {
	id   string
	body string // pre-truncated to the per-document budget
}

// DocumentStat describes one loaded document for inspection.
type DocumentStat struct {
	ID     string
	Tokens int
	Pinned bool
}

// Stats is a point-in-time snapshot of assembler state.
type Stats struct {
	TotalTokens     int
	MaxTotal        int
	DocumentCount   int
	PinnedCount     int
	ConversationLen int
	Documents       []DocumentStat
}

// Manager owns the three context layers and their budgets. All state is
// private; callers only ever receive copies. Mutations are serialized by an
// internal mutex so a Manager may be shared across goroutines.
type Manager struct {
	mu sync.Mutex

	system       Message
	maxTotal     int // global token ceiling
	maxDocTokens int // per-document token ceiling
	maxConvo     int // conversation length ceiling

	docs   []document
	pinned map[string]struct{}
	convo  []Message
}

// NewManager creates an assembler with a fixed system prompt and budgets.
// The system message is created once and never replaced.
func NewManager(systemPrompt string, maxTotalTokens, maxDocTokens, maxConvoMessages int) *Manager {
	return &Manager{
		system:       Message{Role: RoleSystem, Content: systemPrompt},
		maxTotal:     maxTotalTokens,
		maxDocTokens: maxDocTokens,
		maxConvo:     maxConvoMessages,
		pinned:       make(map[string]struct{}),
	}
}

// UpsertDocument stores content under id, truncated head+tail to the
// per-document budget. An existing entry is replaced in place, keeping its
// original insertion slot. Pin status of other documents is unaffected.
func (m *Manager) UpsertDocument(id, content string) {
	body := truncateHeadTail(content, m.maxDocTokens*4)

	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.docs {
		if m.docs[i].id == id {
			m.docs[i].body = body
			return
		}
	}
	m.docs = append(m.docs, document{id: id, body: body})
}

// RemoveDocument removes the entry for id. A pinned document is only removed
// when force is set; removal clears the pin. Removing an absent id returns
// true: absence already satisfies "not present".
func (m *Manager) RemoveDocument(id string, force bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, pinned := m.pinned[id]; pinned && !force {
		return false
	}

	for i := range m.docs {
		if m.docs[i].id == id {
			m.docs = append(m.docs[:i], m.docs[i+1:]...)
			break
		}
	}
	delete(m.pinned, id)
	return true
}

// Pin protects a loaded document from eviction. Pinning an absent document
// fails without mutating state.
func (m *Manager) Pin(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.docs {
		if m.docs[i].id == id {
			m.pinned[id] = struct{}{}
			return true
		}
	}
	return false
}

// Unpin removes the pin on id. Unpinning an absent id is a no-op.
func (m *Manager) Unpin(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pinned, id)
}

// IsPinned reports whether id is currently pinned.
func (m *Manager) IsPinned(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pinned[id]
	return ok
}

// DocumentIDs returns the loaded document identifiers in insertion order.
func (m *Manager) DocumentIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.docs))
	for _, d := range m.docs {
		ids = append(ids, d.id)
	}
	return ids
}

// AppendUser appends a user turn and enforces the conversation ceiling.
func (m *Manager) AppendUser(text string) {
	m.appendConvo(Message{Role: RoleUser, Content: text})
}

// AppendAssistant appends an assistant turn and enforces the ceiling.
func (m *Manager) AppendAssistant(text string) {
	m.appendConvo(Message{Role: RoleAssistant, Content: text})
}

func (m *Manager) appendConvo(msg Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.convo = append(m.convo, msg)
	if excess := len(m.convo) - m.maxConvo; excess > 0 {
		m.convo = append([]Message(nil), m.convo[excess:]...)
	}
}

// ResetConversation clears the conversation layer. Documents and pins
// survive.
func (m *Manager) ResetConversation() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.convo = nil
}

// Build assembles [system] + documents + conversation [+ ephemeral] and
// enforces the global token budget. Degrade order encodes layer priority:
// conversation turns are dropped oldest-first; once the conversation is
// drained, documents are re-truncated to an emergency budget. Documents are
// never dropped and the system message is never shrunk; if the system
// message alone exceeds the budget the oversized list is returned anyway.
func (m *Manager) Build(ephemeralUserText string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ephemeral []Message
	if ephemeralUserText != "" {
		ephemeral = []Message{{Role: RoleUser, Content: ephemeralUserText}}
	}

	docMsgs := make([]Message, len(m.docs))
	for i, d := range m.docs {
		docMsgs[i] = d.message()
	}
	convo := append([]Message(nil), m.convo...)

	fixed := m.system.TokenEstimate() + sumEstimates(ephemeral)
	total := func() int {
		return fixed + sumEstimates(docMsgs) + sumEstimates(convo)
	}

	for total() > m.maxTotal && len(convo) > 0 {
		convo = convo[1:]
	}

	if total() > m.maxTotal {
		// Emergency budget: half the normal per-document character budget.
		for i, d := range m.docs {
			shrunk := truncateHeadTail(d.body, m.maxDocTokens*2)
			docMsgs[i] = document{id: d.id, body: shrunk}.message()
		}
	}

	out := make([]Message, 0, 1+len(docMsgs)+len(convo)+len(ephemeral))
	out = append(out, m.system)
	out = append(out, docMsgs...)
	out = append(out, convo...)
	out = append(out, ephemeral...)
	return out
}

// EstimatedTotalTokens sums the estimates of the persisted layers.
func (m *Manager) EstimatedTotalTokens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.estimatedTotalLocked()
}

func (m *Manager) estimatedTotalLocked() int {
	total := m.system.TokenEstimate()
	for _, d := range m.docs {
		total += d.message().TokenEstimate()
	}
	return total + sumEstimates(m.convo)
}

// Stats returns a snapshot for inspection and reporting.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	docs := make([]DocumentStat, 0, len(m.docs))
	for _, d := range m.docs {
		_, pinned := m.pinned[d.id]
		docs = append(docs, DocumentStat{
			ID:     d.id,
			Tokens: d.message().TokenEstimate(),
			Pinned: pinned,
		})
	}

	return Stats{
		TotalTokens:     m.estimatedTotalLocked(),
		MaxTotal:        m.maxTotal,
		DocumentCount:   len(m.docs),
		PinnedCount:     len(m.pinned),
		ConversationLen: len(m.convo),
		Documents:       docs,
	}
}

func (d document) message() Message {
	return Message{Role: RoleUser, Content: documentTag + d.id + "\n" + d.body}
}

// truncateHeadTail cuts text to roughly maxChars characters, keeping the
// first half of the budget from the head and the remaining budget (minus
// tailReserve) from the tail, joined by TruncationMarker. Both the opening
// of a document and its most recent end survive. Applying the rule twice
// with the same budget changes nothing further.
func truncateHeadTail(text string, maxChars int) string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}

	half := maxChars / 2
	tailLen := half - tailReserve
	if tailLen < 0 {
		tailLen = 0
	}

	head := string(runes[:half])
	tail := string(runes[len(runes)-tailLen:])
	return head + TruncationMarker + tail
}
