package document

import (
	"context"
	"fmt"
	"sync"
)

// Comment is an annotation anchored to a stretch of text.
type Comment struct {
	Anchor string
	Text   string
}

// Revision records one tracked replacement.
type Revision struct {
	Original    string
	Replacement string
}

// MemoryAdapter is an in-memory document implementing Adapter. It backs the
// CLI REPL and the test suite; the selection is a rune range over the body.
type MemoryAdapter struct {
	mu        sync.Mutex
	text      []rune
	selStart  int
	selEnd    int
	mode      RevisionMode
	comments  []Comment
	revisions []Revision
}

// NewMemoryAdapter creates an adapter over the given document text with an
// empty selection at the start.
func NewMemoryAdapter(text string) *MemoryAdapter {
	return &MemoryAdapter{text: []rune(text), mode: TrackOff}
}

// Select sets the selection range, clamped to the document bounds.
func (m *MemoryAdapter) Select(start, end int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if start < 0 {
		start = 0
	}
	if end > len(m.text) {
		end = len(m.text)
	}
	if end < start {
		end = start
	}
	m.selStart, m.selEnd = start, end
}

// SelectString selects the first occurrence of needle, or leaves the
// selection empty when absent.
func (m *MemoryAdapter) SelectString(needle string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := indexRunes(m.text, []rune(needle))
	if idx < 0 {
		m.selStart, m.selEnd = 0, 0
		return false
	}
	m.selStart = idx
	m.selEnd = idx + len([]rune(needle))
	return true
}

func indexRunes(haystack, needle []rune) int {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return -1
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func (m *MemoryAdapter) SelectionText(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.text[m.selStart:m.selEnd]), nil
}

func (m *MemoryAdapter) DocumentText(ctx context.Context, maxLen int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if maxLen > 0 && len(m.text) > maxLen {
		return string(m.text[:maxLen]) + TruncationMarker, nil
	}
	return string(m.text), nil
}

func (m *MemoryAdapter) HasSelection(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selEnd > m.selStart, nil
}

func (m *MemoryAdapter) ReplaceSelection(ctx context.Context, content string, trackChanges bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if trackChanges {
		prev := m.mode
		m.mode = TrackAll
		defer func() { m.mode = prev }()
		m.revisions = append(m.revisions, Revision{
			Original:    string(m.text[m.selStart:m.selEnd]),
			Replacement: content,
		})
	}

	replacement := []rune(content)
	m.text = append(m.text[:m.selStart:m.selStart], append(replacement, m.text[m.selEnd:]...)...)
	m.selEnd = m.selStart + len(replacement)
	return nil
}

func (m *MemoryAdapter) InsertText(ctx context.Context, pos InsertPosition, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	insert := []rune(content)
	var at int
	switch pos {
	case BeforeSelection:
		at = m.selStart
	case AfterSelection:
		at = m.selEnd
	case DocumentStart:
		at = 0
	case DocumentEnd:
		at = len(m.text)
	default:
		return fmt.Errorf("invalid insert position %q", pos)
	}

	m.text = append(m.text[:at:at], append(insert, m.text[at:]...)...)
	if at <= m.selStart {
		m.selStart += len(insert)
		m.selEnd += len(insert)
	}
	return nil
}

func (m *MemoryAdapter) DeleteSelection(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.text = append(m.text[:m.selStart:m.selStart], m.text[m.selEnd:]...)
	m.selEnd = m.selStart
	return nil
}

func (m *MemoryAdapter) AddCommentToSelection(ctx context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.comments = append(m.comments, Comment{
		Anchor: string(m.text[m.selStart:m.selEnd]),
		Text:   text,
	})
	return nil
}

// Text returns the full document body.
func (m *MemoryAdapter) Text() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.text)
}

// Comments returns the annotations added so far.
func (m *MemoryAdapter) Comments() []Comment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Comment(nil), m.comments...)
}

// Revisions returns the tracked replacements recorded so far.
func (m *MemoryAdapter) Revisions() []Revision {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Revision(nil), m.revisions...)
}

// Mode returns the current revision-tracking mode.
func (m *MemoryAdapter) Mode() RevisionMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}
