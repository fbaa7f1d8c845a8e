// Package document defines the contract between the conversation core and
// the host document, plus the adapters that implement it.
package document

import "context"

// InsertPosition says where InsertText places content relative to the
// current selection or the document bounds.
type InsertPosition string

const (
	BeforeSelection InsertPosition = "before_selection"
	AfterSelection  InsertPosition = "after_selection"
	DocumentStart   InsertPosition = "document_start"
	DocumentEnd     InsertPosition = "document_end"
)

// ValidPosition reports whether p is one of the four insert positions.
func ValidPosition(p InsertPosition) bool {
	switch p {
	case BeforeSelection, AfterSelection, DocumentStart, DocumentEnd:
		return true
	}
	return false
}

// TruncationMarker is appended to DocumentText output when the document
// exceeds the requested length.
const TruncationMarker = "\n...(truncated)"

// RevisionMode is the host document's change-tracking state.
type RevisionMode string

const (
	TrackOff RevisionMode = "off"
	TrackAll RevisionMode = "trackAll"
)

// Adapter is the document-editing capability the core drives. All
// operations cross into host document state and may fail with a
// host-specific error; callers treat such failures as operation-level,
// never fatal to the session.
type Adapter interface {
	// SelectionText returns the currently selected text, empty when
	// nothing is selected.
	SelectionText(ctx context.Context) (string, error)

	// DocumentText returns up to maxLen characters of the document body,
	// with TruncationMarker appended when clipped. maxLen <= 0 means no
	// limit.
	DocumentText(ctx context.Context, maxLen int) (string, error)

	// HasSelection reports whether a non-empty selection exists.
	HasSelection(ctx context.Context) (bool, error)

	// ReplaceSelection replaces the current selection. With trackChanges
	// set, the replacement is recorded as a tracked revision: the prior
	// revision mode is read, tracking is switched on for the edit, and the
	// prior mode is restored best-effort afterwards.
	ReplaceSelection(ctx context.Context, content string, trackChanges bool) error

	// InsertText inserts content at the given position without removing
	// existing text.
	InsertText(ctx context.Context, pos InsertPosition, content string) error

	// DeleteSelection removes the currently selected text.
	DeleteSelection(ctx context.Context) error

	// AddCommentToSelection attaches an annotation to the selection
	// without altering the text.
	AddCommentToSelection(ctx context.Context, text string) error
}
