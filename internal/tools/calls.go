package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/quillpad/quill/internal/document"
)

// Call is one parsed document-mutation request. The model hands us an
// operation name plus an opaque JSON argument string; ParseCall turns that
// into exactly one of the variants below before anything touches the
// document.
type Call interface {
	callName() string
}

// ReplaceSelection replaces the current selection with new content.
type ReplaceSelection struct {
	Content      string
	Comment      string
	TrackChanges bool
}

// InsertText inserts content at a position without removing existing text.
type InsertText struct {
	Position document.InsertPosition
	Content  string
	Comment  string
}

// DeleteSelection removes the current selection.
type DeleteSelection struct {
	Comment string
}

// AddComment attaches an annotation to the selection.
type AddComment struct {
	Comment string
}

func (ReplaceSelection) callName() string { return OpReplaceSelection }
func (InsertText) callName() string      { return OpInsertText }
func (DeleteSelection) callName() string { return OpDeleteSelection }
func (AddComment) callName() string      { return OpAddComment }

// UnknownToolError reports an operation name outside the registry.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Name)
}

// BadArgsError reports a malformed or incomplete argument payload.
type BadArgsError struct {
	Name   string
	Reason string
	Cause  error
}

func (e *BadArgsError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Name, e.Reason, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Reason)
}

func (e *BadArgsError) Unwrap() error { return e.Cause }

// ParseCall parses one tool invocation into its typed variant. Unknown
// names and malformed arguments come back as distinct error types so the
// executor can report them without guessing.
func ParseCall(name, arguments string) (Call, error) {
	raw := strings.TrimSpace(arguments)
	if raw == "" {
		raw = "{}"
	}

	switch name {
	case OpReplaceSelection:
		var args struct {
			Content      string `json:"content"`
			Comment      string `json:"comment"`
			TrackChanges bool   `json:"track_changes"`
		}
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return nil, &BadArgsError{Name: name, Reason: "invalid JSON arguments", Cause: err}
		}
		if args.Content == "" {
			return nil, &BadArgsError{Name: name, Reason: "required argument \"content\" is missing"}
		}
		return ReplaceSelection{Content: args.Content, Comment: args.Comment, TrackChanges: args.TrackChanges}, nil

	case OpInsertText:
		var args struct {
			Position string `json:"position"`
			Content  string `json:"content"`
			Comment  string `json:"comment"`
		}
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return nil, &BadArgsError{Name: name, Reason: "invalid JSON arguments", Cause: err}
		}
		if args.Content == "" {
			return nil, &BadArgsError{Name: name, Reason: "required argument \"content\" is missing"}
		}
		pos := document.InsertPosition(args.Position)
		if !document.ValidPosition(pos) {
			return nil, &BadArgsError{Name: name, Reason: fmt.Sprintf("invalid position %q", args.Position)}
		}
		return InsertText{Position: pos, Content: args.Content, Comment: args.Comment}, nil

	case OpDeleteSelection:
		var args struct {
			Comment string `json:"comment"`
		}
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return nil, &BadArgsError{Name: name, Reason: "invalid JSON arguments", Cause: err}
		}
		return DeleteSelection{Comment: args.Comment}, nil

	case OpAddComment:
		var args struct {
			Comment string `json:"comment"`
		}
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return nil, &BadArgsError{Name: name, Reason: "invalid JSON arguments", Cause: err}
		}
		if args.Comment == "" {
			return nil, &BadArgsError{Name: name, Reason: "required argument \"comment\" is missing"}
		}
		return AddComment{Comment: args.Comment}, nil

	default:
		return nil, &UnknownToolError{Name: name}
	}
}
