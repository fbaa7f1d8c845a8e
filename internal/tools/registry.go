// Package tools defines the document-mutation operations exposed to the
// model and executes the calls it makes.
package tools

import "github.com/quillpad/quill/internal/llm"

// Operation names. These are the only four operations ever exposed.
const (
	OpReplaceSelection = "replace_selection"
	OpInsertText       = "insert_text"
	OpDeleteSelection  = "delete_selection"
	OpAddComment       = "add_comment_to_selection"
)

// Defs returns the static tool catalog sent to the model. Descriptions are
// model-facing: they tell the model when to pick each operation.
func Defs() []llm.ToolDef {
	return []llm.ToolDef{
		{
			Name: OpReplaceSelection,
			Description: "Replace the user's currently selected text with new content. " +
				"Use this for polishing, rewriting or translating the selection in place. " +
				"Set track_changes when the user should review the edit before accepting it.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"content": map[string]any{
						"type":        "string",
						"description": "The replacement text",
					},
					"comment": map[string]any{
						"type":        "string",
						"description": "Optional annotation explaining the change",
					},
					"track_changes": map[string]any{
						"type":        "boolean",
						"description": "Record the replacement as a tracked revision",
					},
				},
				"required": []string{"content"},
			},
		},
		{
			Name: OpInsertText,
			Description: "Insert new text into the document without removing anything. " +
				"Use this for drafting additional content such as a continuation, a summary or an opening paragraph.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"position": map[string]any{
						"type":        "string",
						"enum":        []string{"before_selection", "after_selection", "document_start", "document_end"},
						"description": "Where to insert the text",
					},
					"content": map[string]any{
						"type":        "string",
						"description": "The text to insert",
					},
					"comment": map[string]any{
						"type":        "string",
						"description": "Optional annotation attached to the insertion",
					},
				},
				"required": []string{"position", "content"},
			},
		},
		{
			Name:        OpDeleteSelection,
			Description: "Delete the user's currently selected text.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"comment": map[string]any{
						"type":        "string",
						"description": "Optional annotation explaining the deletion",
					},
				},
			},
		},
		{
			Name: OpAddComment,
			Description: "Attach a comment to the user's currently selected text without changing it. " +
				"Use this for feedback, suggestions or review notes.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"comment": map[string]any{
						"type":        "string",
						"description": "The comment text",
					},
				},
				"required": []string{"comment"},
			},
		},
	}
}
