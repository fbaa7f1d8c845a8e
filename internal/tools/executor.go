package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/quillpad/quill/internal/document"
	"github.com/quillpad/quill/internal/llm"
)

// Result is the outcome of executing one tool call. Exactly one Result is
// produced per call, on every path.
type Result struct {
	CallID  string
	Name    string
	OK      bool
	Message string
	Err     string
}

// Executor runs tool calls against a document adapter.
type Executor struct {
	doc document.Adapter
}

// NewExecutor creates an executor bound to the given adapter.
func NewExecutor(doc document.Adapter) *Executor {
	return &Executor{doc: doc}
}

// Execute runs the calls sequentially, in the order the model issued them.
// Edits must apply in order since later calls may depend on the document
// state left by earlier ones. A failed call never aborts the batch.
func (e *Executor) Execute(ctx context.Context, calls []llm.ToolCall) []Result {
	results := make([]Result, 0, len(calls))
	for _, tc := range calls {
		results = append(results, e.executeOne(ctx, tc))
	}
	return results
}

func (e *Executor) executeOne(ctx context.Context, tc llm.ToolCall) Result {
	call, err := ParseCall(tc.Name, tc.Arguments)
	if err != nil {
		return Result{CallID: tc.ID, Name: tc.Name, Err: err.Error()}
	}

	msg, err := e.apply(ctx, call)
	if err != nil {
		return Result{CallID: tc.ID, Name: tc.Name, Err: err.Error()}
	}
	return Result{CallID: tc.ID, Name: tc.Name, OK: true, Message: msg}
}

// apply performs one parsed call and returns its transcript message.
func (e *Executor) apply(ctx context.Context, call Call) (string, error) {
	switch c := call.(type) {
	case ReplaceSelection:
		if err := e.doc.ReplaceSelection(ctx, c.Content, c.TrackChanges); err != nil {
			return "", err
		}
		msg := "已替换选中内容"
		if c.TrackChanges {
			msg = "已以修订模式替换选中内容"
		}
		return e.withComment(ctx, msg, c.Comment)

	case InsertText:
		if err := e.doc.InsertText(ctx, c.Position, c.Content); err != nil {
			return "", err
		}
		return e.withComment(ctx, fmt.Sprintf("已在%s插入文本", positionPhrase(c.Position)), c.Comment)

	case DeleteSelection:
		if err := e.doc.DeleteSelection(ctx); err != nil {
			return "", err
		}
		return e.withComment(ctx, "已删除选中内容", c.Comment)

	case AddComment:
		if err := e.doc.AddCommentToSelection(ctx, c.Comment); err != nil {
			return "", err
		}
		return "已为选中内容添加批注", nil

	default:
		return "", &UnknownToolError{Name: fmt.Sprintf("%T", call)}
	}
}

// withComment attaches the optional annotation after the primary edit.
func (e *Executor) withComment(ctx context.Context, msg, comment string) (string, error) {
	if comment == "" {
		return msg, nil
	}
	if err := e.doc.AddCommentToSelection(ctx, comment); err != nil {
		return "", fmt.Errorf("%s，但添加批注失败: %w", msg, err)
	}
	return msg + "，并添加了批注", nil
}

// positionPhrase names an insert position for transcript messages.
func positionPhrase(pos document.InsertPosition) string {
	switch pos {
	case document.BeforeSelection:
		return "选中内容之前"
	case document.AfterSelection:
		return "选中内容之后"
	case document.DocumentStart:
		return "文档开头"
	case document.DocumentEnd:
		return "文档末尾"
	}
	return string(pos)
}

// FormatResults renders results as one status line per call, suitable both
// for the transcript and for the tool-role message fed back to the model.
func FormatResults(results []Result) string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		if r.OK {
			lines = append(lines, "✓ 成功: "+r.Message)
		} else {
			detail := r.Err
			if detail == "" {
				detail = r.Message
			}
			lines = append(lines, "✗ 失败: "+detail)
		}
	}
	return strings.Join(lines, "\n")
}
