package orchestrator

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/quillpad/quill/internal/document"
	"github.com/quillpad/quill/internal/llm"
	"github.com/quillpad/quill/internal/session"
	"github.com/quillpad/quill/internal/storage"
)

// step is one scripted transport exchange.
type step struct {
	resp *llm.Response
	err  error
	wait chan struct{} // when set, block until closed
}

// fakeClient replays scripted responses and records every request.
type fakeClient struct {
	mu    sync.Mutex
	steps []step
	reqs  []llm.Request
}

func (f *fakeClient) ChatCompletion(ctx context.Context, req llm.Request) (*llm.Response, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	if len(f.steps) == 0 {
		f.mu.Unlock()
		return textResp("unscripted"), nil
	}
	s := f.steps[0]
	f.steps = f.steps[1:]
	f.mu.Unlock()

	if s.wait != nil {
		select {
		case <-s.wait:
		case <-ctx.Done():
			return nil, &llm.Error{Kind: llm.KindCancelled, Msg: "request cancelled by user"}
		}
	}
	return s.resp, s.err
}

func (f *fakeClient) requests() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.Request(nil), f.reqs...)
}

func textResp(content string) *llm.Response {
	return &llm.Response{Message: llm.AssistantMessage(content)}
}

func toolResp(content string, calls ...llm.ToolCall) *llm.Response {
	return &llm.Response{Message: llm.Message{Role: llm.RoleAssistant, Content: content, ToolCalls: calls}}
}

func newTest(t *testing.T, client llm.Client, doc document.Adapter) (*Orchestrator, *session.Store) {
	t.Helper()
	store := session.NewStore(context.Background(), storage.NewMemory())
	o := New(store, client, doc, Options{})
	o.logf = func(string, ...any) {}
	return o, store
}

func TestDirectReply(t *testing.T) {
	client := &fakeClient{steps: []step{{resp: textResp("你好！有什么可以帮你？")}}}
	o, store := newTest(t, client, document.NewMemoryAdapter("doc body"))

	out := o.HandleTurn(context.Background(), "你好")

	if len(out) != 2 {
		t.Fatalf("got %d display entries, want user + assistant", len(out))
	}
	if out[0].Role != session.DisplayUser || out[1].Role != session.DisplayAssistant {
		t.Errorf("roles = %q, %q", out[0].Role, out[1].Role)
	}

	msgs := store.Messages()
	if len(msgs) != 2 {
		t.Fatalf("history = %d messages, want 2", len(msgs))
	}
	if msgs[1].Role != llm.RoleAssistant || msgs[1].Content != "你好！有什么可以帮你？" {
		t.Errorf("assistant message = %+v", msgs[1])
	}

	reqs := client.requests()
	if len(reqs) != 1 {
		t.Fatalf("got %d requests, want 1", len(reqs))
	}
	if len(reqs[0].Tools) != 4 || reqs[0].ToolChoice != llm.ToolChoiceAuto {
		t.Errorf("first request should carry the catalog with auto choice: %d tools, choice %q",
			len(reqs[0].Tools), reqs[0].ToolChoice)
	}
	if reqs[0].System == "" {
		t.Error("request should carry the system prompt")
	}
}

func TestContextBlocksInUserMessage(t *testing.T) {
	client := &fakeClient{steps: []step{{resp: textResp("done")}}}
	doc := document.NewMemoryAdapter("full document text")
	doc.SelectString("document")
	o, store := newTest(t, client, doc)

	o.HandleTurn(context.Background(), "这段怎么样")

	msgs := store.Messages()
	content := msgs[0].Content
	if !strings.Contains(content, "[DOCUMENT]\nfull document text\n[/DOCUMENT]") {
		t.Errorf("missing document block: %q", content)
	}
	if !strings.Contains(content, "[SELECTION]\ndocument\n[/SELECTION]") {
		t.Errorf("missing selection block: %q", content)
	}
	if !strings.HasSuffix(content, "这段怎么样") {
		t.Errorf("raw input should come last: %q", content)
	}
}

func TestToolCallsExecuteAndRecord(t *testing.T) {
	doc := document.NewMemoryAdapter("the draft sentence here")
	doc.SelectString("draft sentence")
	client := &fakeClient{steps: []step{{resp: toolResp("",
		llm.ToolCall{ID: "tc1", Name: "replace_selection", Arguments: `{"content":"polished sentence"}`},
	)}}}
	o, store := newTest(t, client, doc)

	out := o.HandleTurn(context.Background(), "润色选中内容")

	if got := doc.Text(); got != "the polished sentence here" {
		t.Errorf("document = %q", got)
	}

	var toolResult *session.DisplayMessage
	for i := range out {
		if out[i].Role == session.DisplayToolResult {
			toolResult = &out[i]
		}
	}
	if toolResult == nil {
		t.Fatal("expected a tool_result display entry")
	}
	if !strings.Contains(toolResult.Content, "成功") {
		t.Errorf("tool result = %q", toolResult.Content)
	}

	// With no assistant text, a compact bracketed record goes to history.
	msgs := store.Messages()
	last := msgs[len(msgs)-1]
	if last.Role != llm.RoleAssistant {
		t.Fatalf("last history message role = %q", last.Role)
	}
	if !strings.Contains(last.Content, "[已执行操作: replace_selection]") {
		t.Errorf("history record = %q", last.Content)
	}
	if len(last.ToolCalls) != 0 {
		t.Error("tool-call payloads should not be replayed into history")
	}
}

func TestToolCallsWithAccompanyingText(t *testing.T) {
	doc := document.NewMemoryAdapter("hello world")
	doc.SelectString("world")
	client := &fakeClient{steps: []step{{resp: toolResp("已为你替换。",
		llm.ToolCall{ID: "tc1", Name: "replace_selection", Arguments: `{"content":"there"}`},
	)}}}
	o, store := newTest(t, client, doc)

	out := o.HandleTurn(context.Background(), "把 world 换成 there")

	roles := make([]session.DisplayRole, len(out))
	for i, dm := range out {
		roles[i] = dm.Role
	}
	// user, tool_result, assistant
	if len(out) != 3 || roles[1] != session.DisplayToolResult || roles[2] != session.DisplayAssistant {
		t.Fatalf("display roles = %v", roles)
	}

	last := store.Messages()[len(store.Messages())-1]
	if last.Content != "已为你替换。" {
		t.Errorf("history assistant text = %q", last.Content)
	}
}

func TestToolingUnsupportedFallback(t *testing.T) {
	client := &fakeClient{steps: []step{
		{err: &llm.Error{Kind: llm.KindHTTP, StatusCode: 400, Msg: "unknown field: tools", ToolingUnsupported: true}},
		{resp: textResp("plain answer")},
	}}
	o, _ := newTest(t, client, document.NewMemoryAdapter("doc"))

	out := o.HandleTurn(context.Background(), "你好")

	reqs := client.requests()
	if len(reqs) != 2 {
		t.Fatalf("got %d requests, want 2 (original + no-tools retry)", len(reqs))
	}
	if len(reqs[0].Tools) == 0 {
		t.Error("first request should carry tools")
	}
	if len(reqs[1].Tools) != 0 {
		t.Error("retry must carry no tool catalog at all")
	}
	if out[len(out)-1].Content != "plain answer" || out[len(out)-1].IsError {
		t.Errorf("final entry = %+v", out[len(out)-1])
	}
}

func TestSelectionRequiredShortCircuit(t *testing.T) {
	client := &fakeClient{}
	o, store := newTest(t, client, document.NewMemoryAdapter("document with no selection"))

	out := o.HandleTurn(context.Background(), "translate this")

	if len(client.requests()) != 0 {
		t.Fatal("no network call may be issued")
	}
	last := out[len(out)-1]
	if !last.IsError || !strings.Contains(last.Content, "选中") {
		t.Errorf("expected select-text-first error entry, got %+v", last)
	}
	if len(store.Messages()) != 0 {
		t.Errorf("no model-facing message should be recorded, got %d", len(store.Messages()))
	}
}

func TestForcedToolChoiceRetry(t *testing.T) {
	doc := document.NewMemoryAdapter("some rough text")
	doc.SelectString("rough text")
	client := &fakeClient{steps: []step{
		{resp: textResp("好的，我可以帮你润色。")},
		{resp: toolResp("", llm.ToolCall{ID: "tc1", Name: "replace_selection", Arguments: `{"content":"refined text"}`})},
	}}
	o, _ := newTest(t, client, doc)

	o.HandleTurn(context.Background(), "润色这段文字")

	reqs := client.requests()
	if len(reqs) != 2 {
		t.Fatalf("got %d requests, want 2", len(reqs))
	}
	if reqs[1].ToolChoice != llm.ToolChoiceRequired {
		t.Errorf("retry tool choice = %q, want required", reqs[1].ToolChoice)
	}
	if got := doc.Text(); got != "some refined text" {
		t.Errorf("document = %q", got)
	}
}

func TestTransportErrorBecomesErrorEntry(t *testing.T) {
	client := &fakeClient{steps: []step{
		{err: &llm.Error{Kind: llm.KindTimeout, Msg: "request timed out after 2m0s"}},
	}}
	o, store := newTest(t, client, document.NewMemoryAdapter("doc"))

	out := o.HandleTurn(context.Background(), "你好")

	last := out[len(out)-1]
	if !last.IsError || !strings.Contains(last.Content, "timed out") {
		t.Errorf("expected error entry, got %+v", last)
	}

	// The user's message stays recorded; no assistant turn is appended.
	msgs := store.Messages()
	if len(msgs) != 1 || msgs[0].Role != llm.RoleUser {
		t.Errorf("history = %+v", msgs)
	}
}

func TestStaleResponseDiscarded(t *testing.T) {
	release := make(chan struct{})
	client := &fakeClient{steps: []step{
		{resp: textResp("slow answer"), wait: release},
		{resp: textResp("fast answer")},
	}}
	o, store := newTest(t, client, document.NewMemoryAdapter("doc"))

	done := make(chan []session.DisplayMessage, 1)
	go func() {
		done <- o.HandleTurn(context.Background(), "first")
	}()

	// Wait for the first turn to reach the transport.
	for len(client.requests()) == 0 {
		time.Sleep(time.Millisecond)
	}

	// A newer turn supersedes the first.
	o.HandleTurn(context.Background(), "second")
	close(release)
	first := <-done

	for _, dm := range first {
		if dm.Content == "slow answer" {
			t.Error("superseded response must be discarded, not displayed")
		}
	}
	for _, m := range store.Messages() {
		if m.Content == "slow answer" {
			t.Error("superseded response must not enter the history")
		}
	}

	found := false
	for _, m := range store.Messages() {
		if m.Content == "fast answer" {
			found = true
		}
	}
	if !found {
		t.Error("the newer turn's response should be recorded")
	}
}

func TestBatchPartialFailureSummary(t *testing.T) {
	doc := document.NewMemoryAdapter("alpha beta")
	doc.SelectString("beta")
	client := &fakeClient{steps: []step{{resp: toolResp("",
		llm.ToolCall{ID: "c1", Name: "replace_selection", Arguments: `{"content":"BETA"}`},
		llm.ToolCall{ID: "c2", Name: "insert_text", Arguments: `{broken`},
	)}}}
	o, _ := newTest(t, client, doc)

	out := o.HandleTurn(context.Background(), "改一下")

	var summary string
	for _, dm := range out {
		if dm.Role == session.DisplayToolResult {
			summary = dm.Content
		}
	}
	if !strings.Contains(summary, "成功") || !strings.Contains(summary, "失败") {
		t.Errorf("summary should report both outcomes: %q", summary)
	}
}
