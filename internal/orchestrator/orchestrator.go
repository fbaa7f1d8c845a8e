// Package orchestrator runs the per-turn conversation loop: gather
// document context, call the model, interpret the response and fold the
// outcome back into the session.
package orchestrator

import (
	"context"
	"log"
	"strings"
	"sync"

	"github.com/quillpad/quill/internal/document"
	"github.com/quillpad/quill/internal/llm"
	"github.com/quillpad/quill/internal/session"
	"github.com/quillpad/quill/internal/tools"
)

const defaultExcerptChars = 8000

// Options tune an Orchestrator.
type Options struct {
	// RulesText supplies the user's persisted writing rules at the start
	// of each turn. Nil means no rules.
	RulesText func() string

	// Classifier guesses intent from the raw utterance. Nil means the
	// default regex classifier.
	Classifier IntentClassifier

	// ExcerptChars bounds the document excerpt sent as context.
	ExcerptChars int

	Temperature float64
	MaxTokens   int
}

// Orchestrator drives one conversation. Turns against the same session
// must not run concurrently; callers serialize them, and the request-id
// guard below makes sure a superseded turn's response is discarded rather
// than applied.
type Orchestrator struct {
	store      *session.Store
	client     llm.Client
	doc        document.Adapter
	exec       *tools.Executor
	classifier IntentClassifier
	rulesText  func() string
	excerpt    int
	temp       float64
	maxTokens  int
	logf       func(format string, args ...any)

	mu     sync.Mutex
	latest uint64
	cancel context.CancelFunc
}

// New creates an Orchestrator over the given session store, transport and
// document adapter.
func New(store *session.Store, client llm.Client, doc document.Adapter, opts Options) *Orchestrator {
	o := &Orchestrator{
		store:      store,
		client:     client,
		doc:        doc,
		exec:       tools.NewExecutor(doc),
		classifier: opts.Classifier,
		rulesText:  opts.RulesText,
		excerpt:    opts.ExcerptChars,
		temp:       opts.Temperature,
		maxTokens:  opts.MaxTokens,
		logf:       log.Printf,
	}
	if o.classifier == nil {
		o.classifier = RegexClassifier{}
	}
	if o.rulesText == nil {
		o.rulesText = func() string { return "" }
	}
	if o.excerpt <= 0 {
		o.excerpt = defaultExcerptChars
	}
	return o
}

// begin registers a new turn, cancelling any in-flight predecessor, and
// returns its request id.
func (o *Orchestrator) begin(cancel context.CancelFunc) uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel()
	}
	o.latest++
	o.cancel = cancel
	return o.latest
}

func (o *Orchestrator) end(id uint64, cancel context.CancelFunc) {
	cancel()
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.latest == id {
		o.cancel = nil
	}
}

// isLatest reports whether the turn still owns the conversation. A stale
// turn's results are discarded, never applied.
func (o *Orchestrator) isLatest(id uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.latest == id
}

// Cancel aborts the in-flight turn, if any. Document edits already applied
// stay applied; mutations are not transactional.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel()
	}
}

// HandleTurn processes one user utterance end to end and returns the
// display entries it appended. Every failure surfaces as an error-flagged
// entry; nothing escapes to the caller, and the session state committed so
// far stays intact.
func (o *Orchestrator) HandleTurn(ctx context.Context, input string) []session.DisplayMessage {
	// Session persistence must survive turn cancellation.
	persistCtx := context.WithoutCancel(ctx)
	turnCtx, cancel := context.WithCancel(ctx)
	id := o.begin(cancel)
	defer o.end(id, cancel)

	var out []session.DisplayMessage
	emit := func(dm session.DisplayMessage) {
		o.store.AddDisplayMessage(persistCtx, dm)
		out = append(out, dm)
	}
	fail := func(msg string) []session.DisplayMessage {
		emit(session.DisplayMessage{Role: session.DisplaySystem, Content: msg, IsError: true})
		return out
	}

	emit(session.DisplayMessage{Role: session.DisplayUser, Content: input})

	intent := o.classifier.Classify(input)

	// Context gathering is best-effort: the model can still answer in
	// plain text without it.
	selection, err := o.doc.SelectionText(turnCtx)
	if err != nil {
		o.logf("reading selection: %v", err)
		selection = ""
	}
	docText, err := o.doc.DocumentText(turnCtx, o.excerpt)
	if err != nil {
		o.logf("reading document: %v", err)
		docText = ""
	}

	if intent.NeedsSelection && strings.TrimSpace(selection) == "" {
		return fail("请先在文档中选中文本，再进行此操作")
	}

	userMsg := session.BuildUserMessage(input, selection, docText, o.rulesText())
	o.store.AddMessage(persistCtx, userMsg)

	resp, err := o.complete(turnCtx, true, llm.ToolChoiceAuto)
	if llm.IsToolingUnsupported(err) {
		// Some backends reject unknown request fields instead of ignoring
		// them; try once more without any tool catalog.
		resp, err = o.complete(turnCtx, false, "")
	}
	if !o.isLatest(id) {
		return out
	}
	if err != nil {
		return fail(err.Error())
	}

	// The model sometimes answers an obvious edit request in prose. One
	// forced retry usually gets the tool call.
	if len(resp.Message.ToolCalls) == 0 && intent.WantsAction {
		retry, rerr := o.complete(turnCtx, true, llm.ToolChoiceRequired)
		if !o.isLatest(id) {
			return out
		}
		if rerr == nil && len(retry.Message.ToolCalls) > 0 {
			resp = retry
		}
	}

	if len(resp.Message.ToolCalls) == 0 {
		if strings.TrimSpace(resp.Message.Content) == "" {
			return fail("no response from model")
		}
		o.store.AddMessage(persistCtx, llm.AssistantMessage(resp.Message.Content))
		emit(session.DisplayMessage{Role: session.DisplayAssistant, Content: resp.Message.Content})
		return out
	}

	// Tool branch. Edits apply in the order the model issued them.
	results := o.exec.Execute(turnCtx, resp.Message.ToolCalls)
	summary := tools.FormatResults(results)
	emit(session.DisplayMessage{
		Role:      session.DisplayToolResult,
		Content:   summary,
		ToolCalls: resp.Message.ToolCalls,
	})

	if strings.TrimSpace(resp.Message.Content) != "" {
		o.store.AddMessage(persistCtx, llm.AssistantMessage(resp.Message.Content))
		emit(session.DisplayMessage{Role: session.DisplayAssistant, Content: resp.Message.Content})
	} else {
		// Keep a compact record for later turns instead of replaying the
		// full tool-call payloads.
		names := make([]string, 0, len(resp.Message.ToolCalls))
		for _, tc := range resp.Message.ToolCalls {
			names = append(names, tc.Name)
		}
		o.store.AddMessage(persistCtx, llm.AssistantMessage(
			"[已执行操作: "+strings.Join(names, ", ")+"]\n"+summary))
	}
	return out
}

func (o *Orchestrator) complete(ctx context.Context, withTools bool, choice llm.ToolChoice) (*llm.Response, error) {
	req := llm.Request{
		System:      systemPrompt,
		Messages:    o.store.Messages(),
		Temperature: o.temp,
		MaxTokens:   o.maxTokens,
	}
	if withTools {
		req.Tools = tools.Defs()
		req.ToolChoice = choice
	}
	return o.client.ChatCompletion(ctx, req)
}
