package session

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/quillpad/quill/internal/llm"
	"github.com/quillpad/quill/internal/storage"
)

func testStoreWith(t *testing.T, kv storage.KV, opts ...StoreOption) *Store {
	t.Helper()
	return NewStore(context.Background(), kv, opts...)
}

func TestNewStoreCreatesDefaultSession(t *testing.T) {
	s := testStoreWith(t, storage.NewMemory())

	if got := len(s.List()); got != 1 {
		t.Fatalf("got %d sessions, want 1", got)
	}
	active := s.Active()
	if active == nil {
		t.Fatal("expected an active session")
	}
	if active.Name == "" {
		t.Error("default session should have a date-derived name")
	}
}

func TestMessageRetentionCap(t *testing.T) {
	ctx := context.Background()
	s := testStoreWith(t, storage.NewMemory(), WithMaxMessages(5))

	for i := 0; i < 12; i++ {
		s.AddMessage(ctx, llm.UserMessage(fmt.Sprintf("msg-%d", i)))
	}

	msgs := s.Messages()
	if len(msgs) != 5 {
		t.Fatalf("got %d messages, want 5", len(msgs))
	}
	// Oldest-first, most recent cap retained.
	for i, m := range msgs {
		want := fmt.Sprintf("msg-%d", 7+i)
		if m.Content != want {
			t.Errorf("msgs[%d] = %q, want %q", i, m.Content, want)
		}
	}
}

func TestHistoriesTrimIndependently(t *testing.T) {
	ctx := context.Background()
	s := testStoreWith(t, storage.NewMemory(), WithMaxMessages(3))

	for i := 0; i < 10; i++ {
		s.AddMessage(ctx, llm.UserMessage(fmt.Sprintf("m%d", i)))
	}
	s.AddDisplayMessage(ctx, DisplayMessage{Role: DisplayUser, Content: "only one"})

	if got := len(s.Messages()); got != 3 {
		t.Errorf("messages = %d, want 3", got)
	}
	if got := len(s.Display()); got != 1 {
		t.Errorf("display = %d, want 1", got)
	}
}

func TestDeleteLastSessionClearsInPlace(t *testing.T) {
	ctx := context.Background()
	s := testStoreWith(t, storage.NewMemory())

	s.AddMessage(ctx, llm.UserMessage("hello"))
	active := s.Active()

	deleted, err := s.Delete(ctx, active.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if deleted {
		t.Error("last session must report not-deleted")
	}
	if got := len(s.List()); got != 1 {
		t.Fatalf("session count = %d, want 1", got)
	}
	if got := len(s.Messages()); got != 0 {
		t.Errorf("messages should be cleared, got %d", got)
	}
}

func TestDeleteRepointsActive(t *testing.T) {
	ctx := context.Background()
	s := testStoreWith(t, storage.NewMemory())

	first := s.Active()
	second := s.Create(ctx, "second")

	if s.Active().ID != second.ID {
		t.Fatal("Create should activate the new session")
	}

	deleted, err := s.Delete(ctx, second.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !deleted {
		t.Error("non-last session should be removed")
	}
	if s.Active().ID != first.ID {
		t.Errorf("active = %q, want %q", s.Active().ID, first.ID)
	}
}

func TestSessionCapEvictsLeastRecentlyUpdated(t *testing.T) {
	ctx := context.Background()
	s := testStoreWith(t, storage.NewMemory(), WithMaxSessions(3))

	// Fake clock ahead of the default session's real creation time, so
	// the default is always the stalest until evicted.
	base := time.Now().Add(time.Hour)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	a := s.Create(ctx, "a")
	s.Create(ctx, "b")
	s.Create(ctx, "c") // evicts the default session

	// Touch a so b becomes the least recently updated.
	s.Select(ctx, a.ID)
	s.AddMessage(ctx, llm.UserMessage("keep a fresh"))

	s.Create(ctx, "d") // evicts b
	s.Create(ctx, "e") // evicts c

	names := make(map[string]bool)
	for _, sess := range s.List() {
		names[sess.Name] = true
	}
	if names["b"] || names["c"] {
		t.Errorf("b and c should have been evicted, got %v", names)
	}
	if !names["a"] || !names["d"] || !names["e"] {
		t.Errorf("surviving sessions = %v", names)
	}
	if got := len(s.List()); got != 3 {
		t.Errorf("session count = %d, want 3", got)
	}
}

func TestRename(t *testing.T) {
	ctx := context.Background()
	s := testStoreWith(t, storage.NewMemory())

	active := s.Active()
	if err := s.Rename(ctx, active.ID, "润色合同"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if got := s.Active().Name; got != "润色合同" {
		t.Errorf("name = %q", got)
	}
}

func TestRoundTripPersistence(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()

	s := testStoreWith(t, kv)
	s.AddMessage(ctx, llm.UserMessage("hello"))
	s.AddMessage(ctx, llm.AssistantMessage("hi there"))
	s.AddDisplayMessage(ctx, DisplayMessage{Role: DisplayUser, Content: "hello"})
	second := s.Create(ctx, "second")
	s.AddMessage(ctx, llm.UserMessage("in second"))

	restored := testStoreWith(t, kv)

	if got := len(restored.List()); got != 2 {
		t.Fatalf("restored %d sessions, want 2", got)
	}
	if restored.Active().ID != second.ID {
		t.Errorf("restored active = %q, want %q", restored.Active().ID, second.ID)
	}
	msgs := restored.Messages()
	if len(msgs) != 1 || msgs[0].Content != "in second" {
		t.Errorf("restored messages = %+v", msgs)
	}
}

func TestCorruptStoredDataFallsBack(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	kv.Set(ctx, storage.KeySessions, "{definitely not json")
	kv.Set(ctx, storage.KeyActiveSession, "ghost")

	s := NewStore(ctx, kv)

	if got := len(s.List()); got != 1 {
		t.Fatalf("got %d sessions, want 1 fresh default", got)
	}
	if s.Active() == nil {
		t.Fatal("expected an active session after fallback")
	}
}

func TestBuildUserMessageBare(t *testing.T) {
	msg := BuildUserMessage("hi", "", "", "")
	if msg.Role != llm.RoleUser {
		t.Errorf("role = %q", msg.Role)
	}
	if msg.Content != "hi" {
		t.Errorf("content = %q, want exactly %q", msg.Content, "hi")
	}
}

func TestBuildUserMessageBlankContextOmitted(t *testing.T) {
	msg := BuildUserMessage("hi", "  ", "\n", "\t")
	if msg.Content != "hi" {
		t.Errorf("blank context must be omitted entirely, got %q", msg.Content)
	}
}

func TestBuildUserMessageBlockOrder(t *testing.T) {
	msg := BuildUserMessage("hi", "x", "y", "r")

	rules := strings.Index(msg.Content, "[RULES]\nr\n[/RULES]")
	doc := strings.Index(msg.Content, "[DOCUMENT]\ny\n[/DOCUMENT]")
	sel := strings.Index(msg.Content, "[SELECTION]\nx\n[/SELECTION]")
	input := strings.LastIndex(msg.Content, "hi")

	for name, idx := range map[string]int{"rules": rules, "document": doc, "selection": sel} {
		if idx < 0 {
			t.Fatalf("%s block missing in %q", name, msg.Content)
		}
	}
	if !(rules < doc && doc < sel && sel < input) {
		t.Errorf("blocks out of order in %q", msg.Content)
	}
	if !strings.HasSuffix(msg.Content, "hi") {
		t.Errorf("raw input should come last: %q", msg.Content)
	}
}

func TestBuildUserMessagePartialContext(t *testing.T) {
	msg := BuildUserMessage("translate", "bonjour", "", "")
	if strings.Contains(msg.Content, "[RULES]") || strings.Contains(msg.Content, "[DOCUMENT]") {
		t.Errorf("unused blocks present: %q", msg.Content)
	}
	if !strings.Contains(msg.Content, "[SELECTION]\nbonjour\n[/SELECTION]") {
		t.Errorf("selection block missing: %q", msg.Content)
	}
}

func TestAccessorsReturnSnapshots(t *testing.T) {
	ctx := context.Background()
	s := testStoreWith(t, storage.NewMemory())

	s.AddDisplayMessage(ctx, DisplayMessage{Role: DisplayUser, Content: "first"})
	before, ok := s.Get(s.Active().ID)
	if !ok {
		t.Fatal("active session missing")
	}

	// Appends after the read must not show up in the held snapshot.
	s.AddMessage(ctx, llm.UserMessage("hello"))
	s.AddDisplayMessage(ctx, DisplayMessage{Role: DisplayAssistant, Content: "second"})

	if got := len(before.Display); got != 1 {
		t.Errorf("snapshot display grew to %d entries", got)
	}
	if got := len(before.Messages); got != 0 {
		t.Errorf("snapshot history grew to %d messages", got)
	}

	// Nor may mutating the snapshot reach the store.
	before.Display[0].Content = "tampered"
	before.Name = "tampered"
	if got := s.Display()[0].Content; got != "first" {
		t.Errorf("store display = %q", got)
	}
	if got := s.Active().Name; got == "tampered" {
		t.Error("store name mutated through snapshot")
	}

	for _, sess := range s.List() {
		sess.Display = append(sess.Display, DisplayMessage{Role: DisplayUser, Content: "x"})
	}
	if got := len(s.Display()); got != 2 {
		t.Errorf("store display = %d entries after mutating listed copies", got)
	}

	created := s.Create(ctx, "草稿")
	s.AddDisplayMessage(ctx, DisplayMessage{Role: DisplayUser, Content: "y"})
	if got := len(created.Display); got != 0 {
		t.Errorf("created snapshot display grew to %d entries", got)
	}
}
