package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quillpad/quill/internal/llm"
	"github.com/quillpad/quill/internal/storage"
)

const (
	// DefaultMaxSessions caps the number of retained sessions; the
	// least-recently-updated one is evicted beyond this.
	DefaultMaxSessions = 20

	// DefaultMaxMessages caps each per-session history, trimmed from the
	// oldest end.
	DefaultMaxMessages = 50
)

// Store owns all sessions and the active-session pointer. It restores
// itself from a storage.KV on construction and persists after every
// mutation; persistence failures degrade to in-memory operation.
type Store struct {
	mu          sync.Mutex
	kv          storage.KV
	sessions    []*Session
	activeID    string
	maxSessions int
	maxMessages int
	now         func() time.Time
	logf        func(format string, args ...any)
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithMaxSessions overrides the session retention cap.
func WithMaxSessions(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.maxSessions = n
		}
	}
}

// WithMaxMessages overrides the per-history retention cap.
func WithMaxMessages(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.maxMessages = n
		}
	}
}

// NewStore builds a Store over the given KV, restoring any persisted
// state. Unparseable stored data never fails construction; it falls back
// to a fresh default session.
func NewStore(ctx context.Context, kv storage.KV, opts ...StoreOption) *Store {
	s := &Store{
		kv:          kv,
		maxSessions: DefaultMaxSessions,
		maxMessages: DefaultMaxMessages,
		now:         time.Now,
		logf:        log.Printf,
	}
	for _, o := range opts {
		o(s)
	}

	s.restore(ctx)
	if len(s.sessions) == 0 {
		s.createLocked(ctx, "")
	}
	return s
}

func (s *Store) restore(ctx context.Context) {
	raw, ok, err := s.kv.Get(ctx, storage.KeySessions)
	if err != nil {
		s.logf("loading sessions: %v", err)
		return
	}
	if !ok {
		return
	}

	var sessions []*Session
	if err := json.Unmarshal([]byte(raw), &sessions); err != nil {
		s.logf("stored sessions unparseable, starting fresh: %v", err)
		return
	}
	s.sessions = sessions

	active, ok, err := s.kv.Get(ctx, storage.KeyActiveSession)
	if err != nil {
		s.logf("loading active session id: %v", err)
	}
	if ok && s.byID(active) != nil {
		s.activeID = active
	} else if len(s.sessions) > 0 {
		s.activeID = s.sessions[0].ID
	}
}

// persist writes the full session list and active id. Failures are logged,
// not returned: the in-memory state stays authoritative for this process.
func (s *Store) persist(ctx context.Context) {
	data, err := json.Marshal(s.sessions)
	if err != nil {
		s.logf("marshaling sessions: %v", err)
		return
	}
	if err := s.kv.Set(ctx, storage.KeySessions, string(data)); err != nil {
		s.logf("persisting sessions: %v", err)
	}
	if err := s.kv.Set(ctx, storage.KeyActiveSession, s.activeID); err != nil {
		s.logf("persisting active session id: %v", err)
	}
}

func (s *Store) byID(id string) *Session {
	for _, sess := range s.sessions {
		if sess.ID == id {
			return sess
		}
	}
	return nil
}

// Create adds a session and makes it active, returning a snapshot of it.
// An empty name gets a default derived from the current date and time.
// Beyond the cap, the least-recently-updated session is evicted.
func (s *Store) Create(ctx context.Context, name string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot(s.createLocked(ctx, name))
}

func (s *Store) createLocked(ctx context.Context, name string) *Session {
	now := s.now()
	if strings.TrimSpace(name) == "" {
		name = "会话 " + now.Format("2006-01-02 15:04")
	}

	sess := &Session{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sessions = append(s.sessions, sess)
	s.activeID = sess.ID

	for len(s.sessions) > s.maxSessions {
		s.evictOldestLocked()
	}

	s.persist(ctx)
	return sess
}

func (s *Store) evictOldestLocked() {
	oldest := 0
	for i, sess := range s.sessions {
		if sess.UpdatedAt.Before(s.sessions[oldest].UpdatedAt) {
			oldest = i
		}
	}
	evicted := s.sessions[oldest]
	s.sessions = append(s.sessions[:oldest], s.sessions[oldest+1:]...)
	if s.activeID == evicted.ID && len(s.sessions) > 0 {
		s.activeID = s.sessions[len(s.sessions)-1].ID
	}
}

// Select makes the given session active.
func (s *Store) Select(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byID(id) == nil {
		return fmt.Errorf("session not found: %s", id)
	}
	s.activeID = id
	s.persist(ctx)
	return nil
}

// Rename changes a session's display name.
func (s *Store) Rename(ctx context.Context, id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.byID(id)
	if sess == nil {
		return fmt.Errorf("session not found: %s", id)
	}
	sess.Name = name
	sess.UpdatedAt = s.now()
	s.persist(ctx)
	return nil
}

// Delete removes a session. The last remaining session is never removed:
// its histories are cleared in place instead, and deleted reports false so
// callers can phrase the outcome accordingly.
func (s *Store) Delete(ctx context.Context, id string) (deleted bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.byID(id)
	if sess == nil {
		return false, fmt.Errorf("session not found: %s", id)
	}

	if len(s.sessions) == 1 {
		sess.Messages = nil
		sess.Display = nil
		sess.UpdatedAt = s.now()
		s.persist(ctx)
		return false, nil
	}

	for i, candidate := range s.sessions {
		if candidate.ID == id {
			s.sessions = append(s.sessions[:i], s.sessions[i+1:]...)
			break
		}
	}
	if s.activeID == id {
		s.activeID = s.sessions[0].ID
	}
	s.persist(ctx)
	return true, nil
}

// snapshot copies a session so callers can read it outside the store
// lock. A turn appending to the live histories must never race a reader
// holding a returned session.
func snapshot(sess *Session) *Session {
	if sess == nil {
		return nil
	}
	cp := *sess
	cp.Messages = append([]llm.Message(nil), sess.Messages...)
	cp.Display = append([]DisplayMessage(nil), sess.Display...)
	return &cp
}

// List returns snapshots of the sessions ordered by most recent update.
func (s *Store) List() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, snapshot(sess))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// Active returns a snapshot of the active session.
func (s *Store) Active() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot(s.byID(s.activeID))
}

// Get returns a snapshot of a session by id.
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.byID(id)
	return snapshot(sess), sess != nil
}

// AddMessage appends to the active session's model-facing history.
func (s *Store) AddMessage(ctx context.Context, msg llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.byID(s.activeID)
	if sess == nil {
		return
	}
	sess.Messages = append(sess.Messages, msg)
	if len(sess.Messages) > s.maxMessages {
		sess.Messages = sess.Messages[len(sess.Messages)-s.maxMessages:]
	}
	sess.UpdatedAt = s.now()
	s.persist(ctx)
}

// AddDisplayMessage appends to the active session's transcript. The two
// histories are trimmed independently and need not stay in lockstep.
func (s *Store) AddDisplayMessage(ctx context.Context, dm DisplayMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.byID(s.activeID)
	if sess == nil {
		return
	}
	if dm.CreatedAt.IsZero() {
		dm.CreatedAt = s.now()
	}
	sess.Display = append(sess.Display, dm)
	if len(sess.Display) > s.maxMessages {
		sess.Display = sess.Display[len(sess.Display)-s.maxMessages:]
	}
	sess.UpdatedAt = s.now()
	s.persist(ctx)
}

// Messages returns a copy of the active session's model-facing history.
func (s *Store) Messages() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.byID(s.activeID)
	if sess == nil {
		return nil
	}
	return append([]llm.Message(nil), sess.Messages...)
}

// Display returns a copy of the active session's transcript.
func (s *Store) Display() []DisplayMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.byID(s.activeID)
	if sess == nil {
		return nil
	}
	return append([]DisplayMessage(nil), sess.Display...)
}

// BuildUserMessage assembles the user's turn with its document context.
// Each context block is wrapped in a bracketed tag the system prompt knows
// how to locate; blank inputs are omitted entirely, so a bare utterance
// stays a bare utterance.
func BuildUserMessage(userInput, selection, documentText, rulesText string) llm.Message {
	var b strings.Builder
	appendBlock := func(tag, content string) {
		if strings.TrimSpace(content) == "" {
			return
		}
		fmt.Fprintf(&b, "[%s]\n%s\n[/%s]\n\n", tag, content, tag)
	}

	appendBlock("RULES", rulesText)
	appendBlock("DOCUMENT", documentText)
	appendBlock("SELECTION", selection)
	b.WriteString(userInput)

	return llm.UserMessage(b.String())
}
