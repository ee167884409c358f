package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agent-scaffold/chatstream/pkg/events"
	"github.com/agent-scaffold/chatstream/pkg/transcript"
)

// ErrConversationNotFound indicates the referenced conversation does not exist.
var ErrConversationNotFound = errors.New("conversation not found")

// TitleRuneLimit caps auto-derived conversation titles.
const TitleRuneLimit = 50

// Conversation pairs a transcript with its identity and timestamps.
type Conversation struct {
	ID         string
	Title      string
	Transcript *transcript.Transcript
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Store maintains the conversation list and the currently selected
// conversation. Every mutation is durably persisted; mutations that
// target "the selected conversation" are no-ops when nothing is
// selected.
type Store struct {
	mu sync.Mutex

	db            *db
	conversations map[string]*Conversation
	order         []string // creation order
	selectedID    string

	now func() time.Time
}

// Open loads all persisted conversations from the database under dir.
// Nothing is selected initially.
func Open(ctx context.Context, dir string) (*Store, error) {
	database, err := openDB(ctx, dir)
	if err != nil {
		return nil, err
	}

	s := &Store{
		db:            database,
		conversations: make(map[string]*Conversation),
		now:           time.Now,
	}

	rows, err := database.loadAll(ctx)
	if err != nil {
		_ = database.close()
		return nil, err
	}

	for _, row := range rows {
		conv, err := rehydrate(row)
		if err != nil {
			// A corrupt record must not lose the whole store.
			slog.Warn("Skipping corrupt conversation record",
				"conversation_id", row.ID, "error", err)
			continue
		}
		s.conversations[conv.ID] = conv
		s.order = append(s.order, conv.ID)
	}

	slog.Info("Conversation store opened",
		"dir", dir, "conversations", len(s.order))
	return s, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.close()
}

func rehydrate(row conversationRow) (*Conversation, error) {
	var messages []transcript.Message
	if len(row.Messages) > 0 {
		if err := json.Unmarshal(row.Messages, &messages); err != nil {
			return nil, fmt.Errorf("failed to decode messages: %w", err)
		}
	}
	return &Conversation{
		ID:         row.ID,
		Title:      row.Title,
		Transcript: &transcript.Transcript{Messages: messages},
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}, nil
}

// Create adds a new empty conversation and selects it.
func (s *Store) Create(ctx context.Context) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	conv := &Conversation{
		ID:         uuid.New().String(),
		Transcript: &transcript.Transcript{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	s.conversations[conv.ID] = conv
	s.order = append(s.order, conv.ID)
	s.selectedID = conv.ID

	if err := s.persistLocked(ctx, conv); err != nil {
		return nil, err
	}

	slog.Info("Conversation created", "conversation_id", conv.ID)
	return conv, nil
}

// Select makes the given conversation the target of subsequent
// transcript mutations.
func (s *Store) Select(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[id]; !ok {
		return fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}
	s.selectedID = id
	return nil
}

// Selected returns the currently selected conversation, or nil when
// nothing is selected.
func (s *Store) Selected() *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedLocked()
}

func (s *Store) selectedLocked() *Conversation {
	if s.selectedID == "" {
		return nil
	}
	return s.conversations[s.selectedID]
}

// List returns all conversations in creation order.
func (s *Store) List() []*Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Conversation, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.conversations[id])
	}
	return out
}

// Delete removes a conversation. Deleting the selected conversation
// leaves nothing selected.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[id]; !ok {
		return fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}

	if err := s.db.delete(ctx, id); err != nil {
		return err
	}

	delete(s.conversations, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if s.selectedID == id {
		s.selectedID = ""
	}

	slog.Info("Conversation deleted", "conversation_id", id)
	return nil
}

// Rename sets a conversation's title explicitly, overriding any
// auto-derived title.
func (s *Store) Rename(ctx context.Context, id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}

	conv.Title = title
	conv.UpdatedAt = s.now().UTC()
	return s.persistLocked(ctx, conv)
}

// AppendUserMessage appends a user message to the selected transcript.
// The first user message of a conversation derives its title. No-op
// when nothing is selected.
func (s *Store) AppendUserMessage(ctx context.Context, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.selectedLocked()
	if conv == nil {
		return nil
	}

	conv.Transcript.AppendUserMessage(content)
	if conv.Title == "" {
		conv.Title = DeriveTitle(content)
	}
	conv.UpdatedAt = s.now().UTC()
	return s.persistLocked(ctx, conv)
}

// ApplyEvent feeds one parsed agent event through the reducer for the
// selected transcript and persists the result. No-op when nothing is
// selected.
func (s *Store) ApplyEvent(ctx context.Context, ev *events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.selectedLocked()
	if conv == nil {
		return nil
	}

	conv.Transcript.Apply(ev)
	conv.UpdatedAt = s.now().UTC()
	return s.persistLocked(ctx, conv)
}

// ResolveApproval clears the selected transcript's pending approval,
// replacing its awaiting-approval marker with the given summary.
// No-op when nothing is selected.
func (s *Store) ResolveApproval(ctx context.Context, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.selectedLocked()
	if conv == nil {
		return nil
	}

	conv.Transcript.ResolveApproval(summary)
	conv.UpdatedAt = s.now().UTC()
	return s.persistLocked(ctx, conv)
}

// MutateMessage applies fn to the identified message in the selected
// transcript. Returns false when nothing is selected or no message has
// that id.
func (s *Store) MutateMessage(ctx context.Context, id string, fn func(*transcript.Message)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.selectedLocked()
	if conv == nil {
		return false, nil
	}

	found := false
	for i := range conv.Transcript.Messages {
		if conv.Transcript.Messages[i].ID == id {
			fn(&conv.Transcript.Messages[i])
			found = true
			break
		}
	}
	if !found {
		return false, nil
	}

	conv.UpdatedAt = s.now().UTC()
	return true, s.persistLocked(ctx, conv)
}

// ClearMessages empties the selected transcript, including any pending
// approval. No-op when nothing is selected.
func (s *Store) ClearMessages(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.selectedLocked()
	if conv == nil {
		return nil
	}

	conv.Transcript.Clear()
	conv.UpdatedAt = s.now().UTC()
	return s.persistLocked(ctx, conv)
}

func (s *Store) persistLocked(ctx context.Context, conv *Conversation) error {
	messages := conv.Transcript.Messages
	if messages == nil {
		messages = []transcript.Message{}
	}
	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to encode messages: %w", err)
	}

	return s.db.upsert(ctx, conversationRow{
		ID:        conv.ID,
		Title:     conv.Title,
		Messages:  data,
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
	})
}

// DeriveTitle produces a conversation title from the first user
// message: the message text capped at TitleRuneLimit runes with an
// ellipsis marker when truncated.
func DeriveTitle(content string) string {
	runes := []rune(content)
	if len(runes) <= TitleRuneLimit {
		return content
	}
	return string(runes[:TitleRuneLimit]) + "…"
}
