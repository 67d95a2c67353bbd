// Package store persists conversations and their deliberation turns as JSON
// documents under .conclave/conversations/. One file per conversation; the
// whole document is rewritten on every append, which keeps the format
// trivially inspectable and git-trackable.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quorumworks/conclave/internal/council"
)

// Conversation groups the turns that share one chat session.
type Conversation struct {
	ID        string         `json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Turns     []council.Turn `json:"turns"`
}

// Summary is the listing view of a conversation.
type Summary struct {
	ID        string    `json:"id"`
	UpdatedAt time.Time `json:"updated_at"`
	Turns     int       `json:"turns"`
	FirstTurn string    `json:"first_turn,omitempty"`
}

// ErrNotFound reports a conversation id with no stored document.
var ErrNotFound = errors.New("store: conversation not found")

// Store manages conversation IO rooted at a single directory.
type Store struct {
	dir   string
	now   func() time.Time
	newID func() string
}

// Option customizes a Store during construction.
type Option func(*Store)

// WithClock overrides the clock used for document timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithIDs overrides conversation id generation.
func WithIDs(newID func() string) Option {
	return func(s *Store) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// New builds a store rooted at dir.
func New(dir string, opts ...Option) *Store {
	store := &Store{
		dir:   dir,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

// AppendTurn records a completed (or failed) turn on the conversation,
// creating the conversation when id is empty or unknown. It returns the
// updated document.
func (s *Store) AppendTurn(id string, turn *council.Turn) (Conversation, error) {
	if turn == nil {
		return Conversation{}, fmt.Errorf("store: turn is required")
	}
	id = strings.TrimSpace(id)

	var conv Conversation
	if id == "" {
		conv = Conversation{ID: s.newID(), CreatedAt: s.now()}
	} else {
		loaded, err := s.Load(id)
		switch {
		case err == nil:
			conv = loaded
		case errors.Is(err, ErrNotFound):
			conv = Conversation{ID: id, CreatedAt: s.now()}
		default:
			return Conversation{}, err
		}
	}

	conv.Turns = append(conv.Turns, *turn)
	conv.UpdatedAt = s.now()
	if err := s.save(conv); err != nil {
		return Conversation{}, err
	}
	return conv, nil
}

// Load reads one conversation document.
func (s *Store) Load(id string) (Conversation, error) {
	path, err := s.pathFor(id)
	if err != nil {
		return Conversation{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Conversation{}, ErrNotFound
		}
		return Conversation{}, fmt.Errorf("store: read %s: %w", path, err)
	}
	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return Conversation{}, fmt.Errorf("store: parse %s: %w", path, err)
	}
	return conv, nil
}

// List returns summaries for every stored conversation, most recent first.
func (s *Store) List() ([]Summary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: list %s: %w", s.dir, err)
	}
	var summaries []Summary
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		conv, err := s.Load(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue
		}
		summary := Summary{ID: conv.ID, UpdatedAt: conv.UpdatedAt, Turns: len(conv.Turns)}
		if len(conv.Turns) > 0 {
			summary.FirstTurn = conv.Turns[0].Query
		}
		summaries = append(summaries, summary)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

func (s *Store) save(conv Conversation) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("store: ensure dir: %w", err)
	}
	path, err := s.pathFor(conv.ID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", conv.ID, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("store: write %s: %w", path, err)
	}
	return os.Rename(tmp, path)
}

func (s *Store) pathFor(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("store: conversation id is required")
	}
	// Conversation ids become file names; refuse anything that could
	// escape the store directory.
	if strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return "", fmt.Errorf("store: invalid conversation id %q", id)
	}
	return filepath.Join(s.dir, id+".json"), nil
}
