// Package drafts holds accepted post drafts awaiting human approval or
// automatic publication. One JSON document, written atomically.
package drafts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"aidigest/internal/item"
)

// Status is a draft's lifecycle position.
type Status string

const (
	StatusPending Status = "pending"
	StatusPosted  Status = "posted"
)

// Draft is a candidate publishable post. Rejected candidates are never
// stored, so a persisted draft is always pending or posted.
type Draft struct {
	ID        string     `json:"id"`
	Item      item.Item  `json:"item"`
	PostText  string     `json:"post_text"`
	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	PostedAt  *time.Time `json:"posted_at"`
}

type document struct {
	Drafts []Draft `json:"drafts"`
}

// Store persists drafts in a single JSON document.
type Store struct {
	path string
	doc  document
	now  func() time.Time
	id   func() string
}

// Option tweaks a Store; used by tests to pin the clock and IDs.
type Option func(*Store)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDFunc replaces the draft ID generator.
func WithIDFunc(id func() string) Option {
	return func(s *Store) { s.id = id }
}

// Open loads the draft document, starting empty when the file does not
// exist yet.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{path: path, now: time.Now, id: uuid.NewString}
	for _, opt := range opts {
		opt(s)
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read drafts: %w", err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.doc); err != nil {
			return nil, fmt.Errorf("unmarshal drafts %s: %w", path, err)
		}
	}
	return s, nil
}

// Add persists a freshly accepted draft in pending state and returns it.
func (s *Store) Add(it item.Item, postText string) (Draft, error) {
	d := Draft{
		ID:        s.id(),
		Item:      it,
		PostText:  postText,
		Status:    StatusPending,
		CreatedAt: s.now().UTC(),
	}
	s.doc.Drafts = append(s.doc.Drafts, d)
	if err := s.save(); err != nil {
		return Draft{}, err
	}
	return d, nil
}

// Pending returns all drafts still awaiting publication.
func (s *Store) Pending() []Draft {
	var out []Draft
	for _, d := range s.doc.Drafts {
		if d.Status == StatusPending {
			out = append(out, d)
		}
	}
	return out
}

// All returns every stored draft.
func (s *Store) All() []Draft {
	out := make([]Draft, len(s.doc.Drafts))
	copy(out, s.doc.Drafts)
	return out
}

// MarkPosted transitions a pending draft to posted. A draft already
// posted never regresses; marking it again is an error.
func (s *Store) MarkPosted(id string) error {
	for i := range s.doc.Drafts {
		if s.doc.Drafts[i].ID != id {
			continue
		}
		if s.doc.Drafts[i].Status == StatusPosted {
			return fmt.Errorf("draft %s already posted", id)
		}
		at := s.now().UTC()
		s.doc.Drafts[i].Status = StatusPosted
		s.doc.Drafts[i].PostedAt = &at
		return s.save()
	}
	return fmt.Errorf("draft %s not found", id)
}

func (s *Store) save() error {
	data, err := json.MarshalIndent(&s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal drafts: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write drafts: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace drafts: %w", err)
	}
	return nil
}
