package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store reads and writes templates.
type Store interface {
	Get(ctx context.Context, id string) (*Template, error)
	// Save creates or replaces a template. An empty ID is filled in.
	Save(ctx context.Context, t *Template) error
	Delete(ctx context.Context, id string) error
	// List returns every template ordered by creation time.
	List(ctx context.Context) ([]*Template, error)
	Close() error
}

// ForUser returns the templates assigned to userID.
func ForUser(ctx context.Context, s Store, userID string) ([]*Template, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, t := range all {
		if t.AssignedTo(userID) {
			out = append(out, t)
		}
	}
	return out, nil
}

// Assign gives userID access to a stored template.
func Assign(ctx context.Context, s Store, templateID, userID string) error {
	t, err := s.Get(ctx, templateID)
	if err != nil {
		return err
	}
	if !t.Assign(userID) {
		return nil
	}
	return s.Save(ctx, t)
}

// Unassign revokes userID's access to a stored template.
func Unassign(ctx context.Context, s Store, templateID, userID string) error {
	t, err := s.Get(ctx, templateID)
	if err != nil {
		return err
	}
	if !t.Unassign(userID) {
		return nil
	}
	return s.Save(ctx, t)
}

// stamp fills the id and timestamps before a write.
func stamp(t *Template, now time.Time) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
}

func decode(data []byte) (*Template, error) {
	var t Template
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func sortByCreation(ts []*Template) {
	sort.SliceStable(ts, func(i, j int) bool {
		return ts[i].CreatedAt.Before(ts[j].CreatedAt)
	})
}

// MemoryStore keeps templates in process memory. Templates are stored
// encoded, so callers never share state with the store.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
	now  func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]byte), now: time.Now}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Template, error) {
	m.mu.RLock()
	data, ok := m.docs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decode(data)
}

func (m *MemoryStore) Save(_ context.Context, t *Template) error {
	if t == nil {
		return errors.New("nil template")
	}
	stamp(t, m.now())
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.docs[t.ID] = data
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return ErrNotFound
	}
	delete(m.docs, id)
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]*Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Template, 0, len(m.docs))
	for _, data := range m.docs {
		t, err := decode(data)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	sortByCreation(out)
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
