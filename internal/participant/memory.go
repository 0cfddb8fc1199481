package participant

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps records in process memory. Used for local runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	nextKey int64
	records map[string]Participant
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Participant)}
}

func (m *MemoryStore) Create(_ context.Context, p *Participant) error {
	if err := validate(p); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextKey++
	p.ID = uuid.NewString()
	p.PrimaryKey = m.nextKey
	p.Visited = cloneVisited(p.Visited)
	p.VisitedCount = len(p.Visited)

	stored := *p
	stored.Visited = cloneVisited(p.Visited)
	m.records[p.ID] = stored
	return nil
}

func (m *MemoryStore) FindByUserID(_ context.Context, userID int64) (Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var (
		best  Participant
		found bool
	)
	for _, p := range m.records {
		if p.UserID == userID && (!found || p.PrimaryKey > best.PrimaryKey) {
			best, found = p, true
		}
	}
	if !found {
		return Participant{}, ErrNotFound
	}
	best.Visited = cloneVisited(best.Visited)
	return best, nil
}

func (m *MemoryStore) FindByPrimaryKey(_ context.Context, key int64) (Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.records {
		if p.PrimaryKey == key {
			p.Visited = cloneVisited(p.Visited)
			return p, nil
		}
	}
	return Participant{}, ErrNotFound
}

func (m *MemoryStore) Update(_ context.Context, id string, ch Changes) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	if ch.Name != nil {
		p.Name = *ch.Name
	}
	if ch.Email != nil {
		p.Email = *ch.Email
	}
	if ch.Visited != nil {
		p.Visited = cloneVisited(ch.Visited)
		p.VisitedCount = len(ch.Visited)
	}
	m.records[id] = p
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return ErrNotFound
	}
	delete(m.records, id)
	return nil
}
