package mission

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore provides in-memory mission storage.
type MemoryStore struct {
	mu       sync.RWMutex
	missions map[string]*Mission
}

// Ensure MemoryStore implements Store interface
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory mission store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{missions: make(map[string]*Mission)}
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// SaveMission persists a newly created mission.
func (s *MemoryStore) SaveMission(ctx context.Context, m *Mission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.missions[m.ID] = m.clone()
	return nil
}

// AppendLog persists a log line for a mission.
func (s *MemoryStore) AppendLog(ctx context.Context, missionID, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.missions[missionID]
	if !ok {
		return fmt.Errorf("mission not found: %s", missionID)
	}
	m.Logs = append(m.Logs, line)
	m.LastStatus = line
	return nil
}

// MarkStepCompleted persists a completed step index.
func (s *MemoryStore) MarkStepCompleted(ctx context.Context, missionID string, step int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.missions[missionID]
	if !ok {
		return fmt.Errorf("mission not found: %s", missionID)
	}
	for _, done := range m.CompletedSteps {
		if done == step {
			return nil
		}
	}
	m.CompletedSteps = append(m.CompletedSteps, step)
	return nil
}

// GetMission retrieves a mission by ID.
func (s *MemoryStore) GetMission(ctx context.Context, id string) (*Mission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.missions[id]
	if !ok {
		return nil, fmt.Errorf("mission not found: %s", id)
	}
	return m.clone(), nil
}

// ListMissions returns all missions, most recent first.
func (s *MemoryStore) ListMissions(ctx context.Context) ([]*Mission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	missions := make([]*Mission, 0, len(s.missions))
	for _, m := range s.missions {
		missions = append(missions, m.clone())
	}
	sort.Slice(missions, func(i, j int) bool {
		return missions[i].StartedAt.After(missions[j].StartedAt)
	})
	return missions, nil
}
