package notify

import (
	"context"
	"fmt"
	"sync"

	"freight-resale-api-server/internal/models"
)

// MemoryStore is an in-process MessageStore.
type MemoryStore struct {
	mu     sync.Mutex
	byUser map[string][]models.Notification
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byUser: make(map[string][]models.Notification)}
}

func (s *MemoryStore) Save(_ context.Context, n models.Notification) error {
	s.mu.Lock()
	s.byUser[n.UserID] = append(s.byUser[n.UserID], n)
	s.mu.Unlock()
	return nil
}

// ListByUser returns the newest notifications first.
func (s *MemoryStore) ListByUser(_ context.Context, userID string, limit int) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.byUser[userID]
	out := make([]models.Notification, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, all[i])
	}
	return out, nil
}

func (s *MemoryStore) MarkRead(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.byUser[userID] {
		if n.ID == id {
			s.byUser[userID][i].Read = true
			return nil
		}
	}
	return fmt.Errorf("notification %s: %w", id, models.ErrNotFound)
}
