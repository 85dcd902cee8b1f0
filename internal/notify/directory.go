package notify

import (
	"context"
	"fmt"
	"sync"

	"freight-resale-api-server/internal/models"
	lru "github.com/hashicorp/golang-lru"
)

// CachedDirectory keeps recently used users in an LRU so a fan-out burst does
// not hit the user store once per recipient.
type CachedDirectory struct {
	next  Directory
	cache *lru.Cache
}

func NewCachedDirectory(next Directory, size int) (*CachedDirectory, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("user cache: %w", err)
	}
	return &CachedDirectory{next: next, cache: cache}, nil
}

func (d *CachedDirectory) FindByID(ctx context.Context, id string) (models.User, error) {
	if v, ok := d.cache.Get(id); ok {
		return v.(models.User), nil
	}
	u, err := d.next.FindByID(ctx, id)
	if err != nil {
		return models.User{}, err
	}
	d.cache.Add(id, u)
	return u, nil
}

// Forget drops id so the next lookup reloads it.
func (d *CachedDirectory) Forget(id string) {
	d.cache.Remove(id)
}

// MemoryUsers is an in-process user store.
type MemoryUsers struct {
	mu      sync.RWMutex
	byID    map[string]models.User
	byEmail map[string]string
}

func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{byID: make(map[string]models.User), byEmail: make(map[string]string)}
}

func (m *MemoryUsers) Insert(_ context.Context, u models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[u.Email]; ok {
		return models.ErrEmailTaken
	}
	m.byID[u.ID] = u
	m.byEmail[u.Email] = u.ID
	return nil
}

func (m *MemoryUsers) FindByID(_ context.Context, id string) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.byID[id]
	if !ok {
		return models.User{}, models.ErrUserNotFound
	}
	return u, nil
}

func (m *MemoryUsers) FindByEmail(_ context.Context, email string) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byEmail[email]
	if !ok {
		return models.User{}, models.ErrUserNotFound
	}
	return m.byID[id], nil
}
