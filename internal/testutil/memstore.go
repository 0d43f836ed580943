package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/forgeops/keyforge/internal/core/domain"
)

// MemStore is a mutex-guarded in-memory CredentialStore. It enforces
// the same uniqueness rules as the Postgres schema, which makes it
// suitable for exercising duplicate and concurrency behavior in
// service tests.
type MemStore struct {
	mu         sync.Mutex
	users      map[int64]domain.User
	keys       map[int64]domain.APIKey
	nextUserID int64
	nextKeyID  int64
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		users: make(map[int64]domain.User),
		keys:  make(map[int64]domain.APIKey),
	}
}

func (m *MemStore) GetUserByID(_ context.Context, userID int64) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		return &u, nil
	}
	return nil, nil
}

func (m *MemStore) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			u := u
			return &u, nil
		}
	}
	return nil, nil
}

func (m *MemStore) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, nil
}

func (m *MemStore) CreateUser(_ context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return domain.ErrDuplicateEmail
		}
		if u.Username == user.Username {
			return domain.ErrDuplicateUsername
		}
	}
	m.nextUserID++
	user.ID = m.nextUserID
	user.CreatedAt = time.Now().UTC()
	m.users[user.ID] = *user
	return nil
}

func (m *MemStore) DeleteUser(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		return domain.ErrNotFound
	}
	delete(m.users, userID)
	for id, k := range m.keys {
		if k.UserID == userID {
			delete(m.keys, id)
		}
	}
	return nil
}

func (m *MemStore) GetAPIKeyByID(_ context.Context, userID, keyID int64) (*domain.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if k, ok := m.keys[keyID]; ok && k.UserID == userID {
		return &k, nil
	}
	return nil, nil
}

func (m *MemStore) GetAPIKeyByLabel(_ context.Context, userID int64, label string) (*domain.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.keys {
		if k.UserID == userID && k.Label == label {
			k := k
			return &k, nil
		}
	}
	return nil, nil
}

func (m *MemStore) GetAPIKeyByPrefix(_ context.Context, prefix string) (*domain.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.keys {
		if k.KeyPrefix == prefix {
			k := k
			return &k, nil
		}
	}
	return nil, nil
}

func (m *MemStore) ListAPIKeys(_ context.Context, userID int64) ([]domain.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []domain.APIKey
	for _, k := range m.keys {
		if k.UserID == userID {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].ID < keys[j].ID })
	return keys, nil
}

func (m *MemStore) CreateAPIKey(_ context.Context, key *domain.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.keys {
		if k.UserID == key.UserID && k.Label == key.Label {
			return domain.ErrDuplicateLabel
		}
	}
	m.nextKeyID++
	key.ID = m.nextKeyID
	key.CreatedAt = time.Now().UTC()
	m.keys[key.ID] = *key
	return nil
}

func (m *MemStore) UpdateAPIKey(_ context.Context, key *domain.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.keys[key.ID]
	if !ok || current.UserID != key.UserID {
		return domain.ErrNotFound
	}
	for _, k := range m.keys {
		if k.UserID == key.UserID && k.ID != key.ID && k.Label == key.Label {
			return domain.ErrDuplicateLabel
		}
	}
	key.CreatedAt = current.CreatedAt
	m.keys[key.ID] = *key
	return nil
}

func (m *MemStore) DeleteAPIKey(_ context.Context, userID int64, label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, k := range m.keys {
		if k.UserID == userID && k.Label == label {
			delete(m.keys, id)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *MemStore) TouchAPIKey(_ context.Context, keyID int64, usedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[keyID]
	if !ok {
		return domain.ErrNotFound
	}
	k.LastUsedAt = &usedAt
	m.keys[keyID] = k
	return nil
}

func (m *MemStore) Ping(_ context.Context) error { return nil }
