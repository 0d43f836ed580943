package testutil

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/forgeops/keyforge/internal/core/domain"
)

// MockStore is a testify mock of ports.CredentialStore for tests that
// need to script exact store behavior (errors, call counts).
type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetUserByID(ctx context.Context, userID int64) (*domain.User, error) {
	args := m.Called(userID)
	return userArg(args.Get(0)), args.Error(1)
}

func (m *MockStore) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	args := m.Called(username)
	return userArg(args.Get(0)), args.Error(1)
}

func (m *MockStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(email)
	return userArg(args.Get(0)), args.Error(1)
}

func (m *MockStore) CreateUser(ctx context.Context, user *domain.User) error {
	args := m.Called(user)
	return args.Error(0)
}

func (m *MockStore) DeleteUser(ctx context.Context, userID int64) error {
	args := m.Called(userID)
	return args.Error(0)
}

func (m *MockStore) GetAPIKeyByID(ctx context.Context, userID, keyID int64) (*domain.APIKey, error) {
	args := m.Called(userID, keyID)
	return keyArg(args.Get(0)), args.Error(1)
}

func (m *MockStore) GetAPIKeyByLabel(ctx context.Context, userID int64, label string) (*domain.APIKey, error) {
	args := m.Called(userID, label)
	return keyArg(args.Get(0)), args.Error(1)
}

func (m *MockStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) (*domain.APIKey, error) {
	args := m.Called(prefix)
	return keyArg(args.Get(0)), args.Error(1)
}

func (m *MockStore) ListAPIKeys(ctx context.Context, userID int64) ([]domain.APIKey, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.APIKey), args.Error(1)
}

func (m *MockStore) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	args := m.Called(key)
	return args.Error(0)
}

func (m *MockStore) UpdateAPIKey(ctx context.Context, key *domain.APIKey) error {
	args := m.Called(key)
	return args.Error(0)
}

func (m *MockStore) DeleteAPIKey(ctx context.Context, userID int64, label string) error {
	args := m.Called(userID, label)
	return args.Error(0)
}

func (m *MockStore) TouchAPIKey(ctx context.Context, keyID int64, usedAt time.Time) error {
	args := m.Called(keyID, usedAt)
	return args.Error(0)
}

func (m *MockStore) Ping(ctx context.Context) error {
	args := m.Called()
	return args.Error(0)
}

// Untyped nils from Return(nil, err) must read back as typed nils.
func userArg(v any) *domain.User {
	if v == nil {
		return nil
	}
	return v.(*domain.User)
}

func keyArg(v any) *domain.APIKey {
	if v == nil {
		return nil
	}
	return v.(*domain.APIKey)
}
