package ports

import (
	"context"
	"time"

	"github.com/forgeops/keyforge/internal/core/domain"
)

// CredentialStore is the transactional persistence boundary for users
// and API keys. Mutations that depend on a uniqueness check
// (CreateUser, CreateAPIKey, UpdateAPIKey) must run the check and the
// write inside one transaction; the backing unique constraints are the
// authoritative guard and implementations translate constraint
// violations into the matching domain error.
type CredentialStore interface {
	GetUserByID(ctx context.Context, userID int64) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	// CreateUser inserts the user and fills in the generated ID and
	// CreatedAt. Returns domain.ErrDuplicateEmail or
	// domain.ErrDuplicateUsername on conflict.
	CreateUser(ctx context.Context, user *domain.User) error
	// DeleteUser removes the user and all of their API keys in one
	// transaction.
	DeleteUser(ctx context.Context, userID int64) error

	GetAPIKeyByID(ctx context.Context, userID, keyID int64) (*domain.APIKey, error)
	GetAPIKeyByLabel(ctx context.Context, userID int64, label string) (*domain.APIKey, error)
	// GetAPIKeyByPrefix is the sole lookup path used during
	// verification; prefix is globally unique.
	GetAPIKeyByPrefix(ctx context.Context, prefix string) (*domain.APIKey, error)
	// ListAPIKeys returns the user's keys in insertion order.
	ListAPIKeys(ctx context.Context, userID int64) ([]domain.APIKey, error)
	// CreateAPIKey inserts the key and fills in the generated ID and
	// CreatedAt. Returns domain.ErrDuplicateLabel on (user_id, label)
	// conflict.
	CreateAPIKey(ctx context.Context, key *domain.APIKey) error
	// UpdateAPIKey persists the full mutable state of the key (label,
	// description, prefix, hash, active). Returns
	// domain.ErrDuplicateLabel on label conflict, domain.ErrNotFound if
	// the row is gone.
	UpdateAPIKey(ctx context.Context, key *domain.APIKey) error
	// DeleteAPIKey hard-deletes by owner and label. Returns
	// domain.ErrNotFound if no row matched.
	DeleteAPIKey(ctx context.Context, userID int64, label string) error
	// TouchAPIKey records a successful verification.
	TouchAPIKey(ctx context.Context, keyID int64, usedAt time.Time) error

	Ping(ctx context.Context) error
}

// AuthService orchestrates registration and login.
type AuthService interface {
	Register(ctx context.Context, email, username, password string) (*domain.User, error)
	// Login returns a signed session token on success and
	// domain.ErrInvalidCredentials on any mismatch, never revealing
	// which part of the check failed.
	Login(ctx context.Context, username, password string) (string, error)
	// CurrentUser resolves a session token to its user.
	CurrentUser(ctx context.Context, token string) (*domain.User, error)
}

// APIKeyService manages the API key lifecycle for authenticated users.
type APIKeyService interface {
	// Create returns the stored record plus the one-time plaintext key.
	Create(ctx context.Context, userID int64, label string, description *string) (*domain.APIKey, string, error)
	List(ctx context.Context, userID int64) ([]domain.APIKey, error)
	Update(ctx context.Context, userID, keyID int64, patch domain.APIKeyPatch) (*domain.APIKey, error)
	Delete(ctx context.Context, userID int64, label string) error
	// Rotate replaces the secret in place and returns the new
	// plaintext key once.
	Rotate(ctx context.Context, userID, keyID int64) (*domain.APIKey, string, error)
	// VerifyAndFetch authenticates a raw presented key and records the
	// use. Returns domain.ErrUnauthorized for unknown/mismatched keys
	// and domain.ErrKeyInactive for valid but deactivated ones.
	VerifyAndFetch(ctx context.Context, presented string) (*domain.APIKey, error)
}
