package services

import (
	"context"
	"fmt"
	"time"

	"github.com/forgeops/keyforge/internal/core/domain"
	"github.com/forgeops/keyforge/internal/core/ports"
	"github.com/forgeops/keyforge/internal/infrastructure/metrics"
	"github.com/forgeops/keyforge/internal/security"
)

type apiKeyService struct {
	store ports.CredentialStore
	codec *security.SecretCodec
}

// NewAPIKeyService wires the API key lifecycle over the given store
// and secret codec.
func NewAPIKeyService(store ports.CredentialStore, codec *security.SecretCodec) ports.APIKeyService {
	return &apiKeyService{store: store, codec: codec}
}

func (s *apiKeyService) Create(ctx context.Context, userID int64, label string, description *string) (*domain.APIKey, string, error) {
	if err := domain.ValidateLabel(label); err != nil {
		return nil, "", err
	}
	if description != nil {
		if err := domain.ValidateDescription(*description); err != nil {
			return nil, "", err
		}
	}

	// Fast-path duplicate check; the store's unique constraint is the
	// authoritative guard under concurrency.
	existing, err := s.store.GetAPIKeyByLabel(ctx, userID, label)
	if err != nil {
		return nil, "", fmt.Errorf("failed to check label: %w", err)
	}
	if existing != nil {
		return nil, "", domain.ErrDuplicateLabel
	}

	plaintext, prefix, hash, err := s.codec.GenerateSecret()
	if err != nil {
		return nil, "", err
	}

	key := &domain.APIKey{
		UserID:      userID,
		Label:       label,
		Description: description,
		KeyPrefix:   prefix,
		KeyHash:     hash,
		Active:      true,
	}

	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return nil, "", err
	}

	metrics.KeyOperations.WithLabelValues("create").Inc()
	return key, plaintext, nil
}

func (s *apiKeyService) List(ctx context.Context, userID int64) ([]domain.APIKey, error) {
	return s.store.ListAPIKeys(ctx, userID)
}

func (s *apiKeyService) Update(ctx context.Context, userID, keyID int64, patch domain.APIKeyPatch) (*domain.APIKey, error) {
	if patch.Empty() {
		return nil, domain.ErrNoFields
	}

	key, err := s.store.GetAPIKeyByID(ctx, userID, keyID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch key: %w", err)
	}
	if key == nil {
		return nil, domain.ErrNotFound
	}

	if patch.Label != nil && *patch.Label != key.Label {
		if err := domain.ValidateLabel(*patch.Label); err != nil {
			return nil, err
		}
		holder, err := s.store.GetAPIKeyByLabel(ctx, userID, *patch.Label)
		if err != nil {
			return nil, fmt.Errorf("failed to check label: %w", err)
		}
		if holder != nil {
			return nil, domain.ErrDuplicateLabel
		}
	}

	if patch.Description != nil {
		if err := domain.ValidateDescription(*patch.Description); err != nil {
			return nil, err
		}
	}

	// A strict flip: asking for the state the key is already in is a
	// confused client, not a no-op.
	if patch.Active != nil && *patch.Active == key.Active {
		return nil, domain.ErrRedundantState
	}

	updated := patch.Apply(*key)
	if err := s.store.UpdateAPIKey(ctx, &updated); err != nil {
		return nil, err
	}

	metrics.KeyOperations.WithLabelValues("update").Inc()
	return &updated, nil
}

func (s *apiKeyService) Delete(ctx context.Context, userID int64, label string) error {
	if err := s.store.DeleteAPIKey(ctx, userID, label); err != nil {
		return err
	}
	metrics.KeyOperations.WithLabelValues("delete").Inc()
	return nil
}

func (s *apiKeyService) Rotate(ctx context.Context, userID, keyID int64) (*domain.APIKey, string, error) {
	key, err := s.store.GetAPIKeyByID(ctx, userID, keyID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch key: %w", err)
	}
	if key == nil {
		return nil, "", domain.ErrNotFound
	}

	plaintext, prefix, hash, err := s.codec.GenerateSecret()
	if err != nil {
		return nil, "", err
	}

	// Overwrite in place: id, label and description survive rotation.
	key.KeyPrefix = prefix
	key.KeyHash = hash

	if err := s.store.UpdateAPIKey(ctx, key); err != nil {
		return nil, "", err
	}

	metrics.KeyOperations.WithLabelValues("rotate").Inc()
	return key, plaintext, nil
}

func (s *apiKeyService) VerifyAndFetch(ctx context.Context, presented string) (*domain.APIKey, error) {
	prefix, remainder, ok := security.SplitKey(presented)
	if !ok {
		metrics.KeyVerifications.WithLabelValues("unauthorized").Inc()
		return nil, domain.ErrUnauthorized
	}

	key, err := s.store.GetAPIKeyByPrefix(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch key: %w", err)
	}
	if key == nil || !s.codec.Verify(remainder, key.KeyHash) {
		metrics.KeyVerifications.WithLabelValues("unauthorized").Inc()
		return nil, domain.ErrUnauthorized
	}

	if !key.Active {
		metrics.KeyVerifications.WithLabelValues("inactive").Inc()
		return nil, domain.ErrKeyInactive
	}

	now := time.Now().UTC()
	if err := s.store.TouchAPIKey(ctx, key.ID, now); err != nil {
		return nil, fmt.Errorf("failed to record key use: %w", err)
	}
	key.LastUsedAt = &now

	metrics.KeyVerifications.WithLabelValues("ok").Inc()
	return key, nil
}
