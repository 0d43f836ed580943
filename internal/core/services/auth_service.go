package services

import (
	"context"
	"fmt"

	"github.com/forgeops/keyforge/internal/core/domain"
	"github.com/forgeops/keyforge/internal/core/ports"
	"github.com/forgeops/keyforge/internal/infrastructure/metrics"
	"github.com/forgeops/keyforge/internal/security"
)

type authService struct {
	store  ports.CredentialStore
	hasher *security.PasswordHasher
	tokens *security.TokenIssuer
}

// NewAuthService wires registration and login over the given store,
// password hasher and token issuer.
func NewAuthService(store ports.CredentialStore, hasher *security.PasswordHasher, tokens *security.TokenIssuer) ports.AuthService {
	return &authService{store: store, hasher: hasher, tokens: tokens}
}

func (s *authService) Register(ctx context.Context, email, username, password string) (*domain.User, error) {
	if err := domain.ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := domain.ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := domain.ValidatePassword(password); err != nil {
		return nil, err
	}

	// Email first, then username; callers rely on this ordering when
	// both collide.
	existing, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if existing != nil {
		return nil, domain.ErrDuplicateEmail
	}

	existing, err = s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}
	if existing != nil {
		return nil, domain.ErrDuplicateUsername
	}

	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &domain.User{
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		Points:       0,
		Rank:         domain.DefaultRank,
		Active:       true,
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	metrics.RegistrationsTotal.Inc()
	return user, nil
}

func (s *authService) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return "", fmt.Errorf("failed to fetch user: %w", err)
	}

	// One generic error whether the user is unknown or the password is
	// wrong; the response never aids account enumeration.
	if user == nil || !s.hasher.Verify(ctx, password, user.PasswordHash) {
		metrics.LoginsTotal.WithLabelValues("failure").Inc()
		return "", domain.ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return "", fmt.Errorf("failed to issue token: %w", err)
	}

	metrics.LoginsTotal.WithLabelValues("success").Inc()
	return token, nil
}

func (s *authService) CurrentUser(ctx context.Context, token string) (*domain.User, error) {
	userID, err := s.tokens.Verify(token)
	if err != nil {
		return nil, err
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	if user == nil {
		return nil, domain.ErrTokenInvalid
	}

	return user, nil
}
