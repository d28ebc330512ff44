package auth

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/fieldops/fieldops/internal/identity"
)

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	tokens *identity.TokenStore
	logger *slog.Logger
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens *identity.TokenStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, tokens: tokens, logger: logger}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates and issues a bearer token. The session row is recorded
// for auditing; failing to write it does not fail the login.
func (s *Service) Login(ctx context.Context, req LoginRequest, ip, ua string) (LoginResponse, error) {
	user, err := s.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return LoginResponse{}, err
	}
	token, err := s.tokens.Issue(ctx, user.ID)
	if err != nil {
		return LoginResponse{}, err
	}
	if err := s.repo.CreateSession(ctx, token.ID, user.ID, token.ExpiresAt, ip, ua); err != nil {
		s.logger.Warn("register session", slog.Any("error", err), slog.Int64("user_id", user.ID))
	}
	return LoginResponse{
		Token:     token.Value,
		ExpiresAt: token.ExpiresAt,
		User:      LoginUser{ID: user.ID, Role: string(user.Role)},
	}, nil
}

// Logout revokes the token and removes its session row.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.tokens.Revoke(ctx, token); err != nil {
		return err
	}
	return s.repo.DeleteSession(ctx, identity.TokenID(token))
}
