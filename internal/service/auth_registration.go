package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/boddenberg/bank-ledger/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Register
// ============================================================

// Register adds a new unlocked user. Usernames are case-sensitive and
// must be unique.
func (s *AuthService) Register(ctx context.Context, username, password string, role domain.Role) (domain.CredentialInfo, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Register")
	defer span.End()
	span.SetAttributes(
		attribute.String("username", username),
		attribute.String("role", role.String()),
	)

	if err := validateCredentials(username, password, role); err != nil {
		return domain.CredentialInfo{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[username]; exists {
		return domain.CredentialInfo{}, &domain.ErrDuplicateUsername{Username: username}
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return domain.CredentialInfo{}, fmt.Errorf("hash password: %w", err)
	}
	cred := domain.NewCredential(username, hash, role)
	s.insertLocked(cred)

	s.logger.Info("user registered",
		zap.String("username", username),
		zap.String("role", role.String()),
	)
	return cred.Info(), s.persistLocked(ctx)
}

// SelfRegister is the pre-login registration path. It cannot create
// administrators.
func (s *AuthService) SelfRegister(ctx context.Context, username, password string, role domain.Role) (domain.CredentialInfo, error) {
	if role == domain.RoleAdmin {
		return domain.CredentialInfo{}, &domain.ErrValidation{Field: "role", Message: "self-registration is limited to the User and Guest roles"}
	}
	return s.Register(ctx, username, password, role)
}

func validateCredentials(username, password string, role domain.Role) error {
	if username == "" || strings.TrimSpace(username) != username {
		return &domain.ErrValidation{Field: "username", Message: "username is required and must not start or end with spaces"}
	}
	if strings.ContainsAny(username, "\r\n") {
		return &domain.ErrValidation{Field: "username", Message: "username must be a single line"}
	}
	if password == "" {
		return &domain.ErrValidation{Field: "password", Message: "password is required"}
	}
	if !role.Valid() {
		return &domain.ErrValidation{Field: "role", Message: fmt.Sprintf("unknown role code %d", int(role))}
	}
	return nil
}
