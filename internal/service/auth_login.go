package service

import (
	"context"
	"fmt"

	"github.com/boddenberg/bank-ledger/internal/domain"
	"github.com/boddenberg/bank-ledger/internal/infra/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Login
// ============================================================

// Login runs one authentication attempt. A locked user is rejected before
// any password check. Each failure counts towards the lockout; the third
// consecutive one locks the user. A successful login resets the counter
// and returns a new session.
//
// The updated counters are persisted, but a failed save does not change
// the login outcome: it is logged and the state goes out with the next
// successful save or Flush.
func (s *AuthService) Login(ctx context.Context, username, password string) (*domain.Session, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Login")
	defer span.End()
	span.SetAttributes(attribute.String("username", username))

	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.users[username]
	if !ok {
		s.metrics.IncrLogin(observability.LoginUnknownUser)
		return nil, &domain.ErrUserNotFound{Username: username}
	}
	if cred.Locked() {
		s.metrics.IncrLogin(observability.LoginLocked)
		s.logger.Warn("login: user locked", zap.String("username", username))
		return nil, &domain.ErrAccountLocked{Username: username}
	}

	if !cred.Authenticate(s.hasher.Verify, password) {
		locked := cred.IncrementFailedAttempts()
		s.persistQuietLocked(ctx)

		if locked {
			s.metrics.IncrLogin(observability.LoginLocked)
			s.metrics.IncrLockout()
			s.logger.Warn("login: user locked after max attempts",
				zap.String("username", username),
				zap.Int("attempts", cred.FailedAttempts()),
			)
			return nil, &domain.ErrAccountLocked{Username: username, JustLocked: true}
		}

		s.metrics.IncrLogin(observability.LoginInvalidPassword)
		s.logger.Warn("login: failed password attempt",
			zap.String("username", username),
			zap.Int("attempts", cred.FailedAttempts()),
			zap.Int("max", domain.MaxFailedAttempts),
		)
		return nil, &domain.ErrInvalidPassword{
			Attempts:  cred.FailedAttempts(),
			Remaining: domain.MaxFailedAttempts - cred.FailedAttempts(),
		}
	}

	cred.ResetFailedAttempts()
	s.upgradeHashLocked(cred, password)
	s.persistQuietLocked(ctx)

	session, err := s.issueSession(cred.Username(), cred.Role())
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}

	s.metrics.IncrLogin(observability.LoginOK)
	s.logger.Info("user logged in",
		zap.String("username", username),
		zap.String("role", cred.Role().String()),
		zap.String("session_id", session.ID),
	)
	return session, nil
}

// upgradeHashLocked replaces a legacy hash with a fresh one once the
// plaintext is known to be right. Failure keeps the old hash.
func (s *AuthService) upgradeHashLocked(cred *domain.Credential, password string) {
	r, ok := s.hasher.(rehasher)
	if !ok || !r.NeedsRehash(cred.PasswordHash()) {
		return
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Warn("login: password rehash failed",
			zap.String("username", cred.Username()),
			zap.Error(err),
		)
		return
	}
	cred.SetPasswordHash(hash)
	s.logger.Info("login: legacy password hash upgraded", zap.String("username", cred.Username()))
}

func (s *AuthService) persistQuietLocked(ctx context.Context) {
	// persistLocked already logs and counts the failure
	_ = s.persistLocked(ctx)
}
