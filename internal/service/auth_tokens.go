package service

import (
	"context"
	"fmt"

	"github.com/boddenberg/bank-ledger/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const sessionIssuer = "bank-ledger"

// SessionClaims are the claims carried by a session token.
type SessionClaims struct {
	Role int `json:"role"`
	jwt.RegisteredClaims
}

// ============================================================
// Authorize
// ============================================================

// Authorize checks that session is genuine, unexpired and not logged out,
// that its user still exists and is not locked, and that its role grants p.
func (s *AuthService) Authorize(session *domain.Session, p domain.Permission) error {
	if session == nil {
		return &domain.ErrUnauthorized{Message: "not logged in"}
	}
	claims, err := s.validateToken(session.Token)
	if err != nil {
		return err
	}
	if claims.Subject != session.Username || claims.ID != session.ID || domain.Role(claims.Role) != session.Role {
		return &domain.ErrUnauthorized{Message: "session does not match its token"}
	}
	if _, revoked := s.revoked.Get(claims.ID); revoked {
		return &domain.ErrUnauthorized{Message: "session has ended"}
	}

	s.mu.Lock()
	cred, ok := s.users[session.Username]
	locked := ok && cred.Locked()
	s.mu.Unlock()
	if !ok || locked {
		return &domain.ErrUnauthorized{Message: "user is no longer active"}
	}

	if !session.Role.Can(p) {
		return &domain.ErrForbidden{Action: string(p), Role: session.Role}
	}
	return nil
}

// ============================================================
// Logout
// ============================================================

// Logout revokes the session until its token would have expired anyway.
func (s *AuthService) Logout(ctx context.Context, session *domain.Session) error {
	_, span := authTracer.Start(ctx, "AuthService.Logout")
	defer span.End()

	if session == nil {
		return &domain.ErrUnauthorized{Message: "not logged in"}
	}
	s.revoked.Set(session.ID, s.now())
	s.logger.Info("user logged out",
		zap.String("username", session.Username),
		zap.String("session_id", session.ID),
	)
	return nil
}

// ============================================================
// Internal JWT helpers
// ============================================================

func (s *AuthService) issueSession(username string, role domain.Role) (*domain.Session, error) {
	now := s.now()
	id := uuid.NewString()
	expires := now.Add(s.sessionTTL)

	claims := SessionClaims{
		Role: int(role),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Subject:   username,
			Issuer:    sessionIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, err
	}
	return &domain.Session{
		ID:        id,
		Username:  username,
		Role:      role,
		Token:     token,
		ExpiresAt: expires,
	}, nil
}

func (s *AuthService) validateToken(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithIssuer(sessionIssuer))
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "session invalid or expired"}
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "session invalid"}
	}
	return claims, nil
}
