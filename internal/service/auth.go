package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/boddenberg/bank-ledger/internal/domain"
	"github.com/boddenberg/bank-ledger/internal/infra/observability"
	"github.com/boddenberg/bank-ledger/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var authTracer = otel.Tracer("service/auth")

const credentialsStore = "credentials"

// DefaultUser is one account seeded into an empty credential store.
type DefaultUser struct {
	Username string
	Password string
	Role     domain.Role
}

// DefaultUsers are created on first start so an operator can log in.
var DefaultUsers = []DefaultUser{
	{Username: "admin", Password: "admin123", Role: domain.RoleAdmin},
	{Username: "user", Password: "user123", Role: domain.RoleUser},
	{Username: "guest", Password: "guest123", Role: domain.RoleGuest},
}

// rehasher is implemented by hashers that can tell when a stored hash
// should be upgraded.
type rehasher interface {
	NeedsRehash(hash string) bool
}

// AuthService is the credential manager: registered users, login with
// lockout, admin unlock, and the sessions handed out on login. It is safe
// for concurrent use.
type AuthService struct {
	mu    sync.Mutex
	users map[string]*domain.Credential
	order []string

	store   port.CredentialStore
	hasher  port.PasswordHasher
	revoked port.Cache[time.Time]

	secret     []byte
	sessionTTL time.Duration
	now        func() time.Time

	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewAuthService creates an empty credential manager. Call Load to restore
// the persisted users. revoked keeps logged-out session ids; its TTL
// should be at least sessionTTL.
func NewAuthService(
	store port.CredentialStore,
	hasher port.PasswordHasher,
	revoked port.Cache[time.Time],
	secret string,
	sessionTTL time.Duration,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		users:      make(map[string]*domain.Credential),
		store:      store,
		hasher:     hasher,
		revoked:    revoked,
		secret:     []byte(secret),
		sessionTTL: sessionTTL,
		now:        time.Now,
		metrics:    metrics,
		logger:     logger,
	}
}

// ============================================================
// Load
// ============================================================

// Load replaces the in-memory users with the persisted snapshot. An empty
// store is seeded with DefaultUsers and saved.
func (s *AuthService) Load(ctx context.Context) error {
	ctx, span := authTracer.Start(ctx, "AuthService.Load")
	defer span.End()

	snap, err := s.store.LoadCredentials(ctx)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}

	users := make(map[string]*domain.Credential, len(snap.Users))
	order := make([]string, 0, len(snap.Users))
	for _, u := range snap.Users {
		if _, dup := users[u.Username]; dup {
			return fmt.Errorf("load credentials: duplicate username %q", u.Username)
		}
		users[u.Username] = domain.RestoreCredential(u.Username, u.PasswordHash, u.Role, u.Locked)
		order = append(order, u.Username)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = users
	s.order = order
	span.SetAttributes(attribute.Int("users", len(order)))

	if len(order) > 0 {
		s.logger.Info("credentials loaded", zap.Int("users", len(order)))
		return nil
	}

	for _, d := range DefaultUsers {
		hash, err := s.hasher.Hash(d.Password)
		if err != nil {
			return fmt.Errorf("seed default user %s: %w", d.Username, err)
		}
		s.insertLocked(domain.NewCredential(d.Username, hash, d.Role))
	}
	s.logger.Warn("credential store empty, default users created",
		zap.Int("users", len(DefaultUsers)),
	)
	return s.persistLocked(ctx)
}

// ============================================================
// Unlock (admin)
// ============================================================

// Unlock clears the lock and the failed attempt counter of username.
func (s *AuthService) Unlock(ctx context.Context, username string) error {
	ctx, span := authTracer.Start(ctx, "AuthService.Unlock")
	defer span.End()
	span.SetAttributes(attribute.String("username", username))

	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.users[username]
	if !ok {
		return &domain.ErrUserNotFound{Username: username}
	}
	if !cred.Locked() {
		return &domain.ErrNotLocked{Username: username}
	}
	cred.SetLocked(false)
	cred.ResetFailedAttempts()

	s.logger.Info("user unlocked", zap.String("username", username))
	return s.persistLocked(ctx)
}

// ============================================================
// Listing and stats
// ============================================================

// LookupUser returns the listing view of one user. The shell uses it to
// report unknown and locked users before asking for a password.
func (s *AuthService) LookupUser(ctx context.Context, username string) (domain.CredentialInfo, error) {
	_, span := authTracer.Start(ctx, "AuthService.LookupUser")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.users[username]
	if !ok {
		return domain.CredentialInfo{}, &domain.ErrUserNotFound{Username: username}
	}
	return cred.Info(), nil
}

// ListUsers returns every user in registration order, without hashes.
func (s *AuthService) ListUsers(ctx context.Context) []domain.CredentialInfo {
	_, span := authTracer.Start(ctx, "AuthService.ListUsers")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.CredentialInfo, 0, len(s.order))
	for _, u := range s.order {
		out = append(out, s.users[u].Info())
	}
	return out
}

// Stats summarizes the credential store for the admin overview.
func (s *AuthService) Stats(ctx context.Context) domain.CredentialStats {
	_, span := authTracer.Start(ctx, "AuthService.Stats")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	st := domain.CredentialStats{Users: len(s.users), ByRole: make(map[domain.Role]int)}
	for _, c := range s.users {
		st.ByRole[c.Role()]++
		if c.Locked() {
			st.Locked++
		}
	}
	return st
}

// Flush writes the current snapshot; the final save on exit.
func (s *AuthService) Flush(ctx context.Context) error {
	ctx, span := authTracer.Start(ctx, "AuthService.Flush")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked(ctx)
}

// ============================================================
// Internal helpers
// ============================================================

func (s *AuthService) insertLocked(c *domain.Credential) {
	s.users[c.Username()] = c
	s.order = append(s.order, c.Username())
}

func (s *AuthService) persistLocked(ctx context.Context) error {
	snap := &domain.CredentialSnapshot{Users: make([]domain.CredentialRecord, 0, len(s.order))}
	for _, u := range s.order {
		c := s.users[u]
		snap.Users = append(snap.Users, domain.CredentialRecord{
			Username:     c.Username(),
			PasswordHash: c.PasswordHash(),
			Role:         c.Role(),
			Locked:       c.Locked(),
		})
	}
	if err := s.store.SaveCredentials(ctx, snap); err != nil {
		s.metrics.IncrStoreFailure(credentialsStore)
		s.logger.Warn("credential snapshot not saved", zap.Error(err))
		return asStorageError(credentialsStore, err)
	}
	return nil
}
