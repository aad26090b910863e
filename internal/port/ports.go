// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/boddenberg/bank-ledger/internal/domain"
)

// LedgerStore persists full ledger snapshots. Load returns an empty
// snapshot (and no error) when nothing has been saved yet.
type LedgerStore interface {
	LoadLedger(ctx context.Context) (*domain.LedgerSnapshot, error)
	SaveLedger(ctx context.Context, snap *domain.LedgerSnapshot) error
}

// CredentialStore persists full credential snapshots. Load returns an
// empty snapshot (and no error) when nothing has been saved yet.
type CredentialStore interface {
	LoadCredentials(ctx context.Context) (*domain.CredentialSnapshot, error)
	SaveCredentials(ctx context.Context, snap *domain.CredentialSnapshot) error
}

// PasswordHasher turns plaintext into a stored hash at registration and
// checks plaintext against it at login.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) bool
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
