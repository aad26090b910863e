package service_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/bank-ledger/internal/domain"
	"github.com/boddenberg/bank-ledger/internal/infra/cache"
	"github.com/boddenberg/bank-ledger/internal/infra/observability"
	"github.com/boddenberg/bank-ledger/internal/service"

	"go.uber.org/zap"
)

var errDiskFull = errors.New("disk full")

// memStore is an in-memory LedgerStore and CredentialStore.
type memStore struct {
	mu          sync.Mutex
	ledger      *domain.LedgerSnapshot
	users       *domain.CredentialSnapshot
	ledgerSaves int
	userSaves   int
	failSaves   bool
}

func (m *memStore) LoadLedger(_ context.Context) (*domain.LedgerSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ledger == nil {
		return &domain.LedgerSnapshot{NextAccountNumber: domain.FirstAccountNumber}, nil
	}
	cp := *m.ledger
	cp.Accounts = append([]domain.AccountInfo(nil), m.ledger.Accounts...)
	return &cp, nil
}

func (m *memStore) SaveLedger(_ context.Context, snap *domain.LedgerSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSaves {
		return &domain.ErrStorageUnavailable{Store: "ledger", Err: errDiskFull}
	}
	cp := *snap
	cp.Accounts = append([]domain.AccountInfo(nil), snap.Accounts...)
	m.ledger = &cp
	m.ledgerSaves++
	return nil
}

func (m *memStore) LoadCredentials(_ context.Context) (*domain.CredentialSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.users == nil {
		return &domain.CredentialSnapshot{}, nil
	}
	return &domain.CredentialSnapshot{Users: append([]domain.CredentialRecord(nil), m.users.Users...)}, nil
}

func (m *memStore) SaveCredentials(_ context.Context, snap *domain.CredentialSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSaves {
		return errDiskFull
	}
	m.users = &domain.CredentialSnapshot{Users: append([]domain.CredentialRecord(nil), snap.Users...)}
	m.userSaves++
	return nil
}

func (m *memStore) setFail(fail bool) {
	m.mu.Lock()
	m.failSaves = fail
	m.mu.Unlock()
}

func (m *memStore) user(name string) (domain.CredentialRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.users == nil {
		return domain.CredentialRecord{}, false
	}
	for _, u := range m.users.Users {
		if u.Username == name {
			return u, true
		}
	}
	return domain.CredentialRecord{}, false
}

// countingHasher is a reversible fake hasher that counts Verify calls.
type countingHasher struct {
	mu       sync.Mutex
	verifies int
}

func (h *countingHasher) Hash(password string) (string, error) {
	return "h:" + password, nil
}

func (h *countingHasher) Verify(hash, password string) bool {
	h.mu.Lock()
	h.verifies++
	h.mu.Unlock()
	return strings.TrimPrefix(hash, "h:") == password
}

func (h *countingHasher) calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.verifies
}

func newLedger(t *testing.T, store *memStore) (*service.LedgerService, *observability.Metrics) {
	t.Helper()
	m := observability.NewMetrics()
	return service.NewLedgerService(store, m, zap.NewNop()), m
}

func newAuth(t *testing.T, store *memStore, hasher *countingHasher, ttl time.Duration) *service.AuthService {
	t.Helper()
	revoked := cache.New[time.Time](time.Hour)
	t.Cleanup(revoked.Close)
	return service.NewAuthService(store, hasher, revoked, "test-secret", ttl, observability.NewMetrics(), zap.NewNop())
}

func newAuthWithMetrics(t *testing.T, store *memStore, m *observability.Metrics) *service.AuthService {
	t.Helper()
	revoked := cache.New[time.Time](time.Hour)
	t.Cleanup(revoked.Close)
	return service.NewAuthService(store, &countingHasher{}, revoked, "test-secret", time.Hour, m, zap.NewNop())
}
