// Package service provides the business logic layer (use cases).
// LedgerService owns the account ledger; AuthService owns the credential
// store and sessions. Both persist a full snapshot after every mutation.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/boddenberg/bank-ledger/internal/domain"
	"github.com/boddenberg/bank-ledger/internal/infra/observability"
	"github.com/boddenberg/bank-ledger/internal/port"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var ledgerTracer = otel.Tracer("service/ledger")

// Operation names used as metric labels.
const (
	opCreate   = "create"
	opDeposit  = "deposit"
	opWithdraw = "withdraw"
	opDelete   = "delete"
)

const ledgerStore = "ledger"

// LedgerService is the ledger manager: accounts keyed by number plus their
// creation order, and the next number to hand out. It is safe for
// concurrent use.
type LedgerService struct {
	mu         sync.Mutex
	accounts   map[int]*domain.Account
	order      []int
	nextNumber int

	store   port.LedgerStore
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewLedgerService creates an empty ledger. Call Load to restore the
// persisted snapshot.
func NewLedgerService(store port.LedgerStore, metrics *observability.Metrics, logger *zap.Logger) *LedgerService {
	return &LedgerService{
		accounts:   make(map[int]*domain.Account),
		nextNumber: domain.FirstAccountNumber,
		store:      store,
		metrics:    metrics,
		logger:     logger,
	}
}

// ============================================================
// Load
// ============================================================

// Load replaces the in-memory ledger with the persisted snapshot. Restored
// accounts have no history.
func (s *LedgerService) Load(ctx context.Context) error {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.Load")
	defer span.End()

	snap, err := s.store.LoadLedger(ctx)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}

	accounts := make(map[int]*domain.Account, len(snap.Accounts))
	order := make([]int, 0, len(snap.Accounts))
	next := snap.NextAccountNumber
	if next < domain.FirstAccountNumber {
		next = domain.FirstAccountNumber
	}
	for _, a := range snap.Accounts {
		if _, dup := accounts[a.Number]; dup {
			return fmt.Errorf("load ledger: duplicate account number %d", a.Number)
		}
		if a.Balance.IsNegative() {
			return fmt.Errorf("load ledger: account %d has negative balance %s", a.Number, domain.FormatMoney(a.Balance))
		}
		accounts[a.Number] = domain.RestoreAccount(a.Number, a.Holder, a.Balance)
		order = append(order, a.Number)
		if a.Number >= next {
			next = a.Number + 1
		}
	}

	s.mu.Lock()
	s.accounts = accounts
	s.order = order
	s.nextNumber = next
	s.mu.Unlock()

	span.SetAttributes(attribute.Int("accounts", len(order)))
	s.logger.Info("ledger loaded",
		zap.Int("accounts", len(order)),
		zap.Int("next_account_number", next),
	)
	return nil
}

// ============================================================
// Accounts
// ============================================================

// CreateAccount opens an account with the next number. A positive initial
// deposit is recorded as the first history entry.
func (s *LedgerService) CreateAccount(ctx context.Context, holder string, initial decimal.Decimal) (domain.AccountInfo, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.CreateAccount")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.RecordDuration(opCreate, time.Since(start)) }()

	holder = strings.TrimSpace(holder)
	if err := validateHolder(holder); err != nil {
		s.metrics.IncrOperation(opCreate, observability.StatusRejected)
		return domain.AccountInfo{}, err
	}
	initial = domain.RoundMoney(initial)
	if initial.IsNegative() {
		s.metrics.IncrOperation(opCreate, observability.StatusRejected)
		return domain.AccountInfo{}, &domain.ErrInvalidAmount{Amount: initial}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	number := s.nextNumber
	s.nextNumber++
	acc := domain.NewAccount(number, holder, initial)
	s.accounts[number] = acc
	s.order = append(s.order, number)
	s.metrics.IncrOperation(opCreate, observability.StatusOK)

	span.SetAttributes(attribute.Int("account.number", number))
	s.logger.Info("account created",
		zap.Int("account_number", number),
		zap.String("initial_deposit", domain.FormatMoney(initial)),
	)
	return acc.Info(), s.persistLocked(ctx)
}

// FindAccount returns the (number, holder, balance) of an account.
func (s *LedgerService) FindAccount(ctx context.Context, number int) (domain.AccountInfo, error) {
	_, span := ledgerTracer.Start(ctx, "LedgerService.FindAccount")
	defer span.End()
	span.SetAttributes(attribute.Int("account.number", number))

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[number]
	if !ok {
		return domain.AccountInfo{}, &domain.ErrAccountNotFound{Number: number}
	}
	return acc.Info(), nil
}

// Deposit credits amount to the account and returns its new state.
func (s *LedgerService) Deposit(ctx context.Context, number int, amount decimal.Decimal) (domain.AccountInfo, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.Deposit")
	defer span.End()
	return s.mutate(ctx, opDeposit, number, func(acc *domain.Account) error {
		return acc.Deposit(amount)
	})
}

// Withdraw debits amount from the account and returns its new state.
// The balance never goes below zero.
func (s *LedgerService) Withdraw(ctx context.Context, number int, amount decimal.Decimal) (domain.AccountInfo, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.Withdraw")
	defer span.End()
	return s.mutate(ctx, opWithdraw, number, func(acc *domain.Account) error {
		return acc.Withdraw(amount)
	})
}

// History returns a copy of the account's transactions, oldest first.
func (s *LedgerService) History(ctx context.Context, number int) ([]domain.Transaction, error) {
	_, span := ledgerTracer.Start(ctx, "LedgerService.History")
	defer span.End()
	span.SetAttributes(attribute.Int("account.number", number))

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[number]
	if !ok {
		return nil, &domain.ErrAccountNotFound{Number: number}
	}
	return acc.History(), nil
}

// DeleteAccount removes the account regardless of its balance and returns
// what it held. Its number is never reused.
func (s *LedgerService) DeleteAccount(ctx context.Context, number int) (domain.AccountInfo, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.DeleteAccount")
	defer span.End()
	span.SetAttributes(attribute.Int("account.number", number))
	start := time.Now()
	defer func() { s.metrics.RecordDuration(opDelete, time.Since(start)) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[number]
	if !ok {
		s.metrics.IncrOperation(opDelete, observability.StatusRejected)
		return domain.AccountInfo{}, &domain.ErrAccountNotFound{Number: number}
	}
	delete(s.accounts, number)
	for i, n := range s.order {
		if n == number {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.metrics.IncrOperation(opDelete, observability.StatusOK)

	info := acc.Info()
	s.logger.Info("account deleted",
		zap.Int("account_number", number),
		zap.String("discarded_balance", domain.FormatMoney(info.Balance)),
	)
	return info, s.persistLocked(ctx)
}

// ListAccounts returns every account in creation order.
func (s *LedgerService) ListAccounts(ctx context.Context) []domain.AccountInfo {
	_, span := ledgerTracer.Start(ctx, "LedgerService.ListAccounts")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.infosLocked()
}

// Snapshot returns the persisted view of the ledger.
func (s *LedgerService) Snapshot(ctx context.Context) domain.LedgerSnapshot {
	_, span := ledgerTracer.Start(ctx, "LedgerService.Snapshot")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.LedgerSnapshot{NextAccountNumber: s.nextNumber, Accounts: s.infosLocked()}
}

// Flush writes the current snapshot. It is the final save on exit, so its
// error must reach the operator.
func (s *LedgerService) Flush(ctx context.Context) error {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.Flush")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked(ctx)
}

// Stats summarizes the ledger for the admin overview.
func (s *LedgerService) Stats(ctx context.Context) domain.LedgerStats {
	_, span := ledgerTracer.Start(ctx, "LedgerService.Stats")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	total := decimal.Zero
	for _, acc := range s.accounts {
		total = total.Add(acc.Balance())
	}
	return domain.LedgerStats{
		Accounts:          len(s.accounts),
		TotalBalance:      total,
		NextAccountNumber: s.nextNumber,
	}
}

// ============================================================
// Internal helpers
// ============================================================

// mutate applies fn to one account under the lock and persists on success.
// fn must leave the account untouched when it returns an error.
func (s *LedgerService) mutate(ctx context.Context, op string, number int, fn func(*domain.Account) error) (domain.AccountInfo, error) {
	start := time.Now()
	defer func() { s.metrics.RecordDuration(op, time.Since(start)) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[number]
	if !ok {
		s.metrics.IncrOperation(op, observability.StatusRejected)
		return domain.AccountInfo{}, &domain.ErrAccountNotFound{Number: number}
	}
	if err := fn(acc); err != nil {
		s.metrics.IncrOperation(op, observability.StatusRejected)
		s.logger.Info("ledger operation rejected",
			zap.String("operation", op),
			zap.Int("account_number", number),
			zap.Error(err),
		)
		return acc.Info(), err
	}
	s.metrics.IncrOperation(op, observability.StatusOK)
	return acc.Info(), s.persistLocked(ctx)
}

func (s *LedgerService) infosLocked() []domain.AccountInfo {
	out := make([]domain.AccountInfo, 0, len(s.order))
	for _, n := range s.order {
		out = append(out, s.accounts[n].Info())
	}
	return out
}

// persistLocked writes the full snapshot. The in-memory state is kept on
// failure and goes out with the next successful save.
func (s *LedgerService) persistLocked(ctx context.Context) error {
	snap := &domain.LedgerSnapshot{NextAccountNumber: s.nextNumber, Accounts: s.infosLocked()}
	if err := s.store.SaveLedger(ctx, snap); err != nil {
		s.metrics.IncrStoreFailure(ledgerStore)
		s.logger.Warn("ledger snapshot not saved", zap.Error(err))
		return asStorageError(ledgerStore, err)
	}
	return nil
}

func validateHolder(holder string) error {
	if holder == "" {
		return &domain.ErrValidation{Field: "holder", Message: "account holder name is required"}
	}
	if strings.ContainsAny(holder, "\r\n") {
		return &domain.ErrValidation{Field: "holder", Message: "account holder name must be a single line"}
	}
	if utf8.RuneCountInString(holder) > domain.MaxHolderLength {
		return &domain.ErrValidation{
			Field:   "holder",
			Message: fmt.Sprintf("account holder name must be at most %d characters", domain.MaxHolderLength),
		}
	}
	return nil
}

// asStorageError makes every persistence failure an ErrStorageUnavailable.
func asStorageError(store string, err error) error {
	var unavailable *domain.ErrStorageUnavailable
	if errors.As(err, &unavailable) {
		return err
	}
	var validation *domain.ErrValidation
	if errors.As(err, &validation) {
		return err
	}
	return &domain.ErrStorageUnavailable{Store: store, Err: err}
}
