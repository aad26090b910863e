package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/boddenberg/bank-ledger/internal/domain"

	"github.com/shopspring/decimal"
)

func amt(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestLedger_AliceScenario(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	svc, _ := newLedger(t, store)

	info, err := svc.CreateAccount(ctx, "Alice", amt("100.00"))
	if err != nil {
		t.Fatalf("CreateAccount() error: %v", err)
	}
	if info.Number != 1001 || domain.FormatMoney(info.Balance) != "100.00" {
		t.Fatalf("created %+v, want #1001 with 100.00", info)
	}

	hist, _ := svc.History(ctx, 1001)
	if len(hist) != 1 || hist[0].Kind != domain.KindInitialDeposit ||
		!hist[0].Amount.Equal(amt("100")) || !hist[0].BalanceAfter.Equal(amt("100")) {
		t.Fatalf("history = %+v", hist)
	}

	if info, err = svc.Deposit(ctx, 1001, amt("50.00")); err != nil || !info.Balance.Equal(amt("150")) {
		t.Fatalf("Deposit() = %+v, %v", info, err)
	}

	_, err = svc.Withdraw(ctx, 1001, amt("200.00"))
	var insufficient *domain.ErrInsufficientFunds
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if !insufficient.Available.Equal(amt("150")) {
		t.Errorf("available = %s, want 150.00", insufficient.Available)
	}
	if got, _ := svc.FindAccount(ctx, 1001); !got.Balance.Equal(amt("150")) {
		t.Errorf("balance after failed withdraw = %s, want 150.00", got.Balance)
	}

	if info, err = svc.Withdraw(ctx, 1001, amt("150.00")); err != nil || !info.Balance.IsZero() {
		t.Fatalf("Withdraw() = %+v, %v", info, err)
	}

	hist, _ = svc.History(ctx, 1001)
	if len(hist) != 3 {
		t.Fatalf("history length = %d, want 3", len(hist))
	}
	if last := hist[len(hist)-1]; last.Kind != domain.KindWithdrawal || !last.BalanceAfter.IsZero() {
		t.Errorf("last entry = %+v", last)
	}
}

func TestLedger_NumbersNeverReused(t *testing.T) {
	ctx := context.Background()
	svc, _ := newLedger(t, &memStore{})

	a, _ := svc.CreateAccount(ctx, "A", decimal.Zero)
	b, _ := svc.CreateAccount(ctx, "B", decimal.Zero)
	if _, err := svc.DeleteAccount(ctx, b.Number); err != nil {
		t.Fatalf("DeleteAccount() error: %v", err)
	}
	c, _ := svc.CreateAccount(ctx, "C", decimal.Zero)

	if a.Number != 1001 || b.Number != 1002 || c.Number != 1003 {
		t.Fatalf("numbers = %d,%d,%d; want 1001,1002,1003", a.Number, b.Number, c.Number)
	}
}

func TestLedger_CreateAccountValidation(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	svc, _ := newLedger(t, store)

	_, err := svc.CreateAccount(ctx, "Alice", amt("-1"))
	var invalid *domain.ErrInvalidAmount
	if !errors.As(err, &invalid) {
		t.Errorf("negative initial: expected ErrInvalidAmount, got %v", err)
	}

	_, err = svc.CreateAccount(ctx, "   ", amt("1"))
	var validation *domain.ErrValidation
	if !errors.As(err, &validation) {
		t.Errorf("blank holder: expected ErrValidation, got %v", err)
	}

	_, err = svc.CreateAccount(ctx, "Alice\nBob", amt("1"))
	if !errors.As(err, &validation) {
		t.Errorf("multiline holder: expected ErrValidation, got %v", err)
	}

	_, err = svc.CreateAccount(ctx, strings.Repeat("x", domain.MaxHolderLength+1), amt("1"))
	if !errors.As(err, &validation) {
		t.Errorf("overlong holder: expected ErrValidation, got %v", err)
	}

	if got := svc.ListAccounts(ctx); len(got) != 0 {
		t.Errorf("rejected creates left %d accounts", len(got))
	}
	if store.ledgerSaves != 0 {
		t.Errorf("rejected creates saved %d times", store.ledgerSaves)
	}

	// rejected creates do not consume numbers
	info, _ := svc.CreateAccount(ctx, "Alice", decimal.Zero)
	if info.Number != 1001 {
		t.Errorf("number = %d, want 1001", info.Number)
	}
	if hist, _ := svc.History(ctx, 1001); len(hist) != 0 {
		t.Errorf("zero initial deposit produced history %+v", hist)
	}
}

func TestLedger_UnknownAccount(t *testing.T) {
	ctx := context.Background()
	svc, _ := newLedger(t, &memStore{})

	checks := map[string]func() error{
		"find":     func() error { _, err := svc.FindAccount(ctx, 4242); return err },
		"deposit":  func() error { _, err := svc.Deposit(ctx, 4242, amt("1")); return err },
		"withdraw": func() error { _, err := svc.Withdraw(ctx, 4242, amt("1")); return err },
		"history":  func() error { _, err := svc.History(ctx, 4242); return err },
		"delete":   func() error { _, err := svc.DeleteAccount(ctx, 4242); return err },
	}
	for name, fn := range checks {
		t.Run(name, func(t *testing.T) {
			var nf *domain.ErrAccountNotFound
			if err := fn(); !errors.As(err, &nf) || nf.Number != 4242 {
				t.Fatalf("expected ErrAccountNotFound(4242), got %v", err)
			}
		})
	}
}

func TestLedger_InvalidAmountsLeaveStateUntouched(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	svc, _ := newLedger(t, store)
	svc.CreateAccount(ctx, "Alice", amt("10"))
	saves := store.ledgerSaves

	for _, a := range []string{"0", "-5", "0.004"} {
		var invalid *domain.ErrInvalidAmount
		if _, err := svc.Deposit(ctx, 1001, amt(a)); !errors.As(err, &invalid) {
			t.Errorf("Deposit(%s): expected ErrInvalidAmount, got %v", a, err)
		}
		if _, err := svc.Withdraw(ctx, 1001, amt(a)); !errors.As(err, &invalid) {
			t.Errorf("Withdraw(%s): expected ErrInvalidAmount, got %v", a, err)
		}
	}

	info, _ := svc.FindAccount(ctx, 1001)
	hist, _ := svc.History(ctx, 1001)
	if !info.Balance.Equal(amt("10")) || len(hist) != 1 {
		t.Errorf("state changed: balance=%s history=%d", info.Balance, len(hist))
	}
	if store.ledgerSaves != saves {
		t.Errorf("rejected operations triggered %d saves", store.ledgerSaves-saves)
	}
}

func TestLedger_DeleteDiscardsBalance(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	svc, _ := newLedger(t, store)
	svc.CreateAccount(ctx, "Alice", amt("75.25"))

	removed, err := svc.DeleteAccount(ctx, 1001)
	if err != nil {
		t.Fatalf("DeleteAccount() error: %v", err)
	}
	if removed.Holder != "Alice" || !removed.Balance.Equal(amt("75.25")) {
		t.Errorf("removed = %+v", removed)
	}
	if len(store.ledger.Accounts) != 0 || store.ledger.NextAccountNumber != 1002 {
		t.Errorf("saved snapshot = %+v", store.ledger)
	}
}

func TestLedger_PersistRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	svc, _ := newLedger(t, store)

	svc.CreateAccount(ctx, "Alice", amt("100"))
	svc.CreateAccount(ctx, "Bob", amt("5.5"))
	svc.CreateAccount(ctx, "Carol", decimal.Zero)
	svc.Withdraw(ctx, 1002, amt("0.5"))
	svc.DeleteAccount(ctx, 1001)

	restored, _ := newLedger(t, store)
	if err := restored.Load(ctx); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	want := svc.Snapshot(ctx)
	got := restored.Snapshot(ctx)
	if got.NextAccountNumber != want.NextAccountNumber || len(got.Accounts) != len(want.Accounts) {
		t.Fatalf("restored %+v, want %+v", got, want)
	}
	for i := range want.Accounts {
		w, g := want.Accounts[i], got.Accounts[i]
		if g.Number != w.Number || g.Holder != w.Holder || !g.Balance.Equal(w.Balance) {
			t.Errorf("account %d = %+v, want %+v", i, g, w)
		}
	}
	if hist, _ := restored.History(ctx, 1002); len(hist) != 0 {
		t.Errorf("restored account has history %+v", hist)
	}

	// the counter survives even though the highest account was not deleted
	next, _ := restored.CreateAccount(ctx, "Dan", decimal.Zero)
	if next.Number != 1004 {
		t.Errorf("next number after reload = %d, want 1004", next.Number)
	}
}

func TestLedger_LoadRejectsDuplicateNumbers(t *testing.T) {
	store := &memStore{ledger: &domain.LedgerSnapshot{
		NextAccountNumber: 1003,
		Accounts: []domain.AccountInfo{
			{Number: 1001, Holder: "A", Balance: amt("1")},
			{Number: 1001, Holder: "B", Balance: amt("2")},
		},
	}}
	svc, _ := newLedger(t, store)
	if err := svc.Load(context.Background()); err == nil {
		t.Fatal("expected error for duplicate account numbers")
	}
}

func TestLedger_LoadRaisesStaleCounter(t *testing.T) {
	store := &memStore{ledger: &domain.LedgerSnapshot{
		NextAccountNumber: 1001,
		Accounts:          []domain.AccountInfo{{Number: 1007, Holder: "A", Balance: amt("1")}},
	}}
	svc, _ := newLedger(t, store)
	ctx := context.Background()
	if err := svc.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if info, _ := svc.CreateAccount(ctx, "B", decimal.Zero); info.Number != 1008 {
		t.Errorf("number = %d, want 1008", info.Number)
	}
}

func TestLedger_SaveFailureKeepsMutation(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	svc, metrics := newLedger(t, store)
	svc.CreateAccount(ctx, "Alice", amt("10"))

	store.setFail(true)
	info, err := svc.Deposit(ctx, 1001, amt("5"))
	var unavailable *domain.ErrStorageUnavailable
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	if !info.Balance.Equal(amt("15")) {
		t.Errorf("balance = %s, want 15.00", info.Balance)
	}
	if err := svc.Flush(ctx); !errors.As(err, &unavailable) {
		t.Errorf("Flush() with failing store: expected ErrStorageUnavailable, got %v", err)
	}
	if got := metrics.ActivitySnapshot().StoreFailures; got != 2 {
		t.Errorf("store failures = %d, want 2", got)
	}

	store.setFail(false)
	if err := svc.Flush(ctx); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}
	if !store.ledger.Accounts[0].Balance.Equal(amt("15")) {
		t.Errorf("flushed balance = %s, want 15.00", store.ledger.Accounts[0].Balance)
	}
}

func TestLedger_Stats(t *testing.T) {
	ctx := context.Background()
	svc, _ := newLedger(t, &memStore{})
	svc.CreateAccount(ctx, "A", amt("10.10"))
	svc.CreateAccount(ctx, "B", amt("0.90"))

	st := svc.Stats(ctx)
	if st.Accounts != 2 || !st.TotalBalance.Equal(amt("11")) || st.NextAccountNumber != 1003 {
		t.Errorf("stats = %+v", st)
	}
}
