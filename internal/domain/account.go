package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FirstAccountNumber is the number given to the first account ever created.
const FirstAccountNumber = 1001

// MaxHolderLength is the longest account holder name, in characters.
const MaxHolderLength = 100

// TransactionKind names the business reason of a history entry.
type TransactionKind string

const (
	KindInitialDeposit TransactionKind = "Initial Deposit"
	KindDeposit        TransactionKind = "Deposit"
	KindWithdrawal     TransactionKind = "Withdrawal"
)

// Transaction is one immutable entry of an account's history.
type Transaction struct {
	ID           string          `json:"id"`
	Kind         TransactionKind `json:"kind"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balanceAfter"`
	Timestamp    time.Time       `json:"timestamp"`
}

// AccountInfo is the read-only (number, holder, balance) view of an account.
type AccountInfo struct {
	Number  int             `json:"accountNumber"`
	Holder  string          `json:"accountHolder"`
	Balance decimal.Decimal `json:"balance"`
}

// Account is one ledger entry: a balance plus its append-only history.
// The balance always equals the BalanceAfter of the last history entry,
// or the creation value when the history is empty. It never goes negative.
//
// Account is not safe for concurrent use; the ledger manager serializes access.
type Account struct {
	number  int
	holder  string
	balance decimal.Decimal
	history []Transaction
	now     func() time.Time
}

// NewAccount builds an account. The caller guarantees initial >= 0; a
// positive initial balance is recorded as an Initial Deposit.
func NewAccount(number int, holder string, initial decimal.Decimal) *Account {
	a := &Account{number: number, holder: holder, now: time.Now}
	initial = RoundMoney(initial)
	if initial.IsPositive() {
		a.balance = initial
		a.record(KindInitialDeposit, initial)
	}
	return a
}

// RestoreAccount rebuilds an account from a persisted snapshot. History is
// not part of the snapshot, so the restored account starts with none.
func RestoreAccount(number int, holder string, balance decimal.Decimal) *Account {
	return &Account{number: number, holder: holder, balance: RoundMoney(balance), now: time.Now}
}

func (a *Account) Number() int              { return a.number }
func (a *Account) Holder() string           { return a.holder }
func (a *Account) Balance() decimal.Decimal { return a.balance }

// Info returns the (number, holder, balance) tuple.
func (a *Account) Info() AccountInfo {
	return AccountInfo{Number: a.number, Holder: a.holder, Balance: a.balance}
}

// Deposit adds a positive amount and records it.
func (a *Account) Deposit(amount decimal.Decimal) error {
	amount = RoundMoney(amount)
	if !amount.IsPositive() {
		return &ErrInvalidAmount{Amount: amount}
	}
	a.balance = a.balance.Add(amount)
	a.record(KindDeposit, amount)
	return nil
}

// Withdraw removes a positive amount no larger than the balance.
func (a *Account) Withdraw(amount decimal.Decimal) error {
	amount = RoundMoney(amount)
	if !amount.IsPositive() {
		return &ErrInvalidAmount{Amount: amount}
	}
	if amount.GreaterThan(a.balance) {
		return &ErrInsufficientFunds{Available: a.balance, Required: amount}
	}
	a.balance = a.balance.Sub(amount)
	a.record(KindWithdrawal, amount)
	return nil
}

// History returns a copy of the transactions in chronological order.
func (a *Account) History() []Transaction {
	out := make([]Transaction, len(a.history))
	copy(out, a.history)
	return out
}

func (a *Account) record(kind TransactionKind, amount decimal.Decimal) {
	a.history = append(a.history, Transaction{
		ID:           uuid.New().String(),
		Kind:         kind,
		Amount:       amount,
		BalanceAfter: a.balance,
		Timestamp:    a.now(),
	})
}
