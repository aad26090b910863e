package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Snapshots (the persisted shape of both stores)
// ============================================================

// LedgerSnapshot is a full dump of the ledger: the account number counter
// and every account's (number, holder, balance). History is not included.
type LedgerSnapshot struct {
	NextAccountNumber int
	Accounts          []AccountInfo
}

// CredentialRecord is one persisted credential.
type CredentialRecord struct {
	Username     string
	PasswordHash string
	Role         Role
	Locked       bool
}

// CredentialSnapshot is a full dump of the credential store.
type CredentialSnapshot struct {
	Users []CredentialRecord
}

// ============================================================
// Stats (admin system overview)
// ============================================================

// LedgerStats summarizes the ledger.
type LedgerStats struct {
	Accounts          int             `json:"accounts"`
	TotalBalance      decimal.Decimal `json:"totalBalance"`
	NextAccountNumber int             `json:"nextAccountNumber"`
}

// CredentialStats summarizes the credential store.
type CredentialStats struct {
	Users  int          `json:"users"`
	Locked int          `json:"locked"`
	ByRole map[Role]int `json:"byRole"`
}

// ActivityStats are process-lifetime counters from the metrics registry.
type ActivityStats struct {
	Deposits        int64 `json:"deposits"`
	Withdrawals     int64 `json:"withdrawals"`
	AccountsCreated int64 `json:"accountsCreated"`
	AccountsDeleted int64 `json:"accountsDeleted"`
	Rejected        int64 `json:"rejected"`
	LoginsOK        int64 `json:"loginsOk"`
	LoginsFailed    int64 `json:"loginsFailed"`
	Lockouts        int64 `json:"lockouts"`
	StoreFailures   int64 `json:"storeFailures"`
}

// SystemStats is the aggregate shown on the admin stats screen.
type SystemStats struct {
	Ledger      LedgerStats     `json:"ledger"`
	Credentials CredentialStats `json:"credentials"`
	Activity    ActivityStats   `json:"activity"`
	GeneratedAt time.Time       `json:"generatedAt"`
}
