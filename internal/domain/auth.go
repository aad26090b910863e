package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ============================================================
// Roles and permissions
// ============================================================

// Role is the closed set of access levels. The integer values are the
// codes used by the credential snapshot.
type Role int

const (
	RoleAdmin Role = iota
	RoleUser
	RoleGuest
)

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "Admin"
	case RoleUser:
		return "User"
	case RoleGuest:
		return "Guest"
	default:
		return "Unknown"
	}
}

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	return r >= RoleAdmin && r <= RoleGuest
}

// ParseRole accepts a role name ("admin", "User", ...) or its integer code.
func ParseRole(s string) (Role, error) {
	s = strings.TrimSpace(s)
	if code, err := strconv.Atoi(s); err == nil {
		r := Role(code)
		if !r.Valid() {
			return 0, &ErrValidation{Field: "role", Message: fmt.Sprintf("unknown role code %d", code)}
		}
		return r, nil
	}
	switch strings.ToLower(s) {
	case "admin":
		return RoleAdmin, nil
	case "user":
		return RoleUser, nil
	case "guest":
		return RoleGuest, nil
	}
	return 0, &ErrValidation{Field: "role", Message: "unknown role " + s}
}

// Permission names one operation the shell can dispatch.
type Permission string

const (
	PermCreateAccount Permission = "create_account"
	PermDeposit       Permission = "deposit"
	PermWithdraw      Permission = "withdraw"
	PermBalance       Permission = "balance"
	PermHistory       Permission = "history"
	PermListAccounts  Permission = "list_accounts"
	PermDeleteAccount Permission = "delete_account"
	PermExport        Permission = "export"
	PermRegisterUser  Permission = "register_user"
	PermUnlockUser    Permission = "unlock_user"
	PermListUsers     Permission = "list_users"
	PermSystemStats   Permission = "system_stats"
)

var rolePermissions = map[Role]map[Permission]bool{
	RoleAdmin: {
		PermCreateAccount: true, PermDeposit: true, PermWithdraw: true,
		PermBalance: true, PermHistory: true, PermListAccounts: true,
		PermDeleteAccount: true, PermExport: true,
		PermRegisterUser: true, PermUnlockUser: true, PermListUsers: true,
		PermSystemStats: true,
	},
	RoleUser: {
		PermCreateAccount: true, PermDeposit: true, PermWithdraw: true,
		PermBalance: true, PermHistory: true, PermListAccounts: true,
		PermExport: true,
	},
	RoleGuest: {
		PermBalance: true, PermHistory: true, PermListAccounts: true,
	},
}

// Can reports whether the role is allowed to perform p.
func (r Role) Can(p Permission) bool {
	return rolePermissions[r][p]
}

// ============================================================
// Sessions
// ============================================================

// Session is the authenticated identity handed back by a successful login.
// It is passed explicitly to every authorized operation.
type Session struct {
	ID        string
	Username  string
	Role      Role
	Token     string
	ExpiresAt time.Time
}

// CredentialInfo is the listing view of a credential. It never carries the hash.
type CredentialInfo struct {
	Username       string `json:"username"`
	Role           Role   `json:"role"`
	Locked         bool   `json:"locked"`
	FailedAttempts int    `json:"failedAttempts"`
}
