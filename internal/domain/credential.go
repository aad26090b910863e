package domain

// MaxFailedAttempts is the number of consecutive failed logins that locks
// a credential.
const MaxFailedAttempts = 3

// Credential is one registered user with its lockout state.
// Invariant: failedAttempts >= MaxFailedAttempts implies locked.
type Credential struct {
	username       string
	passwordHash   string
	role           Role
	locked         bool
	failedAttempts int
}

// NewCredential registers a fresh, unlocked credential.
func NewCredential(username, passwordHash string, role Role) *Credential {
	return &Credential{username: username, passwordHash: passwordHash, role: role}
}

// RestoreCredential rebuilds a credential from a snapshot. The failed
// attempt counter is not persisted and starts at zero.
func RestoreCredential(username, passwordHash string, role Role, locked bool) *Credential {
	return &Credential{username: username, passwordHash: passwordHash, role: role, locked: locked}
}

func (c *Credential) Username() string     { return c.username }
func (c *Credential) PasswordHash() string { return c.passwordHash }
func (c *Credential) Role() Role           { return c.role }
func (c *Credential) Locked() bool         { return c.locked }
func (c *Credential) FailedAttempts() int  { return c.failedAttempts }

// Authenticate checks password against the stored hash with verify.
// A locked credential is rejected without calling verify.
func (c *Credential) Authenticate(verify func(hash, password string) bool, password string) bool {
	if c.locked {
		return false
	}
	return verify(c.passwordHash, password)
}

// IncrementFailedAttempts records one failed login and locks the
// credential when the counter reaches MaxFailedAttempts. It reports
// whether the credential is locked afterwards.
func (c *Credential) IncrementFailedAttempts() bool {
	c.failedAttempts++
	if c.failedAttempts >= MaxFailedAttempts {
		c.locked = true
	}
	return c.locked
}

// ResetFailedAttempts zeroes the counter. It does not touch the lock.
func (c *Credential) ResetFailedAttempts() {
	c.failedAttempts = 0
}

// SetLocked overrides the lock flag. Unlocking is always paired with
// ResetFailedAttempts by the credential manager.
func (c *Credential) SetLocked(locked bool) {
	c.locked = locked
}

// SetPasswordHash replaces the stored hash, e.g. when a legacy hash is
// upgraded after a successful login.
func (c *Credential) SetPasswordHash(hash string) {
	c.passwordHash = hash
}

// Info returns the listing view of the credential.
func (c *Credential) Info() CredentialInfo {
	return CredentialInfo{
		Username:       c.username,
		Role:           c.role,
		Locked:         c.locked,
		FailedAttempts: c.failedAttempts,
	}
}
