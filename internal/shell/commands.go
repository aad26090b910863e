package shell

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/boddenberg/bank-ledger/internal/domain"

	"github.com/shopspring/decimal"
)

type command struct {
	label string
	perm  domain.Permission
	run   func(s *Shell, ctx context.Context, session *domain.Session) error
}

// commands in menu order. A session sees the ones its role permits,
// numbered from 1.
var commands = []command{
	{"Create New Account", domain.PermCreateAccount, (*Shell).createAccount},
	{"Deposit Money", domain.PermDeposit, (*Shell).deposit},
	{"Withdraw Money", domain.PermWithdraw, (*Shell).withdraw},
	{"Check Balance", domain.PermBalance, (*Shell).checkBalance},
	{"View Transaction History", domain.PermHistory, (*Shell).history},
	{"List All Accounts", domain.PermListAccounts, (*Shell).listAccounts},
	{"Delete Account", domain.PermDeleteAccount, (*Shell).deleteAccount},
	{"Export to JSON", domain.PermExport, (*Shell).export},
	{"Register User", domain.PermRegisterUser, (*Shell).registerUser},
	{"Unlock User", domain.PermUnlockUser, (*Shell).unlockUser},
	{"List Users", domain.PermListUsers, (*Shell).listUsers},
	{"System Stats", domain.PermSystemStats, (*Shell).systemStats},
}

func menuFor(role domain.Role) []command {
	var out []command
	for _, c := range commands {
		if role.Can(c.perm) {
			out = append(out, c)
		}
	}
	return out
}

// sessionLoop shows the role menu until logout. A non-nil error ends the
// shell (input closed or context cancelled).
func (s *Shell) sessionLoop(ctx context.Context, session *domain.Session) error {
	menu := menuFor(session.Role)
	for {
		s.printf("\n%s\n   %s MENU (%s)\n%s\n", rule, strings.ToUpper(session.Role.String()), session.Username, rule)
		for i, c := range menu {
			s.printf("%d. %s\n", i+1, c.label)
		}
		s.printf("0. Logout\n%s\n", rule)

		choice, err := s.prompt(ctx, "Enter your choice: ")
		if err != nil {
			// Logout only fails for a nil session
			_ = s.auth.Logout(context.WithoutCancel(ctx), session)
			return err
		}
		choice = strings.TrimSpace(choice)
		if choice == "0" {
			_ = s.auth.Logout(ctx, session)
			s.printf("Logged out.\n")
			return nil
		}

		n, convErr := strconv.Atoi(choice)
		if convErr != nil || n < 1 || n > len(menu) {
			s.printf("Invalid choice! Please try again.\n")
			continue
		}
		c := menu[n-1]

		if err := s.auth.Authorize(session, c.perm); err != nil {
			s.report(err)
			var unauthorized *domain.ErrUnauthorized
			if errors.As(err, &unauthorized) {
				return nil
			}
			continue
		}
		s.printf("\n--- %s ---\n", c.label)
		if err := c.run(s, ctx, session); err != nil {
			return err
		}
	}
}

// ============================================================
// Ledger commands
// ============================================================

// Command handlers return an error only when input ends; operation
// failures are reported and the menu continues.

func (s *Shell) createAccount(ctx context.Context, _ *domain.Session) error {
	holder, err := s.prompt(ctx, "Enter account holder name: ")
	if err != nil {
		return err
	}
	initial, ok, err := s.promptAmount(ctx, "Enter initial deposit (0 for none): $", true)
	if err != nil || !ok {
		return err
	}

	info, err := s.ledger.CreateAccount(ctx, holder, initial)
	if info.Number != 0 {
		s.printf("\n*** Account created successfully! ***\nAccount Number: %d\nAccount Holder: %s\nInitial Balance: $%s\n",
			info.Number, info.Holder, domain.FormatMoney(info.Balance))
	}
	s.report(err)
	return nil
}

func (s *Shell) deposit(ctx context.Context, _ *domain.Session) error {
	return s.moveMoney(ctx, "deposit", s.ledger.Deposit)
}

func (s *Shell) withdraw(ctx context.Context, _ *domain.Session) error {
	return s.moveMoney(ctx, "withdraw", s.ledger.Withdraw)
}

func (s *Shell) moveMoney(ctx context.Context, verb string, op func(context.Context, int, decimal.Decimal) (domain.AccountInfo, error)) error {
	info, ok, err := s.promptAccount(ctx)
	if err != nil || !ok {
		return err
	}
	s.printf("Account Holder: %s\nCurrent Balance: $%s\n", info.Holder, domain.FormatMoney(info.Balance))

	amount, ok, err := s.promptAmount(ctx, "Enter amount to "+verb+": $", false)
	if err != nil || !ok {
		return err
	}

	after, err := op(ctx, info.Number, amount)
	var unavailable *domain.ErrStorageUnavailable
	if err == nil || errors.As(err, &unavailable) {
		s.printf("Successfully %s $%s. New balance: $%s\n",
			pastTense(verb), domain.FormatMoney(domain.RoundMoney(amount)), domain.FormatMoney(after.Balance))
	}
	s.report(err)
	return nil
}

func (s *Shell) checkBalance(ctx context.Context, _ *domain.Session) error {
	info, ok, err := s.promptAccount(ctx)
	if err != nil || !ok {
		return err
	}
	s.printf("\nAccount Number: %d\nAccount Holder: %s\nBalance: $%s\n",
		info.Number, info.Holder, domain.FormatMoney(info.Balance))
	return nil
}

func (s *Shell) history(ctx context.Context, _ *domain.Session) error {
	info, ok, err := s.promptAccount(ctx)
	if err != nil || !ok {
		return err
	}
	txs, err := s.ledger.History(ctx, info.Number)
	if s.report(err) {
		return nil
	}

	s.printf("\nTransaction History for Account #%d (%s)\n", info.Number, info.Holder)
	if len(txs) == 0 {
		s.printf("No transactions yet.\n")
		return nil
	}
	for _, tx := range txs {
		s.printf("%s  %-16s $%10s  Balance: $%s\n",
			tx.Timestamp.Format("2006-01-02 15:04:05"), tx.Kind,
			domain.FormatMoney(tx.Amount), domain.FormatMoney(tx.BalanceAfter))
	}
	return nil
}

func (s *Shell) listAccounts(ctx context.Context, _ *domain.Session) error {
	accounts := s.ledger.ListAccounts(ctx)
	if len(accounts) == 0 {
		s.printf("No accounts exist yet.\n")
		return nil
	}
	s.printf("%-10s %-25s %12s\n", "Number", "Holder", "Balance")
	for _, a := range accounts {
		s.printf("%-10d %-25s %12s\n", a.Number, a.Holder, "$"+domain.FormatMoney(a.Balance))
	}
	s.printf("Total accounts: %d\n", len(accounts))
	return nil
}

func (s *Shell) deleteAccount(ctx context.Context, _ *domain.Session) error {
	raw, err := s.prompt(ctx, "Enter account number: ")
	if err != nil {
		return err
	}
	number, ok := s.parseAccountNumber(raw)
	if !ok {
		return nil
	}

	removed, err := s.ledger.DeleteAccount(ctx, number)
	if removed.Number != 0 {
		s.printf("Account #%d (%s) deleted. Discarded balance: $%s\n",
			removed.Number, removed.Holder, domain.FormatMoney(removed.Balance))
	}
	s.report(err)
	return nil
}

func (s *Shell) export(ctx context.Context, _ *domain.Session) error {
	if s.report(s.exporter.ExportFile(ctx, s.exportPath)) {
		return nil
	}
	s.printf("\n*** Data exported to %s ***\n", s.exportPath)
	return nil
}

// ============================================================
// Admin commands
// ============================================================

func (s *Shell) registerUser(ctx context.Context, _ *domain.Session) error {
	username, err := s.prompt(ctx, "Username: ")
	if err != nil {
		return err
	}
	password, err := s.prompt(ctx, "Password: ")
	if err != nil {
		return err
	}
	raw, err := s.prompt(ctx, "Role (admin/user/guest): ")
	if err != nil {
		return err
	}
	role, err := domain.ParseRole(raw)
	if s.report(err) {
		return nil
	}

	info, err := s.auth.Register(ctx, username, password, role)
	if info.Username != "" {
		s.printf("User %s registered as %s.\n", info.Username, info.Role)
	}
	s.report(err)
	return nil
}

func (s *Shell) unlockUser(ctx context.Context, _ *domain.Session) error {
	username, err := s.prompt(ctx, "Username to unlock: ")
	if err != nil {
		return err
	}
	err = s.auth.Unlock(ctx, username)
	var unavailable *domain.ErrStorageUnavailable
	if err == nil || errors.As(err, &unavailable) {
		s.printf("User %s unlocked.\n", username)
	}
	s.report(err)
	return nil
}

func (s *Shell) listUsers(ctx context.Context, _ *domain.Session) error {
	s.printf("%-20s %-8s %-8s %s\n", "Username", "Role", "Locked", "Failed")
	for _, u := range s.auth.ListUsers(ctx) {
		locked := "no"
		if u.Locked {
			locked = "yes"
		}
		s.printf("%-20s %-8s %-8s %d\n", u.Username, u.Role, locked, u.FailedAttempts)
	}
	return nil
}

func (s *Shell) systemStats(ctx context.Context, _ *domain.Session) error {
	st := s.stats.SystemStats(ctx)
	s.printf("Accounts:            %d\n", st.Ledger.Accounts)
	s.printf("Total holdings:      $%s\n", domain.FormatMoney(st.Ledger.TotalBalance))
	s.printf("Next account number: %d\n", st.Ledger.NextAccountNumber)
	s.printf("Users:               %d (admin %d, user %d, guest %d)\n",
		st.Credentials.Users,
		st.Credentials.ByRole[domain.RoleAdmin],
		st.Credentials.ByRole[domain.RoleUser],
		st.Credentials.ByRole[domain.RoleGuest])
	s.printf("Locked users:        %d\n", st.Credentials.Locked)
	s.printf("\nThis session:\n")
	s.printf("Accounts created:    %d\n", st.Activity.AccountsCreated)
	s.printf("Accounts deleted:    %d\n", st.Activity.AccountsDeleted)
	s.printf("Deposits:            %d\n", st.Activity.Deposits)
	s.printf("Withdrawals:         %d\n", st.Activity.Withdrawals)
	s.printf("Rejected operations: %d\n", st.Activity.Rejected)
	s.printf("Logins ok/failed:    %d/%d\n", st.Activity.LoginsOK, st.Activity.LoginsFailed)
	s.printf("Lockouts:            %d\n", st.Activity.Lockouts)
	s.printf("Failed saves:        %d\n", st.Activity.StoreFailures)
	return nil
}

// ============================================================
// Input parsing
// ============================================================

// promptAccount asks for an account number and looks it up. ok is false
// when the input was rejected and already reported.
func (s *Shell) promptAccount(ctx context.Context) (domain.AccountInfo, bool, error) {
	if len(s.ledger.ListAccounts(ctx)) == 0 {
		s.printf("No accounts exist! Please create an account first.\n")
		return domain.AccountInfo{}, false, nil
	}
	raw, err := s.prompt(ctx, "Enter account number (e.g., 1001): ")
	if err != nil {
		return domain.AccountInfo{}, false, err
	}
	number, ok := s.parseAccountNumber(raw)
	if !ok {
		return domain.AccountInfo{}, false, nil
	}
	info, err := s.ledger.FindAccount(ctx, number)
	if s.report(err) {
		return domain.AccountInfo{}, false, nil
	}
	return info, true, nil
}

func (s *Shell) parseAccountNumber(raw string) (int, bool) {
	number, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		s.report(&domain.ErrValidation{Field: "account number", Message: "account number must be a whole number"})
		return 0, false
	}
	return number, true
}

// promptAmount asks for a money amount. With blankIsZero an empty answer
// means zero.
func (s *Shell) promptAmount(ctx context.Context, p string, blankIsZero bool) (decimal.Decimal, bool, error) {
	raw, err := s.prompt(ctx, p)
	if err != nil {
		return decimal.Zero, false, err
	}
	if blankIsZero && strings.TrimSpace(raw) == "" {
		return decimal.Zero, true, nil
	}
	amount, err := domain.ParseAmount(raw)
	if s.report(err) {
		return decimal.Zero, false, nil
	}
	return amount, true, nil
}

func pastTense(verb string) string {
	if verb == "withdraw" {
		return "withdrew"
	}
	return verb + "ed"
}
