// Package shell is the interactive text front end: a main menu for login
// and self-registration, and a role-gated menu per session.
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/boddenberg/bank-ledger/internal/domain"
	"github.com/boddenberg/bank-ledger/internal/service"

	"go.uber.org/zap"
)

const rule = "======================================"

// Shell drives the menus over a line-oriented input and an output writer.
type Shell struct {
	ledger     *service.LedgerService
	auth       *service.AuthService
	exporter   *service.Exporter
	stats      *service.StatsService
	exportPath string

	lines     <-chan string
	done      chan struct{}
	inputDone chan struct{}
	stopOnce  sync.Once
	out       io.Writer

	logger *zap.Logger
}

// Deps are the services the shell dispatches to.
type Deps struct {
	Ledger     *service.LedgerService
	Auth       *service.AuthService
	Exporter   *service.Exporter
	Stats      *service.StatsService
	ExportPath string
	Logger     *zap.Logger
}

// New creates a shell reading from in and writing to out. in is consumed
// by a background goroutine so that Run can return on context cancellation
// while a read is pending. The goroutine stops once Run has returned and
// its pending read completes.
func New(deps Deps, in io.Reader, out io.Writer) *Shell {
	lines := make(chan string)
	done := make(chan struct{})
	inputDone := make(chan struct{})
	go func() {
		defer close(inputDone)
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- strings.TrimRight(sc.Text(), "\r"):
			case <-done:
				return
			}
		}
	}()

	return &Shell{
		ledger:     deps.Ledger,
		auth:       deps.Auth,
		exporter:   deps.Exporter,
		stats:      deps.Stats,
		exportPath: deps.ExportPath,
		lines:      lines,
		done:       done,
		inputDone:  inputDone,
		out:        out,
		logger:     deps.Logger,
	}
}

// Run shows the main menu until the operator exits, input ends or ctx is
// cancelled. Every way out saves both stores; the save error is returned.
func (s *Shell) Run(ctx context.Context) error {
	defer s.stopInput()
	s.printf("\n*** Welcome to Automated Banking System ***\n")

	for {
		s.printf("\n%s\n   AUTOMATED BANKING SYSTEM\n%s\n", rule, rule)
		s.printf("1. Login\n2. Register\n3. Exit\n%s\n", rule)

		choice, err := s.prompt(ctx, "Enter your choice: ")
		if err != nil {
			return s.exit(ctx, err)
		}

		switch strings.TrimSpace(choice) {
		case "1":
			session, err := s.login(ctx)
			if err != nil {
				return s.exit(ctx, err)
			}
			if session == nil {
				continue
			}
			if err := s.sessionLoop(ctx, session); err != nil {
				return s.exit(ctx, err)
			}
		case "2":
			if err := s.selfRegister(ctx); err != nil {
				return s.exit(ctx, err)
			}
		case "3":
			return s.exit(ctx, nil)
		default:
			s.printf("Invalid choice! Please try again.\n")
		}
	}
}

// exit saves both stores. cause is the input condition that ended the
// loop, if any; it is logged but not returned.
func (s *Shell) exit(ctx context.Context, cause error) error {
	switch {
	case cause == nil:
	case errors.Is(cause, io.EOF):
		s.printf("\n")
	case errors.Is(cause, context.Canceled), errors.Is(cause, context.DeadlineExceeded):
		s.printf("\nInterrupted.\n")
		s.logger.Info("shell interrupted", zap.Error(cause))
	default:
		s.logger.Error("shell stopped", zap.Error(cause))
	}

	ctx = context.WithoutCancel(ctx)
	err := errors.Join(s.ledger.Flush(ctx), s.auth.Flush(ctx))
	if err != nil {
		s.printf("Error: data could not be saved: %v\n", err)
		return err
	}
	s.printf("\n*** Thank you for using Automated Banking System! ***\nGoodbye!\n")
	return nil
}

// ============================================================
// Login and self-registration
// ============================================================

// login runs the login loop. It returns a nil session when the operator
// leaves with a blank username.
func (s *Shell) login(ctx context.Context) (*domain.Session, error) {
	s.printf("\n--- Login ---\n")
	for {
		username, err := s.prompt(ctx, "Username (blank to go back): ")
		if err != nil {
			return nil, err
		}
		if username == "" {
			return nil, nil
		}

		info, err := s.auth.LookupUser(ctx, username)
		if err != nil {
			s.report(err)
			continue
		}
		if info.Locked {
			s.report(&domain.ErrAccountLocked{Username: username})
			s.printf("Please choose a different user.\n")
			continue
		}

		for {
			password, err := s.prompt(ctx, "Password: ")
			if err != nil {
				return nil, err
			}
			session, err := s.auth.Login(ctx, username, password)
			if err == nil {
				s.printf("\nWelcome, %s! Logged in as %s.\n", session.Username, session.Role)
				return session, nil
			}
			s.report(err)

			var invalid *domain.ErrInvalidPassword
			if !errors.As(err, &invalid) {
				break
			}
		}
	}
}

func (s *Shell) selfRegister(ctx context.Context) error {
	s.printf("\n--- Register ---\n")
	username, err := s.prompt(ctx, "Choose a username: ")
	if err != nil {
		return err
	}
	password, err := s.prompt(ctx, "Choose a password: ")
	if err != nil {
		return err
	}
	raw, err := s.prompt(ctx, "Role (user/guest) [user]: ")
	if err != nil {
		return err
	}

	role := domain.RoleUser
	if strings.TrimSpace(raw) != "" {
		if role, err = domain.ParseRole(raw); err != nil {
			s.report(err)
			return nil
		}
	}

	info, err := s.auth.SelfRegister(ctx, username, password, role)
	if s.report(err) {
		return nil
	}
	s.printf("User %s registered as %s.\n", info.Username, info.Role)
	return nil
}

// ============================================================
// Input / output helpers
// ============================================================

func (s *Shell) stopInput() {
	s.stopOnce.Do(func() { close(s.done) })
}

// prompt prints p and waits for one line. It returns io.EOF when input is
// exhausted and ctx.Err() when ctx is cancelled first.
func (s *Shell) prompt(ctx context.Context, p string) (string, error) {
	s.printf("%s", p)
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-s.lines:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	}
}

func (s *Shell) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}

// report prints err for the operator and reports whether there was one.
// A storage failure after a mutation is a warning: the change is kept and
// saved again later.
func (s *Shell) report(err error) bool {
	if err == nil {
		return false
	}

	var (
		invalidAmount *domain.ErrInvalidAmount
		insufficient  *domain.ErrInsufficientFunds
		accNotFound   *domain.ErrAccountNotFound
		userNotFound  *domain.ErrUserNotFound
		duplicate     *domain.ErrDuplicateUsername
		locked        *domain.ErrAccountLocked
		badPassword   *domain.ErrInvalidPassword
		notLocked     *domain.ErrNotLocked
		unavailable   *domain.ErrStorageUnavailable
		validation    *domain.ErrValidation
		unauthorized  *domain.ErrUnauthorized
		forbidden     *domain.ErrForbidden
	)
	switch {
	case errors.As(err, &invalidAmount):
		s.printf("Error: Amount must be positive!\n")
	case errors.As(err, &insufficient):
		s.printf("Error: Insufficient funds! Available balance: $%s\n", domain.FormatMoney(insufficient.Available))
	case errors.As(err, &accNotFound):
		s.printf("Error: Account #%d not found!\nTip: Use the account list to see all account numbers.\n", accNotFound.Number)
	case errors.As(err, &userNotFound):
		s.printf("Error: User %q not found. Please try again.\n", userNotFound.Username)
	case errors.As(err, &duplicate):
		s.printf("Error: Username %q already exists!\n", duplicate.Username)
	case errors.As(err, &locked):
		if locked.JustLocked {
			s.printf("Account locked after %d failed attempts. Contact an administrator.\n", domain.MaxFailedAttempts)
		} else {
			s.printf("Error: Account %q is locked. Contact an administrator.\n", locked.Username)
		}
	case errors.As(err, &badPassword):
		s.printf("Invalid password! Attempt %d of %d.\n", badPassword.Attempts, domain.MaxFailedAttempts)
	case errors.As(err, &notLocked):
		s.printf("User %q is not locked.\n", notLocked.Username)
	case errors.As(err, &unavailable):
		s.printf("Warning: changes could not be saved (%v). They will be saved again on the next change or on exit.\n", unavailable.Err)
	case errors.As(err, &validation):
		s.printf("Error: %s\n", validation.Message)
	case errors.As(err, &unauthorized):
		s.printf("Session ended: %s. Please log in again.\n", unauthorized.Error())
	case errors.As(err, &forbidden):
		s.printf("Access denied: %s is not available to role %s.\n", forbidden.Action, forbidden.Role)
	default:
		s.printf("Error: %v\n", err)
		s.logger.Error("unexpected error", zap.Error(err))
	}
	return true
}
