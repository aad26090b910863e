package shell_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/bank-ledger/internal/domain"
	"github.com/boddenberg/bank-ledger/internal/infra/cache"
	"github.com/boddenberg/bank-ledger/internal/infra/filestore"
	"github.com/boddenberg/bank-ledger/internal/infra/observability"
	"github.com/boddenberg/bank-ledger/internal/infra/resilience"
	"github.com/boddenberg/bank-ledger/internal/infra/security"
	"github.com/boddenberg/bank-ledger/internal/service"
	"github.com/boddenberg/bank-ledger/internal/shell"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// syncBuffer is written by the shell while the test may read it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fixture struct {
	dir    string
	ledger *service.LedgerService
	auth   *service.AuthService
	out    *syncBuffer
}

func newFixture(t *testing.T, ledgerPath string) *fixture {
	t.Helper()
	dir := t.TempDir()
	if ledgerPath == "" {
		ledgerPath = filepath.Join(dir, "bank_data.txt")
	}
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	store := filestore.NewStore(ledgerPath, filepath.Join(dir, "users.txt"),
		resilience.NewBreakers("test"), resilience.Config{}, logger)
	revoked := cache.New[time.Time](time.Hour)
	t.Cleanup(revoked.Close)

	f := &fixture{
		dir:    dir,
		ledger: service.NewLedgerService(store, metrics, logger),
		auth: service.NewAuthService(store, security.NewBcryptHasher(bcrypt.MinCost), revoked,
			"test-secret", time.Hour, metrics, logger),
		out: &syncBuffer{},
	}
	if err := f.auth.Load(context.Background()); err != nil {
		t.Fatalf("auth.Load() error: %v", err)
	}
	return f
}

func (f *fixture) shell(in io.Reader) *shell.Shell {
	metrics := observability.NewMetrics()
	return shell.New(shell.Deps{
		Ledger:     f.ledger,
		Auth:       f.auth,
		Exporter:   service.NewExporter(f.ledger, zap.NewNop()),
		Stats:      service.NewStatsService(f.ledger, f.auth, metrics),
		ExportPath: filepath.Join(f.dir, "bank_export.json"),
		Logger:     zap.NewNop(),
	}, in, f.out)
}

func script(lines ...string) io.Reader {
	return strings.NewReader(strings.Join(lines, "\n") + "\n")
}

func assertContains(t *testing.T, out string, want ...string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(out, w) {
			t.Errorf("output missing %q\n--- output ---\n%s", w, out)
		}
	}
}

func TestShell_AdminLedgerSession(t *testing.T) {
	f := newFixture(t, "")
	in := script(
		"1", "admin", "admin123",
		"1", "Alice", "100",
		"2", "1001", "50",
		"3", "1001", "200",
		"4", "1001",
		"5", "1001",
		"8",
		"0",
		"3",
	)

	if err := f.shell(in).Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	out := f.out.String()
	assertContains(t, out,
		"Logged in as Admin",
		"Account Number: 1001",
		"Successfully deposited $50.00. New balance: $150.00",
		"Insufficient funds! Available balance: $150.00",
		"Balance: $150.00",
		"Initial Deposit",
		"Data exported to",
		"Logged out.",
		"Goodbye!",
	)

	raw, err := os.ReadFile(filepath.Join(f.dir, "bank_data.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if want := "1002\n1\n1001\nAlice\n150.00\n"; string(raw) != want {
		t.Errorf("ledger file = %q, want %q", raw, want)
	}
	if _, err := os.Stat(filepath.Join(f.dir, "bank_export.json")); err != nil {
		t.Errorf("export file: %v", err)
	}
}

func TestShell_GuestSeesReadOnlyMenu(t *testing.T) {
	f := newFixture(t, "")
	f.ledger.CreateAccount(context.Background(), "Alice", mustAmount(t, "12.5"))

	in := script("1", "guest", "guest123", "1", "1001", "0", "3")
	if err := f.shell(in).Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	out := f.out.String()
	assertContains(t, out, "GUEST MENU", "1. Check Balance", "3. List All Accounts", "Balance: $12.50")
	for _, hidden := range []string{"Deposit Money", "Withdraw Money", "Delete Account", "Unlock User"} {
		if strings.Contains(out, hidden) {
			t.Errorf("guest menu shows %q", hidden)
		}
	}
}

func TestShell_LoginLockout(t *testing.T) {
	f := newFixture(t, "")
	in := script(
		"1",
		"nobody",
		"guest", "a", "b", "c",
		"guest",
		"",
		"3",
	)
	if err := f.shell(in).Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	assertContains(t, f.out.String(),
		`User "nobody" not found`,
		"Attempt 1 of 3",
		"Attempt 2 of 3",
		"locked after 3 failed attempts",
		`Account "guest" is locked`,
		"Please choose a different user.",
	)
	info, _ := f.auth.LookupUser(context.Background(), "guest")
	if !info.Locked {
		t.Error("guest is not locked")
	}
}

func TestShell_AdminUnlocksUser(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	for i := 0; i < domain.MaxFailedAttempts; i++ {
		f.auth.Login(ctx, "user", "nope")
	}

	in := script("1", "admin", "admin123", "10", "user", "11", "0", "1", "user", "user123", "0", "3")
	if err := f.shell(in).Run(ctx); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	assertContains(t, f.out.String(), "User user unlocked.", "Logged in as User")
}

func TestShell_SelfRegistration(t *testing.T) {
	f := newFixture(t, "")
	in := script(
		"2", "dave", "pw", "",
		"2", "eve", "pw", "admin",
		"2", "dave", "pw", "guest",
		"3",
	)
	if err := f.shell(in).Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	assertContains(t, f.out.String(),
		"User dave registered as User.",
		"self-registration is limited",
		`Username "dave" already exists!`,
	)
	if _, err := f.auth.LookupUser(context.Background(), "eve"); err == nil {
		t.Error("eve was registered as admin through self-registration")
	}
}

func TestShell_InputEndSavesAndExits(t *testing.T) {
	f := newFixture(t, "")
	in := script("1", "user", "user123", "1", "Bob", "7")

	if err := f.shell(in).Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	assertContains(t, f.out.String(), "Goodbye!")

	raw, _ := os.ReadFile(filepath.Join(f.dir, "bank_data.txt"))
	if !strings.Contains(string(raw), "Bob\n7.00\n") {
		t.Errorf("ledger file = %q", raw)
	}
}

func TestShell_ContextCancelSaves(t *testing.T) {
	f := newFixture(t, "")
	pr, pw := io.Pipe()
	t.Cleanup(func() { pw.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.shell(pr).Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
	assertContains(t, f.out.String(), "Interrupted.", "Goodbye!")
}

func TestShell_ExitSurfacesSaveFailure(t *testing.T) {
	blocked := filepath.Join(t.TempDir(), "blocked")
	if err := os.Mkdir(blocked, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(blocked, "keep"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	f := newFixture(t, blocked)

	err := f.shell(script("3")).Run(context.Background())
	var unavailable *domain.ErrStorageUnavailable
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	assertContains(t, f.out.String(), "data could not be saved")
}

func mustAmount(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	a, err := domain.ParseAmount(s)
	if err != nil {
		t.Fatal(err)
	}
	return a
}
