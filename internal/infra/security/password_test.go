package security_test

import (
	"strings"
	"testing"

	"github.com/boddenberg/bank-ledger/internal/infra/security"

	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher_HashAndVerify(t *testing.T) {
	h := security.NewBcryptHasher(bcrypt.MinCost)

	hash, err := h.Hash("secret")
	if err != nil {
		t.Fatalf("Hash() error: %v", err)
	}
	if hash == "secret" || !strings.HasPrefix(hash, "$2") {
		t.Fatalf("unexpected hash format: %q", hash)
	}
	if !h.Verify(hash, "secret") {
		t.Error("Verify rejected the right password")
	}
	if h.Verify(hash, "Secret") {
		t.Error("Verify accepted the wrong password")
	}
}

func TestLegacyHash_Deterministic(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", "0000000000001505"},
		{"a", "000000000002b606"},
	}
	for _, tt := range tests {
		if got := security.LegacyHash(tt.input); got != tt.want {
			t.Errorf("LegacyHash(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}
	if security.LegacyHash("admin123") != security.LegacyHash("admin123") {
		t.Error("LegacyHash is not deterministic")
	}
	if security.LegacyHash("admin123") == security.LegacyHash("admin124") {
		t.Error("distinct inputs produced the same hash")
	}
}

func TestBcryptHasher_VerifiesLegacyHashes(t *testing.T) {
	h := security.NewBcryptHasher(bcrypt.MinCost)
	legacy := security.LegacyHash("user123")

	if !security.IsLegacyHash(legacy) {
		t.Fatalf("IsLegacyHash(%q) = false", legacy)
	}
	if !h.Verify(legacy, "user123") {
		t.Error("legacy hash not verified")
	}
	if h.Verify(legacy, "user124") {
		t.Error("legacy hash accepted wrong password")
	}
}

func TestIsLegacyHash(t *testing.T) {
	for _, s := range []string{"", "1505", "000000000000150G", "000000000000150A", "$2a$04$abcdefghijklmnopqrstuv"} {
		if security.IsLegacyHash(s) {
			t.Errorf("IsLegacyHash(%q) = true", s)
		}
	}
}

func TestNewBcryptHasher_ClampsCost(t *testing.T) {
	h := security.NewBcryptHasher(0)
	hash, err := h.Hash("pw")
	if err != nil {
		t.Fatal(err)
	}
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		t.Fatal(err)
	}
	if cost != security.DefaultCost {
		t.Errorf("cost = %d, want %d", cost, security.DefaultCost)
	}
}

func TestBcryptHasher_NeedsRehash(t *testing.T) {
	h := security.NewBcryptHasher(bcrypt.MinCost)
	hash, _ := h.Hash("pw")

	if h.NeedsRehash(hash) {
		t.Error("bcrypt hash reported as needing rehash")
	}
	if !h.NeedsRehash(security.LegacyHash("pw")) {
		t.Error("legacy hash not reported as needing rehash")
	}
}
