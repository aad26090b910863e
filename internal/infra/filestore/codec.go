// Package filestore persists ledger and credential snapshots as
// line-oriented text files.
//
// Ledger file:
//
//	<next account number>
//	<account count>
//	<account number>      ┐
//	<holder name>         │ per account
//	<balance, 2 places>   ┘
//
// Users file:
//
//	<user count>
//	<username>            ┐
//	<password hash>       │ per user
//	<role code 0|1|2>     │
//	<locked 0|1>          ┘
package filestore

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/boddenberg/bank-ledger/internal/domain"

	"github.com/shopspring/decimal"
)

// EncodeLedger writes snap in the ledger file format.
func EncodeLedger(w io.Writer, snap *domain.LedgerSnapshot) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d\n%d\n", snap.NextAccountNumber, len(snap.Accounts))
	for _, a := range snap.Accounts {
		if err := checkLine("holder name", a.Holder); err != nil {
			return err
		}
		fmt.Fprintf(bw, "%d\n%s\n%s\n", a.Number, a.Holder, domain.FormatMoney(a.Balance))
	}
	return bw.Flush()
}

// DecodeLedger reads a ledger file. An empty input is an empty ledger.
func DecodeLedger(r io.Reader) (*domain.LedgerSnapshot, error) {
	lr := newLineReader(r)
	snap := &domain.LedgerSnapshot{NextAccountNumber: domain.FirstAccountNumber}

	first, ok, err := lr.next()
	if err != nil {
		return nil, err
	}
	if !ok || strings.TrimSpace(first) == "" {
		return snap, nil
	}
	if snap.NextAccountNumber, err = parseInt("next account number", first, lr.n); err != nil {
		return nil, err
	}
	count, err := lr.integer("account count")
	if err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, fmt.Errorf("line %d: negative account count %d", lr.n, count)
	}

	snap.Accounts = make([]domain.AccountInfo, 0, count)
	for i := 0; i < count; i++ {
		number, err := lr.integer("account number")
		if err != nil {
			return nil, err
		}
		holder, err := lr.text("holder name")
		if err != nil {
			return nil, err
		}
		raw, err := lr.text("balance")
		if err != nil {
			return nil, err
		}
		balance, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid balance %q", lr.n, raw)
		}
		snap.Accounts = append(snap.Accounts, domain.AccountInfo{
			Number:  number,
			Holder:  holder,
			Balance: domain.RoundMoney(balance),
		})
	}
	return snap, nil
}

// EncodeCredentials writes snap in the users file format.
func EncodeCredentials(w io.Writer, snap *domain.CredentialSnapshot) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d\n", len(snap.Users))
	for _, u := range snap.Users {
		if err := checkLine("username", u.Username); err != nil {
			return err
		}
		if err := checkLine("password hash", u.PasswordHash); err != nil {
			return err
		}
		locked := 0
		if u.Locked {
			locked = 1
		}
		fmt.Fprintf(bw, "%s\n%s\n%d\n%d\n", u.Username, u.PasswordHash, int(u.Role), locked)
	}
	return bw.Flush()
}

// DecodeCredentials reads a users file. An empty input is an empty store.
func DecodeCredentials(r io.Reader) (*domain.CredentialSnapshot, error) {
	lr := newLineReader(r)
	snap := &domain.CredentialSnapshot{}

	first, ok, err := lr.next()
	if err != nil {
		return nil, err
	}
	if !ok || strings.TrimSpace(first) == "" {
		return snap, nil
	}
	count, err := parseInt("user count", first, lr.n)
	if err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, fmt.Errorf("line %d: negative user count %d", lr.n, count)
	}

	snap.Users = make([]domain.CredentialRecord, 0, count)
	for i := 0; i < count; i++ {
		username, err := lr.text("username")
		if err != nil {
			return nil, err
		}
		hash, err := lr.text("password hash")
		if err != nil {
			return nil, err
		}
		code, err := lr.integer("role")
		if err != nil {
			return nil, err
		}
		role := domain.Role(code)
		if !role.Valid() {
			return nil, fmt.Errorf("line %d: unknown role code %d", lr.n, code)
		}
		locked, err := lr.integer("locked flag")
		if err != nil {
			return nil, err
		}
		snap.Users = append(snap.Users, domain.CredentialRecord{
			Username:     username,
			PasswordHash: strings.TrimSpace(hash),
			Role:         role,
			Locked:       locked != 0,
		})
	}
	return snap, nil
}

// ============================================================
// Internal helpers
// ============================================================

// lineReader reads newline-terminated fields of any length.
type lineReader struct {
	r *bufio.Reader
	n int
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{r: bufio.NewReader(r)}
}

func (lr *lineReader) next() (string, bool, error) {
	line, err := lr.r.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", false, err
	}
	if line == "" {
		return "", false, nil
	}
	lr.n++
	return strings.TrimRight(line, "\r\n"), true, nil
}

func (lr *lineReader) text(field string) (string, error) {
	line, ok, err := lr.next()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("line %d: unexpected end of file, want %s", lr.n+1, field)
	}
	return line, nil
}

func (lr *lineReader) integer(field string) (int, error) {
	line, err := lr.text(field)
	if err != nil {
		return 0, err
	}
	return parseInt(field, line, lr.n)
}

func parseInt(field, s string, line int) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("line %d: invalid %s %q", line, field, s)
	}
	return v, nil
}

func checkLine(field, s string) error {
	if strings.ContainsAny(s, "\r\n") {
		return &domain.ErrValidation{Field: field, Message: "must not contain line breaks"}
	}
	return nil
}
