// Package sqlite is an alternative snapshot backend that keeps the ledger
// and the credential store in one SQLite database. Each save replaces the
// whole snapshot inside a single SQL transaction.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/boddenberg/bank-ledger/internal/domain"
	"github.com/boddenberg/bank-ledger/internal/infra/resilience"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

var tracer = otel.Tracer("sqlite")

const nextAccountKey = "next_account_number"

// DB wraps the SQLite connection.
type DB struct {
	db       *sql.DB
	breakers *resilience.Breakers
	cfg      resilience.Config
	logger   *zap.Logger
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string, breakers *resilience.Breakers, cfg resilience.Config, logger *zap.Logger) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// one writer; also keeps ":memory:" databases on a single connection
	conn.SetMaxOpenConns(1)

	d := &DB{db: conn, breakers: breakers, cfg: cfg, logger: logger}
	for _, stmt := range append([]string{`PRAGMA journal_mode=WAL`, `PRAGMA busy_timeout=5000`}, Migrations()...) {
		if _, err := conn.Exec(stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return d, nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Migrations returns the schema statements.
// Each string is a single SQL statement (SQLite executes one at a time).
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS ledger_meta (
			key   TEXT PRIMARY KEY,
			value INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS accounts (
			number   INTEGER PRIMARY KEY,
			position INTEGER NOT NULL,
			holder   TEXT NOT NULL,
			balance  TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			username      TEXT PRIMARY KEY,
			position      INTEGER NOT NULL,
			password_hash TEXT NOT NULL,
			role          INTEGER NOT NULL,
			locked        INTEGER NOT NULL DEFAULT 0
		)`,
	}
}

// --- Ledger (implements port.LedgerStore) ---

// LoadLedger reads the ledger snapshot. An empty database is an empty ledger.
func (d *DB) LoadLedger(ctx context.Context) (*domain.LedgerSnapshot, error) {
	ctx, span := tracer.Start(ctx, "SQLite.LoadLedger")
	defer span.End()

	snap := &domain.LedgerSnapshot{NextAccountNumber: domain.FirstAccountNumber}
	err := d.db.QueryRowContext(ctx, `SELECT value FROM ledger_meta WHERE key = ?`, nextAccountKey).
		Scan(&snap.NextAccountNumber)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrStorageUnavailable{Store: "ledger", Err: err}
	}

	rows, err := d.db.QueryContext(ctx, `SELECT number, holder, balance FROM accounts ORDER BY position`)
	if err != nil {
		return nil, &domain.ErrStorageUnavailable{Store: "ledger", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var (
			a   domain.AccountInfo
			raw string
		)
		if err := rows.Scan(&a.Number, &a.Holder, &raw); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		bal, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("account %d: invalid balance %q", a.Number, raw)
		}
		a.Balance = domain.RoundMoney(bal)
		snap.Accounts = append(snap.Accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.ErrStorageUnavailable{Store: "ledger", Err: err}
	}

	span.SetAttributes(attribute.Int("accounts", len(snap.Accounts)))
	return snap, nil
}

// SaveLedger replaces the stored ledger with snap.
func (d *DB) SaveLedger(ctx context.Context, snap *domain.LedgerSnapshot) error {
	ctx, span := tracer.Start(ctx, "SQLite.SaveLedger")
	defer span.End()
	span.SetAttributes(attribute.Int("accounts", len(snap.Accounts)))

	return d.write(ctx, "ledger", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ledger_meta (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			nextAccountKey, snap.NextAccountNumber); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM accounts`); err != nil {
			return err
		}
		for i, a := range snap.Accounts {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO accounts (number, position, holder, balance) VALUES (?, ?, ?, ?)`,
				a.Number, i, a.Holder, domain.FormatMoney(a.Balance)); err != nil {
				return err
			}
		}
		return nil
	})
}

// --- Credentials (implements port.CredentialStore) ---

// LoadCredentials reads the credential snapshot.
func (d *DB) LoadCredentials(ctx context.Context) (*domain.CredentialSnapshot, error) {
	ctx, span := tracer.Start(ctx, "SQLite.LoadCredentials")
	defer span.End()

	rows, err := d.db.QueryContext(ctx,
		`SELECT username, password_hash, role, locked FROM users ORDER BY position`)
	if err != nil {
		return nil, &domain.ErrStorageUnavailable{Store: "credentials", Err: err}
	}
	defer rows.Close()

	snap := &domain.CredentialSnapshot{}
	for rows.Next() {
		var (
			u      domain.CredentialRecord
			role   int
			locked int
		)
		if err := rows.Scan(&u.Username, &u.PasswordHash, &role, &locked); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.Role = domain.Role(role)
		if !u.Role.Valid() {
			return nil, fmt.Errorf("user %s: unknown role code %d", u.Username, role)
		}
		u.Locked = locked != 0
		snap.Users = append(snap.Users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.ErrStorageUnavailable{Store: "credentials", Err: err}
	}

	span.SetAttributes(attribute.Int("users", len(snap.Users)))
	return snap, nil
}

// SaveCredentials replaces the stored credentials with snap.
func (d *DB) SaveCredentials(ctx context.Context, snap *domain.CredentialSnapshot) error {
	ctx, span := tracer.Start(ctx, "SQLite.SaveCredentials")
	defer span.End()
	span.SetAttributes(attribute.Int("users", len(snap.Users)))

	return d.write(ctx, "credentials", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM users`); err != nil {
			return err
		}
		for i, u := range snap.Users {
			locked := 0
			if u.Locked {
				locked = 1
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO users (username, position, password_hash, role, locked) VALUES (?, ?, ?, ?, ?)`,
				u.Username, i, u.PasswordHash, int(u.Role), locked); err != nil {
				return err
			}
		}
		return nil
	})
}

// write runs fn in a transaction, retried through the circuit breaker.
func (d *DB) write(ctx context.Context, store string, fn func(tx *sql.Tx) error) error {
	err := resilience.Do(ctx, d.breakers.For(store), d.cfg, func() error {
		tx, err := d.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			tx.Rollback()
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		d.logger.Error("sqlite: snapshot write failed",
			zap.String("store", store),
			zap.Error(err),
		)
		return &domain.ErrStorageUnavailable{Store: store, Err: err}
	}
	return nil
}
