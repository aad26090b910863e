package filestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/boddenberg/bank-ledger/internal/domain"
	"github.com/boddenberg/bank-ledger/internal/infra/resilience"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("filestore")

// Store names used in errors, logs and metrics.
const (
	LedgerStoreName      = "ledger"
	CredentialsStoreName = "credentials"
)

// Store keeps the ledger and the credential store in two text files.
// Each save fully rewrites its file through a temp file and a rename, so a
// crash leaves either the old or the new snapshot, never a torn one. The
// two files are written independently.
type Store struct {
	ledgerPath string
	usersPath  string
	breakers   *resilience.Breakers
	cfg        resilience.Config
	logger     *zap.Logger
}

// NewStore creates a file-backed store.
func NewStore(ledgerPath, usersPath string, breakers *resilience.Breakers, cfg resilience.Config, logger *zap.Logger) *Store {
	return &Store{
		ledgerPath: ledgerPath,
		usersPath:  usersPath,
		breakers:   breakers,
		cfg:        cfg,
		logger:     logger,
	}
}

// --- Ledger (implements port.LedgerStore) ---

// LoadLedger reads the ledger file. A missing file is an empty ledger.
func (s *Store) LoadLedger(ctx context.Context) (*domain.LedgerSnapshot, error) {
	_, span := tracer.Start(ctx, "FileStore.LoadLedger")
	defer span.End()

	data, err := s.read(s.ledgerPath)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Info("ledger file not found, starting empty", zap.String("path", s.ledgerPath))
		return &domain.LedgerSnapshot{NextAccountNumber: domain.FirstAccountNumber}, nil
	}
	if err != nil {
		return nil, &domain.ErrStorageUnavailable{Store: LedgerStoreName, Err: err}
	}

	snap, err := DecodeLedger(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse ledger file %s: %w", s.ledgerPath, err)
	}
	span.SetAttributes(attribute.Int("accounts", len(snap.Accounts)))
	return snap, nil
}

// SaveLedger rewrites the ledger file with snap.
func (s *Store) SaveLedger(ctx context.Context, snap *domain.LedgerSnapshot) error {
	ctx, span := tracer.Start(ctx, "FileStore.SaveLedger")
	defer span.End()
	span.SetAttributes(attribute.Int("accounts", len(snap.Accounts)))

	var buf bytes.Buffer
	if err := EncodeLedger(&buf, snap); err != nil {
		return err
	}
	return s.write(ctx, LedgerStoreName, s.ledgerPath, buf.Bytes())
}

// --- Credentials (implements port.CredentialStore) ---

// LoadCredentials reads the users file. A missing file is an empty store.
func (s *Store) LoadCredentials(ctx context.Context) (*domain.CredentialSnapshot, error) {
	_, span := tracer.Start(ctx, "FileStore.LoadCredentials")
	defer span.End()

	data, err := s.read(s.usersPath)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Info("users file not found, starting empty", zap.String("path", s.usersPath))
		return &domain.CredentialSnapshot{}, nil
	}
	if err != nil {
		return nil, &domain.ErrStorageUnavailable{Store: CredentialsStoreName, Err: err}
	}

	snap, err := DecodeCredentials(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse users file %s: %w", s.usersPath, err)
	}
	span.SetAttributes(attribute.Int("users", len(snap.Users)))
	return snap, nil
}

// SaveCredentials rewrites the users file with snap.
func (s *Store) SaveCredentials(ctx context.Context, snap *domain.CredentialSnapshot) error {
	ctx, span := tracer.Start(ctx, "FileStore.SaveCredentials")
	defer span.End()
	span.SetAttributes(attribute.Int("users", len(snap.Users)))

	var buf bytes.Buffer
	if err := EncodeCredentials(&buf, snap); err != nil {
		return err
	}
	return s.write(ctx, CredentialsStoreName, s.usersPath, buf.Bytes())
}

// ============================================================
// Internal helpers
// ============================================================

func (s *Store) read(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *Store) write(ctx context.Context, store, path string, data []byte) error {
	err := resilience.Do(ctx, s.breakers.For(store), s.cfg, func() error {
		return WriteFileAtomic(path, data)
	})
	if err != nil {
		s.logger.Error("filestore: snapshot write failed",
			zap.String("store", store),
			zap.String("path", path),
			zap.Error(err),
		)
		return &domain.ErrStorageUnavailable{Store: store, Err: err}
	}

	s.logger.Debug("filestore: snapshot written",
		zap.String("store", store),
		zap.String("path", path),
		zap.Int("bytes", len(data)),
	)
	return nil
}

// WriteFileAtomic writes data to a temp file next to path and renames it
// over path. Parent directories are created as needed.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
