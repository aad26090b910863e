package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/boddenberg/bank-ledger/internal/domain"
	"github.com/boddenberg/bank-ledger/internal/infra/filestore"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Exporter writes the one-way JSON export of the ledger.
type Exporter struct {
	ledger *LedgerService
	logger *zap.Logger
}

// NewExporter creates an exporter over ledger.
func NewExporter(ledger *LedgerService, logger *zap.Logger) *Exporter {
	return &Exporter{ledger: ledger, logger: logger}
}

type exportDocument struct {
	BankingSystem exportLedger `json:"bankingSystem"`
}

type exportLedger struct {
	NextAccountNumber int             `json:"nextAccountNumber"`
	Accounts          []exportAccount `json:"accounts"`
}

type exportAccount struct {
	AccountNumber int         `json:"accountNumber"`
	AccountHolder string      `json:"accountHolder"`
	Balance       exportMoney `json:"balance"`
}

// exportMoney renders as a JSON number with exactly two decimals.
type exportMoney decimal.Decimal

func (m exportMoney) MarshalJSON() ([]byte, error) {
	return []byte(domain.FormatMoney(decimal.Decimal(m))), nil
}

// Export writes the current ledger snapshot as indented JSON to w.
func (e *Exporter) Export(ctx context.Context, w io.Writer) error {
	ctx, span := ledgerTracer.Start(ctx, "Exporter.Export")
	defer span.End()

	snap := e.ledger.Snapshot(ctx)
	doc := exportDocument{BankingSystem: exportLedger{
		NextAccountNumber: snap.NextAccountNumber,
		Accounts:          make([]exportAccount, 0, len(snap.Accounts)),
	}}
	for _, a := range snap.Accounts {
		doc.BankingSystem.Accounts = append(doc.BankingSystem.Accounts, exportAccount{
			AccountNumber: a.Number,
			AccountHolder: a.Holder,
			Balance:       exportMoney(a.Balance),
		})
	}
	span.SetAttributes(attribute.Int("accounts", len(snap.Accounts)))

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	return nil
}

// ExportFile writes the export to path, replacing it atomically.
func (e *Exporter) ExportFile(ctx context.Context, path string) error {
	var buf bytes.Buffer
	if err := e.Export(ctx, &buf); err != nil {
		return err
	}
	if err := filestore.WriteFileAtomic(path, buf.Bytes()); err != nil {
		e.logger.Error("export failed", zap.String("path", path), zap.Error(err))
		return &domain.ErrStorageUnavailable{Store: "export", Err: err}
	}
	e.logger.Info("ledger exported", zap.String("path", path), zap.Int("bytes", buf.Len()))
	return nil
}
