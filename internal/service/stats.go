package service

import (
	"context"
	"time"

	"github.com/boddenberg/bank-ledger/internal/domain"
	"github.com/boddenberg/bank-ledger/internal/infra/observability"
)

// StatsService builds the admin system overview.
type StatsService struct {
	ledger  *LedgerService
	auth    *AuthService
	metrics *observability.Metrics
	now     func() time.Time
}

// NewStatsService creates a stats service.
func NewStatsService(ledger *LedgerService, auth *AuthService, metrics *observability.Metrics) *StatsService {
	return &StatsService{ledger: ledger, auth: auth, metrics: metrics, now: time.Now}
}

// SystemStats aggregates both stores and the process activity counters.
func (s *StatsService) SystemStats(ctx context.Context) domain.SystemStats {
	ctx, span := ledgerTracer.Start(ctx, "StatsService.SystemStats")
	defer span.End()

	return domain.SystemStats{
		Ledger:      s.ledger.Stats(ctx),
		Credentials: s.auth.Stats(ctx),
		Activity:    s.metrics.ActivitySnapshot(),
		GeneratedAt: s.now(),
	}
}
