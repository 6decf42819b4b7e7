package cache

import (
	"context"
	"time"

	"gympro/backend/internal/domain"
)

// ReportCache holds rendered Z-Reports at the HTTP edge. The accounting core
// never reads it; a stale entry only delays a report refresh, never corrupts
// the ledger.
type ReportCache interface {
	Get(ctx context.Context, key string) (*domain.ZReport, bool, error)
	Set(ctx context.Context, key string, value *domain.ZReport, ttl time.Duration) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) (*domain.ZReport, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ *domain.ZReport, _ time.Duration) error {
	return nil
}
