package jobs

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/autohaus-erp/autohaus-erp/internal/ledger"
	"github.com/autohaus-erp/autohaus-erp/internal/observability"
)

// IntegrityScanner walks every cached stock pair and verifies the cached
// quantity against the transaction sum. Drift is reported, never repaired;
// a drifting pair means some code path wrote stock outside the ledger.
type IntegrityScanner struct {
	ledger  *ledger.Service
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewIntegrityScanner constructs the scanner. metrics may be nil.
func NewIntegrityScanner(led *ledger.Service, metrics *observability.Metrics, logger *slog.Logger) *IntegrityScanner {
	return &IntegrityScanner{ledger: led, metrics: metrics, logger: logger}
}

// Handle processes TaskStockIntegrity tasks.
func (s *IntegrityScanner) Handle(ctx context.Context, t *asynq.Task) error {
	refs, err := s.ledger.ListStockRefs(ctx)
	if err != nil {
		return err
	}
	var drifting atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, ref := range refs {
		g.Go(func() error {
			ok, err := s.ledger.VerifyIntegrity(gctx, ref.ItemID, ref.LocationID)
			if err != nil {
				return err
			}
			if !ok {
				drifting.Add(1)
				s.logger.Error("stock drift detected",
					slog.Int64("item_id", ref.ItemID),
					slog.Int64("location_id", ref.LocationID))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	s.metrics.SetStockDrift(int(drifting.Load()))
	s.logger.Info("stock integrity scan finished",
		slog.Int("pairs", len(refs)),
		slog.Int("drifting", int(drifting.Load())))
	return nil
}
