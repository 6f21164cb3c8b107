package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/stockledger/internal/ledger"
	"github.com/odyssey-erp/stockledger/internal/observability"
)

// Verifier reports ledger rows that disagree with their stock card.
type Verifier interface {
	Verify(ctx context.Context) ([]ledger.Discrepancy, error)
}

// IntegrityJob logs every ledger discrepancy it finds.
type IntegrityJob struct {
	verifier Verifier
	tracker  *observability.Tracker
	logger   *slog.Logger
}

// NewIntegrityJob constructs the integrity handler.
func NewIntegrityJob(verifier Verifier, tracker *observability.Tracker, logger *slog.Logger) *IntegrityJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &IntegrityJob{verifier: verifier, tracker: tracker, logger: logger}
}

// Handle processes TaskLedgerIntegrity tasks. Discrepancies are reported, not retried.
func (j *IntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload IntegrityPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	start := time.Now()
	run := j.tracker.Track(TaskLedgerIntegrity)
	found, err := j.verifier.Verify(ctx)
	if err != nil {
		j.logger.Error("ledger integrity check failed", slog.Any("error", err))
		return run.End(fmt.Errorf("jobs: ledger integrity: %w", err))
	}
	for _, d := range found {
		j.logger.Warn("ledger discrepancy",
			slog.Int64("location_id", d.LocationID),
			slog.Int64("item_id", d.ItemID),
			slog.String("on_hand", d.OnHand.String()),
			slog.String("card_total", d.CardTotal.String()),
		)
	}
	j.logger.Info("ledger integrity check completed",
		slog.Int("discrepancies", len(found)),
		slog.Duration("duration", time.Since(start)),
	)
	return run.End(nil)
}
