package jobs

import (
	"context"

	"dairy-credit-ledger/internal/domain"
	"dairy-credit-ledger/internal/logger"
)

// BatchRunSummary counts the outcome of one ProcessGeneratedBatches run
type BatchRunSummary struct {
	Processed      int
	PartialFailure int
	Failed         int
}

// ProcessGeneratedBatches settles pending payment batches. Interrupted
// batches are always resumed with the settlement they were started with;
// freshly generated ones are credit-settled only when automatic processing
// is enabled.
func (jr *JobRunner) ProcessGeneratedBatches() {
	jr.runWithRecovery("ProcessGeneratedBatches", func() {
		summary, err := jr.processGeneratedBatches(context.Background())
		if err != nil {
			logger.Error("Failed to list payment batches", "error", err)
			return
		}
		logger.Info("Processed payment batches",
			"processed", summary.Processed,
			"partial_failure", summary.PartialFailure,
			"failed", summary.Failed)
	})
}

func (jr *JobRunner) processGeneratedBatches(ctx context.Context) (BatchRunSummary, error) {
	var summary BatchRunSummary

	statuses := []domain.BatchStatus{domain.BatchStatusProcessing}
	if jr.config.Settlement.AutoProcessBatches {
		statuses = append(statuses, domain.BatchStatusGenerated)
	}

	batches, err := jr.store.Repositories().Payments.ListBatchesByStatus(ctx, statuses...)
	if err != nil {
		return summary, err
	}

	for _, batch := range batches {
		result, err := jr.settleBatch(ctx, &batch)
		if err != nil {
			logger.Error("Failed to process payment batch", "batch_id", batch.ID, "status", batch.Status, "kind", batch.Kind, "error", err)
			summary.Failed++
			continue
		}
		summary.Processed++
		if result.PartialFailure() {
			summary.PartialFailure++
			logger.Warn("Payment batch completed with failures",
				"batch_id", batch.ID,
				"failures", len(result.Failures))
		}
	}
	return summary, nil
}

func (jr *JobRunner) settleBatch(ctx context.Context, batch *domain.PaymentBatch) (*domain.BatchResult, error) {
	if batch.Status == domain.BatchStatusProcessing && batch.Kind == domain.BatchKindCollectorFee {
		return jr.services.Settlement.BatchDeductCollectorFees(ctx, batch.ID, batch.FeePerLiter.Decimal)
	}
	return jr.services.Settlement.ProcessPaymentBatch(ctx, batch.ID)
}
