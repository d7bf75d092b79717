package jobs

import (
	"context"
	"errors"

	"dairy-credit-ledger/internal/domain"
	"dairy-credit-ledger/internal/logger"
)

// AuditLedgers replays every farmer's ledger and reports balances that the
// log no longer reconstructs.
func (jr *JobRunner) AuditLedgers() {
	jr.runWithRecovery("AuditLedgers", func() {
		mismatched, err := jr.auditLedgers(context.Background())
		if err != nil {
			logger.Error("Failed to audit ledgers", "error", err)
			return
		}
		if len(mismatched) > 0 {
			logger.Error("Ledger audit found mismatched balances", "farmer_ids", mismatched)
			return
		}
		logger.Info("Ledger audit found no mismatches")
	})
}

func (jr *JobRunner) auditLedgers(ctx context.Context) ([]int64, error) {
	farmerIDs, err := jr.store.Repositories().Profiles.ListFarmerIDs(ctx)
	if err != nil {
		return nil, err
	}

	var mismatched []int64
	for _, farmerID := range farmerIDs {
		summary, err := jr.services.Ledger.VerifyLedger(ctx, farmerID)
		if errors.Is(err, domain.ErrLedgerMismatch) {
			logger.WithFarmer(farmerID).Error("Ledger mismatch",
				"stored_balance", summary.CurrentCreditBalance,
				"replayed_balance", summary.ReplayedBalance,
				"error", err)
			mismatched = append(mismatched, farmerID)
			continue
		}
		if err != nil {
			logger.WithFarmer(farmerID).Error("Failed to verify ledger", "error", err)
			continue
		}
	}
	return mismatched, nil
}
