package service

import (
	"context"
	"fmt"

	"dairy-credit-ledger/internal/domain"
	"dairy-credit-ledger/internal/logger"
	"dairy-credit-ledger/internal/repository"
)

type ledgerService struct {
	store repository.Store
}

func NewLedgerService(store repository.Store) LedgerService {
	return &ledgerService{store: store}
}

func (s *ledgerService) GetProfile(ctx context.Context, farmerID int64) (*domain.FarmerCreditProfile, error) {
	return s.store.Repositories().Profiles.GetByFarmer(ctx, farmerID)
}

func (s *ledgerService) GetTransactions(ctx context.Context, farmerID int64, page, pageSize int32) ([]domain.CreditTransaction, int32, error) {
	return s.store.Repositories().Transactions.ListByFarmer(ctx, farmerID, page, pageSize)
}

// VerifyLedger replays the farmer's log and compares the result with the
// stored balance. A mismatch is reported in the summary and as
// domain.ErrLedgerMismatch.
func (s *ledgerService) VerifyLedger(ctx context.Context, farmerID int64) (*domain.LedgerSummary, error) {
	logger.EnterMethod("ledgerService.VerifyLedger", "farmerID", farmerID)

	repos := s.store.Repositories()
	profile, err := repos.Profiles.GetByFarmer(ctx, farmerID)
	if err != nil {
		logger.ExitMethodWithError("ledgerService.VerifyLedger", err, "farmerID", farmerID)
		return nil, err
	}
	history, err := repos.Transactions.History(ctx, farmerID)
	if err != nil {
		logger.ExitMethodWithError("ledgerService.VerifyLedger", err, "farmerID", farmerID)
		return nil, err
	}

	summary := &domain.LedgerSummary{
		FarmerID:             farmerID,
		CurrentCreditBalance: profile.CurrentCreditBalance,
		TransactionCount:     len(history),
	}

	replayed, replayErr := domain.ReplayBalance(history)
	summary.ReplayedBalance = replayed
	summary.Consistent = replayErr == nil && replayed.Equal(profile.CurrentCreditBalance) && profile.BalanceWithinBounds()
	if summary.Consistent {
		logger.ExitMethod("ledgerService.VerifyLedger", "farmerID", farmerID, "transactions", len(history))
		return summary, nil
	}

	if replayErr != nil {
		err = fmt.Errorf("%w: farmer %d: %v", domain.ErrLedgerMismatch, farmerID, replayErr)
	} else {
		err = fmt.Errorf("%w: farmer %d: stored balance %s, replayed %s",
			domain.ErrLedgerMismatch, farmerID, profile.CurrentCreditBalance, replayed)
	}
	logger.ExitMethodWithError("ledgerService.VerifyLedger", err, "farmerID", farmerID)
	return summary, err
}
