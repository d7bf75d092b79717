package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"dairy-credit-ledger/internal/config"
	"dairy-credit-ledger/internal/domain"
	"dairy-credit-ledger/internal/logger"
	"dairy-credit-ledger/internal/repository"
)

type creditService struct {
	store  repository.Store
	policy creditPolicy
}

func NewCreditService(store repository.Store, caps config.TierCaps) CreditService {
	return &creditService{store: store, policy: creditPolicy{caps: caps}}
}

// UseCreditForPurchase draws credit for an input purchase. The balance change,
// the ledger entry and the stock decrement commit together or not at all.
func (s *creditService) UseCreditForPurchase(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error) {
	logger.EnterMethod("creditService.UseCreditForPurchase", "farmerID", req.FarmerID, "productID", req.ProductID, "quantity", req.Quantity)

	if req.Quantity <= 0 {
		err := domain.NewValidationError(domain.CodeInvalidInput, "quantity must be positive, got %d", req.Quantity)
		logger.ExitMethodWithError("creditService.UseCreditForPurchase", err, "farmerID", req.FarmerID)
		return nil, err
	}

	var result *PurchaseResult
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		profile, err := repos.Profiles.GetByFarmerForUpdate(ctx, req.FarmerID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NewValidationError(domain.CodeNotEligible, "Farmer %d has no credit profile", req.FarmerID)
		}
		if err != nil {
			return err
		}
		if profile.IsFrozen {
			return domain.NewValidationError(domain.CodeNotEligible, "Credit for farmer %d is frozen", req.FarmerID)
		}

		product, err := repos.Products.GetByIDForUpdate(ctx, req.ProductID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NewValidationError(domain.CodeProductNotEligible, "Product %d not found", req.ProductID)
		}
		if err != nil {
			return err
		}
		if !product.IsCreditEligible {
			return domain.NewValidationError(domain.CodeProductNotEligible, "Product %q is not eligible for credit purchase", product.Name)
		}

		amount := product.UnitPrice.Mul(decimal.NewFromInt32(req.Quantity))

		eligibility, err := s.policy.evaluate(ctx, repos.Collections, req.FarmerID, profile)
		if err != nil {
			return err
		}
		if amount.GreaterThan(eligibility.AvailableCredit) {
			return domain.NewValidationError(domain.CodeInsufficientCredit,
				"Insufficient credit balance: requested %s, available %s", amount.StringFixed(2), eligibility.AvailableCredit.StringFixed(2))
		}
		if product.CurrentStock < req.Quantity {
			return domain.NewValidationError(domain.CodeInsufficientStock,
				"Insufficient stock for %q: requested %d, available %d", product.Name, req.Quantity, product.CurrentStock)
		}

		before := profile.CurrentCreditBalance
		tx := domain.NewCreditTransaction(req.FarmerID, domain.TransactionTypeCreditUsed, amount, before,
			domain.ReferenceTypePurchase, strconv.FormatInt(req.ProductID, 10),
			fmt.Sprintf("Credit purchase: %d x %s", req.Quantity, product.Name))
		tx.ActorID = req.ActorID

		profile.CurrentCreditBalance = tx.BalanceAfter
		profile.TotalCreditUsed = profile.TotalCreditUsed.Add(amount)
		profile.PendingDeductions = profile.PendingDeductions.Add(amount)
		profile.UpdatedAt = time.Now().UTC()

		if err := repos.Profiles.Update(ctx, profile, before); err != nil {
			return err
		}
		if err := repos.Transactions.Append(ctx, tx); err != nil {
			return err
		}
		if err := repos.Products.DecrementStock(ctx, req.ProductID, req.Quantity); err != nil {
			return err
		}

		result = &PurchaseResult{
			TransactionID: tx.ID,
			FarmerID:      req.FarmerID,
			ProductID:     req.ProductID,
			Quantity:      req.Quantity,
			Amount:        amount,
			BalanceBefore: before,
			BalanceAfter:  tx.BalanceAfter,
		}
		return nil
	})
	if err != nil {
		logger.ExitMethodWithError("creditService.UseCreditForPurchase", err, "farmerID", req.FarmerID, "productID", req.ProductID)
		return nil, err
	}

	logger.ExitMethod("creditService.UseCreditForPurchase", "farmerID", req.FarmerID,
		"transactionID", result.TransactionID, "amount", result.Amount, "balanceAfter", result.BalanceAfter)
	return result, nil
}

// GrantCredit creates or re-rates a profile. The ceiling becomes the current
// credit limit and the balance is reset to the ceiling minus what the farmer
// still owes. The balance change is recorded as a grant or an adjustment.
func (s *creditService) GrantCredit(ctx context.Context, req GrantRequest) (*domain.FarmerCreditProfile, error) {
	logger.EnterMethod("creditService.GrantCredit", "farmerID", req.FarmerID, "tier", req.Tier, "limitPercentage", req.LimitPercentage)

	if !req.Tier.Valid() {
		err := domain.NewValidationError(domain.CodeInvalidInput, "unknown credit tier %q", req.Tier)
		logger.ExitMethodWithError("creditService.GrantCredit", err, "farmerID", req.FarmerID)
		return nil, err
	}
	if !req.LimitPercentage.IsPositive() || req.LimitPercentage.GreaterThan(hundred) {
		err := domain.NewValidationError(domain.CodeInvalidInput, "limit percentage must be in (0, 100], got %s", req.LimitPercentage)
		logger.ExitMethodWithError("creditService.GrantCredit", err, "farmerID", req.FarmerID)
		return nil, err
	}

	var granted *domain.FarmerCreditProfile
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		pending, err := repos.Collections.SumPending(ctx, req.FarmerID)
		if err != nil {
			return err
		}
		limit := s.policy.creditLimit(pending, req.LimitPercentage, req.Tier)
		now := time.Now().UTC()

		profile, err := repos.Profiles.GetByFarmerForUpdate(ctx, req.FarmerID)
		if errors.Is(err, domain.ErrNotFound) {
			if !limit.IsPositive() {
				return domain.NewValidationError(domain.CodeNotEligible, "Farmer %d has no pending receivables to secure credit", req.FarmerID)
			}
			profile = &domain.FarmerCreditProfile{
				FarmerID:             req.FarmerID,
				CreditTier:           req.Tier,
				LimitPercentage:      req.LimitPercentage,
				MaxCreditAmount:      limit,
				CurrentCreditBalance: limit,
				TotalCreditUsed:      decimal.Zero,
				PendingDeductions:    decimal.Zero,
				CreatedAt:            now,
				UpdatedAt:            now,
			}
			if err := repos.Profiles.Create(ctx, profile); err != nil {
				return err
			}
			tx := domain.NewCreditTransaction(req.FarmerID, domain.TransactionTypeCreditGranted, limit, decimal.Zero,
				domain.ReferenceTypeManual, string(req.Tier), fmt.Sprintf("Initial %s credit grant", req.Tier))
			tx.ActorID = req.ActorID
			granted = profile
			return repos.Transactions.Append(ctx, tx)
		}
		if err != nil {
			return err
		}

		before := profile.CurrentCreditBalance
		after := clamp(limit.Sub(profile.PendingDeductions), decimal.Zero, limit)
		delta := after.Sub(before)

		profile.CreditTier = req.Tier
		profile.LimitPercentage = req.LimitPercentage
		profile.MaxCreditAmount = limit
		profile.CurrentCreditBalance = after
		profile.UpdatedAt = now
		if err := repos.Profiles.Update(ctx, profile, before); err != nil {
			return err
		}
		granted = profile

		var tx *domain.CreditTransaction
		switch {
		case delta.IsPositive():
			tx = domain.NewCreditTransaction(req.FarmerID, domain.TransactionTypeCreditGranted, delta, before,
				domain.ReferenceTypeManual, string(req.Tier), fmt.Sprintf("Credit re-rated to %s tier", req.Tier))
		case delta.IsNegative():
			tx = domain.NewAdjustment(req.FarmerID, delta, before, string(req.Tier),
				fmt.Sprintf("Credit ceiling lowered to %s", limit.StringFixed(2)))
		default:
			return nil
		}
		tx.ActorID = req.ActorID
		return repos.Transactions.Append(ctx, tx)
	})
	if err != nil {
		logger.ExitMethodWithError("creditService.GrantCredit", err, "farmerID", req.FarmerID)
		return nil, err
	}

	logger.ExitMethod("creditService.GrantCredit", "farmerID", req.FarmerID,
		"maxCredit", granted.MaxCreditAmount, "balance", granted.CurrentCreditBalance)
	return granted, nil
}

// AdjustCredit applies a manual correction. The resulting balance must stay
// within [0, max_credit_amount].
func (s *creditService) AdjustCredit(ctx context.Context, farmerID int64, delta decimal.Decimal, reason string, actorID *int64) (*domain.CreditTransaction, error) {
	logger.EnterMethod("creditService.AdjustCredit", "farmerID", farmerID, "delta", delta)

	if delta.IsZero() {
		err := domain.NewValidationError(domain.CodeInvalidInput, "adjustment must be non-zero")
		logger.ExitMethodWithError("creditService.AdjustCredit", err, "farmerID", farmerID)
		return nil, err
	}
	if reason == "" {
		err := domain.NewValidationError(domain.CodeInvalidInput, "adjustment reason is required")
		logger.ExitMethodWithError("creditService.AdjustCredit", err, "farmerID", farmerID)
		return nil, err
	}

	var tx *domain.CreditTransaction
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		profile, err := repos.Profiles.GetByFarmerForUpdate(ctx, farmerID)
		if err != nil {
			return err
		}

		before := profile.CurrentCreditBalance
		tx = domain.NewAdjustment(farmerID, delta, before, "", reason)
		tx.ActorID = actorID
		if tx.BalanceAfter.IsNegative() || tx.BalanceAfter.GreaterThan(profile.MaxCreditAmount) {
			return domain.NewValidationError(domain.CodeInvalidInput,
				"adjustment would move balance to %s, outside [0, %s]", tx.BalanceAfter.StringFixed(2), profile.MaxCreditAmount.StringFixed(2))
		}

		profile.CurrentCreditBalance = tx.BalanceAfter
		profile.UpdatedAt = time.Now().UTC()
		if err := repos.Profiles.Update(ctx, profile, before); err != nil {
			return err
		}
		return repos.Transactions.Append(ctx, tx)
	})
	if err != nil {
		logger.ExitMethodWithError("creditService.AdjustCredit", err, "farmerID", farmerID)
		return nil, err
	}

	logger.ExitMethod("creditService.AdjustCredit", "farmerID", farmerID, "transactionID", tx.ID, "balanceAfter", tx.BalanceAfter)
	return tx, nil
}

// SetFrozen blocks or re-enables new draws. Repayments continue either way.
func (s *creditService) SetFrozen(ctx context.Context, farmerID int64, frozen bool) (*domain.FarmerCreditProfile, error) {
	logger.EnterMethod("creditService.SetFrozen", "farmerID", farmerID, "frozen", frozen)

	var profile *domain.FarmerCreditProfile
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		p, err := repos.Profiles.GetByFarmerForUpdate(ctx, farmerID)
		if err != nil {
			return err
		}
		p.IsFrozen = frozen
		p.UpdatedAt = time.Now().UTC()
		if err := repos.Profiles.Update(ctx, p, p.CurrentCreditBalance); err != nil {
			return err
		}
		profile = p
		return nil
	})
	if err != nil {
		logger.ExitMethodWithError("creditService.SetFrozen", err, "farmerID", farmerID)
		return nil, err
	}

	logger.ExitMethod("creditService.SetFrozen", "farmerID", farmerID, "frozen", frozen)
	return profile, nil
}
