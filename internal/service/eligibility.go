package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"dairy-credit-ledger/internal/config"
	"dairy-credit-ledger/internal/domain"
	"dairy-credit-ledger/internal/logger"
	"dairy-credit-ledger/internal/repository"
)

var hundred = decimal.NewFromInt(100)

// creditPolicy derives limits from pending receivables. It is shared by every
// service that needs eligibility so the computation runs against whichever
// repositories (live or transactional) the caller holds.
type creditPolicy struct {
	caps config.TierCaps
}

// evaluate computes eligibility for profile, which may be nil when the farmer
// has never been granted credit.
func (p creditPolicy) evaluate(ctx context.Context, collections repository.CollectionRepository, farmerID int64, profile *domain.FarmerCreditProfile) (*domain.Eligibility, error) {
	pending, err := collections.SumPending(ctx, farmerID)
	if err != nil {
		return nil, err
	}

	result := &domain.Eligibility{
		FarmerID:        farmerID,
		CreditLimit:     decimal.Zero,
		AvailableCredit: decimal.Zero,
		PendingPayments: pending,
	}
	if profile == nil {
		return result, nil
	}

	result.CreditLimit = p.creditLimit(pending, profile.LimitPercentage, profile.CreditTier)
	result.IsEligible = !profile.IsFrozen && result.CreditLimit.IsPositive()
	result.AvailableCredit = clamp(profile.CurrentCreditBalance, decimal.Zero, result.CreditLimit)
	return result, nil
}

func (p creditPolicy) creditLimit(pending, limitPercentage decimal.Decimal, tier domain.CreditTier) decimal.Decimal {
	limit := pending.Mul(limitPercentage).Div(hundred).Round(2)
	return decimal.Min(limit, p.caps.Cap(tier))
}

// repaymentBudget is how much owed credit can be settled against payouts
// right now: never more than the available credit, the amount actually owed,
// or the headroom below the credit ceiling.
func repaymentBudget(eligibility *domain.Eligibility, profile *domain.FarmerCreditProfile) decimal.Decimal {
	if profile == nil {
		return decimal.Zero
	}
	room := profile.MaxCreditAmount.Sub(profile.CurrentCreditBalance)
	budget := decimal.Min(eligibility.AvailableCredit, profile.PendingDeductions, room)
	if budget.IsNegative() {
		return decimal.Zero
	}
	return budget
}

func clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}

type eligibilityService struct {
	store  repository.Store
	policy creditPolicy
}

func NewEligibilityService(store repository.Store, caps config.TierCaps) EligibilityService {
	return &eligibilityService{store: store, policy: creditPolicy{caps: caps}}
}

func (s *eligibilityService) CalculateEligibility(ctx context.Context, farmerID int64) (*domain.Eligibility, error) {
	logger.EnterMethod("eligibilityService.CalculateEligibility", "farmerID", farmerID)

	repos := s.store.Repositories()
	profile, err := repos.Profiles.GetByFarmer(ctx, farmerID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		logger.ExitMethodWithError("eligibilityService.CalculateEligibility", err, "farmerID", farmerID)
		return nil, fmt.Errorf("failed to load credit profile: %w", err)
	}

	result, err := s.policy.evaluate(ctx, repos.Collections, farmerID, profile)
	if err != nil {
		logger.ExitMethodWithError("eligibilityService.CalculateEligibility", err, "farmerID", farmerID)
		return nil, err
	}

	logger.ExitMethod("eligibilityService.CalculateEligibility", "farmerID", farmerID,
		"eligible", result.IsEligible, "limit", result.CreditLimit, "available", result.AvailableCredit)
	return result, nil
}
