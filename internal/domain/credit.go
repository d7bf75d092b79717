package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type CreditTier string

const (
	CreditTierNew         CreditTier = "new"
	CreditTierEstablished CreditTier = "established"
	CreditTierPremium     CreditTier = "premium"
)

func (t CreditTier) Valid() bool {
	switch t {
	case CreditTierNew, CreditTierEstablished, CreditTierPremium:
		return true
	}
	return false
}

type FarmerCreditProfile struct {
	FarmerID             int64           `json:"farmer_id"`
	CreditTier           CreditTier      `json:"credit_tier"`
	LimitPercentage      decimal.Decimal `json:"limit_percentage"`
	MaxCreditAmount      decimal.Decimal `json:"max_credit_amount"`
	CurrentCreditBalance decimal.Decimal `json:"current_credit_balance"` // available to spend
	TotalCreditUsed      decimal.Decimal `json:"total_credit_used"`
	PendingDeductions    decimal.Decimal `json:"pending_deductions"` // drawn, not yet deducted from a payout
	IsFrozen             bool            `json:"is_frozen"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// BalanceWithinBounds reports whether 0 <= balance <= max holds.
func (p *FarmerCreditProfile) BalanceWithinBounds() bool {
	return !p.CurrentCreditBalance.IsNegative() && p.CurrentCreditBalance.LessThanOrEqual(p.MaxCreditAmount)
}

// Eligibility is the result of evaluating a farmer's credit position.
type Eligibility struct {
	FarmerID        int64           `json:"farmer_id"`
	IsEligible      bool            `json:"is_eligible"`
	CreditLimit     decimal.Decimal `json:"credit_limit"`
	AvailableCredit decimal.Decimal `json:"available_credit"`
	PendingPayments decimal.Decimal `json:"pending_payments"`
}

type Product struct {
	ID               int64           `json:"id"`
	Name             string          `json:"name"`
	IsCreditEligible bool            `json:"is_credit_eligible"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	CurrentStock     int32           `json:"current_stock"`
}
