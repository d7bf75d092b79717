package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeCreditGranted  TransactionType = "credit_granted"
	TransactionTypeCreditUsed     TransactionType = "credit_used"
	TransactionTypeCreditRepaid   TransactionType = "credit_repaid"
	TransactionTypeCreditAdjusted TransactionType = "credit_adjusted"
)

type ReferenceType string

const (
	ReferenceTypePurchase              ReferenceType = "purchase"
	ReferenceTypeBatchPaymentDeduction ReferenceType = "batch_payment_deduction"
	ReferenceTypeManual                ReferenceType = "manual"
)

// CreditTransaction is an immutable ledger entry. Balances track available
// credit: usage lowers it, grants and repayments raise it.
type CreditTransaction struct {
	ID              uuid.UUID       `json:"id"`
	FarmerID        int64           `json:"farmer_id"`
	TransactionType TransactionType `json:"transaction_type"`
	Amount          decimal.Decimal `json:"amount"`
	BalanceBefore   decimal.Decimal `json:"balance_before"`
	BalanceAfter    decimal.Decimal `json:"balance_after"`
	ReferenceType   ReferenceType   `json:"reference_type"`
	ReferenceID     string          `json:"reference_id"`
	Description     string          `json:"description"`
	ActorID         *int64          `json:"actor_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// NewCreditTransaction builds an entry whose balance_after follows from the
// transaction type. Adjustments carry a signed delta and are built with
// NewAdjustment instead.
func NewCreditTransaction(farmerID int64, txType TransactionType, amount, balanceBefore decimal.Decimal, refType ReferenceType, refID, description string) *CreditTransaction {
	after := balanceBefore
	switch txType {
	case TransactionTypeCreditUsed:
		after = balanceBefore.Sub(amount)
	case TransactionTypeCreditGranted, TransactionTypeCreditRepaid:
		after = balanceBefore.Add(amount)
	}
	return &CreditTransaction{
		ID:              uuid.New(),
		FarmerID:        farmerID,
		TransactionType: txType,
		Amount:          amount,
		BalanceBefore:   balanceBefore,
		BalanceAfter:    after,
		ReferenceType:   refType,
		ReferenceID:     refID,
		Description:     description,
		CreatedAt:       time.Now().UTC(),
	}
}

// NewAdjustment records a manual change of delta (either sign) to the balance.
func NewAdjustment(farmerID int64, delta, balanceBefore decimal.Decimal, refID, description string) *CreditTransaction {
	return &CreditTransaction{
		ID:              uuid.New(),
		FarmerID:        farmerID,
		TransactionType: TransactionTypeCreditAdjusted,
		Amount:          delta.Abs(),
		BalanceBefore:   balanceBefore,
		BalanceAfter:    balanceBefore.Add(delta),
		ReferenceType:   ReferenceTypeManual,
		ReferenceID:     refID,
		Description:     description,
		CreatedAt:       time.Now().UTC(),
	}
}

// Delta returns the signed change this entry applied to the available balance.
func (t *CreditTransaction) Delta() decimal.Decimal {
	switch t.TransactionType {
	case TransactionTypeCreditUsed:
		return t.Amount.Neg()
	case TransactionTypeCreditGranted, TransactionTypeCreditRepaid:
		return t.Amount
	default:
		return t.BalanceAfter.Sub(t.BalanceBefore)
	}
}

// Validate checks the entry against the sign convention.
func (t *CreditTransaction) Validate() error {
	if !t.Amount.IsPositive() {
		return fmt.Errorf("transaction amount must be positive, got %s", t.Amount)
	}
	if t.TransactionType == TransactionTypeCreditAdjusted {
		if !t.BalanceAfter.Sub(t.BalanceBefore).Abs().Equal(t.Amount) {
			return fmt.Errorf("adjustment %s does not match balance change %s -> %s", t.Amount, t.BalanceBefore, t.BalanceAfter)
		}
		return nil
	}
	if !t.BalanceBefore.Add(t.Delta()).Equal(t.BalanceAfter) {
		return fmt.Errorf("%s of %s does not match balance change %s -> %s", t.TransactionType, t.Amount, t.BalanceBefore, t.BalanceAfter)
	}
	return nil
}

// ReplayBalance folds a farmer's log, oldest first, starting from the
// balance_before of the first entry. Every entry must start where the previous
// one ended.
func ReplayBalance(txs []CreditTransaction) (decimal.Decimal, error) {
	if len(txs) == 0 {
		return decimal.Zero, nil
	}
	balance := txs[0].BalanceBefore
	for i := range txs {
		tx := &txs[i]
		if !tx.BalanceBefore.Equal(balance) {
			return balance, fmt.Errorf("transaction %s starts at %s, expected %s", tx.ID, tx.BalanceBefore, balance)
		}
		if err := tx.Validate(); err != nil {
			return balance, fmt.Errorf("transaction %s: %w", tx.ID, err)
		}
		balance = balance.Add(tx.Delta())
	}
	return balance, nil
}

type LedgerSummary struct {
	FarmerID             int64           `json:"farmer_id"`
	CurrentCreditBalance decimal.Decimal `json:"current_credit_balance"`
	ReplayedBalance      decimal.Decimal `json:"replayed_balance"`
	TransactionCount     int             `json:"transaction_count"`
	Consistent           bool            `json:"consistent"`
}
