package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type CollectionStatus string

const (
	CollectionStatusCollected CollectionStatus = "collected"
	CollectionStatusVerified  CollectionStatus = "verified"
	CollectionStatusPaid      CollectionStatus = "paid"
	CollectionStatusCancelled CollectionStatus = "cancelled"
)

// Collection is a milk receivable produced by the collection workflow.
type Collection struct {
	ID                 int64            `json:"id"`
	FarmerID           int64            `json:"farmer_id"`
	Liters             decimal.Decimal  `json:"liters"`
	RatePerLiter       decimal.Decimal  `json:"rate_per_liter"`
	TotalAmount        decimal.Decimal  `json:"total_amount"`
	Status             CollectionStatus `json:"status"`
	ApprovedForCompany bool             `json:"approved_for_company"`
	ApprovedForPayment bool             `json:"approved_for_payment"`
	CollectedAt        time.Time        `json:"collected_at"`
	PaidAt             *time.Time       `json:"paid_at,omitempty"`
}

// CountsAsPending reports whether the collection contributes to pending receivables.
func (c *Collection) CountsAsPending() bool {
	return c.ApprovedForCompany && c.Status != CollectionStatusPaid && c.Status != CollectionStatusCancelled
}

// Payable reports whether the collection may be selected into a payment batch.
func (c *Collection) Payable() bool {
	return c.ApprovedForCompany && c.ApprovedForPayment &&
		(c.Status == CollectionStatusCollected || c.Status == CollectionStatusVerified)
}
