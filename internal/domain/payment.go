package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BatchStatus string

const (
	BatchStatusGenerated  BatchStatus = "generated"
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusCompleted  BatchStatus = "completed"
)

// BatchKind is the settlement a batch was first processed with. A batch is
// only ever resumed with the same kind.
type BatchKind string

const (
	BatchKindCreditDeduction BatchKind = "credit_deduction"
	BatchKindCollectorFee    BatchKind = "collector_fee"
)

// CollectionPaymentRecord is the payout row for one settled collection.
// BatchID is nil for individual settlement.
type CollectionPaymentRecord struct {
	ID           int64           `json:"id"`
	CollectionID int64           `json:"collection_id"`
	FarmerID     int64           `json:"farmer_id"`
	BatchID      *uuid.UUID      `json:"batch_id,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	RateApplied  decimal.Decimal `json:"rate_applied"`
	CreditUsed   decimal.Decimal `json:"credit_used"`
	CollectorFee decimal.Decimal `json:"collector_fee"`
	NetPayment   decimal.Decimal `json:"net_payment"`
	Settled      bool            `json:"settled"`
	SettledAt    *time.Time      `json:"settled_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// ApplyDeductions sets the deductions and recomputes the net payment.
func (r *CollectionPaymentRecord) ApplyDeductions(creditUsed, collectorFee decimal.Decimal) {
	r.CreditUsed = creditUsed
	r.CollectorFee = collectorFee
	r.NetPayment = r.Amount.Sub(creditUsed).Sub(collectorFee)
}

// Balanced reports whether deductions fit inside the amount and net matches.
func (r *CollectionPaymentRecord) Balanced() bool {
	deducted := r.CreditUsed.Add(r.CollectorFee)
	return !r.CreditUsed.IsNegative() && !r.CollectorFee.IsNegative() &&
		deducted.LessThanOrEqual(r.Amount) &&
		r.NetPayment.Equal(r.Amount.Sub(deducted))
}

// PaymentBatch totals cover every record tagged with the batch. A record
// that was never settled still carries its defaults (net equal to amount),
// so UnsettledAmount is reported separately: the net actually paid out is
// TotalNetPayment minus UnsettledAmount.
type PaymentBatch struct {
	ID                 uuid.UUID           `json:"batch_id"`
	PeriodStart        time.Time           `json:"period_start"`
	PeriodEnd          time.Time           `json:"period_end"`
	Status             BatchStatus         `json:"status"`
	Kind               BatchKind           `json:"kind,omitempty"`
	FeePerLiter        decimal.NullDecimal `json:"fee_per_liter"`
	TotalAmount        decimal.Decimal     `json:"total_amount"`
	TotalCreditUsed    decimal.Decimal     `json:"total_credit_used"`
	TotalCollectorFees decimal.Decimal     `json:"total_collector_fees"`
	TotalNetPayment    decimal.Decimal     `json:"total_net_payment"`
	UnsettledCount     int32               `json:"unsettled_count"`
	UnsettledAmount    decimal.Decimal     `json:"unsettled_amount"`
	CreatedBy          *int64              `json:"created_by,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	ProcessedAt        *time.Time          `json:"processed_at,omitempty"`
	CompletedAt        *time.Time          `json:"completed_at,omitempty"`
	FailureLog         []SettlementFailure `json:"failure_log,omitempty"`
}

// FarmerPayment aggregates one farmer's settled collections within a batch.
type FarmerPayment struct {
	BatchID         uuid.UUID       `json:"batch_id"`
	FarmerID        int64           `json:"farmer_id"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	CreditUsed      decimal.Decimal `json:"credit_used"`
	CollectorFee    decimal.Decimal `json:"collector_fee"`
	NetPayment      decimal.Decimal `json:"net_payment"`
	CollectionCount int32           `json:"collection_count"`
	IsApproved      bool            `json:"is_approved"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// SettlementFailure is one entry of a batch's partial failure report.
type SettlementFailure struct {
	FarmerID     int64  `json:"farmer_id"`
	CollectionID int64  `json:"collection_id,omitempty"`
	Error        string `json:"error"`
}

// BatchResult summarises a settlement run.
type BatchResult struct {
	BatchID            uuid.UUID           `json:"batch_id"`
	Status             BatchStatus         `json:"status"`
	TotalAmount        decimal.Decimal     `json:"total_amount"`
	TotalCreditUsed    decimal.Decimal     `json:"total_credit_used"`
	TotalCollectorFees decimal.Decimal     `json:"total_collector_fees"`
	TotalNetPayment    decimal.Decimal     `json:"total_net_payment"`
	UnsettledCount     int32               `json:"unsettled_count"`
	UnsettledAmount    decimal.Decimal     `json:"unsettled_amount"`
	Settled            int                 `json:"settled"`
	Skipped            int                 `json:"skipped"`
	Failures           []SettlementFailure `json:"failures,omitempty"`
}

// PaidNetPayment is the net of the settled records only.
func (b *PaymentBatch) PaidNetPayment() decimal.Decimal {
	return b.TotalNetPayment.Sub(b.UnsettledAmount)
}

// PartialFailure reports whether any farmer or collection failed.
func (r *BatchResult) PartialFailure() bool {
	return len(r.Failures) > 0
}
