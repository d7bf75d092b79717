package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"dairy-credit-ledger/internal/domain"
)

type EligibilityService interface {
	CalculateEligibility(ctx context.Context, farmerID int64) (*domain.Eligibility, error)
}

type CreditService interface {
	UseCreditForPurchase(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error)
	GrantCredit(ctx context.Context, req GrantRequest) (*domain.FarmerCreditProfile, error)
	AdjustCredit(ctx context.Context, farmerID int64, delta decimal.Decimal, reason string, actorID *int64) (*domain.CreditTransaction, error)
	SetFrozen(ctx context.Context, farmerID int64, frozen bool) (*domain.FarmerCreditProfile, error)
}

type SettlementService interface {
	GeneratePaymentBatch(ctx context.Context, periodStart, periodEnd time.Time, actorID *int64) (*domain.PaymentBatch, error)
	ProcessPaymentBatch(ctx context.Context, batchID uuid.UUID) (*domain.BatchResult, error)
	BatchDeductCollectorFees(ctx context.Context, batchID uuid.UUID, feePerLiter decimal.Decimal) (*domain.BatchResult, error)
	MarkCollectionAsPaid(ctx context.Context, collectionID, farmerID int64, actorID *int64) (*domain.CollectionPaymentRecord, error)
	GetBatch(ctx context.Context, batchID uuid.UUID) (*domain.PaymentBatch, error)
	ListBatchRecords(ctx context.Context, batchID uuid.UUID) ([]domain.CollectionPaymentRecord, error)
	ListFarmerPayments(ctx context.Context, batchID uuid.UUID) ([]domain.FarmerPayment, error)
}

type LedgerService interface {
	GetProfile(ctx context.Context, farmerID int64) (*domain.FarmerCreditProfile, error)
	GetTransactions(ctx context.Context, farmerID int64, page, pageSize int32) ([]domain.CreditTransaction, int32, error)
	VerifyLedger(ctx context.Context, farmerID int64) (*domain.LedgerSummary, error)
}

type PurchaseRequest struct {
	FarmerID  int64  `json:"farmer_id"`
	ProductID int64  `json:"product_id"`
	Quantity  int32  `json:"quantity"`
	ActorID   *int64 `json:"-"`
}

type PurchaseResult struct {
	TransactionID uuid.UUID       `json:"transaction_id"`
	FarmerID      int64           `json:"farmer_id"`
	ProductID     int64           `json:"product_id"`
	Quantity      int32           `json:"quantity"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
}

type GrantRequest struct {
	FarmerID        int64             `json:"farmer_id"`
	Tier            domain.CreditTier `json:"credit_tier"`
	LimitPercentage decimal.Decimal   `json:"limit_percentage"`
	ActorID         *int64            `json:"-"`
}
