package repository

import (
	"context"
	"time"

	"dairy-credit-ledger/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CreditProfileRepository interface {
	Create(ctx context.Context, profile *domain.FarmerCreditProfile) error
	GetByFarmer(ctx context.Context, farmerID int64) (*domain.FarmerCreditProfile, error)
	// GetByFarmerForUpdate locks the profile row until the surrounding
	// transaction ends.
	GetByFarmerForUpdate(ctx context.Context, farmerID int64) (*domain.FarmerCreditProfile, error)
	// Update persists the profile only if current_credit_balance still equals
	// expectedBalance, returning domain.ErrConcurrentUpdate otherwise.
	Update(ctx context.Context, profile *domain.FarmerCreditProfile, expectedBalance decimal.Decimal) error
	ListFarmerIDs(ctx context.Context) ([]int64, error)
}

type CreditTransactionRepository interface {
	Append(ctx context.Context, tx *domain.CreditTransaction) error
	// ListByFarmer pages newest first.
	ListByFarmer(ctx context.Context, farmerID int64, page, pageSize int32) ([]domain.CreditTransaction, int32, error)
	// History returns the whole log oldest first.
	History(ctx context.Context, farmerID int64) ([]domain.CreditTransaction, error)
}

type CollectionRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Collection, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*domain.Collection, error)
	SumPending(ctx context.Context, farmerID int64) (decimal.Decimal, error)
	// ListPayable returns approved, unpaid collections in [from, to) that have
	// no payment record yet, ordered by id.
	ListPayable(ctx context.Context, from, to time.Time) ([]domain.Collection, error)
	// MarkPaid returns domain.ErrAlreadyPaid when the row is already paid.
	MarkPaid(ctx context.Context, id int64, paidAt time.Time) error
}

type ProductRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Product, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*domain.Product, error)
	// DecrementStock returns domain.ErrInsufficientStock when stock would go negative.
	DecrementStock(ctx context.Context, id int64, quantity int32) error
}

type PaymentRepository interface {
	CreateBatch(ctx context.Context, batch *domain.PaymentBatch) error
	GetBatch(ctx context.Context, id uuid.UUID) (*domain.PaymentBatch, error)
	GetBatchForUpdate(ctx context.Context, id uuid.UUID) (*domain.PaymentBatch, error)
	UpdateBatch(ctx context.Context, batch *domain.PaymentBatch) error
	ListBatchesByStatus(ctx context.Context, statuses ...domain.BatchStatus) ([]domain.PaymentBatch, error)

	CreateRecord(ctx context.Context, record *domain.CollectionPaymentRecord) error
	GetRecordByCollection(ctx context.Context, collectionID int64) (*domain.CollectionPaymentRecord, error)
	UpdateRecord(ctx context.Context, record *domain.CollectionPaymentRecord) error
	// ListRecordsByBatch orders by farmer id, then collection id.
	ListRecordsByBatch(ctx context.Context, batchID uuid.UUID) ([]domain.CollectionPaymentRecord, error)

	UpsertFarmerPayment(ctx context.Context, payment *domain.FarmerPayment) error
	ListFarmerPayments(ctx context.Context, batchID uuid.UUID) ([]domain.FarmerPayment, error)
}

// Repositories groups the repositories bound to one connection or transaction.
type Repositories struct {
	Profiles     CreditProfileRepository
	Transactions CreditTransactionRepository
	Collections  CollectionRepository
	Products     ProductRepository
	Payments     PaymentRepository
}

// Store hands out repositories and runs multi-step mutations atomically.
// If fn returns an error nothing it wrote is kept.
type Store interface {
	Repositories() Repositories
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
