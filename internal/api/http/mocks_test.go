package http

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"dairy-credit-ledger/internal/domain"
	"dairy-credit-ledger/internal/service"
)

type MockEligibilityService struct {
	mock.Mock
}

func (m *MockEligibilityService) CalculateEligibility(ctx context.Context, farmerID int64) (*domain.Eligibility, error) {
	args := m.Called(ctx, farmerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Eligibility), args.Error(1)
}

type MockCreditService struct {
	mock.Mock
}

func (m *MockCreditService) UseCreditForPurchase(ctx context.Context, req service.PurchaseRequest) (*service.PurchaseResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.PurchaseResult), args.Error(1)
}

func (m *MockCreditService) GrantCredit(ctx context.Context, req service.GrantRequest) (*domain.FarmerCreditProfile, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FarmerCreditProfile), args.Error(1)
}

func (m *MockCreditService) AdjustCredit(ctx context.Context, farmerID int64, delta decimal.Decimal, reason string, actorID *int64) (*domain.CreditTransaction, error) {
	args := m.Called(ctx, farmerID, delta, reason, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CreditTransaction), args.Error(1)
}

func (m *MockCreditService) SetFrozen(ctx context.Context, farmerID int64, frozen bool) (*domain.FarmerCreditProfile, error) {
	args := m.Called(ctx, farmerID, frozen)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FarmerCreditProfile), args.Error(1)
}

type MockLedgerService struct {
	mock.Mock
}

func (m *MockLedgerService) GetProfile(ctx context.Context, farmerID int64) (*domain.FarmerCreditProfile, error) {
	args := m.Called(ctx, farmerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FarmerCreditProfile), args.Error(1)
}

func (m *MockLedgerService) GetTransactions(ctx context.Context, farmerID int64, page, pageSize int32) ([]domain.CreditTransaction, int32, error) {
	args := m.Called(ctx, farmerID, page, pageSize)
	return args.Get(0).([]domain.CreditTransaction), args.Get(1).(int32), args.Error(2)
}

func (m *MockLedgerService) VerifyLedger(ctx context.Context, farmerID int64) (*domain.LedgerSummary, error) {
	args := m.Called(ctx, farmerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LedgerSummary), args.Error(1)
}

type MockSettlementService struct {
	mock.Mock
}

func (m *MockSettlementService) GeneratePaymentBatch(ctx context.Context, periodStart, periodEnd time.Time, actorID *int64) (*domain.PaymentBatch, error) {
	args := m.Called(ctx, periodStart, periodEnd, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentBatch), args.Error(1)
}

func (m *MockSettlementService) ProcessPaymentBatch(ctx context.Context, batchID uuid.UUID) (*domain.BatchResult, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BatchResult), args.Error(1)
}

func (m *MockSettlementService) BatchDeductCollectorFees(ctx context.Context, batchID uuid.UUID, feePerLiter decimal.Decimal) (*domain.BatchResult, error) {
	args := m.Called(ctx, batchID, feePerLiter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BatchResult), args.Error(1)
}

func (m *MockSettlementService) MarkCollectionAsPaid(ctx context.Context, collectionID, farmerID int64, actorID *int64) (*domain.CollectionPaymentRecord, error) {
	args := m.Called(ctx, collectionID, farmerID, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CollectionPaymentRecord), args.Error(1)
}

func (m *MockSettlementService) GetBatch(ctx context.Context, batchID uuid.UUID) (*domain.PaymentBatch, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentBatch), args.Error(1)
}

func (m *MockSettlementService) ListBatchRecords(ctx context.Context, batchID uuid.UUID) ([]domain.CollectionPaymentRecord, error) {
	args := m.Called(ctx, batchID)
	return args.Get(0).([]domain.CollectionPaymentRecord), args.Error(1)
}

func (m *MockSettlementService) ListFarmerPayments(ctx context.Context, batchID uuid.UUID) ([]domain.FarmerPayment, error) {
	args := m.Called(ctx, batchID)
	return args.Get(0).([]domain.FarmerPayment), args.Error(1)
}
