package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"dairy-credit-ledger/internal/config"
	"dairy-credit-ledger/internal/domain"
	"dairy-credit-ledger/internal/repository"
	"dairy-credit-ledger/internal/repository/memory"
	"dairy-credit-ledger/internal/service"
)

var (
	testCaps = config.TierCaps{
		New:         decimal.NewFromInt(20000),
		Established: decimal.NewFromInt(50000),
		Premium:     decimal.NewFromInt(100000),
	}
	periodStart = time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	periodEnd   = time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	collectedAt = time.Date(2026, 9, 10, 6, 30, 0, 0, time.UTC)
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixture struct {
	store       *memory.Store
	eligibility service.EligibilityService
	credit      service.CreditService
	settlement  service.SettlementService
	ledger      service.LedgerService
}

func newFixture() *fixture {
	return newFixtureWithStore(memory.New())
}

func newFixtureWithStore(store *memory.Store) *fixture {
	return &fixture{
		store:       store,
		eligibility: service.NewEligibilityService(store, testCaps),
		credit:      service.NewCreditService(store, testCaps),
		settlement:  service.NewSettlementService(store, testCaps),
		ledger:      service.NewLedgerService(store),
	}
}

// payable seeds a collection approved for company and payment inside the
// test period.
func (f *fixture) payable(id, farmerID int64, liters, amount string) {
	f.store.PutCollection(domain.Collection{
		ID:                 id,
		FarmerID:           farmerID,
		Liters:             dec(liters),
		RatePerLiter:       dec(amount).Div(dec(liters)).Round(2),
		TotalAmount:        dec(amount),
		Status:             domain.CollectionStatusVerified,
		ApprovedForCompany: true,
		ApprovedForPayment: true,
		CollectedAt:        collectedAt,
	})
}

// receivable seeds a collection that secures credit but is not yet
// approved for payment.
func (f *fixture) receivable(id, farmerID int64, amount string) {
	f.store.PutCollection(domain.Collection{
		ID:                 id,
		FarmerID:           farmerID,
		Liters:             dec("100"),
		TotalAmount:        dec(amount),
		Status:             domain.CollectionStatusCollected,
		ApprovedForCompany: true,
		CollectedAt:        collectedAt,
	})
}

func (f *fixture) product(id int64, price string, stock int32, eligible bool) {
	f.store.PutProduct(domain.Product{
		ID:               id,
		Name:             "Dairy meal 70kg",
		IsCreditEligible: eligible,
		UnitPrice:        dec(price),
		CurrentStock:     stock,
	})
}

func (f *fixture) grant(t *testing.T, farmerID int64, pct string) *domain.FarmerCreditProfile {
	t.Helper()
	p, err := f.credit.GrantCredit(context.Background(), service.GrantRequest{
		FarmerID:        farmerID,
		Tier:            domain.CreditTierNew,
		LimitPercentage: dec(pct),
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) buy(t *testing.T, farmerID, productID int64, qty int32) *service.PurchaseResult {
	t.Helper()
	res, err := f.credit.UseCreditForPurchase(context.Background(), service.PurchaseRequest{
		FarmerID:  farmerID,
		ProductID: productID,
		Quantity:  qty,
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) profile(t *testing.T, farmerID int64) *domain.FarmerCreditProfile {
	t.Helper()
	p, err := f.ledger.GetProfile(context.Background(), farmerID)
	require.NoError(t, err)
	return p
}

func (f *fixture) history(t *testing.T, farmerID int64) []domain.CreditTransaction {
	t.Helper()
	txs, err := f.store.Repositories().Transactions.History(context.Background(), farmerID)
	require.NoError(t, err)
	return txs
}

// failingStockStore makes every stock decrement fail after the rest of the
// purchase has been written.
type failingStockStore struct {
	*memory.Store
}

var errStockUnavailable = errors.New("inventory service unavailable")

func (s *failingStockStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		repos.Products = failingProducts{repos.Products}
		return fn(ctx, repos)
	})
}

type failingProducts struct {
	repository.ProductRepository
}

func (failingProducts) DecrementStock(context.Context, int64, int32) error {
	return errStockUnavailable
}

// interruptingStore fails one collection's settlement and the final batch
// update, leaving the batch in processing the way a crash mid-run would.
type interruptingStore struct {
	*memory.Store
	collectionID int64
}

var errConnectionReset = errors.New("connection reset by peer")

func (s *interruptingStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		repos.Collections = interruptedCollections{CollectionRepository: repos.Collections, collectionID: s.collectionID}
		repos.Payments = interruptedPayments{repos.Payments}
		return fn(ctx, repos)
	})
}

type interruptedCollections struct {
	repository.CollectionRepository
	collectionID int64
}

func (c interruptedCollections) MarkPaid(ctx context.Context, id int64, at time.Time) error {
	if id == c.collectionID {
		return errConnectionReset
	}
	return c.CollectionRepository.MarkPaid(ctx, id, at)
}

type interruptedPayments struct {
	repository.PaymentRepository
}

func (p interruptedPayments) UpdateBatch(ctx context.Context, b *domain.PaymentBatch) error {
	if b.Status == domain.BatchStatusCompleted {
		return errConnectionReset
	}
	return p.PaymentRepository.UpdateBatch(ctx, b)
}
