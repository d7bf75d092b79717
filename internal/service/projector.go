package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"dairy-credit-ledger/internal/domain"
	"dairy-credit-ledger/internal/repository"
)

// PaymentProjector keeps the payout read model in step with settlement:
// collection payment records, per-farmer batch payments and batch totals.
// Every method runs against the repositories of the caller's transaction.
type PaymentProjector struct{}

// ProjectPending writes the default record for a collection entering a
// batch: nothing deducted, net equal to the gross amount.
func (PaymentProjector) ProjectPending(ctx context.Context, repos repository.Repositories, batchID *uuid.UUID, c *domain.Collection) (*domain.CollectionPaymentRecord, error) {
	rec := &domain.CollectionPaymentRecord{
		CollectionID: c.ID,
		FarmerID:     c.FarmerID,
		BatchID:      batchID,
		Amount:       c.TotalAmount,
		RateApplied:  c.RatePerLiter,
		CreatedAt:    time.Now().UTC(),
	}
	rec.ApplyDeductions(decimal.Zero, decimal.Zero)
	if err := repos.Payments.CreateRecord(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// ProjectSettlement marks rec settled with the given deductions. A record
// without an id is created.
func (PaymentProjector) ProjectSettlement(ctx context.Context, repos repository.Repositories, rec *domain.CollectionPaymentRecord, creditUsed, collectorFee decimal.Decimal, at time.Time) error {
	rec.ApplyDeductions(creditUsed, collectorFee)
	if !rec.Balanced() {
		return &domain.ConsistencyError{
			Entity: "collection_payment_record",
			ID:     fmt.Sprint(rec.CollectionID),
			Err:    fmt.Errorf("deductions %s + %s exceed amount %s", creditUsed, collectorFee, rec.Amount),
		}
	}
	rec.Settled = true
	rec.SettledAt = &at
	if rec.ID == 0 {
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = at
		}
		return repos.Payments.CreateRecord(ctx, rec)
	}
	return repos.Payments.UpdateRecord(ctx, rec)
}

// ProjectFarmerPayment recomputes one farmer's row of a batch from the
// farmer's settled records.
func (PaymentProjector) ProjectFarmerPayment(ctx context.Context, repos repository.Repositories, batchID uuid.UUID, farmerID int64, records []domain.CollectionPaymentRecord) error {
	fp := &domain.FarmerPayment{
		BatchID:      batchID,
		FarmerID:     farmerID,
		TotalAmount:  decimal.Zero,
		CreditUsed:   decimal.Zero,
		CollectorFee: decimal.Zero,
		NetPayment:   decimal.Zero,
	}
	for i := range records {
		rec := &records[i]
		if rec.FarmerID != farmerID || !rec.Settled {
			continue
		}
		fp.TotalAmount = fp.TotalAmount.Add(rec.Amount)
		fp.CreditUsed = fp.CreditUsed.Add(rec.CreditUsed)
		fp.CollectorFee = fp.CollectorFee.Add(rec.CollectorFee)
		fp.NetPayment = fp.NetPayment.Add(rec.NetPayment)
		fp.CollectionCount++
	}
	if fp.CollectionCount == 0 {
		return nil
	}
	fp.IsApproved = true
	return repos.Payments.UpsertFarmerPayment(ctx, fp)
}

// ProjectBatchTotals sums every record tagged with the batch into its
// totals, so total_amount = total_credit_used + total_collector_fees +
// total_net_payment. Records never settled keep net equal to amount; they
// are also counted into the unsettled figures.
func (PaymentProjector) ProjectBatchTotals(ctx context.Context, repos repository.Repositories, batch *domain.PaymentBatch) error {
	records, err := repos.Payments.ListRecordsByBatch(ctx, batch.ID)
	if err != nil {
		return err
	}
	batch.TotalAmount = decimal.Zero
	batch.TotalCreditUsed = decimal.Zero
	batch.TotalCollectorFees = decimal.Zero
	batch.TotalNetPayment = decimal.Zero
	batch.UnsettledCount = 0
	batch.UnsettledAmount = decimal.Zero
	for i := range records {
		batch.TotalAmount = batch.TotalAmount.Add(records[i].Amount)
		batch.TotalCreditUsed = batch.TotalCreditUsed.Add(records[i].CreditUsed)
		batch.TotalCollectorFees = batch.TotalCollectorFees.Add(records[i].CollectorFee)
		batch.TotalNetPayment = batch.TotalNetPayment.Add(records[i].NetPayment)
		if !records[i].Settled {
			batch.UnsettledCount++
			batch.UnsettledAmount = batch.UnsettledAmount.Add(records[i].Amount)
		}
	}
	return nil
}
