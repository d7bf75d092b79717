package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"dairy-credit-ledger/internal/config"
	"dairy-credit-ledger/internal/domain"
	"dairy-credit-ledger/internal/logger"
	"dairy-credit-ledger/internal/repository"
)

type settlementService struct {
	store     repository.Store
	policy    creditPolicy
	projector PaymentProjector
}

func NewSettlementService(store repository.Store, caps config.TierCaps) SettlementService {
	return &settlementService{store: store, policy: creditPolicy{caps: caps}}
}

// farmerSettler computes the deductions for one farmer's collections during
// a batch run. settle runs inside the collection's transaction; committed is
// called only after that transaction succeeded.
type farmerSettler interface {
	settle(ctx context.Context, repos repository.Repositories, c *domain.Collection) (creditUsed, collectorFee decimal.Decimal, err error)
	committed(creditUsed decimal.Decimal)
}

type settlementStrategy interface {
	name() string
	kind() domain.BatchKind
	// stamp records on the batch what a later resume needs.
	stamp(b *domain.PaymentBatch)
	// resume returns the strategy an interrupted run of b continues with.
	resume(b *domain.PaymentBatch) settlementStrategy
	forFarmer(ctx context.Context, farmerID int64) (farmerSettler, error)
}

func (s *settlementService) GeneratePaymentBatch(ctx context.Context, periodStart, periodEnd time.Time, actorID *int64) (*domain.PaymentBatch, error) {
	logger.EnterMethod("settlementService.GeneratePaymentBatch", "periodStart", periodStart, "periodEnd", periodEnd)

	if !periodEnd.After(periodStart) {
		err := domain.NewValidationError(domain.CodeInvalidInput, "period end %s must be after period start %s",
			periodEnd.Format(time.RFC3339), periodStart.Format(time.RFC3339))
		logger.ExitMethodWithError("settlementService.GeneratePaymentBatch", err)
		return nil, err
	}

	batch := &domain.PaymentBatch{
		ID:          uuid.New(),
		PeriodStart: periodStart.UTC(),
		PeriodEnd:   periodEnd.UTC(),
		Status:      domain.BatchStatusGenerated,
		CreatedBy:   actorID,
		CreatedAt:   time.Now().UTC(),
	}
	var count int
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		collections, err := repos.Collections.ListPayable(ctx, batch.PeriodStart, batch.PeriodEnd)
		if err != nil {
			return err
		}
		if len(collections) == 0 {
			return domain.NewValidationError(domain.CodeInvalidInput, "No payable collections between %s and %s",
				batch.PeriodStart.Format(time.DateOnly), batch.PeriodEnd.Format(time.DateOnly))
		}
		if err := repos.Payments.CreateBatch(ctx, batch); err != nil {
			return err
		}
		for i := range collections {
			if _, err := s.projector.ProjectPending(ctx, repos, &batch.ID, &collections[i]); err != nil {
				return err
			}
		}
		count = len(collections)
		if err := s.projector.ProjectBatchTotals(ctx, repos, batch); err != nil {
			return err
		}
		return repos.Payments.UpdateBatch(ctx, batch)
	})
	if err != nil {
		logger.ExitMethodWithError("settlementService.GeneratePaymentBatch", err)
		return nil, err
	}

	logger.ExitMethod("settlementService.GeneratePaymentBatch", "batchID", batch.ID, "collections", count, "totalAmount", batch.TotalAmount)
	return batch, nil
}

// ProcessPaymentBatch settles every collection of the batch, deducting owed
// credit from each farmer's payouts up to the farmer's repayment budget.
func (s *settlementService) ProcessPaymentBatch(ctx context.Context, batchID uuid.UUID) (*domain.BatchResult, error) {
	return s.runBatch(ctx, batchID, creditDeduction{svc: s})
}

// BatchDeductCollectorFees settles every collection of the batch net of a
// per-liter collector fee. Fees never touch the credit ledger.
func (s *settlementService) BatchDeductCollectorFees(ctx context.Context, batchID uuid.UUID, feePerLiter decimal.Decimal) (*domain.BatchResult, error) {
	if !feePerLiter.IsPositive() {
		err := domain.NewValidationError(domain.CodeInvalidInput, "fee per liter must be positive, got %s", feePerLiter)
		logger.ExitMethodWithError("settlementService.BatchDeductCollectorFees", err, "batchID", batchID)
		return nil, err
	}
	return s.runBatch(ctx, batchID, collectorFeeDeduction{feePerLiter: feePerLiter})
}

func (s *settlementService) runBatch(ctx context.Context, batchID uuid.UUID, strategy settlementStrategy) (*domain.BatchResult, error) {
	method := "settlementService." + strategy.name()
	logger.EnterMethod(method, "batchID", batchID)

	batch, strategy, err := s.beginBatch(ctx, batchID, strategy)
	if err != nil {
		logger.ExitMethodWithError(method, err, "batchID", batchID)
		return nil, err
	}

	records, err := s.store.Repositories().Payments.ListRecordsByBatch(ctx, batchID)
	if err != nil {
		logger.ExitMethodWithError(method, err, "batchID", batchID)
		return nil, fmt.Errorf("failed to load records of batch %s: %w", batchID, err)
	}

	result := &domain.BatchResult{BatchID: batchID}
	for start := 0; start < len(records); {
		end := start
		for end < len(records) && records[end].FarmerID == records[start].FarmerID {
			end++
		}
		s.settleFarmer(ctx, batch.ID, records[start:end], strategy, result)
		start = end
	}

	if err := s.finishBatch(ctx, batchID, result); err != nil {
		logger.ExitMethodWithError(method, err, "batchID", batchID)
		return nil, err
	}

	if result.PartialFailure() {
		logger.WithBatch(batchID.String()).Warn("Batch completed with failures", "failures", len(result.Failures))
	}
	logger.ExitMethod(method, "batchID", batchID, "settled", result.Settled, "skipped", result.Skipped,
		"totalCreditUsed", result.TotalCreditUsed, "totalNetPayment", result.TotalNetPayment)
	return result, nil
}

// beginBatch moves a generated batch to processing and stamps it with the
// strategy's kind. A batch already in processing is an interrupted run: it
// is resumed only by the same kind of settlement, with the parameters it was
// started with.
func (s *settlementService) beginBatch(ctx context.Context, batchID uuid.UUID, strategy settlementStrategy) (*domain.PaymentBatch, settlementStrategy, error) {
	var batch *domain.PaymentBatch
	run := strategy
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		b, err := repos.Payments.GetBatchForUpdate(ctx, batchID)
		if err != nil {
			return fmt.Errorf("payment batch %s: %w", batchID, err)
		}
		batch = b
		switch b.Status {
		case domain.BatchStatusCompleted:
			return domain.NewValidationError(domain.CodeBatchNotProcessable, "Payment batch %s is already completed", batchID)
		case domain.BatchStatusProcessing:
			if b.Kind != "" && b.Kind != strategy.kind() {
				return domain.NewValidationError(domain.CodeBatchNotProcessable,
					"Payment batch %s was started as %s and cannot be resumed as %s", batchID, b.Kind, strategy.kind())
			}
			logger.WithBatch(batchID.String()).Info("Resuming interrupted batch", "kind", strategy.kind())
			if b.Kind != "" {
				run = strategy.resume(b)
				return nil
			}
			// Batches started before kinds were recorded take the first
			// kind that resumes them.
			strategy.stamp(b)
			return repos.Payments.UpdateBatch(ctx, b)
		}
		now := time.Now().UTC()
		b.Status = domain.BatchStatusProcessing
		b.ProcessedAt = &now
		strategy.stamp(b)
		return repos.Payments.UpdateBatch(ctx, b)
	})
	return batch, run, err
}

// settleFarmer settles one farmer's records, each collection in its own
// transaction. Failures are appended to result and the loop moves on.
func (s *settlementService) settleFarmer(ctx context.Context, batchID uuid.UUID, records []domain.CollectionPaymentRecord, strategy settlementStrategy, result *domain.BatchResult) {
	farmerID := records[0].FarmerID
	log := logger.WithBatch(batchID.String()).With("farmer_id", farmerID)

	settler, err := strategy.forFarmer(ctx, farmerID)
	if err != nil {
		log.Warn("Skipping farmer", "error", err)
		result.Failures = append(result.Failures, domain.SettlementFailure{FarmerID: farmerID, Error: err.Error()})
		return
	}

	for i := range records {
		rec := &records[i]
		if rec.Settled {
			result.Skipped++
			continue
		}

		settled := *rec
		var alreadyPaid bool
		err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
			c, err := lockPayableCollection(ctx, repos, rec.CollectionID, farmerID)
			if errors.Is(err, domain.ErrAlreadyPaid) {
				alreadyPaid = true
				return nil
			}
			if err != nil {
				return err
			}
			creditUsed, fee, err := settler.settle(ctx, repos, c)
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			if err := s.projector.ProjectSettlement(ctx, repos, &settled, creditUsed, fee, now); err != nil {
				return err
			}
			return repos.Collections.MarkPaid(ctx, c.ID, now)
		})
		if err != nil {
			log.Warn("Collection settlement failed", "collection_id", rec.CollectionID, "error", err)
			result.Failures = append(result.Failures, domain.SettlementFailure{
				FarmerID:     farmerID,
				CollectionID: rec.CollectionID,
				Error:        err.Error(),
			})
			continue
		}
		if alreadyPaid {
			result.Skipped++
			continue
		}
		*rec = settled
		settler.committed(settled.CreditUsed)
		result.Settled++
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		return s.projector.ProjectFarmerPayment(ctx, repos, batchID, farmerID, records)
	})
	if err != nil {
		log.Warn("Farmer payment projection failed", "error", err)
		result.Failures = append(result.Failures, domain.SettlementFailure{FarmerID: farmerID, Error: err.Error()})
	}
}

// finishBatch recomputes totals over every record of the batch and marks it
// completed together with its failure log.
func (s *settlementService) finishBatch(ctx context.Context, batchID uuid.UUID, result *domain.BatchResult) error {
	return s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		batch, err := repos.Payments.GetBatchForUpdate(ctx, batchID)
		if err != nil {
			return fmt.Errorf("payment batch %s: %w", batchID, err)
		}
		if err := s.projector.ProjectBatchTotals(ctx, repos, batch); err != nil {
			return err
		}
		now := time.Now().UTC()
		batch.Status = domain.BatchStatusCompleted
		batch.CompletedAt = &now
		batch.FailureLog = result.Failures
		if err := repos.Payments.UpdateBatch(ctx, batch); err != nil {
			return err
		}

		result.Status = batch.Status
		result.TotalAmount = batch.TotalAmount
		result.TotalCreditUsed = batch.TotalCreditUsed
		result.TotalCollectorFees = batch.TotalCollectorFees
		result.TotalNetPayment = batch.TotalNetPayment
		result.UnsettledCount = batch.UnsettledCount
		result.UnsettledAmount = batch.UnsettledAmount
		return nil
	})
}

// MarkCollectionAsPaid settles a single collection outside any batch run,
// deducting owed credit the same way a batch does.
func (s *settlementService) MarkCollectionAsPaid(ctx context.Context, collectionID, farmerID int64, actorID *int64) (*domain.CollectionPaymentRecord, error) {
	logger.EnterMethod("settlementService.MarkCollectionAsPaid", "collectionID", collectionID, "farmerID", farmerID)

	var rec *domain.CollectionPaymentRecord
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		c, err := lockPayableCollection(ctx, repos, collectionID, farmerID)
		if err != nil {
			return err
		}

		rec, err = repos.Payments.GetRecordByCollection(ctx, collectionID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			rec = &domain.CollectionPaymentRecord{
				CollectionID: c.ID,
				FarmerID:     c.FarmerID,
				Amount:       c.TotalAmount,
				RateApplied:  c.RatePerLiter,
			}
		case err != nil:
			return err
		case rec.Settled:
			return domain.NewValidationError(domain.CodeAlreadyPaid, "Collection %d is already paid", collectionID)
		}

		profile, err := repos.Profiles.GetByFarmerForUpdate(ctx, farmerID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		eligibility, err := s.policy.evaluate(ctx, repos.Collections, farmerID, profile)
		if err != nil {
			return err
		}
		creditUsed := decimal.Min(repaymentBudget(eligibility, profile), c.TotalAmount)
		if creditUsed.IsPositive() {
			if err := repay(ctx, repos, profile, creditUsed, c.ID, actorID); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		if err := s.projector.ProjectSettlement(ctx, repos, rec, creditUsed, decimal.Zero, now); err != nil {
			return err
		}
		if err := repos.Collections.MarkPaid(ctx, c.ID, now); err != nil {
			return err
		}
		if rec.BatchID != nil {
			return s.refreshBatch(ctx, repos, *rec.BatchID, farmerID)
		}
		return nil
	})
	if err != nil {
		logger.ExitMethodWithError("settlementService.MarkCollectionAsPaid", err, "collectionID", collectionID, "farmerID", farmerID)
		return nil, err
	}

	logger.ExitMethod("settlementService.MarkCollectionAsPaid", "collectionID", collectionID,
		"creditUsed", rec.CreditUsed, "netPayment", rec.NetPayment)
	return rec, nil
}

// refreshBatch re-projects a batch after one of its collections was paid
// individually.
func (s *settlementService) refreshBatch(ctx context.Context, repos repository.Repositories, batchID uuid.UUID, farmerID int64) error {
	batch, err := repos.Payments.GetBatchForUpdate(ctx, batchID)
	if err != nil {
		return fmt.Errorf("payment batch %s: %w", batchID, err)
	}
	records, err := repos.Payments.ListRecordsByBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if err := s.projector.ProjectFarmerPayment(ctx, repos, batchID, farmerID, records); err != nil {
		return err
	}
	if err := s.projector.ProjectBatchTotals(ctx, repos, batch); err != nil {
		return err
	}
	return repos.Payments.UpdateBatch(ctx, batch)
}

func (s *settlementService) GetBatch(ctx context.Context, batchID uuid.UUID) (*domain.PaymentBatch, error) {
	return s.store.Repositories().Payments.GetBatch(ctx, batchID)
}

func (s *settlementService) ListBatchRecords(ctx context.Context, batchID uuid.UUID) ([]domain.CollectionPaymentRecord, error) {
	if _, err := s.GetBatch(ctx, batchID); err != nil {
		return nil, err
	}
	return s.store.Repositories().Payments.ListRecordsByBatch(ctx, batchID)
}

func (s *settlementService) ListFarmerPayments(ctx context.Context, batchID uuid.UUID) ([]domain.FarmerPayment, error) {
	if _, err := s.GetBatch(ctx, batchID); err != nil {
		return nil, err
	}
	return s.store.Repositories().Payments.ListFarmerPayments(ctx, batchID)
}

// lockPayableCollection locks the collection row and checks it can be paid
// to farmerID. A paid collection yields domain.ErrAlreadyPaid.
func lockPayableCollection(ctx context.Context, repos repository.Repositories, collectionID, farmerID int64) (*domain.Collection, error) {
	c, err := repos.Collections.GetByIDForUpdate(ctx, collectionID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, &domain.ConsistencyError{Entity: "collection", ID: strconv.FormatInt(collectionID, 10), Err: err}
	}
	if err != nil {
		return nil, err
	}
	if c.FarmerID != farmerID {
		return nil, &domain.ConsistencyError{
			Entity: "collection",
			ID:     strconv.FormatInt(collectionID, 10),
			Err:    fmt.Errorf("belongs to farmer %d, not %d", c.FarmerID, farmerID),
		}
	}
	switch c.Status {
	case domain.CollectionStatusPaid:
		return nil, domain.NewValidationError(domain.CodeAlreadyPaid, "Collection %d is already paid", collectionID)
	case domain.CollectionStatusCancelled:
		return nil, domain.NewValidationError(domain.CodeCollectionNotPayable, "Collection %d is cancelled", collectionID)
	}
	return c, nil
}

// repay restores amount of owed credit to profile and records it. The
// repaid amount also counts into TotalCreditUsed, which accumulates every
// credit movement settled against the farmer.
func repay(ctx context.Context, repos repository.Repositories, profile *domain.FarmerCreditProfile, amount decimal.Decimal, collectionID int64, actorID *int64) error {
	before := profile.CurrentCreditBalance
	tx := domain.NewCreditTransaction(profile.FarmerID, domain.TransactionTypeCreditRepaid, amount, before,
		domain.ReferenceTypeBatchPaymentDeduction, strconv.FormatInt(collectionID, 10),
		fmt.Sprintf("Credit deducted from payment for collection %d", collectionID))
	tx.ActorID = actorID

	profile.CurrentCreditBalance = tx.BalanceAfter
	profile.PendingDeductions = profile.PendingDeductions.Sub(amount)
	profile.TotalCreditUsed = profile.TotalCreditUsed.Add(amount)
	profile.UpdatedAt = time.Now().UTC()
	if err := repos.Profiles.Update(ctx, profile, before); err != nil {
		return err
	}
	return repos.Transactions.Append(ctx, tx)
}

// creditDeduction repays owed credit out of payouts.
type creditDeduction struct {
	svc *settlementService
}

func (creditDeduction) name() string { return "ProcessPaymentBatch" }

func (creditDeduction) kind() domain.BatchKind { return domain.BatchKindCreditDeduction }

func (creditDeduction) stamp(b *domain.PaymentBatch) {
	b.Kind = domain.BatchKindCreditDeduction
	b.FeePerLiter = decimal.NullDecimal{}
}

func (d creditDeduction) resume(*domain.PaymentBatch) settlementStrategy { return d }

// forFarmer fixes the farmer's repayment budget for the whole run.
func (d creditDeduction) forFarmer(ctx context.Context, farmerID int64) (farmerSettler, error) {
	repos := d.svc.store.Repositories()
	profile, err := repos.Profiles.GetByFarmer(ctx, farmerID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to load credit profile: %w", err)
	}
	eligibility, err := d.svc.policy.evaluate(ctx, repos.Collections, farmerID, profile)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate eligibility: %w", err)
	}
	return &creditSettler{farmerID: farmerID, remaining: repaymentBudget(eligibility, profile)}, nil
}

type creditSettler struct {
	farmerID  int64
	remaining decimal.Decimal
}

func (cs *creditSettler) settle(ctx context.Context, repos repository.Repositories, c *domain.Collection) (decimal.Decimal, decimal.Decimal, error) {
	creditUsed := decimal.Min(cs.remaining, c.TotalAmount)
	if !creditUsed.IsPositive() {
		return decimal.Zero, decimal.Zero, nil
	}

	profile, err := repos.Profiles.GetByFarmerForUpdate(ctx, cs.farmerID)
	if errors.Is(err, domain.ErrNotFound) {
		return decimal.Zero, decimal.Zero, &domain.ConsistencyError{
			Entity: "farmer_credit_profile", ID: strconv.FormatInt(cs.farmerID, 10), Err: err,
		}
	}
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	// The profile may have moved since the budget was fixed.
	room := profile.MaxCreditAmount.Sub(profile.CurrentCreditBalance)
	creditUsed = decimal.Min(creditUsed, room, profile.PendingDeductions)
	if !creditUsed.IsPositive() {
		return decimal.Zero, decimal.Zero, nil
	}
	if err := repay(ctx, repos, profile, creditUsed, c.ID, nil); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return creditUsed, decimal.Zero, nil
}

func (cs *creditSettler) committed(creditUsed decimal.Decimal) {
	cs.remaining = cs.remaining.Sub(creditUsed)
}

// collectorFeeDeduction withholds the collector's per-liter fee.
type collectorFeeDeduction struct {
	feePerLiter decimal.Decimal
}

func (collectorFeeDeduction) name() string { return "BatchDeductCollectorFees" }

func (collectorFeeDeduction) kind() domain.BatchKind { return domain.BatchKindCollectorFee }

func (d collectorFeeDeduction) stamp(b *domain.PaymentBatch) {
	b.Kind = domain.BatchKindCollectorFee
	b.FeePerLiter = decimal.NewNullDecimal(d.feePerLiter)
}

// resume keeps the fee the batch was started with so every collection of
// the batch is charged the same rate.
func (d collectorFeeDeduction) resume(b *domain.PaymentBatch) settlementStrategy {
	if !b.FeePerLiter.Valid || b.FeePerLiter.Decimal.Equal(d.feePerLiter) {
		return d
	}
	logger.WithBatch(b.ID.String()).Warn("Resuming with the batch's recorded fee",
		"requested_fee_per_liter", d.feePerLiter, "fee_per_liter", b.FeePerLiter.Decimal)
	return collectorFeeDeduction{feePerLiter: b.FeePerLiter.Decimal}
}

func (d collectorFeeDeduction) forFarmer(context.Context, int64) (farmerSettler, error) {
	return d, nil
}

func (d collectorFeeDeduction) settle(_ context.Context, _ repository.Repositories, c *domain.Collection) (decimal.Decimal, decimal.Decimal, error) {
	fee := decimal.Min(c.Liters.Mul(d.feePerLiter).Round(2), c.TotalAmount)
	return decimal.Zero, fee, nil
}

func (collectorFeeDeduction) committed(decimal.Decimal) {}
