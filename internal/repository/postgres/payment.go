package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"dairy-credit-ledger/internal/domain"
	"dairy-credit-ledger/internal/logger"
	"dairy-credit-ledger/internal/repository"
)

type paymentRepository struct {
	db dbtx
}

func NewPaymentRepository(db dbtx) repository.PaymentRepository {
	return &paymentRepository{db: db}
}

const batchColumns = `id, period_start, period_end, status, kind, fee_per_liter, total_amount,
	       total_credit_used, total_collector_fees, total_net_payment, unsettled_count,
	       unsettled_amount, created_by, created_at, processed_at, completed_at, failure_log`

func scanBatch(row interface{ Scan(...any) error }, b *domain.PaymentBatch) error {
	var failureLog []byte
	err := row.Scan(
		&b.ID, &b.PeriodStart, &b.PeriodEnd, &b.Status, &b.Kind, &b.FeePerLiter, &b.TotalAmount,
		&b.TotalCreditUsed, &b.TotalCollectorFees, &b.TotalNetPayment, &b.UnsettledCount,
		&b.UnsettledAmount, &b.CreatedBy, &b.CreatedAt, &b.ProcessedAt, &b.CompletedAt, &failureLog,
	)
	if err != nil {
		return err
	}
	if len(failureLog) > 0 {
		if err := json.Unmarshal(failureLog, &b.FailureLog); err != nil {
			return fmt.Errorf("failed to decode failure log of batch %s: %w", b.ID, err)
		}
	}
	return nil
}

func encodeFailureLog(failures []domain.SettlementFailure) ([]byte, error) {
	if len(failures) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(failures)
}

func (r *paymentRepository) CreateBatch(ctx context.Context, b *domain.PaymentBatch) error {
	logger.EnterMethod("paymentRepository.CreateBatch", "batchID", b.ID)

	failureLog, err := encodeFailureLog(b.FailureLog)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO payment_batches (
			id, period_start, period_end, status, kind, fee_per_liter, total_amount,
			total_credit_used, total_collector_fees, total_net_payment, unsettled_count,
			unsettled_amount, created_by, created_at, failure_log
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err = r.db.ExecContext(ctx, query,
		b.ID, b.PeriodStart, b.PeriodEnd, b.Status, b.Kind, b.FeePerLiter, b.TotalAmount,
		b.TotalCreditUsed, b.TotalCollectorFees, b.TotalNetPayment, b.UnsettledCount,
		b.UnsettledAmount, b.CreatedBy, b.CreatedAt, failureLog,
	)
	if err != nil {
		logger.ExitMethodWithError("paymentRepository.CreateBatch", err, "batchID", b.ID)
		return err
	}

	logger.ExitMethod("paymentRepository.CreateBatch", "batchID", b.ID)
	return nil
}

func (r *paymentRepository) GetBatch(ctx context.Context, id uuid.UUID) (*domain.PaymentBatch, error) {
	return r.getBatch(ctx, "SELECT "+batchColumns+" FROM payment_batches WHERE id = $1", id)
}

func (r *paymentRepository) GetBatchForUpdate(ctx context.Context, id uuid.UUID) (*domain.PaymentBatch, error) {
	return r.getBatch(ctx, "SELECT "+batchColumns+" FROM payment_batches WHERE id = $1 FOR UPDATE", id)
}

func (r *paymentRepository) getBatch(ctx context.Context, query string, id uuid.UUID) (*domain.PaymentBatch, error) {
	b := &domain.PaymentBatch{}
	err := scanBatch(r.db.QueryRowContext(ctx, query, id), b)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment batch %s: %w", id, err)
	}
	return b, nil
}

func (r *paymentRepository) UpdateBatch(ctx context.Context, b *domain.PaymentBatch) error {
	logger.EnterMethod("paymentRepository.UpdateBatch", "batchID", b.ID, "status", b.Status)

	failureLog, err := encodeFailureLog(b.FailureLog)
	if err != nil {
		return err
	}
	query := `
		UPDATE payment_batches SET
			status = $1,
			kind = $2,
			fee_per_liter = $3,
			total_amount = $4,
			total_credit_used = $5,
			total_collector_fees = $6,
			total_net_payment = $7,
			unsettled_count = $8,
			unsettled_amount = $9,
			processed_at = $10,
			completed_at = $11,
			failure_log = $12
		WHERE id = $13
	`
	_, err = r.db.ExecContext(ctx, query,
		b.Status, b.Kind, b.FeePerLiter, b.TotalAmount, b.TotalCreditUsed, b.TotalCollectorFees,
		b.TotalNetPayment, b.UnsettledCount, b.UnsettledAmount, b.ProcessedAt, b.CompletedAt,
		failureLog, b.ID,
	)
	if err != nil {
		logger.ExitMethodWithError("paymentRepository.UpdateBatch", err, "batchID", b.ID)
		return err
	}

	logger.ExitMethod("paymentRepository.UpdateBatch", "batchID", b.ID)
	return nil
}

func (r *paymentRepository) ListBatchesByStatus(ctx context.Context, statuses ...domain.BatchStatus) ([]domain.PaymentBatch, error) {
	statusStrs := make([]string, len(statuses))
	for i, s := range statuses {
		statusStrs[i] = string(s)
	}

	query := "SELECT " + batchColumns + " FROM payment_batches WHERE status = ANY($1) ORDER BY created_at ASC"
	rows, err := r.db.QueryContext(ctx, query, pq.Array(statusStrs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	batches := []domain.PaymentBatch{}
	for rows.Next() {
		var b domain.PaymentBatch
		if err := scanBatch(rows, &b); err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

const recordColumns = `id, collection_id, farmer_id, batch_id, amount, rate_applied, credit_used,
	       collector_fee, net_payment, settled, settled_at, created_at`

func scanRecord(row interface{ Scan(...any) error }, rec *domain.CollectionPaymentRecord) error {
	var batchID uuid.NullUUID
	err := row.Scan(
		&rec.ID, &rec.CollectionID, &rec.FarmerID, &batchID, &rec.Amount, &rec.RateApplied, &rec.CreditUsed,
		&rec.CollectorFee, &rec.NetPayment, &rec.Settled, &rec.SettledAt, &rec.CreatedAt,
	)
	if err != nil {
		return err
	}
	if batchID.Valid {
		id := batchID.UUID
		rec.BatchID = &id
	}
	return nil
}

func (r *paymentRepository) CreateRecord(ctx context.Context, rec *domain.CollectionPaymentRecord) error {
	query := `
		INSERT INTO collection_payment_records (
			collection_id, farmer_id, batch_id, amount, rate_applied, credit_used,
			collector_fee, net_payment, settled, settled_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	err := r.db.QueryRowContext(ctx, query,
		rec.CollectionID, rec.FarmerID, rec.BatchID, rec.Amount, rec.RateApplied, rec.CreditUsed,
		rec.CollectorFee, rec.NetPayment, rec.Settled, rec.SettledAt, rec.CreatedAt,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("failed to create payment record for collection %d: %w", rec.CollectionID, err)
	}
	return nil
}

func (r *paymentRepository) GetRecordByCollection(ctx context.Context, collectionID int64) (*domain.CollectionPaymentRecord, error) {
	rec := &domain.CollectionPaymentRecord{}
	err := scanRecord(r.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM collection_payment_records WHERE collection_id = $1", collectionID), rec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment record for collection %d: %w", collectionID, err)
	}
	return rec, nil
}

func (r *paymentRepository) UpdateRecord(ctx context.Context, rec *domain.CollectionPaymentRecord) error {
	query := `
		UPDATE collection_payment_records SET
			credit_used = $1,
			collector_fee = $2,
			net_payment = $3,
			settled = $4,
			settled_at = $5
		WHERE id = $6
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.CreditUsed, rec.CollectorFee, rec.NetPayment, rec.Settled, rec.SettledAt, rec.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment record %d: %w", rec.ID, err)
	}
	return nil
}

func (r *paymentRepository) ListRecordsByBatch(ctx context.Context, batchID uuid.UUID) ([]domain.CollectionPaymentRecord, error) {
	logger.EnterMethod("paymentRepository.ListRecordsByBatch", "batchID", batchID)

	query := "SELECT " + recordColumns + " FROM collection_payment_records WHERE batch_id = $1 ORDER BY farmer_id, collection_id"
	rows, err := r.db.QueryContext(ctx, query, batchID)
	if err != nil {
		logger.ExitMethodWithError("paymentRepository.ListRecordsByBatch", err, "batchID", batchID)
		return nil, err
	}
	defer rows.Close()

	records := []domain.CollectionPaymentRecord{}
	for rows.Next() {
		var rec domain.CollectionPaymentRecord
		if err := scanRecord(rows, &rec); err != nil {
			logger.ExitMethodWithError("paymentRepository.ListRecordsByBatch", err, "batchID", batchID)
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	logger.ExitMethod("paymentRepository.ListRecordsByBatch", "batchID", batchID, "count", len(records))
	return records, nil
}

func (r *paymentRepository) UpsertFarmerPayment(ctx context.Context, fp *domain.FarmerPayment) error {
	query := `
		INSERT INTO farmer_payments (
			batch_id, farmer_id, total_amount, credit_used, collector_fee, net_payment,
			collection_count, is_approved, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (batch_id, farmer_id) DO UPDATE SET
			total_amount = EXCLUDED.total_amount,
			credit_used = EXCLUDED.credit_used,
			collector_fee = EXCLUDED.collector_fee,
			net_payment = EXCLUDED.net_payment,
			collection_count = EXCLUDED.collection_count,
			is_approved = EXCLUDED.is_approved,
			updated_at = EXCLUDED.updated_at
	`
	fp.UpdatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, query,
		fp.BatchID, fp.FarmerID, fp.TotalAmount, fp.CreditUsed, fp.CollectorFee, fp.NetPayment,
		fp.CollectionCount, fp.IsApproved, fp.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert farmer payment for farmer %d: %w", fp.FarmerID, err)
	}
	return nil
}

func (r *paymentRepository) ListFarmerPayments(ctx context.Context, batchID uuid.UUID) ([]domain.FarmerPayment, error) {
	query := `
		SELECT batch_id, farmer_id, total_amount, credit_used, collector_fee, net_payment,
		       collection_count, is_approved, updated_at
		FROM farmer_payments WHERE batch_id = $1 ORDER BY farmer_id
	`
	rows, err := r.db.QueryContext(ctx, query, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := []domain.FarmerPayment{}
	for rows.Next() {
		var fp domain.FarmerPayment
		if err := rows.Scan(
			&fp.BatchID, &fp.FarmerID, &fp.TotalAmount, &fp.CreditUsed, &fp.CollectorFee, &fp.NetPayment,
			&fp.CollectionCount, &fp.IsApproved, &fp.UpdatedAt,
		); err != nil {
			return nil, err
		}
		payments = append(payments, fp)
	}
	return payments, rows.Err()
}
