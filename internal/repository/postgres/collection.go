package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"dairy-credit-ledger/internal/domain"
	"dairy-credit-ledger/internal/logger"
	"dairy-credit-ledger/internal/repository"
)

type collectionRepository struct {
	db dbtx
}

func NewCollectionRepository(db dbtx) repository.CollectionRepository {
	return &collectionRepository{db: db}
}

const collectionColumns = `id, farmer_id, liters, rate_per_liter, total_amount, status,
	       approved_for_company, approved_for_payment, collected_at, paid_at`

func scanCollection(row interface{ Scan(...any) error }, c *domain.Collection) error {
	return row.Scan(
		&c.ID, &c.FarmerID, &c.Liters, &c.RatePerLiter, &c.TotalAmount, &c.Status,
		&c.ApprovedForCompany, &c.ApprovedForPayment, &c.CollectedAt, &c.PaidAt,
	)
}

func (r *collectionRepository) GetByID(ctx context.Context, id int64) (*domain.Collection, error) {
	return r.get(ctx, "SELECT "+collectionColumns+" FROM collections WHERE id = $1", id)
}

func (r *collectionRepository) GetByIDForUpdate(ctx context.Context, id int64) (*domain.Collection, error) {
	return r.get(ctx, "SELECT "+collectionColumns+" FROM collections WHERE id = $1 FOR UPDATE", id)
}

func (r *collectionRepository) get(ctx context.Context, query string, id int64) (*domain.Collection, error) {
	c := &domain.Collection{}
	err := scanCollection(r.db.QueryRowContext(ctx, query, id), c)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load collection %d: %w", id, err)
	}
	return c, nil
}

func (r *collectionRepository) SumPending(ctx context.Context, farmerID int64) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(total_amount), 0)
		FROM collections
		WHERE farmer_id = $1
		  AND approved_for_company = TRUE
		  AND status NOT IN ('paid', 'cancelled')
	`
	var total decimal.Decimal
	if err := r.db.QueryRowContext(ctx, query, farmerID).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum pending collections for farmer %d: %w", farmerID, err)
	}
	return total, nil
}

func (r *collectionRepository) ListPayable(ctx context.Context, from, to time.Time) ([]domain.Collection, error) {
	logger.EnterMethod("collectionRepository.ListPayable", "from", from, "to", to)

	query := `
		SELECT ` + collectionColumns + `
		FROM collections c
		WHERE c.approved_for_company = TRUE
		  AND c.approved_for_payment = TRUE
		  AND c.status IN ('collected', 'verified')
		  AND c.collected_at >= $1 AND c.collected_at < $2
		  AND NOT EXISTS (SELECT 1 FROM collection_payment_records r WHERE r.collection_id = c.id)
		ORDER BY c.id
	`
	rows, err := r.db.QueryContext(ctx, query, from, to)
	if err != nil {
		logger.ExitMethodWithError("collectionRepository.ListPayable", err)
		return nil, err
	}
	defer rows.Close()

	collections := []domain.Collection{}
	for rows.Next() {
		var c domain.Collection
		if err := scanCollection(rows, &c); err != nil {
			logger.ExitMethodWithError("collectionRepository.ListPayable", err)
			return nil, err
		}
		collections = append(collections, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	logger.ExitMethod("collectionRepository.ListPayable", "count", len(collections))
	return collections, nil
}

func (r *collectionRepository) MarkPaid(ctx context.Context, id int64, paidAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE collections SET status = 'paid', paid_at = $1 WHERE id = $2 AND status <> 'paid'`,
		paidAt, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark collection %d paid: %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrAlreadyPaid
	}
	return nil
}
