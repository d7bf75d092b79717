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

type creditProfileRepository struct {
	db dbtx
}

func NewCreditProfileRepository(db dbtx) repository.CreditProfileRepository {
	return &creditProfileRepository{db: db}
}

const profileColumns = `farmer_id, credit_tier, limit_percentage, max_credit_amount, current_credit_balance,
	       total_credit_used, pending_deductions, is_frozen, created_at, updated_at`

func (r *creditProfileRepository) Create(ctx context.Context, p *domain.FarmerCreditProfile) error {
	logger.EnterMethod("creditProfileRepository.Create", "farmerID", p.FarmerID)

	query := `
		INSERT INTO farmer_credit_profiles (
			farmer_id, credit_tier, limit_percentage, max_credit_amount, current_credit_balance,
			total_credit_used, pending_deductions, is_frozen, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`
	now := time.Now().UTC()
	err := r.db.QueryRowContext(ctx, query,
		p.FarmerID, p.CreditTier, p.LimitPercentage, p.MaxCreditAmount, p.CurrentCreditBalance,
		p.TotalCreditUsed, p.PendingDeductions, p.IsFrozen, now, now,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		logger.ExitMethodWithError("creditProfileRepository.Create", err, "farmerID", p.FarmerID)
		return err
	}

	logger.ExitMethod("creditProfileRepository.Create", "farmerID", p.FarmerID)
	return nil
}

func (r *creditProfileRepository) GetByFarmer(ctx context.Context, farmerID int64) (*domain.FarmerCreditProfile, error) {
	return r.get(ctx, "SELECT "+profileColumns+" FROM farmer_credit_profiles WHERE farmer_id = $1", farmerID)
}

func (r *creditProfileRepository) GetByFarmerForUpdate(ctx context.Context, farmerID int64) (*domain.FarmerCreditProfile, error) {
	return r.get(ctx, "SELECT "+profileColumns+" FROM farmer_credit_profiles WHERE farmer_id = $1 FOR UPDATE", farmerID)
}

func (r *creditProfileRepository) get(ctx context.Context, query string, farmerID int64) (*domain.FarmerCreditProfile, error) {
	p := &domain.FarmerCreditProfile{}
	err := r.db.QueryRowContext(ctx, query, farmerID).Scan(
		&p.FarmerID, &p.CreditTier, &p.LimitPercentage, &p.MaxCreditAmount, &p.CurrentCreditBalance,
		&p.TotalCreditUsed, &p.PendingDeductions, &p.IsFrozen, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credit profile %d: %w", farmerID, err)
	}
	return p, nil
}

func (r *creditProfileRepository) Update(ctx context.Context, p *domain.FarmerCreditProfile, expectedBalance decimal.Decimal) error {
	logger.EnterMethod("creditProfileRepository.Update", "farmerID", p.FarmerID, "expectedBalance", expectedBalance)

	query := `
		UPDATE farmer_credit_profiles SET
			credit_tier = $1,
			limit_percentage = $2,
			max_credit_amount = $3,
			current_credit_balance = $4,
			total_credit_used = $5,
			pending_deductions = $6,
			is_frozen = $7,
			updated_at = $8
		WHERE farmer_id = $9 AND current_credit_balance = $10
	`
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, query,
		p.CreditTier, p.LimitPercentage, p.MaxCreditAmount, p.CurrentCreditBalance,
		p.TotalCreditUsed, p.PendingDeductions, p.IsFrozen, now,
		p.FarmerID, expectedBalance,
	)
	if err != nil {
		logger.ExitMethodWithError("creditProfileRepository.Update", err, "farmerID", p.FarmerID)
		return err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		logger.ExitMethodWithError("creditProfileRepository.Update", domain.ErrConcurrentUpdate, "farmerID", p.FarmerID)
		return domain.ErrConcurrentUpdate
	}

	p.UpdatedAt = now
	logger.ExitMethod("creditProfileRepository.Update", "farmerID", p.FarmerID, "balance", p.CurrentCreditBalance)
	return nil
}

func (r *creditProfileRepository) ListFarmerIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT farmer_id FROM farmer_credit_profiles ORDER BY farmer_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
