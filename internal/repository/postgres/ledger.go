package postgres

import (
	"context"

	"dairy-credit-ledger/internal/domain"
	"dairy-credit-ledger/internal/logger"
	"dairy-credit-ledger/internal/repository"
)

type creditTransactionRepository struct {
	db dbtx
}

func NewCreditTransactionRepository(db dbtx) repository.CreditTransactionRepository {
	return &creditTransactionRepository{db: db}
}

const transactionColumns = `id, farmer_id, transaction_type, amount, balance_before, balance_after,
	       reference_type, COALESCE(reference_id, ''), COALESCE(description, ''), actor_id, created_at`

func (r *creditTransactionRepository) Append(ctx context.Context, tx *domain.CreditTransaction) error {
	query := `INSERT INTO credit_transactions (id, farmer_id, transaction_type, amount, balance_before, balance_after,
	          reference_type, reference_id, description, actor_id, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	logger.DatabaseCall("credit_transactions.insert", query, "farmerID", tx.FarmerID, "type", tx.TransactionType)

	res, err := r.db.ExecContext(ctx, query,
		tx.ID, tx.FarmerID, tx.TransactionType, tx.Amount, tx.BalanceBefore, tx.BalanceAfter,
		tx.ReferenceType, tx.ReferenceID, tx.Description, tx.ActorID, tx.CreatedAt,
	)
	var affected int64
	if err == nil {
		affected, _ = res.RowsAffected()
	}
	logger.DatabaseResult("credit_transactions.insert", affected, err, "transactionID", tx.ID)
	return err
}

func (r *creditTransactionRepository) ListByFarmer(ctx context.Context, farmerID int64, page, pageSize int32) ([]domain.CreditTransaction, int32, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	var count int32
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM credit_transactions WHERE farmer_id = $1`, farmerID).Scan(&count)
	if err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + transactionColumns + ` FROM credit_transactions
	          WHERE farmer_id = $1 ORDER BY seq DESC LIMIT $2 OFFSET $3`
	txs, err := r.query(ctx, query, farmerID, pageSize, offset)
	if err != nil {
		return nil, 0, err
	}
	return txs, count, nil
}

func (r *creditTransactionRepository) History(ctx context.Context, farmerID int64) ([]domain.CreditTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM credit_transactions WHERE farmer_id = $1 ORDER BY seq ASC`
	return r.query(ctx, query, farmerID)
}

func (r *creditTransactionRepository) query(ctx context.Context, query string, args ...any) ([]domain.CreditTransaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := []domain.CreditTransaction{}
	for rows.Next() {
		var tx domain.CreditTransaction
		if err := rows.Scan(
			&tx.ID, &tx.FarmerID, &tx.TransactionType, &tx.Amount, &tx.BalanceBefore, &tx.BalanceAfter,
			&tx.ReferenceType, &tx.ReferenceID, &tx.Description, &tx.ActorID, &tx.CreatedAt,
		); err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}
