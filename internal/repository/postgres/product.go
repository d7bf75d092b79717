package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"dairy-credit-ledger/internal/domain"
	"dairy-credit-ledger/internal/repository"
)

type productRepository struct {
	db dbtx
}

func NewProductRepository(db dbtx) repository.ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	return r.get(ctx, `SELECT id, name, is_credit_eligible, unit_price, current_stock FROM products WHERE id = $1`, id)
}

func (r *productRepository) GetByIDForUpdate(ctx context.Context, id int64) (*domain.Product, error) {
	return r.get(ctx, `SELECT id, name, is_credit_eligible, unit_price, current_stock FROM products WHERE id = $1 FOR UPDATE`, id)
}

func (r *productRepository) get(ctx context.Context, query string, id int64) (*domain.Product, error) {
	p := &domain.Product{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Name, &p.IsCreditEligible, &p.UnitPrice, &p.CurrentStock)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load product %d: %w", id, err)
	}
	return p, nil
}

func (r *productRepository) DecrementStock(ctx context.Context, id int64, quantity int32) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE products SET current_stock = current_stock - $1 WHERE id = $2 AND current_stock >= $1`,
		quantity, id,
	)
	if err != nil {
		return fmt.Errorf("failed to decrement stock for product %d: %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrInsufficientStock
	}
	return nil
}
