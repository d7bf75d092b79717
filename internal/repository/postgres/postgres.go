package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"dairy-credit-ledger/internal/logger"
	"dairy-credit-ledger/internal/repository"

	_ "github.com/lib/pq"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx so every repository can run
// inside or outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db *sql.DB
	repository.CreditProfileRepository
	repository.CreditTransactionRepository
	repository.CollectionRepository
	repository.ProductRepository
	repository.PaymentRepository
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:                          db,
		CreditProfileRepository:     NewCreditProfileRepository(db),
		CreditTransactionRepository: NewCreditTransactionRepository(db),
		CollectionRepository:        NewCollectionRepository(db),
		ProductRepository:           NewProductRepository(db),
		PaymentRepository:           NewPaymentRepository(db),
	}
}

func (s *Store) Repositories() repository.Repositories {
	return repository.Repositories{
		Profiles:     s.CreditProfileRepository,
		Transactions: s.CreditTransactionRepository,
		Collections:  s.CollectionRepository,
		Products:     s.ProductRepository,
		Payments:     s.PaymentRepository,
	}
}

// WithinTx runs fn in a single database transaction, committing when fn
// returns nil and rolling back otherwise.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	repos := repository.Repositories{
		Profiles:     NewCreditProfileRepository(tx),
		Transactions: NewCreditTransactionRepository(tx),
		Collections:  NewCollectionRepository(tx),
		Products:     NewProductRepository(tx),
		Payments:     NewPaymentRepository(tx),
	}

	if err := fn(ctx, repos); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("Failed to roll back transaction", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
