// Package memory is an in-process Store used by tests and local tooling.
// Transactions run against a copy of the state that replaces the live state
// only when the callback succeeds.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"dairy-credit-ledger/internal/domain"
	"dairy-credit-ledger/internal/repository"
)

type farmerPaymentKey struct {
	batchID  uuid.UUID
	farmerID int64
}

type state struct {
	profiles       map[int64]domain.FarmerCreditProfile
	transactions   []domain.CreditTransaction
	collections    map[int64]domain.Collection
	products       map[int64]domain.Product
	batches        map[uuid.UUID]domain.PaymentBatch
	records        map[int64]domain.CollectionPaymentRecord
	farmerPayments map[farmerPaymentKey]domain.FarmerPayment
	nextRecordID   int64
}

func newState() *state {
	return &state{
		profiles:       make(map[int64]domain.FarmerCreditProfile),
		collections:    make(map[int64]domain.Collection),
		products:       make(map[int64]domain.Product),
		batches:        make(map[uuid.UUID]domain.PaymentBatch),
		records:        make(map[int64]domain.CollectionPaymentRecord),
		farmerPayments: make(map[farmerPaymentKey]domain.FarmerPayment),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.profiles {
		c.profiles[k] = v
	}
	c.transactions = append([]domain.CreditTransaction(nil), s.transactions...)
	for k, v := range s.collections {
		c.collections[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.batches {
		v.FailureLog = append([]domain.SettlementFailure(nil), v.FailureLog...)
		c.batches[k] = v
	}
	for k, v := range s.records {
		c.records[k] = v
	}
	for k, v := range s.farmerPayments {
		c.farmerPayments[k] = v
	}
	c.nextRecordID = s.nextRecordID
	return c
}

type Store struct {
	mu sync.Mutex
	st *state
}

func New() *Store {
	return &Store{st: newState()}
}

// Repositories returns repositories over the live state. They must not be
// used from inside a WithinTx callback.
func (s *Store) Repositories() repository.Repositories {
	v := &view{store: s}
	return v.repositories()
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	v := &view{st: work}
	if err := fn(ctx, v.repositories()); err != nil {
		return err
	}
	s.st = work
	return nil
}

// PutCollection seeds a collection produced by the collection workflow.
func (s *Store) PutCollection(c domain.Collection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.collections[c.ID] = c
}

// PutProfile overwrites a credit profile without touching the ledger.
func (s *Store) PutProfile(p domain.FarmerCreditProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.profiles[p.FarmerID] = p
}

// PutProduct seeds a catalog product.
func (s *Store) PutProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.products[p.ID] = p
}

// view binds the repository methods either to the live state (store set,
// locking per call) or to a transaction's working copy (st set).
type view struct {
	store *Store
	st    *state
}

func (v *view) repositories() repository.Repositories {
	return repository.Repositories{
		Profiles:     profiles{v},
		Transactions: transactions{v},
		Collections:  collections{v},
		Products:     products{v},
		Payments:     payments{v},
	}
}

// with runs f against the bound state.
func (v *view) with(f func(st *state) error) error {
	if v.store != nil {
		v.store.mu.Lock()
		defer v.store.mu.Unlock()
		return f(v.store.st)
	}
	return f(v.st)
}

type profiles struct{ v *view }

func (r profiles) Create(_ context.Context, p *domain.FarmerCreditProfile) error {
	return r.v.with(func(st *state) error {
		if _, ok := st.profiles[p.FarmerID]; ok {
			return domain.NewValidationError(domain.CodeInvalidInput, "credit profile for farmer %d already exists", p.FarmerID)
		}
		now := time.Now().UTC()
		p.CreatedAt, p.UpdatedAt = now, now
		st.profiles[p.FarmerID] = *p
		return nil
	})
}

func (r profiles) GetByFarmer(_ context.Context, farmerID int64) (*domain.FarmerCreditProfile, error) {
	var out *domain.FarmerCreditProfile
	err := r.v.with(func(st *state) error {
		p, ok := st.profiles[farmerID]
		if !ok {
			return domain.ErrNotFound
		}
		out = &p
		return nil
	})
	return out, err
}

func (r profiles) GetByFarmerForUpdate(ctx context.Context, farmerID int64) (*domain.FarmerCreditProfile, error) {
	return r.GetByFarmer(ctx, farmerID)
}

func (r profiles) Update(_ context.Context, p *domain.FarmerCreditProfile, expectedBalance decimal.Decimal) error {
	return r.v.with(func(st *state) error {
		cur, ok := st.profiles[p.FarmerID]
		if !ok || !cur.CurrentCreditBalance.Equal(expectedBalance) {
			return domain.ErrConcurrentUpdate
		}
		p.UpdatedAt = time.Now().UTC()
		st.profiles[p.FarmerID] = *p
		return nil
	})
}

func (r profiles) ListFarmerIDs(_ context.Context) ([]int64, error) {
	var ids []int64
	err := r.v.with(func(st *state) error {
		for id := range st.profiles {
			ids = append(ids, id)
		}
		return nil
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, err
}

type transactions struct{ v *view }

func (r transactions) Append(_ context.Context, tx *domain.CreditTransaction) error {
	return r.v.with(func(st *state) error {
		st.transactions = append(st.transactions, *tx)
		return nil
	})
}

func (r transactions) ListByFarmer(ctx context.Context, farmerID int64, page, pageSize int32) ([]domain.CreditTransaction, int32, error) {
	all, err := r.History(ctx, farmerID)
	if err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	newestFirst := make([]domain.CreditTransaction, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		newestFirst = append(newestFirst, all[i])
	}

	start := int((page - 1) * pageSize)
	if start >= len(newestFirst) {
		return []domain.CreditTransaction{}, int32(len(all)), nil
	}
	end := start + int(pageSize)
	if end > len(newestFirst) {
		end = len(newestFirst)
	}
	return newestFirst[start:end], int32(len(all)), nil
}

func (r transactions) History(_ context.Context, farmerID int64) ([]domain.CreditTransaction, error) {
	out := []domain.CreditTransaction{}
	err := r.v.with(func(st *state) error {
		for _, tx := range st.transactions {
			if tx.FarmerID == farmerID {
				out = append(out, tx)
			}
		}
		return nil
	})
	return out, err
}

type collections struct{ v *view }

func (r collections) GetByID(_ context.Context, id int64) (*domain.Collection, error) {
	var out *domain.Collection
	err := r.v.with(func(st *state) error {
		c, ok := st.collections[id]
		if !ok {
			return domain.ErrNotFound
		}
		out = &c
		return nil
	})
	return out, err
}

func (r collections) GetByIDForUpdate(ctx context.Context, id int64) (*domain.Collection, error) {
	return r.GetByID(ctx, id)
}

func (r collections) SumPending(_ context.Context, farmerID int64) (decimal.Decimal, error) {
	total := decimal.Zero
	err := r.v.with(func(st *state) error {
		for _, c := range st.collections {
			if c.FarmerID == farmerID && c.CountsAsPending() {
				total = total.Add(c.TotalAmount)
			}
		}
		return nil
	})
	return total, err
}

func (r collections) ListPayable(_ context.Context, from, to time.Time) ([]domain.Collection, error) {
	out := []domain.Collection{}
	err := r.v.with(func(st *state) error {
		recorded := make(map[int64]bool, len(st.records))
		for _, rec := range st.records {
			recorded[rec.CollectionID] = true
		}
		for _, c := range st.collections {
			if !c.Payable() || recorded[c.ID] {
				continue
			}
			if c.CollectedAt.Before(from) || !c.CollectedAt.Before(to) {
				continue
			}
			out = append(out, c)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (r collections) MarkPaid(_ context.Context, id int64, paidAt time.Time) error {
	return r.v.with(func(st *state) error {
		c, ok := st.collections[id]
		if !ok {
			return domain.ErrNotFound
		}
		if c.Status == domain.CollectionStatusPaid {
			return domain.ErrAlreadyPaid
		}
		c.Status = domain.CollectionStatusPaid
		c.PaidAt = &paidAt
		st.collections[id] = c
		return nil
	})
}

type products struct{ v *view }

func (r products) GetByID(_ context.Context, id int64) (*domain.Product, error) {
	var out *domain.Product
	err := r.v.with(func(st *state) error {
		p, ok := st.products[id]
		if !ok {
			return domain.ErrNotFound
		}
		out = &p
		return nil
	})
	return out, err
}

func (r products) GetByIDForUpdate(ctx context.Context, id int64) (*domain.Product, error) {
	return r.GetByID(ctx, id)
}

func (r products) DecrementStock(_ context.Context, id int64, quantity int32) error {
	return r.v.with(func(st *state) error {
		p, ok := st.products[id]
		if !ok {
			return domain.ErrNotFound
		}
		if p.CurrentStock < quantity {
			return domain.ErrInsufficientStock
		}
		p.CurrentStock -= quantity
		st.products[id] = p
		return nil
	})
}

type payments struct{ v *view }

func (r payments) CreateBatch(_ context.Context, b *domain.PaymentBatch) error {
	return r.v.with(func(st *state) error {
		st.batches[b.ID] = *b
		return nil
	})
}

func (r payments) GetBatch(_ context.Context, id uuid.UUID) (*domain.PaymentBatch, error) {
	var out *domain.PaymentBatch
	err := r.v.with(func(st *state) error {
		b, ok := st.batches[id]
		if !ok {
			return domain.ErrNotFound
		}
		b.FailureLog = append([]domain.SettlementFailure(nil), b.FailureLog...)
		out = &b
		return nil
	})
	return out, err
}

func (r payments) GetBatchForUpdate(ctx context.Context, id uuid.UUID) (*domain.PaymentBatch, error) {
	return r.GetBatch(ctx, id)
}

func (r payments) UpdateBatch(_ context.Context, b *domain.PaymentBatch) error {
	return r.v.with(func(st *state) error {
		if _, ok := st.batches[b.ID]; !ok {
			return domain.ErrNotFound
		}
		cp := *b
		cp.FailureLog = append([]domain.SettlementFailure(nil), b.FailureLog...)
		st.batches[b.ID] = cp
		return nil
	})
}

func (r payments) ListBatchesByStatus(_ context.Context, statuses ...domain.BatchStatus) ([]domain.PaymentBatch, error) {
	out := []domain.PaymentBatch{}
	err := r.v.with(func(st *state) error {
		for _, b := range st.batches {
			for _, s := range statuses {
				if b.Status == s {
					out = append(out, b)
					break
				}
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

func (r payments) CreateRecord(_ context.Context, rec *domain.CollectionPaymentRecord) error {
	return r.v.with(func(st *state) error {
		for _, existing := range st.records {
			if existing.CollectionID == rec.CollectionID {
				return domain.NewValidationError(domain.CodeAlreadyPaid, "collection %d already has a payment record", rec.CollectionID)
			}
		}
		st.nextRecordID++
		rec.ID = st.nextRecordID
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = time.Now().UTC()
		}
		st.records[rec.ID] = *rec
		return nil
	})
}

func (r payments) GetRecordByCollection(_ context.Context, collectionID int64) (*domain.CollectionPaymentRecord, error) {
	var out *domain.CollectionPaymentRecord
	err := r.v.with(func(st *state) error {
		for _, rec := range st.records {
			if rec.CollectionID == collectionID {
				rec := rec
				out = &rec
				return nil
			}
		}
		return domain.ErrNotFound
	})
	return out, err
}

func (r payments) UpdateRecord(_ context.Context, rec *domain.CollectionPaymentRecord) error {
	return r.v.with(func(st *state) error {
		if _, ok := st.records[rec.ID]; !ok {
			return domain.ErrNotFound
		}
		st.records[rec.ID] = *rec
		return nil
	})
}

func (r payments) ListRecordsByBatch(_ context.Context, batchID uuid.UUID) ([]domain.CollectionPaymentRecord, error) {
	out := []domain.CollectionPaymentRecord{}
	err := r.v.with(func(st *state) error {
		for _, rec := range st.records {
			if rec.BatchID != nil && *rec.BatchID == batchID {
				out = append(out, rec)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].FarmerID != out[j].FarmerID {
			return out[i].FarmerID < out[j].FarmerID
		}
		return out[i].CollectionID < out[j].CollectionID
	})
	return out, err
}

func (r payments) UpsertFarmerPayment(_ context.Context, fp *domain.FarmerPayment) error {
	return r.v.with(func(st *state) error {
		fp.UpdatedAt = time.Now().UTC()
		st.farmerPayments[farmerPaymentKey{fp.BatchID, fp.FarmerID}] = *fp
		return nil
	})
}

func (r payments) ListFarmerPayments(_ context.Context, batchID uuid.UUID) ([]domain.FarmerPayment, error) {
	out := []domain.FarmerPayment{}
	err := r.v.with(func(st *state) error {
		for k, fp := range st.farmerPayments {
			if k.batchID == batchID {
				out = append(out, fp)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].FarmerID < out[j].FarmerID })
	return out, err
}
