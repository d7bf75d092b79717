package service_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dairy-credit-ledger/internal/domain"
	"dairy-credit-ledger/internal/service"
)

// ledgerWalk drives a fixture through a random mix of credit and settlement
// operations and checks the ledger invariants after every step.
type ledgerWalk struct {
	t       *testing.T
	f       *fixture
	rng     *rand.Rand
	nextID  int64
	farmers []int64
	used    map[int64]decimal.Decimal
}

func (w *ledgerWalk) farmer() int64 {
	return w.farmers[w.rng.IntN(len(w.farmers))]
}

func (w *ledgerWalk) collection() (*domain.Collection, bool) {
	if w.nextID == 1 {
		return nil, false
	}
	id := 1 + w.rng.Int64N(w.nextID-1)
	c, err := w.f.store.Repositories().Collections.GetByID(context.Background(), id)
	require.NoError(w.t, err)
	return c, true
}

func (w *ledgerWalk) step(ctx context.Context) (string, error) {
	switch op := w.rng.IntN(9); op {
	case 0, 1:
		id := w.nextID
		w.nextID++
		liters := strconv.Itoa(10 + w.rng.IntN(40))
		amount := strconv.Itoa(100 * (1 + w.rng.IntN(30)))
		if w.rng.IntN(2) == 0 {
			w.f.payable(id, w.farmer(), liters, amount)
			return "payable " + amount, nil
		}
		w.f.receivable(id, w.farmer(), amount)
		return "receivable " + amount, nil
	case 2:
		pct := []string{"30", "50", "70", "100"}[w.rng.IntN(4)]
		_, err := w.f.credit.GrantCredit(ctx, service.GrantRequest{
			FarmerID:        w.farmer(),
			Tier:            domain.CreditTierNew,
			LimitPercentage: dec(pct),
		})
		return "grant " + pct, err
	case 3:
		qty := int32(1 + w.rng.IntN(4))
		_, err := w.f.credit.UseCreditForPurchase(ctx, service.PurchaseRequest{FarmerID: w.farmer(), ProductID: 9, Quantity: qty})
		return fmt.Sprintf("purchase x%d", qty), err
	case 4:
		delta := decimal.NewFromInt(int64(w.rng.IntN(1000) - 500))
		if delta.IsZero() {
			delta = decimal.NewFromInt(1)
		}
		_, err := w.f.credit.AdjustCredit(ctx, w.farmer(), delta, "field reconciliation", nil)
		return "adjust " + delta.String(), err
	case 5:
		c, ok := w.collection()
		if !ok {
			return "mark paid (none)", nil
		}
		_, err := w.f.settlement.MarkCollectionAsPaid(ctx, c.ID, c.FarmerID, nil)
		return fmt.Sprintf("mark paid %d", c.ID), err
	case 6:
		c, ok := w.collection()
		if !ok || c.Status == domain.CollectionStatusPaid {
			return "cancel (none)", nil
		}
		c.Status = domain.CollectionStatusCancelled
		w.f.store.PutCollection(*c)
		return fmt.Sprintf("cancel %d", c.ID), nil
	default:
		batch, err := w.f.settlement.GeneratePaymentBatch(ctx, periodStart, periodEnd, nil)
		if err != nil {
			return "generate", err
		}
		name := "credit batch"
		if op == 7 {
			_, err = w.f.settlement.ProcessPaymentBatch(ctx, batch.ID)
		} else {
			name = "fee batch"
			_, err = w.f.settlement.BatchDeductCollectorFees(ctx, batch.ID, dec("1.5"))
		}
		if err != nil {
			return name, err
		}
		stored, err := w.f.settlement.GetBatch(ctx, batch.ID)
		require.NoError(w.t, err)
		assert.Equal(w.t, domain.BatchStatusCompleted, stored.Status)
		assertConserved(w.t, stored)
		assert.False(w.t, stored.PaidNetPayment().IsNegative())
		return name, nil
	}
}

func (w *ledgerWalk) checkInvariants(ctx context.Context, label string) {
	for _, farmerID := range w.farmers {
		p, err := w.f.store.Repositories().Profiles.GetByFarmer(ctx, farmerID)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		require.NoError(w.t, err)
		require.True(w.t, p.BalanceWithinBounds(), "%s: farmer %d balance %s outside [0, %s]",
			label, farmerID, p.CurrentCreditBalance, p.MaxCreditAmount)
		require.False(w.t, p.PendingDeductions.IsNegative(), "%s: farmer %d pending %s", label, farmerID, p.PendingDeductions)
		require.True(w.t, p.TotalCreditUsed.GreaterThanOrEqual(w.used[farmerID]), "%s: farmer %d total credit used went down", label, farmerID)
		w.used[farmerID] = p.TotalCreditUsed

		summary, err := w.f.ledger.VerifyLedger(ctx, farmerID)
		require.NoError(w.t, err, label)
		require.True(w.t, summary.Consistent, "%s: farmer %d ledger does not replay", label, farmerID)
	}
}

func TestLedgerInvariants_RandomOperationSequences(t *testing.T) {
	ctx := context.Background()

	for seed := uint64(1); seed <= 8; seed++ {
		t.Run(fmt.Sprintf("Seed%d", seed), func(t *testing.T) {
			f := newFixture()
			f.product(9, "250", 1000, true)
			w := &ledgerWalk{
				t:       t,
				f:       f,
				rng:     rand.New(rand.NewPCG(seed, seed*7919)),
				nextID:  1,
				farmers: []int64{7, 8, 9},
				used:    map[int64]decimal.Decimal{},
			}

			for i := 0; i < 150; i++ {
				name, err := w.step(ctx)
				label := fmt.Sprintf("step %d (%s)", i, name)
				if err != nil {
					require.True(t, domain.IsValidation(err) || errors.Is(err, domain.ErrNotFound),
						"%s: unexpected error %v", label, err)
				}
				w.checkInvariants(ctx, label)
			}
		})
	}
}
