package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"dairy-credit-ledger/internal/domain"
	"dairy-credit-ledger/internal/security"
	"dairy-credit-ledger/internal/service"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testServer struct {
	eligibility *MockEligibilityService
	credit      *MockCreditService
	ledger      *MockLedgerService
	settlement  *MockSettlementService
	router      http.Handler
	token       string
}

func newTestServer(t *testing.T) *testServer {
	tokens := security.NewTokenManager(testSecret, "auth-service")
	token, err := tokens.GenerateAccessToken(42, []string{"accountant"}, time.Hour)
	require.NoError(t, err)

	ts := &testServer{
		eligibility: new(MockEligibilityService),
		credit:      new(MockCreditService),
		ledger:      new(MockLedgerService),
		settlement:  new(MockSettlementService),
		token:       token,
	}
	srv := NewServer(ts.eligibility, ts.credit, ts.ledger, ts.settlement, tokens, Options{
		DefaultLimitPercentage: decimal.NewFromInt(70),
		CollectorFeePerLiter:   decimal.NewFromInt(3),
	})
	ts.router = srv.Router()
	return ts
}

func (ts *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if ts.token != "" {
		req.Header.Set("Authorization", "Bearer "+ts.token)
	}
	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

var actor = int64(42)

func TestAuthentication(t *testing.T) {
	t.Run("HealthIsPublic", func(t *testing.T) {
		ts := newTestServer(t)
		ts.token = ""
		rr := ts.do(http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("MissingToken", func(t *testing.T) {
		ts := newTestServer(t)
		ts.token = ""
		rr := ts.do(http.MethodGet, "/farmers/7/eligibility", nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		ts.eligibility.AssertNotCalled(t, "CalculateEligibility", mock.Anything, mock.Anything)
	})

	t.Run("InvalidToken", func(t *testing.T) {
		ts := newTestServer(t)
		ts.token = "garbage"
		rr := ts.do(http.MethodGet, "/farmers/7/eligibility", nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestGetEligibility(t *testing.T) {
	ts := newTestServer(t)
	ts.eligibility.On("CalculateEligibility", mock.Anything, int64(7)).Return(&domain.Eligibility{
		FarmerID:        7,
		IsEligible:      true,
		CreditLimit:     decimal.NewFromInt(7000),
		AvailableCredit: decimal.NewFromInt(6500),
		PendingPayments: decimal.NewFromInt(10000),
	}, nil)

	rr := ts.do(http.MethodGet, "/farmers/7/eligibility", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var got domain.Eligibility
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.True(t, got.IsEligible)
	assert.True(t, decimal.NewFromInt(6500).Equal(got.AvailableCredit))

	rr = ts.do(http.MethodGet, "/farmers/abc/eligibility", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUseCreditForPurchase(t *testing.T) {
	t.Run("Created", func(t *testing.T) {
		ts := newTestServer(t)
		req := service.PurchaseRequest{FarmerID: 7, ProductID: 3, Quantity: 2, ActorID: &actor}
		ts.credit.On("UseCreditForPurchase", mock.Anything, req).Return(&service.PurchaseResult{
			TransactionID: uuid.New(),
			Amount:        decimal.NewFromInt(500),
			BalanceAfter:  decimal.NewFromInt(14500),
		}, nil)

		rr := ts.do(http.MethodPost, "/purchases", map[string]any{"farmer_id": 7, "product_id": 3, "quantity": 2})
		assert.Equal(t, http.StatusCreated, rr.Code)
		ts.credit.AssertExpectations(t)
	})

	t.Run("InsufficientCredit", func(t *testing.T) {
		ts := newTestServer(t)
		ts.credit.On("UseCreditForPurchase", mock.Anything, mock.Anything).Return(nil,
			domain.NewValidationError(domain.CodeInsufficientCredit, "Insufficient credit balance: requested 1250.00, available 100.00"))

		rr := ts.do(http.MethodPost, "/purchases", map[string]any{"farmer_id": 7, "product_id": 3, "quantity": 5})
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
		resp := decodeError(t, rr)
		assert.Equal(t, "INSUFFICIENT_CREDIT", resp.Code)
		assert.Contains(t, resp.Error, "Insufficient credit balance")
	})

	t.Run("InfrastructureErrorIsGeneric", func(t *testing.T) {
		ts := newTestServer(t)
		ts.credit.On("UseCreditForPurchase", mock.Anything, mock.Anything).Return(nil, errors.New("pq: connection refused"))

		rr := ts.do(http.MethodPost, "/purchases", map[string]any{"farmer_id": 7, "product_id": 3, "quantity": 1})
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		resp := decodeError(t, rr)
		assert.NotContains(t, resp.Error, "pq")
		assert.Contains(t, resp.Error, "retry")
	})

	t.Run("BadBody", func(t *testing.T) {
		ts := newTestServer(t)
		rr := ts.do(http.MethodPost, "/purchases", "not an object")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestGrantCredit_DefaultsPercentage(t *testing.T) {
	ts := newTestServer(t)
	ts.credit.On("GrantCredit", mock.Anything, mock.MatchedBy(func(req service.GrantRequest) bool {
		return req.FarmerID == 7 && req.Tier == domain.CreditTierEstablished &&
			req.LimitPercentage.Equal(decimal.NewFromInt(70)) && *req.ActorID == actor
	})).Return(&domain.FarmerCreditProfile{FarmerID: 7}, nil)

	rr := ts.do(http.MethodPost, "/farmers/7/credit-profile", map[string]any{"credit_tier": "established"})
	assert.Equal(t, http.StatusOK, rr.Code)
	ts.credit.AssertExpectations(t)
}

func TestVerifyLedger_Mismatch(t *testing.T) {
	ts := newTestServer(t)
	ts.ledger.On("VerifyLedger", mock.Anything, int64(7)).Return(&domain.LedgerSummary{FarmerID: 7, Consistent: false}, domain.ErrLedgerMismatch)

	rr := ts.do(http.MethodGet, "/farmers/7/ledger/verify", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	var summary domain.LedgerSummary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &summary))
	assert.False(t, summary.Consistent)
}

func TestListTransactions_Paging(t *testing.T) {
	ts := newTestServer(t)
	ts.ledger.On("GetTransactions", mock.Anything, int64(7), int32(2), int32(5)).Return([]domain.CreditTransaction{}, int32(6), nil)

	rr := ts.do(http.MethodGet, "/farmers/7/transactions?page=2&page_size=5", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	ts.ledger.AssertExpectations(t)
}

func TestGeneratePaymentBatch(t *testing.T) {
	from := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	t.Run("DateBounds", func(t *testing.T) {
		ts := newTestServer(t)
		ts.settlement.On("GeneratePaymentBatch", mock.Anything, from, to, &actor).
			Return(&domain.PaymentBatch{ID: uuid.New(), Status: domain.BatchStatusGenerated}, nil)

		rr := ts.do(http.MethodPost, "/batches", map[string]string{"period_start": "2026-09-01", "period_end": "2026-10-01"})
		assert.Equal(t, http.StatusCreated, rr.Code)
		ts.settlement.AssertExpectations(t)
	})

	t.Run("Month", func(t *testing.T) {
		ts := newTestServer(t)
		ts.settlement.On("GeneratePaymentBatch", mock.Anything, from, to, &actor).
			Return(&domain.PaymentBatch{ID: uuid.New(), Status: domain.BatchStatusGenerated}, nil)

		rr := ts.do(http.MethodPost, "/batches", map[string]string{"month": "2026-09"})
		assert.Equal(t, http.StatusCreated, rr.Code)
		ts.settlement.AssertExpectations(t)
	})

	t.Run("BadBound", func(t *testing.T) {
		ts := newTestServer(t)
		rr := ts.do(http.MethodPost, "/batches", map[string]string{"period_start": "2026-09-31", "period_end": "2026-10-01"})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "INVALID_INPUT", decodeError(t, rr).Code)
		ts.settlement.AssertNotCalled(t, "GeneratePaymentBatch", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("NothingPayable", func(t *testing.T) {
		ts := newTestServer(t)
		ts.settlement.On("GeneratePaymentBatch", mock.Anything, from, to, &actor).
			Return(nil, domain.NewValidationError(domain.CodeInvalidInput, "No payable collections in period"))

		rr := ts.do(http.MethodPost, "/batches", map[string]string{"month": "2026-09"})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestProcessPaymentBatch(t *testing.T) {
	batchID := uuid.New()

	t.Run("PartialFailureReported", func(t *testing.T) {
		ts := newTestServer(t)
		ts.settlement.On("ProcessPaymentBatch", mock.Anything, batchID).Return(&domain.BatchResult{
			BatchID:  batchID,
			Status:   domain.BatchStatusCompleted,
			Settled:  3,
			Failures: []domain.SettlementFailure{{FarmerID: 7, CollectionID: 2, Error: "Collection 2 is cancelled"}},
		}, nil)

		rr := ts.do(http.MethodPost, "/batches/"+batchID.String()+"/process", nil)
		require.Equal(t, http.StatusOK, rr.Code)

		var got domain.BatchResult
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
		assert.True(t, got.PartialFailure())
	})

	t.Run("Completed", func(t *testing.T) {
		ts := newTestServer(t)
		ts.settlement.On("ProcessPaymentBatch", mock.Anything, batchID).Return(nil,
			domain.NewValidationError(domain.CodeBatchNotProcessable, "Payment batch is already completed"))

		rr := ts.do(http.MethodPost, "/batches/"+batchID.String()+"/process", nil)
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("NotFound", func(t *testing.T) {
		ts := newTestServer(t)
		ts.settlement.On("ProcessPaymentBatch", mock.Anything, batchID).Return(nil, domain.ErrNotFound)

		rr := ts.do(http.MethodPost, "/batches/"+batchID.String()+"/process", nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("BadID", func(t *testing.T) {
		ts := newTestServer(t)
		rr := ts.do(http.MethodPost, "/batches/not-a-uuid/process", nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestBatchDeductCollectorFees_UsesConfiguredFee(t *testing.T) {
	batchID := uuid.New()
	ts := newTestServer(t)
	ts.settlement.On("BatchDeductCollectorFees", mock.Anything, batchID, decimal.NewFromInt(3)).
		Return(&domain.BatchResult{BatchID: batchID, Status: domain.BatchStatusCompleted}, nil)

	rr := ts.do(http.MethodPost, "/batches/"+batchID.String()+"/collector-fees", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	ts.settlement.AssertExpectations(t)
}

func TestMarkCollectionAsPaid(t *testing.T) {
	t.Run("AlreadyPaid", func(t *testing.T) {
		ts := newTestServer(t)
		ts.settlement.On("MarkCollectionAsPaid", mock.Anything, int64(11), int64(7), &actor).Return(nil,
			domain.NewValidationError(domain.CodeAlreadyPaid, "Collection 11 is already paid"))

		rr := ts.do(http.MethodPost, "/collections/11/mark-paid", map[string]any{"farmer_id": 7})
		assert.Equal(t, http.StatusConflict, rr.Code)
		assert.Equal(t, "ALREADY_PAID", decodeError(t, rr).Code)
	})

	t.Run("FarmerMismatch", func(t *testing.T) {
		ts := newTestServer(t)
		ts.settlement.On("MarkCollectionAsPaid", mock.Anything, int64(11), int64(8), &actor).Return(nil,
			&domain.ConsistencyError{Entity: "collection", ID: "11", Err: errors.New("belongs to farmer 7, not 8")})

		rr := ts.do(http.MethodPost, "/collections/11/mark-paid", map[string]any{"farmer_id": 8})
		assert.Equal(t, http.StatusConflict, rr.Code)
		assert.Equal(t, "INCONSISTENT", decodeError(t, rr).Code)
	})

	t.Run("CollectionVanished", func(t *testing.T) {
		ts := newTestServer(t)
		ts.settlement.On("MarkCollectionAsPaid", mock.Anything, int64(11), int64(7), &actor).Return(nil,
			&domain.ConsistencyError{Entity: "collection", ID: "11", Err: domain.ErrNotFound})

		rr := ts.do(http.MethodPost, "/collections/11/mark-paid", map[string]any{"farmer_id": 7})
		assert.Equal(t, http.StatusConflict, rr.Code)
		assert.Equal(t, "INCONSISTENT", decodeError(t, rr).Code)
	})
}
