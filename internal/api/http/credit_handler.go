package http

import (
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"dairy-credit-ledger/internal/domain"
	"dairy-credit-ledger/internal/service"
)

func (s *Server) getEligibility(w http.ResponseWriter, r *http.Request) {
	farmerID, ok := pathInt64(w, r, "farmerID")
	if !ok {
		return
	}
	eligibility, err := s.eligibility.CalculateEligibility(r.Context(), farmerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eligibility)
}

func (s *Server) getCreditProfile(w http.ResponseWriter, r *http.Request) {
	farmerID, ok := pathInt64(w, r, "farmerID")
	if !ok {
		return
	}
	profile, err := s.ledger.GetProfile(r.Context(), farmerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) grantCredit(w http.ResponseWriter, r *http.Request) {
	farmerID, ok := pathInt64(w, r, "farmerID")
	if !ok {
		return
	}
	var req struct {
		CreditTier      domain.CreditTier `json:"credit_tier"`
		LimitPercentage *decimal.Decimal  `json:"limit_percentage"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	pct := s.defaultLimitPercentage
	if req.LimitPercentage != nil {
		pct = *req.LimitPercentage
	}
	if req.CreditTier == "" {
		req.CreditTier = domain.CreditTierNew
	}

	profile, err := s.credit.GrantCredit(r.Context(), service.GrantRequest{
		FarmerID:        farmerID,
		Tier:            req.CreditTier,
		LimitPercentage: pct,
		ActorID:         ActorFromContext(r.Context()),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) setFrozen(frozen bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		farmerID, ok := pathInt64(w, r, "farmerID")
		if !ok {
			return
		}
		profile, err := s.credit.SetFrozen(r.Context(), farmerID, frozen)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	}
}

func (s *Server) adjustCredit(w http.ResponseWriter, r *http.Request) {
	farmerID, ok := pathInt64(w, r, "farmerID")
	if !ok {
		return
	}
	var req struct {
		Amount decimal.Decimal `json:"amount"`
		Reason string          `json:"reason"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	tx, err := s.credit.AdjustCredit(r.Context(), farmerID, req.Amount, req.Reason, ActorFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	farmerID, ok := pathInt64(w, r, "farmerID")
	if !ok {
		return
	}
	page := queryInt32(r, "page", 1)
	pageSize := queryInt32(r, "page_size", 20)

	txs, total, err := s.ledger.GetTransactions(r.Context(), farmerID, page, pageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Transactions []domain.CreditTransaction `json:"transactions"`
		Page         int32                      `json:"page"`
		PageSize     int32                      `json:"page_size"`
		Total        int32                      `json:"total"`
	}{txs, page, pageSize, total})
}

func (s *Server) verifyLedger(w http.ResponseWriter, r *http.Request) {
	farmerID, ok := pathInt64(w, r, "farmerID")
	if !ok {
		return
	}
	summary, err := s.ledger.VerifyLedger(r.Context(), farmerID)
	if errors.Is(err, domain.ErrLedgerMismatch) {
		writeJSON(w, http.StatusConflict, summary)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) useCreditForPurchase(w http.ResponseWriter, r *http.Request) {
	var req service.PurchaseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.ActorID = ActorFromContext(r.Context())

	result, err := s.credit.UseCreditForPurchase(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}
