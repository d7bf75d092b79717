package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"dairy-credit-ledger/internal/domain"
	"dairy-credit-ledger/internal/utils"
)

func parsePeriod(month, start, end string) (time.Time, time.Time, error) {
	if month != "" {
		return utils.MonthPeriod(month)
	}
	from, err := utils.ParsePeriodBound(start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("period_start: %w", err)
	}
	to, err := utils.ParsePeriodBound(end)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("period_end: %w", err)
	}
	return from, to, nil
}

func (s *Server) generatePaymentBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PeriodStart string `json:"period_start"`
		PeriodEnd   string `json:"period_end"`
		Month       string `json:"month"` // yyyy-mm, instead of explicit bounds
	}
	if !decodeBody(w, r, &req) {
		return
	}

	from, to, err := parsePeriod(req.Month, req.PeriodStart, req.PeriodEnd)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, string(domain.CodeInvalidInput), err.Error())
		return
	}

	batch, err := s.settlement.GeneratePaymentBatch(r.Context(), from, to, ActorFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, batch)
}

func (s *Server) getPaymentBatch(w http.ResponseWriter, r *http.Request) {
	batchID, ok := pathUUID(w, r, "batchID")
	if !ok {
		return
	}
	batch, err := s.settlement.GetBatch(r.Context(), batchID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (s *Server) listBatchRecords(w http.ResponseWriter, r *http.Request) {
	batchID, ok := pathUUID(w, r, "batchID")
	if !ok {
		return
	}
	records, err := s.settlement.ListBatchRecords(r.Context(), batchID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) listFarmerPayments(w http.ResponseWriter, r *http.Request) {
	batchID, ok := pathUUID(w, r, "batchID")
	if !ok {
		return
	}
	payments, err := s.settlement.ListFarmerPayments(r.Context(), batchID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payments)
}

func (s *Server) processPaymentBatch(w http.ResponseWriter, r *http.Request) {
	batchID, ok := pathUUID(w, r, "batchID")
	if !ok {
		return
	}
	result, err := s.settlement.ProcessPaymentBatch(r.Context(), batchID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// batchDeductCollectorFees accepts an optional fee_per_liter; the configured
// fee applies when the body is empty or omits it.
func (s *Server) batchDeductCollectorFees(w http.ResponseWriter, r *http.Request) {
	batchID, ok := pathUUID(w, r, "batchID")
	if !ok {
		return
	}
	var req struct {
		FeePerLiter *decimal.Decimal `json:"fee_per_liter"`
	}
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	fee := s.collectorFeePerLiter
	if req.FeePerLiter != nil {
		fee = *req.FeePerLiter
	}

	result, err := s.settlement.BatchDeductCollectorFees(r.Context(), batchID, fee)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) markCollectionAsPaid(w http.ResponseWriter, r *http.Request) {
	collectionID, ok := pathInt64(w, r, "collectionID")
	if !ok {
		return
	}
	var req struct {
		FarmerID int64 `json:"farmer_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	record, err := s.settlement.MarkCollectionAsPaid(r.Context(), collectionID, req.FarmerID, ActorFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}
