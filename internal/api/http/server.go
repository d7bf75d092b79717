package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"dairy-credit-ledger/internal/security"
	"dairy-credit-ledger/internal/service"
)

// Server exposes the ledger services over JSON.
type Server struct {
	eligibility service.EligibilityService
	credit      service.CreditService
	ledger      service.LedgerService
	settlement  service.SettlementService
	tokens      security.TokenManager

	defaultLimitPercentage decimal.Decimal
	collectorFeePerLiter   decimal.Decimal
}

type Options struct {
	DefaultLimitPercentage decimal.Decimal
	CollectorFeePerLiter   decimal.Decimal
}

func NewServer(
	eligibility service.EligibilityService,
	credit service.CreditService,
	ledger service.LedgerService,
	settlement service.SettlementService,
	tokens security.TokenManager,
	opts Options,
) *Server {
	return &Server{
		eligibility:            eligibility,
		credit:                 credit,
		ledger:                 ledger,
		settlement:             settlement,
		tokens:                 tokens,
		defaultLimitPercentage: opts.DefaultLimitPercentage,
		collectorFeePerLiter:   opts.CollectorFeePerLiter,
	}
}

// Router registers every route under its security name.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.authenticate)

	router.HandleFunc("/health", s.health).Methods(http.MethodGet).Name("Health")

	router.HandleFunc("/farmers/{farmerID}/eligibility", s.getEligibility).Methods(http.MethodGet).Name("GetEligibility")
	router.HandleFunc("/farmers/{farmerID}/credit-profile", s.getCreditProfile).Methods(http.MethodGet).Name("GetCreditProfile")
	router.HandleFunc("/farmers/{farmerID}/credit-profile", s.grantCredit).Methods(http.MethodPost).Name("GrantCredit")
	router.HandleFunc("/farmers/{farmerID}/credit-profile/freeze", s.setFrozen(true)).Methods(http.MethodPost).Name("FreezeCredit")
	router.HandleFunc("/farmers/{farmerID}/credit-profile/unfreeze", s.setFrozen(false)).Methods(http.MethodPost).Name("UnfreezeCredit")
	router.HandleFunc("/farmers/{farmerID}/credit-adjustments", s.adjustCredit).Methods(http.MethodPost).Name("AdjustCredit")
	router.HandleFunc("/farmers/{farmerID}/transactions", s.listTransactions).Methods(http.MethodGet).Name("ListTransactions")
	router.HandleFunc("/farmers/{farmerID}/ledger/verify", s.verifyLedger).Methods(http.MethodGet).Name("VerifyLedger")

	router.HandleFunc("/purchases", s.useCreditForPurchase).Methods(http.MethodPost).Name("UseCreditForPurchase")

	router.HandleFunc("/batches", s.generatePaymentBatch).Methods(http.MethodPost).Name("GeneratePaymentBatch")
	router.HandleFunc("/batches/{batchID}", s.getPaymentBatch).Methods(http.MethodGet).Name("GetPaymentBatch")
	router.HandleFunc("/batches/{batchID}/records", s.listBatchRecords).Methods(http.MethodGet).Name("ListBatchRecords")
	router.HandleFunc("/batches/{batchID}/payments", s.listFarmerPayments).Methods(http.MethodGet).Name("ListFarmerPayments")
	router.HandleFunc("/batches/{batchID}/process", s.processPaymentBatch).Methods(http.MethodPost).Name("ProcessPaymentBatch")
	router.HandleFunc("/batches/{batchID}/collector-fees", s.batchDeductCollectorFees).Methods(http.MethodPost).Name("BatchDeductCollectorFees")

	router.HandleFunc("/collections/{collectionID}/mark-paid", s.markCollectionAsPaid).Methods(http.MethodPost).Name("MarkCollectionAsPaid")

	return router
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
