package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"dairy-credit-ledger/internal/domain"
	"dairy-credit-ledger/internal/logger"
)

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

func writeErrorMessage(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Error: message})
}

var validationStatus = map[domain.ValidationCode]int{
	domain.CodeInvalidInput:         http.StatusBadRequest,
	domain.CodeNotEligible:          http.StatusUnprocessableEntity,
	domain.CodeProductNotEligible:   http.StatusUnprocessableEntity,
	domain.CodeInsufficientCredit:   http.StatusUnprocessableEntity,
	domain.CodeInsufficientStock:    http.StatusUnprocessableEntity,
	domain.CodeAlreadyPaid:          http.StatusConflict,
	domain.CodeBatchNotProcessable:  http.StatusConflict,
	domain.CodeCollectionNotPayable: http.StatusConflict,
}

// writeError maps service errors onto HTTP. Business rule failures are shown
// to the caller verbatim; anything else is logged and reported as retryable.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var validation *domain.ValidationError
	var consistency *domain.ConsistencyError
	switch {
	case errors.As(err, &validation):
		status, ok := validationStatus[validation.Code]
		if !ok {
			status = http.StatusBadRequest
		}
		writeErrorMessage(w, status, string(validation.Code), validation.Message)
	case errors.As(err, &consistency):
		// Checked before ErrNotFound: a record that vanished mid-operation
		// is a conflict, not a missing resource.
		writeErrorMessage(w, http.StatusConflict, "INCONSISTENT", consistency.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeErrorMessage(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrConcurrentUpdate):
		writeErrorMessage(w, http.StatusConflict, "CONCURRENT_UPDATE", "The credit profile changed while the request was processed, please retry")
	default:
		logger.ErrorContext(r.Context(), "Request failed", "path", r.URL.Path, "error", err)
		writeErrorMessage(w, http.StatusInternalServerError, "INTERNAL", "Internal error, please retry")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, string(domain.CodeInvalidInput), "invalid request body: "+err.Error())
		return false
	}
	return true
}

func pathInt64(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	v, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || v <= 0 {
		writeErrorMessage(w, http.StatusBadRequest, string(domain.CodeInvalidInput), "invalid "+name)
		return 0, false
	}
	return v, true
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	v, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, string(domain.CodeInvalidInput), "invalid "+name)
		return uuid.Nil, false
	}
	return v, true
}

func queryInt32(r *http.Request, name string, def int32) int32 {
	v, err := strconv.ParseInt(r.URL.Query().Get(name), 10, 32)
	if err != nil || v <= 0 {
		return def
	}
	return int32(v)
}
